package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ProjectConfig is the top-level configuration for the veridoc pipeline
type ProjectConfig struct {
	DocumentsDir string             `mapstructure:"documents_dir" yaml:"documents_dir" json:"documents_dir"`
	Capabilities CapabilitiesConfig `mapstructure:"capabilities" yaml:"capabilities" json:"capabilities"`
	Retry        RetryConfig        `mapstructure:"retry" yaml:"retry" json:"retry"`
	Intake       IntakeConfig       `mapstructure:"intake" yaml:"intake" json:"intake"`
	FanOut       FanOutConfig       `mapstructure:"fanout" yaml:"fanout" json:"fanout"`
	Review       ReviewConfig       `mapstructure:"review" yaml:"review" json:"review"`
}

// CapabilitiesConfig contains connection details for the external
// classification and extraction services
type CapabilitiesConfig struct {
	Classifier     EndpointConfig `mapstructure:"classifier" yaml:"classifier" json:"classifier"`
	Extractor      EndpointConfig `mapstructure:"extractor" yaml:"extractor" json:"extractor"`
	TimeoutSeconds int            `mapstructure:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"`
}

// EndpointConfig is the connection config for one capability service
type EndpointConfig struct {
	URL string `mapstructure:"url" yaml:"url" json:"url"`
}

// RetryConfig controls transport-level retries for capability calls and the
// pipeline-level per-stage retry ceiling
type RetryConfig struct {
	MaxAttempts      int   `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
	InitialBackoffMs int64 `mapstructure:"initial_backoff_ms" yaml:"initial_backoff_ms" json:"initial_backoff_ms"`
	MaxBackoffMs     int64 `mapstructure:"max_backoff_ms" yaml:"max_backoff_ms" json:"max_backoff_ms"`
	MaxStageRetries  int   `mapstructure:"max_stage_retries" yaml:"max_stage_retries" json:"max_stage_retries"`
}

// IntakeConfig bounds what the intake stage accepts
type IntakeConfig struct {
	AllowedExtensions []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions" json:"allowed_extensions"`
	MaxFileSizeMB     int64    `mapstructure:"max_file_size_mb" yaml:"max_file_size_mb" json:"max_file_size_mb"`
}

// FanOutConfig bounds PDF page fan-out
type FanOutConfig struct {
	MaxPages int `mapstructure:"max_pages" yaml:"max_pages" json:"max_pages"`
}

// ReviewConfig controls when a document is flagged for manual review
type ReviewConfig struct {
	MinClassificationConfidence float64 `mapstructure:"min_classification_confidence" yaml:"min_classification_confidence" json:"min_classification_confidence"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() ProjectConfig {
	return ProjectConfig{
		DocumentsDir: "./documents",
		Capabilities: CapabilitiesConfig{
			Classifier:     EndpointConfig{URL: ""},
			Extractor:      EndpointConfig{URL: ""},
			TimeoutSeconds: 30,
		},
		Retry: RetryConfig{
			MaxAttempts:      5,
			InitialBackoffMs: 1000,
			MaxBackoffMs:     30000,
			MaxStageRetries:  3,
		},
		Intake: IntakeConfig{
			AllowedExtensions: []string{".pdf", ".jpg", ".jpeg", ".png", ".tif", ".tiff"},
			MaxFileSizeMB:     20,
		},
		FanOut: FanOutConfig{
			MaxPages: 10,
		},
		Review: ReviewConfig{
			MinClassificationConfidence: 0.7,
		},
	}
}

// Timeout returns the capability call timeout as a duration
func (c *CapabilitiesConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MaxFileSizeBytes returns the intake size ceiling in bytes
func (c *IntakeConfig) MaxFileSizeBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

// AllowsExtension checks the extension against the allow-list,
// case-insensitively, leading dot required
func (c *IntakeConfig) AllowsExtension(ext string) bool {
	for _, allowed := range c.AllowedExtensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *ProjectConfig) Validate() error {
	if c.DocumentsDir == "" {
		return fmt.Errorf("documents_dir is required")
	}
	if len(c.Intake.AllowedExtensions) == 0 {
		return fmt.Errorf("intake.allowed_extensions must not be empty")
	}
	for _, ext := range c.Intake.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("intake extension %q must include the leading dot", ext)
		}
	}
	if c.Intake.MaxFileSizeMB <= 0 {
		return fmt.Errorf("intake.max_file_size_mb must be > 0, got %d", c.Intake.MaxFileSizeMB)
	}
	if c.FanOut.MaxPages <= 0 {
		return fmt.Errorf("fanout.max_pages must be > 0, got %d", c.FanOut.MaxPages)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.MaxStageRetries < 0 {
		return fmt.Errorf("retry.max_stage_retries must be >= 0, got %d", c.Retry.MaxStageRetries)
	}
	if c.Review.MinClassificationConfidence < 0 || c.Review.MinClassificationConfidence > 1 {
		return fmt.Errorf("review.min_classification_confidence must be within [0,1], got %f", c.Review.MinClassificationConfidence)
	}
	for _, endpoint := range []EndpointConfig{c.Capabilities.Classifier, c.Capabilities.Extractor} {
		if endpoint.URL == "" {
			continue // capabilities are optional until a stage needs them
		}
		if _, err := url.Parse(endpoint.URL); err != nil {
			return fmt.Errorf("invalid capability url %q: %w", endpoint.URL, err)
		}
	}
	return nil
}
