package services

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/veridoc/veridoc/internal/models"
)

// LoadConfig loads configuration from file and merges with the environment.
// Priority order (highest to lowest):
//  1. CLI flags (via viper bindings)
//  2. Environment variables (VERIDOC_ prefix)
//  3. Configuration file
//  4. Default values
func LoadConfig(configFile string) (*models.ProjectConfig, error) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("veridoc")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/veridoc")
		viper.AddConfigPath("/etc/veridoc")
	}

	viper.SetEnvPrefix("VERIDOC")
	viper.AutomaticEnv()

	// Config file is optional; missing file means defaults only
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := models.DefaultConfig()

	// Build config manually from viper values on top of the defaults
	// (Viper.Unmarshal has issues with nested structs in some versions)
	if v := viper.GetString("documents_dir"); v != "" {
		config.DocumentsDir = v
	}
	if v := viper.GetString("capabilities.classifier.url"); v != "" {
		config.Capabilities.Classifier.URL = v
	}
	if v := viper.GetString("capabilities.extractor.url"); v != "" {
		config.Capabilities.Extractor.URL = v
	}
	if v := viper.GetInt("capabilities.timeout_seconds"); v != 0 {
		config.Capabilities.TimeoutSeconds = v
	}
	if v := viper.GetInt("retry.max_attempts"); v != 0 {
		config.Retry.MaxAttempts = v
	}
	if v := viper.GetInt64("retry.initial_backoff_ms"); v != 0 {
		config.Retry.InitialBackoffMs = v
	}
	if v := viper.GetInt64("retry.max_backoff_ms"); v != 0 {
		config.Retry.MaxBackoffMs = v
	}
	if viper.IsSet("retry.max_stage_retries") {
		config.Retry.MaxStageRetries = viper.GetInt("retry.max_stage_retries")
	}
	if v := viper.GetStringSlice("intake.allowed_extensions"); len(v) > 0 {
		config.Intake.AllowedExtensions = v
	}
	if v := viper.GetInt64("intake.max_file_size_mb"); v != 0 {
		config.Intake.MaxFileSizeMB = v
	}
	if v := viper.GetInt("fanout.max_pages"); v != 0 {
		config.FanOut.MaxPages = v
	}
	if viper.IsSet("review.min_classification_confidence") {
		config.Review.MinClassificationConfidence = viper.GetFloat64("review.min_classification_confidence")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// The documents dir must exist and be writable before any store opens
	if err := ensureDocumentsDir(config.DocumentsDir); err != nil {
		return nil, err
	}

	return &config, nil
}

// GetConfigFilePath returns the path of the config file that was loaded
func GetConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// SetConfigValue allows runtime override of config values.
// Useful for CLI flag overrides.
func SetConfigValue(key string, value interface{}) {
	viper.Set(key, value)
}

func ensureDocumentsDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if createErr := os.MkdirAll(dir, 0755); createErr != nil {
				return fmt.Errorf("failed to create documents directory: %w", createErr)
			}
			return nil
		}
		return fmt.Errorf("failed to access documents directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("documents path is not a directory: %s", dir)
	}
	return nil
}
