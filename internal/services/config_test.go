package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	path := filepath.Join(t.TempDir(), "veridoc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoadConfig_FileOverridesDefaults verifies file values land on top of
// the defaults
func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	docsDir := filepath.Join(t.TempDir(), "docs")
	path := writeConfigFile(t, `
documents_dir: `+docsDir+`
capabilities:
  classifier:
    url: http://localhost:8000/classify
  extractor:
    url: http://localhost:8001/extract
  timeout_seconds: 10
retry:
  max_attempts: 2
  max_stage_retries: 1
fanout:
  max_pages: 4
review:
  min_classification_confidence: 0.5
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, docsDir, config.DocumentsDir)
	assert.Equal(t, "http://localhost:8000/classify", config.Capabilities.Classifier.URL)
	assert.Equal(t, "http://localhost:8001/extract", config.Capabilities.Extractor.URL)
	assert.Equal(t, 10, config.Capabilities.TimeoutSeconds)
	assert.Equal(t, 2, config.Retry.MaxAttempts)
	assert.Equal(t, 1, config.Retry.MaxStageRetries)
	assert.Equal(t, 4, config.FanOut.MaxPages)
	assert.InDelta(t, 0.5, config.Review.MinClassificationConfidence, 0.001)

	// Values the file never mentions keep their defaults
	assert.Equal(t, int64(1000), config.Retry.InitialBackoffMs)
	assert.Contains(t, config.Intake.AllowedExtensions, ".pdf")

	// The documents dir is created on load
	info, err := os.Stat(docsDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

// TestLoadConfig_ZeroStageRetries verifies an explicit zero survives; zero is
// a valid ceiling, not an unset value
func TestLoadConfig_ZeroStageRetries(t *testing.T) {
	docsDir := filepath.Join(t.TempDir(), "docs")
	path := writeConfigFile(t, `
documents_dir: `+docsDir+`
retry:
  max_stage_retries: 0
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0, config.Retry.MaxStageRetries)
}

// TestLoadConfig_InvalidValues verifies validation rejects unusable settings
func TestLoadConfig_InvalidValues(t *testing.T) {
	docsDir := filepath.Join(t.TempDir(), "docs")
	path := writeConfigFile(t, `
documents_dir: `+docsDir+`
fanout:
  max_pages: -1
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_pages")
}

// TestLoadConfig_MalformedFile verifies unparseable YAML fails loudly
func TestLoadConfig_MalformedFile(t *testing.T) {
	path := writeConfigFile(t, "documents_dir: [unclosed")

	_, err := LoadConfig(path)
	require.Error(t, err)
}
