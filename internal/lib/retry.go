package lib

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/veridoc/veridoc/internal/models"
)

// CalculateBackoff computes exponential backoff duration:
// min(initialBackoff * 2^attempt, maxBackoff)
func CalculateBackoff(attempt int, initialBackoffMs int64, maxBackoffMs int64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	backoffMs := float64(initialBackoffMs) * math.Pow(2, float64(attempt))
	if backoffMs > float64(maxBackoffMs) {
		backoffMs = float64(maxBackoffMs)
	}
	return time.Duration(backoffMs) * time.Millisecond
}

// RetryConfig holds retry strategy parameters for transport calls
type RetryConfig struct {
	MaxAttempts      int
	InitialBackoffMs int64
	MaxBackoffMs     int64
}

// NewRetryConfigFromModel creates a RetryConfig from the project config
func NewRetryConfigFromModel(config models.RetryConfig) RetryConfig {
	return RetryConfig{
		MaxAttempts:      config.MaxAttempts,
		InitialBackoffMs: config.InitialBackoffMs,
		MaxBackoffMs:     config.MaxBackoffMs,
	}
}

// IsTransientHTTPStatus classifies HTTP status codes for retry logic.
// 5xx, 408 and 429 are transient; other 4xx are not.
func IsTransientHTTPStatus(status int) bool {
	if status >= 500 && status < 600 {
		return true
	}
	return status == 408 || status == 429
}

// StageRetryEligible decides whether a failed stage may be re-invoked.
// Retrying is never automatic; the caller makes the decision.
func StageRetryEligible(status models.StageStatus, retryCount int, maxRetries int) bool {
	return status == models.StageStatusFail && retryCount < maxRetries
}

// RetryableOperation represents an operation that can be retried
type RetryableOperation func() error

// ExecuteWithRetry executes an operation with exponential backoff.
// Returns nil on success, or the last error once attempts are exhausted or
// shouldRetry declines.
func ExecuteWithRetry(operation RetryableOperation, config RetryConfig, shouldRetry func(error) bool) error {
	var lastErr error
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}
		if attempt == config.MaxAttempts-1 {
			break
		}
		time.Sleep(CalculateBackoff(attempt, config.InitialBackoffMs, config.MaxBackoffMs))
	}
	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

// IsNetworkError checks if an error looks like a transient network failure
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"deadline exceeded",
		"eof",
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
