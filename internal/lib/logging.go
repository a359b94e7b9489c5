package lib

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// LogLevel defines the severity of log messages
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// Logger provides leveled logging for the pipeline
type Logger struct {
	level  LogLevel
	logger *log.Logger
}

// NewLogger creates a new logger instance
func NewLogger(level LogLevel) *Logger {
	return &Logger{
		level:  level,
		logger: log.New(os.Stderr, "", log.LstdFlags),
	}
}

// DefaultLogger returns a logger with INFO level
var DefaultLogger = NewLogger(LogLevelInfo)

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...interface{}) {
	if l.level <= LogLevelDebug {
		l.log("DEBUG", message, fields...)
	}
}

// Info logs an informational message
func (l *Logger) Info(message string, fields ...interface{}) {
	if l.level <= LogLevelInfo {
		l.log("INFO", message, fields...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...interface{}) {
	if l.level <= LogLevelWarn {
		l.log("WARN", message, fields...)
	}
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...interface{}) {
	if l.level <= LogLevelError {
		l.log("ERROR", message, fields...)
	}
}

func (l *Logger) log(level string, message string, fields ...interface{}) {
	var fieldsStr string
	if len(fields) > 0 {
		fieldsStr = fmt.Sprintf(" | %v", fields)
	}
	l.logger.Printf("[%s] %s%s", level, message, fieldsStr)
}

// SetLevel changes the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

// ParseLogLevel converts a string to LogLevel
func ParseLogLevel(levelStr string) LogLevel {
	switch levelStr {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// LogRetry logs retry attempts against a capability service
func LogRetry(logger *Logger, operation string, attempt int, maxAttempts int, err error) {
	// Strip line breaks from operation to prevent log spoofing
	safeOperation := strings.ReplaceAll(operation, "\n", "")
	safeOperation = strings.ReplaceAll(safeOperation, "\r", "")
	logger.Warn(
		fmt.Sprintf("Retry attempt %d/%d for: %s", attempt+1, maxAttempts, safeOperation),
		"error", err,
	)
}

// LogStageStart logs the start of a pipeline stage
func LogStageStart(logger *Logger, stage string, documentID string) {
	logger.Info("Stage started", "stage", stage, "document_id", documentID)
}

// LogStageComplete logs a successful pipeline stage
func LogStageComplete(logger *Logger, stage string, documentID string, duration time.Duration) {
	logger.Info("Stage completed", "stage", stage, "document_id", documentID, "duration", duration)
}

// LogStageSkipped logs a stage skipped by smart resume
func LogStageSkipped(logger *Logger, stage string, documentID string) {
	logger.Info("Stage skipped, already successful", "stage", stage, "document_id", documentID)
}

// LogStageFailed logs a failed pipeline stage
func LogStageFailed(logger *Logger, stage string, documentID string, err error, retryCount int) {
	logger.Error("Stage failed", "stage", stage, "document_id", documentID, "error", err, "retry_count", retryCount)
}

// LogDocumentCreated logs document record creation
func LogDocumentCreated(logger *Logger, documentID string, filename string) {
	logger.Info("Document created", "document_id", documentID, "filename", filename)
}

// LogQueueEvent logs a queue entry lifecycle event
func LogQueueEvent(logger *Logger, event string, queueID string, fields ...interface{}) {
	all := append([]interface{}{"queue_id", queueID}, fields...)
	logger.Info("Queue "+event, all...)
}

// LogServiceCall logs capability HTTP calls
func LogServiceCall(logger *Logger, service string, endpoint string, method string) {
	logger.Debug("Service call", "service", service, "endpoint", endpoint, "method", method)
}

// LogServiceResponse logs capability HTTP responses
func LogServiceResponse(logger *Logger, service string, statusCode int, duration time.Duration) {
	if statusCode >= 400 {
		logger.Warn("Service response", "service", service, "status", statusCode, "duration", duration)
	} else {
		logger.Debug("Service response", "service", service, "status", statusCode, "duration", duration)
	}
}
