package lib

import (
	"errors"
	"fmt"
	"strings"
)

// PipelineError is a structured error with category, guidance, and
// retryability. Stage failures are recorded, not thrown; PipelineError is what
// gets recorded and what surfaces to CLI users.
type PipelineError struct {
	Category    ErrorCategory
	Message     string   // short description of what went wrong
	Cause       error    // underlying error
	Guidance    []string // what the user can do about it
	HTTPStatus  int      // HTTP status code if applicable
	IsRetryable bool     // eligible for pipeline-level retry?
}

// ErrorCategory classifies errors per the pipeline taxonomy
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"    // bad extension/size, terminal
	CategoryNotFound      ErrorCategory = "not_found"     // unknown document/case/queue id
	CategoryCapability    ErrorCategory = "capability"    // classify/extract failed after transport retries
	CategoryConversion    ErrorCategory = "conversion"    // PDF fan-out failure
	CategoryState         ErrorCategory = "state"         // corrupted or locked persisted state
	CategoryFileSystem    ErrorCategory = "filesystem"
	CategoryConfiguration ErrorCategory = "configuration"
)

// Error implements the error interface
func (e *PipelineError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", strings.ToUpper(string(e.Category))))
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Cause))
	}
	if e.HTTPStatus > 0 {
		sb.WriteString(fmt.Sprintf(" (HTTP %d)", e.HTTPStatus))
	}
	return sb.String()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a formatted message suitable for CLI display
func (e *PipelineError) UserMessage() string {
	var sb strings.Builder
	sb.WriteString("Error: ")
	sb.WriteString(e.Message)
	sb.WriteString("\n")
	if len(e.Guidance) > 0 {
		sb.WriteString("\nHow to fix:\n")
		for i, guide := range e.Guidance {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, guide))
		}
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("\nTechnical details: %v\n", e.Cause))
	}
	return sb.String()
}

// IsCategory reports whether err is a PipelineError of the given category
func IsCategory(err error, category ErrorCategory) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category == category
	}
	return false
}

// Validation errors

// ErrUnsupportedExtension rejects a file whose extension is not allow-listed
func ErrUnsupportedExtension(filename string, allowed []string) *PipelineError {
	return &PipelineError{
		Category: CategoryValidation,
		Message:  fmt.Sprintf("Unsupported file type: %s", filename),
		Guidance: []string{
			fmt.Sprintf("Supported extensions: %s", strings.Join(allowed, ", ")),
			"Convert the document to a supported format and resubmit",
		},
		IsRetryable: false,
	}
}

// ErrFileTooLarge rejects a file over the intake size ceiling
func ErrFileTooLarge(filename string, sizeBytes int64, maxBytes int64) *PipelineError {
	return &PipelineError{
		Category: CategoryValidation,
		Message:  fmt.Sprintf("File too large: %s (%d bytes, limit %d)", filename, sizeBytes, maxBytes),
		Guidance: []string{
			"Reduce the file size, e.g. rescan at a lower resolution",
			"Raise intake.max_file_size_mb in veridoc.yaml if the limit is too strict",
		},
		IsRetryable: false,
	}
}

// Not-found errors

// ErrFileNotFound reports a missing source file or directory
func ErrFileNotFound(path string) *PipelineError {
	return &PipelineError{
		Category: CategoryNotFound,
		Message:  fmt.Sprintf("File or directory not found: %s", path),
		Guidance: []string{
			"Check that the path is correct",
			"Verify you have permission to access it",
		},
		IsRetryable: false,
	}
}

// ErrDocumentNotFound reports an unknown document ID. Only the store's create
// operation may originate a new ID; lookups never do.
func ErrDocumentNotFound(documentID string) *PipelineError {
	return &PipelineError{
		Category: CategoryNotFound,
		Message:  fmt.Sprintf("Document '%s' not found", documentID),
		Guidance: []string{
			"Check the document ID is correct",
			"Use 'veridoc document list' to see all documents",
		},
		IsRetryable: false,
	}
}

// ErrCaseNotFound reports an unknown case ID
func ErrCaseNotFound(caseID string) *PipelineError {
	return &PipelineError{
		Category: CategoryNotFound,
		Message:  fmt.Sprintf("Case '%s' not found", caseID),
		Guidance: []string{
			"Check the case ID is correct",
			"Cases are created when the first document is linked to them",
		},
		IsRetryable: false,
	}
}

// ErrQueueEntryNotFound reports an unknown queue entry ID
func ErrQueueEntryNotFound(queueID string) *PipelineError {
	return &PipelineError{
		Category: CategoryNotFound,
		Message:  fmt.Sprintf("Queue entry '%s' not found", queueID),
		Guidance: []string{
			"Use 'veridoc queue list' to see active entries",
			"Completed entries move to the processed archive",
		},
		IsRetryable: false,
	}
}

// Capability errors

// ErrCapabilityUnavailable reports a capability call that failed after
// transport retries were exhausted; eligible for pipeline-level retry
func ErrCapabilityUnavailable(service string, cause error) *PipelineError {
	return &PipelineError{
		Category: CategoryCapability,
		Message:  fmt.Sprintf("%s service is unavailable", service),
		Cause:    cause,
		Guidance: []string{
			fmt.Sprintf("Check the %s service is running and reachable", service),
			"Retry the stage once the service recovers",
		},
		IsRetryable: true,
	}
}

// ErrCapabilityRejected reports a capability call the service refused;
// retrying will not help
func ErrCapabilityRejected(service string, statusCode int, message string) *PipelineError {
	return &PipelineError{
		Category:   CategoryCapability,
		Message:    fmt.Sprintf("%s rejected the request: %s", service, message),
		HTTPStatus: statusCode,
		Guidance: []string{
			"The submitted file was invalid or malformed for this service",
			"This error requires manual investigation, automatic retry will not help",
		},
		IsRetryable: false,
	}
}

// Conversion errors

// ErrConversionFailed reports a PDF fan-out failure. Recorded on the parent's
// intake block; the parent's classification/extraction are skipped regardless.
func ErrConversionFailed(documentID string, cause error) *PipelineError {
	return &PipelineError{
		Category: CategoryConversion,
		Message:  fmt.Sprintf("Failed to split PDF %s into pages", documentID),
		Cause:    cause,
		Guidance: []string{
			"Check the PDF is not encrypted or corrupted",
			"Re-export the PDF and resubmit",
		},
		IsRetryable: false,
	}
}

// State errors

// ErrCorruptedState reports an unparseable persisted file
func ErrCorruptedState(path string, cause error) *PipelineError {
	return &PipelineError{
		Category: CategoryState,
		Message:  fmt.Sprintf("State file is corrupted: %s", path),
		Cause:    cause,
		Guidance: []string{
			"The file may have been manually edited",
			"Check it for JSON syntax errors or restore from backup",
		},
		IsRetryable: false,
	}
}

// ErrStoreLocked reports a store held by another process
func ErrStoreLocked(path string) *PipelineError {
	return &PipelineError{
		Category: CategoryState,
		Message:  fmt.Sprintf("Store is locked by another process: %s", path),
		Guidance: []string{
			"Wait for the other veridoc process to finish",
			fmt.Sprintf("If stuck, remove the lock file: %s.lock", path),
		},
		IsRetryable: true,
	}
}

// Configuration errors

// ErrMissingCapabilityURL reports a stage whose service URL is not configured
func ErrMissingCapabilityURL(service string) *PipelineError {
	return &PipelineError{
		Category: CategoryConfiguration,
		Message:  fmt.Sprintf("%s service URL is not configured", service),
		Guidance: []string{
			fmt.Sprintf("Set capabilities.%s.url in veridoc.yaml", strings.ToLower(service)),
		},
		IsRetryable: false,
	}
}

// ErrInvalidConfig reports a configuration validation failure
func ErrInvalidConfig(reason string) *PipelineError {
	return &PipelineError{
		Category: CategoryConfiguration,
		Message:  fmt.Sprintf("Invalid configuration: %s", reason),
		Guidance: []string{
			"Compare your veridoc.yaml with the documented defaults",
		},
		IsRetryable: false,
	}
}

// WrapError wraps a standard error with pipeline context
func WrapError(category ErrorCategory, message string, cause error, guidance ...string) *PipelineError {
	return &PipelineError{
		Category:    category,
		Message:     message,
		Cause:       cause,
		Guidance:    guidance,
		IsRetryable: IsNetworkError(cause),
	}
}

// ClassifyError examines an arbitrary error and maps it into the taxonomy
func ClassifyError(err error) *PipelineError {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case IsNetworkError(err):
		return &PipelineError{
			Category:    CategoryCapability,
			Message:     "Network connectivity issue",
			Cause:       err,
			Guidance:    []string{"Check the capability services are reachable"},
			IsRetryable: true,
		}
	case strings.Contains(errMsg, "no space left"):
		return &PipelineError{
			Category:    CategoryFileSystem,
			Message:     "Insufficient disk space",
			Cause:       err,
			Guidance:    []string{"Free up disk space under the documents directory"},
			IsRetryable: false,
		}
	case strings.Contains(errMsg, "permission denied"):
		return &PipelineError{
			Category:    CategoryFileSystem,
			Message:     "Permission denied",
			Cause:       err,
			Guidance:    []string{"Check file and directory permissions"},
			IsRetryable: false,
		}
	default:
		return &PipelineError{
			Category:    CategoryState,
			Message:     "An unexpected error occurred",
			Cause:       err,
			Guidance:    []string{"See the technical details and logs"},
			IsRetryable: false,
		}
	}
}
