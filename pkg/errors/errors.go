package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeFetch represents network/HTTP failures after retry exhaustion
	ErrorTypeFetch ErrorType = "fetch"
	// ErrorTypeExtraction represents HTML extraction errors
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeValidation represents record validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeReconciliation represents warehouse staging/merge errors
	ErrorTypeReconciliation ErrorType = "reconciliation"
	// ErrorTypeRateLimit represents rate limiting by an upstream source
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// PipelineError represents a pipeline-stage error with its source context
type PipelineError struct {
	Type    ErrorType
	Source  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Source, e.Message)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *PipelineError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeFetch:
		return true
	case ErrorTypeRateLimit:
		return false
	case ErrorTypeReconciliation:
		return false
	default:
		return false
	}
}

// IsFatal returns true if the error aborts the whole run rather than a
// single source or record
func (e *PipelineError) IsFatal() bool {
	return e.Type == ErrorTypeReconciliation || e.Type == ErrorTypeConfiguration
}

// New creates a new PipelineError
func New(errType ErrorType, source, message string, err error) *PipelineError {
	return &PipelineError{
		Type:    errType,
		Source:  source,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewFetch creates a new fetch error
func NewFetch(source, message string, err error) *PipelineError {
	return New(ErrorTypeFetch, source, message, err)
}

// NewExtraction creates a new extraction error
func NewExtraction(source, message string, err error) *PipelineError {
	return New(ErrorTypeExtraction, source, message, err)
}

// NewValidation creates a new validation error
func NewValidation(source, message string) *PipelineError {
	return New(ErrorTypeValidation, source, message, nil)
}

// NewReconciliation creates a new reconciliation error
func NewReconciliation(message string, err error) *PipelineError {
	return New(ErrorTypeReconciliation, "warehouse", message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(source string, duration time.Duration) *PipelineError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, source, message, nil)
}

// NewPublisher creates a new publisher error
func NewPublisher(source, message string, err error) *PipelineError {
	return New(ErrorTypePublisher, source, message, err)
}

// NewCache creates a new cache error
func NewCache(source, message string, err error) *PipelineError {
	return New(ErrorTypeCache, source, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *PipelineError {
	return New(ErrorTypeConfiguration, "", message, err)
}
