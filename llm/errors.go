// ABOUTME: Error types for LLM provider failures, with retryability classification.
// ABOUTME: Workflow compute phases return these so the engine's retry wrapper can act on transient failures.
package llm

import (
	"errors"
	"fmt"
)

// ProviderError represents an error returned by an LLM provider's API.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether err is a transient provider failure worth
// retrying: rate limits, overload, and 5xx responses qualify; authentication
// and request-shape errors do not. Unknown errors default to retryable since
// network-level failures rarely carry structure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}

// classifyStatus maps an HTTP status code to retryability.
func classifyStatus(status int) bool {
	switch {
	case status == 429:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}
