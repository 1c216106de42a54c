package platform

import "fmt"

// NotFoundError means the run or environment does not exist on the platform
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// RejectionError is a non-transient platform refusal (4xx other than a
// start conflict). Never retried.
type RejectionError struct {
	StatusCode int
	Message    string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("platform rejected request (status %d): %s", e.StatusCode, e.Message)
}

// TransientError is a network failure or 5xx; safe to retry with backoff
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient platform error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }
