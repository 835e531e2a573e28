package view

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fullstack-poc/usersview/internal/apiclient"
)

// ValidationPrompt is shown when a required draft field is missing
const ValidationPrompt = "Please fill in all fields"

var (
	// ErrSubmissionInFlight is returned by Create while another create request is pending
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	// ErrClosed is returned by operations on a closed view
	ErrClosed = errors.New("view is closed")
)

// ProbeError is a failed health probe. It is only logged.
type ProbeError struct {
	Err error
}

func (e *ProbeError) Error() string { return fmt.Sprintf("failed to fetch API status: %v", e.Err) }
func (e *ProbeError) Unwrap() error { return e.Err }

// LoadError is a failed users load. Message is what the load status shows.
type LoadError struct {
	StatusCode int
	Message    string
	Err        error
}

func newLoadError(err error) *LoadError {
	var statusErr *apiclient.StatusError
	if errors.As(err, &statusErr) {
		return &LoadError{
			StatusCode: statusErr.StatusCode,
			Message:    fmt.Sprintf("HTTP error! status: %d", statusErr.StatusCode),
			Err:        err,
		}
	}
	return &LoadError{Message: err.Error(), Err: err}
}

func (e *LoadError) Error() string { return e.Message }
func (e *LoadError) Unwrap() error { return e.Err }

// ValidationError is returned when a draft misses a required field.
// No request is sent for such drafts.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string { return ValidationPrompt }

// CreateError is a failed create request
type CreateError struct {
	StatusCode int
	Body       string
	Err        error
}

func newCreateError(err error) *CreateError {
	var statusErr *apiclient.StatusError
	if errors.As(err, &statusErr) {
		return &CreateError{StatusCode: statusErr.StatusCode, Body: statusErr.Body, Err: err}
	}
	return &CreateError{Err: err}
}

func (e *CreateError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Failed to create user: %d - %s", e.StatusCode, e.Body)
	}
	return e.Err.Error()
}

func (e *CreateError) Unwrap() error { return e.Err }

// IsClientError reports whether the API rejected the request itself
func (e *CreateError) IsClientError() bool {
	return e.StatusCode >= http.StatusBadRequest && e.StatusCode < http.StatusInternalServerError
}
