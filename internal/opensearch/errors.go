package opensearch

import (
	"errors"
	"fmt"
)

var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrNotFound           = errors.New("not found")
	ErrEmptyQuery         = errors.New("empty query")
)

// BackendError describes a failed backend call. It matches
// ErrBackendUnavailable with errors.Is.
type BackendError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("backend %s %s", e.Op, e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrBackendUnavailable}
	}
	return []error{ErrBackendUnavailable, e.Err}
}
