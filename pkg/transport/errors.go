package transport

import (
	"fmt"
)

// Error reports that an HTTP exchange could not be completed
type Error struct {
	Method string
	URL    string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to send request: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError reports a response with a non-2xx status code
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Body)
}
