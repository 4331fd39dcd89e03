package wanlib

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by control operations for an unknown transfer id.
	ErrNotFound = errors.New("transfer not found")
	// ErrResumeUnsupported is surfaced as a warning when a server answers a
	// Range request with a full response; the transfer restarts from zero.
	ErrResumeUnsupported = errors.New("server does not support resuming, restarting from offset 0")
	// ErrNotPaused is returned by MoveToQueue for a transfer that is not paused.
	ErrNotPaused = errors.New("transfer is not paused")
	// ErrUnknownInterface is returned when a request targets a source ip
	// that the interface lister does not report.
	ErrUnknownInterface = errors.New("unknown interface")
	// ErrInvalidSourceIP is returned when a source ip cannot be parsed.
	ErrInvalidSourceIP = errors.New("invalid source ip")
	// ErrEmptyURL is returned when enqueueing a request without url.
	ErrEmptyURL = errors.New("url cannot be empty")
	// ErrUnsupportedScheme is returned for urls other than http and https.
	ErrUnsupportedScheme = errors.New("unsupported url scheme, only http and https are allowed")
	// ErrEngineClosed is returned by operations after Shutdown.
	ErrEngineClosed = errors.New("engine is shut down")

	errSessionStopped = errors.New("session stopped")
)

// DestinationError reports a failure to create or write the destination file.
// It is never retried.
type DestinationError struct {
	Path string
	Err  error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("destination %s: %v", e.Path, e.Err)
}

func (e *DestinationError) Unwrap() error { return e.Err }

// NetworkError wraps the last connect or read failure after the retry
// policy was exhausted.
type NetworkError struct {
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPStatusError is returned for unexpected response codes.
type HTTPStatusError struct {
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	if e.Status != "" {
		return "unexpected http status: " + e.Status
	}
	return fmt.Sprintf("unexpected http status: %d", e.StatusCode)
}
