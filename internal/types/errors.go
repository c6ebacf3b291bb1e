package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrSessionLaunch   = errors.New("browser session could not be started")
	ErrSessionClosed   = errors.New("browser session is closed")
	ErrElementMissing  = errors.New("element not found")
	ErrStepSkipped     = errors.New("skipped: a prerequisite step failed")
	ErrSettleTimeout   = errors.New("page did not reach ready state")
	ErrLayoutMismatch  = errors.New("page layout differs from expected default state")
	ErrDownloadTimeout = errors.New("download did not complete")
	ErrNoCSRFToken     = errors.New("csrf token not found")
	ErrBadStatus       = errors.New("unsuccessful HTTP status")
	ErrBodyTooSmall    = errors.New("response body below minimum size")
	ErrBodyTooLarge    = errors.New("response body exceeds maximum size")
	ErrInvalidArea     = errors.New("invalid area, expected 1-9")
	ErrInvalidDate     = errors.New("invalid date, expected YYYY/MM/DD")
	ErrUnknownItem     = errors.New("unknown data item")
)

// NavigationError is recorded when a single UI step fails. It never aborts a run.
type NavigationError struct {
	Step     string
	Selector string
	Err      error
}

func (e *NavigationError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("navigation step %q (selector=%q): %v", e.Step, e.Selector, e.Err)
	}
	return fmt.Sprintf("navigation step %q: %v", e.Step, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// FetchError wraps errors that occur on the direct-fetch side channel.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur while persisting an artifact.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
