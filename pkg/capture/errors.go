package capture

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoFirstFrame is returned when the source opened but the first-frame
	// probe produced nothing.
	ErrNoFirstFrame = errors.New("capture: no frame from source")

	// ErrUnknownBackend is returned when no backend is registered under the
	// requested name.
	ErrUnknownBackend = errors.New("capture: unknown backend")

	// ErrRewindUnsupported is returned by sources that cannot seek, such as
	// live cameras.
	ErrRewindUnsupported = errors.New("capture: rewind not supported")

	// ErrClosed is returned when operating on a closed source.
	ErrClosed = errors.New("capture: source closed")
)

// OpenError reports a failure to open a source. It is the only capture error
// surfaced to callers; it is never retried.
type OpenError struct {
	// Backend identifies which backend failed.
	Backend Backend

	// Identifier is the device index or path that was requested.
	Identifier string

	Err error
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("capture [%s]: open %q: %v", e.Backend, e.Identifier, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpenError) Unwrap() error {
	return e.Err
}

// RewindError reports a seek that the backend refused or could not confirm.
type RewindError struct {
	Backend Backend
	Err     error
}

// Error implements the error interface.
func (e *RewindError) Error() string {
	return fmt.Sprintf("capture [%s]: rewind failed: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *RewindError) Unwrap() error {
	return e.Err
}

// IsOpenError reports whether err is, or wraps, an *OpenError.
func IsOpenError(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}
