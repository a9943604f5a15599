package activitypub

import (
	"errors"
	"fmt"
)

// Signature errors. Always fatal to the single request, never retried.
var (
	ErrMissingSignature = errors.New("missing http signature")
	ErrInvalidSignature = errors.New("invalid http signature")
	ErrExpiredHeader    = errors.New("date header missing or outside tolerance window")
	ErrMissingDigest    = errors.New("digest header missing or mismatched")
)

// Fetch errors
var (
	ErrTooLarge    = errors.New("remote object exceeds size limit")
	ErrNotFound    = errors.New("not found")
	ErrPrivateMode = errors.New("federation disabled, outbound request skipped")
)

// Resolver errors. Terminal: the owning job is never retried.
var (
	ErrLocalObject   = errors.New("object is local")
	ErrDepthExceeded = errors.New("reply chain exceeds depth limit")
)

// HTTPError is returned by the fetcher on a non-2xx response
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("remote server returned status: %d", e.Status)
}

// ValidationError marks an activity whose shape is malformed or
// unsupported. The activity is dropped and acknowledged, never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid activity: %s", e.Reason)
}

// isTerminal reports whether a handler error must not be retried
func isTerminal(err error) bool {
	var verr *ValidationError
	return errors.Is(err, ErrDepthExceeded) ||
		errors.Is(err, ErrLocalObject) ||
		errors.As(err, &verr)
}
