package oracle

import "errors"

// Oracle gateway errors.
var (
	// ErrAuthentication is returned on credential failures (401/403).
	// Fatal, never retried.
	ErrAuthentication = errors.New("oracle authentication failed")

	// ErrMaxRetries is returned when the retry budget for transient
	// transport failures is exhausted.
	ErrMaxRetries = errors.New("oracle max retries exceeded")

	// ErrEmptyResponse is returned when the provider replies with no
	// choices at all.
	ErrEmptyResponse = errors.New("oracle returned no completion")

	// ErrUnknownProvider is returned by the factory for an
	// unrecognized provider name.
	ErrUnknownProvider = errors.New("unknown oracle provider")
)
