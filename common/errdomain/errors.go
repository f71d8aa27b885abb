package errdomain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for routing and user presentation.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNetwork        Kind = "network"
	KindFile           Kind = "file"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindQuota          Kind = "quota"
	KindTimeout        Kind = "timeout"
	KindSecurity       Kind = "security"
	KindNotSupported   Kind = "not_supported"
	KindCancelled      Kind = "cancelled"
	KindUnknown        Kind = "unknown"
)

// Sentinel errors shared across components.
var (
	// ErrBusy is returned when a service's primary operation is invoked
	// while a previous invocation is still in flight.
	ErrBusy = New(KindValidation, "service is busy with another operation")

	// ErrFileRequestTimeout is returned when a fileRequested event is not
	// answered within the correlation window.
	ErrFileRequestTimeout = New(KindTimeout, "file request timed out")

	// ErrStorageUnavailable is returned when neither the durable KV tier
	// nor the in-memory fallback could be initialized.
	ErrStorageUnavailable = New(KindFile, "storage unavailable")

	// ErrIntegrity is returned when a persisted record fails to decrypt.
	ErrIntegrity = New(KindSecurity, "record failed integrity check")

	// ErrUpgradeRequired is returned when a gated feature needs a paid tier.
	ErrUpgradeRequired = New(KindAuthorization, "pro upgrade required")

	// ErrCancelled is returned by a primary operation aborted through
	// Cancel.
	ErrCancelled = New(KindCancelled, "operation cancelled")
)

// Error is a taxonomy-tagged error with optional routing context.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a taxonomy error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a taxonomy error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an existing error with a kind and message.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithContext attaches routing context and returns the error.
func (e *Error) WithContext(ctx map[string]any) *Error {
	e.Context = ctx
	return e
}

// KindOf extracts the taxonomy kind from any error chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// IsRetriable reports whether the error kind is eligible for automatic retry.
func IsRetriable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout:
		return true
	default:
		return false
	}
}
