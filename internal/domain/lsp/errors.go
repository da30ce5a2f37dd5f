package lsp

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the runtime. Callers branch on
// the kind, never on message text.
type ErrorKind string

const (
	// KindTransport: process failed to start, socket refused, pipe closed.
	// Fatal to the session; never silently retried.
	KindTransport ErrorKind = "transport"
	// KindProtocol: malformed frame or unmatched response id. The offending
	// message is dropped and the session continues.
	KindProtocol ErrorKind = "protocol"
	// KindTimeout: a request exceeded its deadline.
	KindTimeout ErrorKind = "timeout"
	// KindUnsupported: the backend cannot provide the requested feature and
	// no fallback is available.
	KindUnsupported ErrorKind = "unsupported"
	// KindInstaller: server binary download failed after bounded retries.
	KindInstaller ErrorKind = "installer"
	// KindExtraction: an archive entry would escape the target directory.
	KindExtraction ErrorKind = "extraction"
)

// Error is a structured runtime error: a kind plus a message, optionally
// wrapping an underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a structured error of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a structured error wrapping cause.
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the ErrorKind of err, or "" if err carries no kind.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTimeout reports whether err is a request timeout.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool { return KindOf(err) == KindTransport }
