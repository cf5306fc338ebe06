// Package corerr defines the typed error categories of §7: every error
// raised by the driver, broker client, and keep-alive register carries a
// Kind so callers can branch on policy (retry, reconnect, fatal) without
// string matching.
package corerr

import "errors"

// Kind categorizes an error per the error handling table in §7.
type Kind string

const (
	// BrokerUnavailable surfaces to C7 and triggers a reconnect.
	BrokerUnavailable Kind = "broker_unavailable"
	// BrokerOperation is retried locally by the caller; it counts toward
	// the global error counter after enough attempts.
	BrokerOperation Kind = "broker_operation"
	// DriverTransient is retried with backoff in C5, bounded.
	DriverTransient Kind = "driver_transient"
	// DriverPermanent marks the tenant failed; C4 is notified to remove it.
	DriverPermanent Kind = "driver_permanent"
	// KeepAliveUnavailable causes C6 to skip the current tick.
	KeepAliveUnavailable Kind = "keep_alive_unavailable"
	// ConfigInvalid is fatal at startup.
	ConfigInvalid Kind = "config_invalid"
	// ShutdownRequested signals cooperative cancellation.
	ShutdownRequested Kind = "shutdown_requested"
)

// Error wraps a cause with a Kind.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

// New creates an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap creates an Error of the given kind around cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's category.
func (e *Error) Kind() Kind { return e.kind }

// KindOf extracts the Kind from err, if any Error in its chain has one.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return "", false
}

// Is reports whether err's chain contains an Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
