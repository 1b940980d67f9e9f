// Package netlinkerr defines the error kinds the core raises, matching the
// three classes described by the error handling design: a fatal protocol
// error that unwinds a Network's dispatch loop, a lookup miss against
// public API calls, and a capability gap in the active dialect.
package netlinkerr

import "github.com/pkg/errors"

// ProtocolError indicates unrecoverable link state: a bad password, an
// ERROR line from the uplink, a missing required capability, an attempt to
// SQUIT ourselves or our uplink, or a dead-connection timeout. Receiving
// one unwinds the current dispatch, closes the transport, and makes
// Network.Run return the error; no reconnect is scheduled.
type ProtocolError struct {
	Network string
	Reason  string
	cause   error
}

func (e *ProtocolError) Error() string {
	if e.cause != nil {
		return "protocol error on " + e.Network + ": " + e.Reason + ": " + e.cause.Error()
	}
	return "protocol error on " + e.Network + ": " + e.Reason
}

// Unwrap lets errors.Is/As see through to a wrapped cause.
func (e *ProtocolError) Unwrap() error { return e.cause }

// NewProtocolError builds a ProtocolError, annotating it with a stack trace
// via pkg/errors so a %+v format during development shows where it
// originated.
func NewProtocolError(network, reason string, cause error) *ProtocolError {
	return &ProtocolError{
		Network: network,
		Reason:  reason,
		cause:   errors.WithStack(cause),
	}
}

// NotFoundError indicates a public API call referenced an unknown client,
// server, or channel. It is surfaced to the caller and does not disturb
// the Network.
type NotFoundError struct {
	Kind string // "user", "server", "channel"
	ID   string
}

func (e *NotFoundError) Error() string {
	return e.Kind + " not found: " + e.ID
}

// NewNotFoundError constructs a NotFoundError for the given entity kind and
// identifier.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// NotSupportedError indicates the active dialect lacks a requested
// capability, e.g. update_client(field=IDENT) against a dialect without
// CHGIDENT, or spawn_server on a dialect that cannot introduce servers.
type NotSupportedError struct {
	Dialect    string
	Capability string
}

func (e *NotSupportedError) Error() string {
	return e.Dialect + " does not support " + e.Capability
}

// NewNotSupportedError constructs a NotSupportedError for the given
// dialect and missing capability.
func NewNotSupportedError(dialect, capability string) *NotSupportedError {
	return &NotSupportedError{Dialect: dialect, Capability: capability}
}
