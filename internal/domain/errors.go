package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when an operation needs a session
	// and none is persisted.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrUnauthorized marks a 401 from the backend. The auth transport
	// recovers from it at most once per call before clearing the session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoCurrentTask is returned when an operation needs a current task
	// and none is bound.
	ErrNoCurrentTask = errors.New("no current task")

	// ErrUnknownID marks operations referencing a task, segment or quiz
	// the engine has never seen. Arrival-order races make this transient
	// condition expected; callers treat it as a no-op with a diagnostic.
	ErrUnknownID = errors.New("unknown identifier")
)

// AuthError carries the backend-provided message for a credential or
// refresh failure. Never retried automatically.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %s", e.Message)
}

// NetworkError wraps a transport-level failure (dial, fetch, socket).
// Surfaced as a transient state; retry happens on the reconnect/poll
// schedule, never in a tight loop.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ProtocolError marks a malformed push-channel message. The message is
// dropped; the connection stays up.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s", e.Detail)
}

// BackendError is an explicit failure reported by the backend, terminal
// for the task it concerns.
type BackendError struct {
	Message string
	Code    string
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("backend: %s", e.Message)
}
