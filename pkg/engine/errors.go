package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrHandshake reports a session that did not reach a usable state.
	ErrHandshake = errors.New("engine handshake failed")
	// ErrClosed is returned by calls on a closed Session.
	ErrClosed = errors.New("engine session closed")
	// ErrConnection wraps read and write failures on the socket. The session
	// is unusable afterwards.
	ErrConnection = errors.New("engine connection lost")
	// ErrObjectNotFound is returned when the engine answers without a handle.
	ErrObjectNotFound = errors.New("engine object not found")
)

// RPCError is an error payload returned by the engine for one call.
type RPCError struct {
	Method    string
	Code      int
	Parameter string
	Message   string
}

func (e *RPCError) Error() string {
	if e.Parameter != "" {
		return fmt.Sprintf("%s: engine error %d: %s (%s)", e.Method, e.Code, e.Message, e.Parameter)
	}
	return fmt.Sprintf("%s: engine error %d: %s", e.Method, e.Code, e.Message)
}
