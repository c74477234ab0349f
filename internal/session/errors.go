package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an operation is not permitted from the
	// current lifecycle state.
	ErrInvalidState = errors.New("invalid session state")
	// ErrDisconnected rejects a pending handshake when the session is torn down.
	ErrDisconnected = errors.New("session disconnected")
	// ErrHandshakeRejected wraps an error frame received before ready.
	ErrHandshakeRejected = errors.New("handshake rejected")
)

// RemoteError is an error control frame sent by the remote service. Fatal is
// set when it arrived before the session was ready.
type RemoteError struct {
	Message string
	Fatal   bool
}

func (e *RemoteError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("remote error during handshake: %s", e.Message)
	}
	return fmt.Sprintf("remote error: %s", e.Message)
}
