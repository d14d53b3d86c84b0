package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned for params that are not one of the five request kinds.
	ErrInvalidRequest = errors.New("protocol: invalid request params")
	// ErrInvalidProofState is returned when a run result is neither CurrentState nor ProofFinished.
	ErrInvalidProofState = errors.New("protocol: invalid proof state")
)

// ProtocolError reports a reply whose id does not match the request just sent.
// The stream is desynchronized once this happens.
type ProtocolError struct {
	Sent int
	Got  int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: sent request %d, got response %d", e.Sent, e.Got)
}

// ServerError carries the diagnostic of a reply that was not a Response.
type ServerError struct {
	Message string
	Code    int
}

func (e *ServerError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("protocol: server error %d: %s", e.Code, e.Message)
	}
	return "protocol: server error: " + e.Message
}

// IsFatal reports whether err leaves the connection unusable.
func IsFatal(err error) bool {
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return true
	}
	var fatal interface{ Fatal() bool }
	if errors.As(err, &fatal) {
		return fatal.Fatal()
	}
	return false
}
