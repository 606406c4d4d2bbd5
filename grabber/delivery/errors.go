package delivery

import (
	"errors"
	"fmt"
)

// ErrRejected is wrapped when the controller answered with a failure acknowledgement
var ErrRejected = errors.New("rejected by controller")

type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// SendError is returned for a message that did not reach the controller.
// The connection was already replaced when Reconnected is true.
type SendError struct {
	Err         error
	Rejected    bool
	Reconnected bool
}

func (e *SendError) Error() string {
	if e.Rejected {
		return "send: " + e.Err.Error()
	}
	if e.Reconnected {
		return fmt.Sprintf("send: %v (reconnected)", e.Err)
	}
	return fmt.Sprintf("send: %v (not connected)", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
