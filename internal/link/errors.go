package link

import (
	"errors"
	"fmt"

	"tether/pkg/protocol"
)

var (
	// ErrNotConnected is returned when a call is attempted while the link
	// is not open. Fails immediately, no retry.
	ErrNotConnected = errors.New("link: not connected")

	// ErrTimeout is returned when no reply arrives within the call deadline.
	ErrTimeout = errors.New("link: call timed out")

	// ErrConnectionLost is returned to every outstanding call when the
	// transport closes underneath them.
	ErrConnectionLost = errors.New("link: connection lost")
)

// RemoteError wraps a structured error payload returned by the peer. The
// payload is surfaced verbatim; domain sub-kinds (insufficient balance,
// session not found) are for higher layers to present.
type RemoteError struct {
	Payload protocol.ErrorPayload
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("link: %s", e.Payload.Error())
}
