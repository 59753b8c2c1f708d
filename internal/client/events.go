package client

import (
	"tether/internal/link"
	"tether/internal/stream"
	"tether/pkg/protocol"
)

// Event is the closed union delivered on the client's event channel.
type Event interface{ event() }

// StateEvent reports a link state transition. Err is non-nil when the
// transition was caused by losing the connection.
type StateEvent struct {
	State link.State
	Err   error
}

// TurnUpdateEvent carries a fresh snapshot of the in-progress turn.
type TurnUpdateEvent struct {
	Turn stream.Turn
}

// TurnCompleteEvent carries the finalized Message of a turn.
type TurnCompleteEvent struct {
	Message stream.Message
}

// TurnDiscardedEvent reports that the active turn was dropped without a
// Message, either by user cancellation or by losing the connection.
type TurnDiscardedEvent struct {
	SessionID string
	Cancelled bool
}

// SessionsEvent carries the full session cache after any change to it.
type SessionsEvent struct {
	Sessions []protocol.Session
	ActiveID string
}

// TokenUsageEvent reports the runtime's running token total.
type TokenUsageEvent struct {
	Total     int
	SessionID string
}

// EditorStateEvent reports editor plugin attachment.
type EditorStateEvent struct {
	Connected bool
	Project   *protocol.ProjectInfo
}

// ConfirmationEvent surfaces an approval request for a destructive action.
type ConfirmationEvent struct {
	Request protocol.ConfirmationRequest
}

func (StateEvent) event()         {}
func (TurnUpdateEvent) event()    {}
func (TurnCompleteEvent) event()  {}
func (TurnDiscardedEvent) event() {}
func (SessionsEvent) event()      {}
func (TokenUsageEvent) event()    {}
func (EditorStateEvent) event()   {}
func (ConfirmationEvent) event()  {}
