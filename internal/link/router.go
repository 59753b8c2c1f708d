package link

import (
	"go.uber.org/zap"

	"tether/pkg/protocol"
)

// StreamHandler consumes the notifications that make up one streaming turn.
type StreamHandler interface {
	HandleStreamChunk(protocol.StreamChunk)
	HandleStreamToolCall(protocol.StreamToolCall)
	HandleStreamReasoning(protocol.StreamReasoning)
	HandleStreamComplete(protocol.StreamComplete)
	HandleStreamCancelled(protocol.StreamCancelled)
}

// SessionHandler consumes server-initiated session updates.
type SessionHandler interface {
	HandleSessionUpdated(protocol.SessionUpdated)
}

// PeerHandler consumes editor-readiness and usage notifications.
type PeerHandler interface {
	HandleEditorConnected(protocol.EditorConnected)
	HandleEditorDisconnected(protocol.EditorDisconnected)
	HandleTokenUpdate(protocol.TokenUpdate)
}

// ConfirmationHandler consumes approval requests for destructive actions.
type ConfirmationHandler interface {
	HandleConfirmationRequest(protocol.ConfirmationRequest)
}

// Router dispatches inbound notifications to a fixed handler set bound at
// construction. Exactly one handler per notification kind; subsystems that
// share an event are composed behind one handler, not registered twice.
// Dispatch is synchronous and in arrival order.
type Router struct {
	log           *zap.Logger
	stream        StreamHandler
	sessions      SessionHandler
	peer          PeerHandler
	confirmations ConfirmationHandler
}

// NewRouter binds the handler table. Nil handlers are permitted; their
// notifications are dropped after a debug log.
func NewRouter(log *zap.Logger, stream StreamHandler, sessions SessionHandler, peer PeerHandler, confirmations ConfirmationHandler) *Router {
	return &Router{
		log:           log,
		stream:        stream,
		sessions:      sessions,
		peer:          peer,
		confirmations: confirmations,
	}
}

// Dispatch routes one decoded notification. The switch is exhaustive over
// the protocol.Notification union.
func (r *Router) Dispatch(n protocol.Notification) {
	switch v := n.(type) {
	case protocol.StreamChunk:
		if r.stream != nil {
			r.stream.HandleStreamChunk(v)
			return
		}
	case protocol.StreamToolCall:
		if r.stream != nil {
			r.stream.HandleStreamToolCall(v)
			return
		}
	case protocol.StreamReasoning:
		if r.stream != nil {
			r.stream.HandleStreamReasoning(v)
			return
		}
	case protocol.StreamComplete:
		if r.stream != nil {
			r.stream.HandleStreamComplete(v)
			return
		}
	case protocol.StreamCancelled:
		if r.stream != nil {
			r.stream.HandleStreamCancelled(v)
			return
		}
	case protocol.SessionUpdated:
		if r.sessions != nil {
			r.sessions.HandleSessionUpdated(v)
			return
		}
	case protocol.EditorConnected:
		if r.peer != nil {
			r.peer.HandleEditorConnected(v)
			return
		}
	case protocol.EditorDisconnected:
		if r.peer != nil {
			r.peer.HandleEditorDisconnected(v)
			return
		}
	case protocol.TokenUpdate:
		if r.peer != nil {
			r.peer.HandleTokenUpdate(v)
			return
		}
	case protocol.ConfirmationRequest:
		if r.confirmations != nil {
			r.confirmations.HandleConfirmationRequest(v)
			return
		}
	}
	r.log.Debug("no handler bound for notification", zap.Any("notification", n))
}
