package protocol

import (
	"encoding/json"
	"fmt"
)

// Notification method names pushed by the runtime.
const (
	MethodStreamChunk         = "stream_chunk"
	MethodStreamToolCall      = "stream_tool_call"
	MethodStreamReasoning     = "stream_reasoning"
	MethodStreamComplete      = "stream_complete"
	MethodStreamCancelled     = "stream_cancelled"
	MethodTokenUpdate         = "token_update"
	MethodSessionUpdated      = "session_updated"
	MethodConfirmationRequest = "confirmation_request"
	MethodEditorConnected     = "editor_connected"
	MethodEditorDisconnected  = "editor_disconnected"
)

// Tool call and reasoning lifecycle statuses.
const (
	StatusStarted   = "started"
	StatusStep      = "step"
	StatusCompleted = "completed"
)

// Notification is the closed union of server-push messages this client
// consumes. Adding a kind means adding a variant here and a case to every
// dispatch switch, which the compiler checks.
type Notification interface {
	Inbound
	notification()
}

// StreamChunk appends text to the active turn.
type StreamChunk struct {
	Content   string `json:"content"`
	SessionID string `json:"session_id"`
}

// StreamToolCall reports a tool invocation starting or finishing within the
// active turn.
type StreamToolCall struct {
	Status    string   `json:"status"` // started | completed
	Tool      ToolCall `json:"tool"`
	SessionID string   `json:"session_id"`
}

// StreamReasoning reports reasoning activity: start/stop markers and
// individual steps.
type StreamReasoning struct {
	Status    string `json:"status"` // started | step | completed
	Content   string `json:"content,omitempty"`
	SessionID string `json:"session_id"`
}

// StreamComplete terminates the active turn. ToolCalls and Reasoning, when
// present, are the runtime's authoritative record and supersede the
// incrementally assembled ones.
type StreamComplete struct {
	Metrics   Metrics    `json:"metrics"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Reasoning []string   `json:"reasoning,omitempty"`
	SessionID string     `json:"session_id"`
}

// StreamCancelled reports that the runtime abandoned the active turn after a
// cancel_request.
type StreamCancelled struct {
	SessionID string `json:"session_id"`
}

// TokenUpdate carries the connection's running token total.
type TokenUpdate struct {
	Total     int    `json:"total"`
	SessionID string `json:"session_id"`
}

// SessionUpdated announces a session the runtime created or touched as a
// side effect (auto-titling, metric rollups) rather than in reply to a call.
type SessionUpdated struct {
	Session Session `json:"session"`
	IsNew   bool    `json:"is_new"`
}

// ConfirmationRequest asks the user to approve a destructive editor action.
// The answer goes back as a confirmation_response call.
type ConfirmationRequest struct {
	ConfirmationID string         `json:"confirmation_id"`
	ActionType     string         `json:"action_type"`
	Description    string         `json:"description"`
	Details        map[string]any `json:"details,omitempty"`
}

// EditorConnected reports the editor plugin attaching to the runtime.
type EditorConnected struct {
	Project *ProjectInfo `json:"project,omitempty"`
}

// EditorDisconnected reports the editor plugin dropping off.
type EditorDisconnected struct{}

func (StreamChunk) notification()         {}
func (StreamToolCall) notification()      {}
func (StreamReasoning) notification()     {}
func (StreamComplete) notification()      {}
func (StreamCancelled) notification()     {}
func (TokenUpdate) notification()         {}
func (SessionUpdated) notification()      {}
func (ConfirmationRequest) notification() {}
func (EditorConnected) notification()     {}
func (EditorDisconnected) notification()  {}

func (StreamChunk) inbound()         {}
func (StreamToolCall) inbound()      {}
func (StreamReasoning) inbound()     {}
func (StreamComplete) inbound()      {}
func (StreamCancelled) inbound()     {}
func (TokenUpdate) inbound()         {}
func (SessionUpdated) inbound()      {}
func (ConfirmationRequest) inbound() {}
func (EditorConnected) inbound()     {}
func (EditorDisconnected) inbound()  {}

// DecodeNotification unmarshals a notification's params into its typed
// variant. Unknown methods return *UnknownMethodError.
func DecodeNotification(method string, params json.RawMessage) (Notification, error) {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	switch method {
	case MethodStreamChunk:
		var n StreamChunk
		if err := json.Unmarshal(params, &n); err != nil {
			return nil, fmt.Errorf("malformed %s params: %w", method, err)
		}
		return n, nil

	case MethodStreamToolCall:
		var n StreamToolCall
		if err := json.Unmarshal(params, &n); err != nil {
			return nil, fmt.Errorf("malformed %s params: %w", method, err)
		}
		return n, nil

	case MethodStreamReasoning:
		var n StreamReasoning
		if err := json.Unmarshal(params, &n); err != nil {
			return nil, fmt.Errorf("malformed %s params: %w", method, err)
		}
		return n, nil

	case MethodStreamComplete:
		var n StreamComplete
		if err := json.Unmarshal(params, &n); err != nil {
			return nil, fmt.Errorf("malformed %s params: %w", method, err)
		}
		return n, nil

	case MethodStreamCancelled:
		var n StreamCancelled
		if err := json.Unmarshal(params, &n); err != nil {
			return nil, fmt.Errorf("malformed %s params: %w", method, err)
		}
		return n, nil

	case MethodTokenUpdate:
		var n TokenUpdate
		if err := json.Unmarshal(params, &n); err != nil {
			return nil, fmt.Errorf("malformed %s params: %w", method, err)
		}
		return n, nil

	case MethodSessionUpdated:
		var n SessionUpdated
		if err := json.Unmarshal(params, &n); err != nil {
			return nil, fmt.Errorf("malformed %s params: %w", method, err)
		}
		return n, nil

	case MethodConfirmationRequest:
		var n ConfirmationRequest
		if err := json.Unmarshal(params, &n); err != nil {
			return nil, fmt.Errorf("malformed %s params: %w", method, err)
		}
		return n, nil

	case MethodEditorConnected:
		var n EditorConnected
		if err := json.Unmarshal(params, &n); err != nil {
			return nil, fmt.Errorf("malformed %s params: %w", method, err)
		}
		return n, nil

	case MethodEditorDisconnected:
		return EditorDisconnected{}, nil

	default:
		return nil, &UnknownMethodError{Method: method}
	}
}
