package protocol

import "time"

// Call method names issued by this client.
const (
	MethodHello                = "hello"
	MethodUserMessage          = "user_message"
	MethodCancelRequest        = "cancel_request"
	MethodConfirmationResponse = "confirmation_response"
	MethodGetStatus            = "get_status"
	MethodListSessions         = "list_sessions"
	MethodCreateSession        = "create_session"
	MethodRenameSession        = "rename_session"
	MethodDeleteSession        = "delete_session"
	MethodGetSessionHistory    = "get_session_history"
)

// Session is the runtime's canonical record of one conversation. The client
// only ever caches copies; mutable fields are overwritten from call results
// and session_updated notifications, never from request inputs.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	TotalTokens  int       `json:"total_tokens,omitempty"`
	TotalCost    float64   `json:"total_cost,omitempty"`
}

// ToolCall is the wire shape of one tool invocation inside a turn.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Metrics summarizes one completed turn. Known only once the terminal
// stream_complete notification (or the user_message reply) arrives.
type Metrics struct {
	InputTokens        int     `json:"input_tokens,omitempty"`
	OutputTokens       int     `json:"output_tokens,omitempty"`
	TotalTokens        int     `json:"total_tokens,omitempty"`
	RequestCost        float64 `json:"request_cost,omitempty"`
	SessionTotalTokens int     `json:"session_total_tokens,omitempty"`
	Model              string  `json:"model,omitempty"`
}

// ProjectInfo describes the engine project open in the attached editor.
type ProjectInfo struct {
	Name          string `json:"name,omitempty"`
	EngineVersion string `json:"engine_version,omitempty"`
	Path          string `json:"path,omitempty"`
}

// HelloParams opens every connection. No other call is permitted first.
type HelloParams struct {
	Client          string `json:"client"`
	ProtocolVersion string `json:"protocol_version"`
	AppVersion      string `json:"app_version,omitempty"`
	InstanceID      string `json:"instance_id,omitempty"`
}

// HelloResult is the bootstrap snapshot returned by the runtime.
type HelloResult struct {
	ProtocolVersion string       `json:"protocol_version"`
	EditorConnected bool         `json:"editor_connected"`
	Project         *ProjectInfo `json:"project,omitempty"`
	Sessions        []Session    `json:"sessions"`
	ActiveSessionID string       `json:"active_session_id,omitempty"`
}

// UserMessageParams starts a streaming turn. SessionID may be empty, in
// which case the runtime creates a session and announces it with a
// session_updated notification carrying is_new.
type UserMessageParams struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

// UserMessageResult resolves the user_message call after the stream ends.
type UserMessageResult struct {
	Text      string  `json:"text"`
	Metrics   Metrics `json:"metrics"`
	SessionID string  `json:"session_id"`
	Cancelled bool    `json:"cancelled,omitempty"`
}

// CancelResult acknowledges a cancel_request call.
type CancelResult struct {
	Cancelled bool   `json:"cancelled"`
	SessionID string `json:"session_id,omitempty"`
}

// ConfirmationResponseParams answers a confirmation_request notification.
type ConfirmationResponseParams struct {
	ConfirmationID  string `json:"confirmation_id"`
	Approved        bool   `json:"approved"`
	ModifiedContent string `json:"modified_content,omitempty"`
}

// ConfirmationResponseResult acknowledges the decision was delivered.
type ConfirmationResponseResult struct {
	Accepted bool `json:"accepted"`
}

// StatusResult is the get_status probe reply. It settles the handshake
// readiness race and backs the status command.
type StatusResult struct {
	EditorConnected bool         `json:"editor_connected"`
	Project         *ProjectInfo `json:"project,omitempty"`
	TotalTokens     int          `json:"total_tokens,omitempty"`
}

// ListSessionsResult enumerates the runtime's sessions.
type ListSessionsResult struct {
	Sessions []Session `json:"sessions"`
}

// CreateSessionParams requests a new session.
type CreateSessionParams struct {
	Title string `json:"title,omitempty"`
}

// RenameSessionParams retitles an existing session.
type RenameSessionParams struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

// SessionResult wraps the canonical session record returned by
// create_session and rename_session.
type SessionResult struct {
	Session Session `json:"session"`
}

// DeleteSessionParams removes a session.
type DeleteSessionParams struct {
	SessionID string `json:"session_id"`
}

// DeleteSessionResult acknowledges a deletion.
type DeleteSessionResult struct {
	Deleted   bool   `json:"deleted"`
	SessionID string `json:"session_id"`
}

// HistoryParams fetches a session's message history. Switching sessions is
// this call plus adopting the session locally.
type HistoryParams struct {
	SessionID string `json:"session_id"`
}

// HistoryMessage is one persisted message in a session's history.
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResult is the get_session_history reply.
type HistoryResult struct {
	SessionID string           `json:"session_id"`
	Title     string           `json:"title"`
	Messages  []HistoryMessage `json:"messages"`
}
