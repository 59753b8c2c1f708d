// Package stream folds the notification sequence of one streaming turn into
// a single record, finalized as an immutable Message on the terminal event.
package stream

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tether/pkg/protocol"
)

// ToolStatus tracks one tool invocation inside a turn.
type ToolStatus string

const (
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolFailed    ToolStatus = "failed"
)

// ToolCallRecord is the assembled view of one tool invocation. It is created
// on a started event and mutated in place by the matching completed event.
type ToolCallRecord struct {
	ID        string
	Name      string
	Arguments map[string]any
	Status    ToolStatus
	Result    string
	Error     string
}

// Turn is a snapshot of the in-progress assembly, safe to hand to a renderer.
type Turn struct {
	SessionID       string
	Content         string
	ToolCalls       []ToolCallRecord
	Reasoning       []string
	ReasoningActive bool
	StartedAt       time.Time
}

// Message is a finalized turn. It is never mutated after Complete returns it.
type Message struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
	Metrics   protocol.Metrics
	ToolCalls []ToolCallRecord
	Reasoning []string
}

type activeTurn struct {
	sessionID       string
	content         strings.Builder
	toolCalls       []ToolCallRecord
	reasoning       []string
	reasoningActive bool
	startedAt       time.Time
}

// Assembler owns at most one active turn at a time. The turn starts when the
// originating call is sent, not when the first notification arrives, so the
// renderer has a placeholder to show immediately.
type Assembler struct {
	log *zap.Logger

	mu     sync.Mutex
	active *activeTurn
}

func NewAssembler(log *zap.Logger) *Assembler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{log: log}
}

// Begin opens a new active turn for sessionID and returns its placeholder
// snapshot. An already-active turn is overwritten; the peer only streams one
// turn at a time, so a leftover here means its terminal event never arrived.
func (a *Assembler) Begin(sessionID string) Turn {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active != nil {
		a.log.Warn("replacing active turn that never completed",
			zap.String("session_id", a.active.sessionID))
	}
	a.active = &activeTurn{
		sessionID: sessionID,
		startedAt: time.Now(),
	}
	return a.active.snapshot()
}

// Active returns the current turn snapshot, if one is in flight.
func (a *Assembler) Active() (Turn, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return Turn{}, false
	}
	return a.active.snapshot(), true
}

// ApplyChunk appends one content delta. Chunks concatenate in arrival order;
// the final text is exactly their concatenation.
func (a *Assembler) ApplyChunk(n protocol.StreamChunk) (Turn, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.claim(n.SessionID, protocol.MethodStreamChunk) {
		return Turn{}, false
	}
	a.active.content.WriteString(n.Content)
	return a.active.snapshot(), true
}

// ApplyToolCall records a tool lifecycle event. A started event appends a
// Running record; a completed event mutates the matching record by id. A
// completed event with no matching record is appended as a new record rather
// than dropped, so the user still sees the invocation.
func (a *Assembler) ApplyToolCall(n protocol.StreamToolCall) (Turn, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.claim(n.SessionID, protocol.MethodStreamToolCall) {
		return Turn{}, false
	}

	switch n.Status {
	case protocol.StatusStarted:
		a.active.toolCalls = append(a.active.toolCalls, ToolCallRecord{
			ID:        n.Tool.ID,
			Name:      n.Tool.Name,
			Arguments: n.Tool.Arguments,
			Status:    ToolRunning,
		})
	case protocol.StatusCompleted:
		rec := a.active.findToolCall(n.Tool.ID)
		if rec == nil {
			a.active.toolCalls = append(a.active.toolCalls, ToolCallRecord{})
			rec = &a.active.toolCalls[len(a.active.toolCalls)-1]
			rec.ID = n.Tool.ID
		}
		if n.Tool.Name != "" {
			rec.Name = n.Tool.Name
		}
		if n.Tool.Arguments != nil {
			rec.Arguments = n.Tool.Arguments
		}
		rec.Result = n.Tool.Result
		rec.Error = n.Tool.Error
		rec.Status = ToolCompleted
		if n.Tool.Error != "" {
			rec.Status = ToolFailed
		}
	default:
		a.log.Warn("ignoring tool call event with unrecognized status",
			zap.String("status", n.Status))
		return a.active.snapshot(), false
	}
	return a.active.snapshot(), true
}

// ApplyReasoning tracks the reasoning sub-stream: start and stop markers
// toggle the active flag, step events append their content.
func (a *Assembler) ApplyReasoning(n protocol.StreamReasoning) (Turn, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.claim(n.SessionID, protocol.MethodStreamReasoning) {
		return Turn{}, false
	}

	switch n.Status {
	case protocol.StatusStarted:
		a.active.reasoningActive = true
	case protocol.StatusStep:
		a.active.reasoning = append(a.active.reasoning, n.Content)
	case protocol.StatusCompleted:
		a.active.reasoningActive = false
	default:
		a.log.Warn("ignoring reasoning event with unrecognized status",
			zap.String("status", n.Status))
		return a.active.snapshot(), false
	}
	return a.active.snapshot(), true
}

// Complete freezes the active turn into a Message and clears the active
// slot. Authoritative tool calls and reasoning in the terminal event, when
// present, supersede the incrementally assembled ones.
func (a *Assembler) Complete(n protocol.StreamComplete) (Message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.claim(n.SessionID, protocol.MethodStreamComplete) {
		return Message{}, false
	}

	turn := a.active
	a.active = nil

	msg := Message{
		ID:        uuid.NewString(),
		SessionID: turn.sessionID,
		Role:      "assistant",
		Content:   turn.content.String(),
		CreatedAt: time.Now(),
		Metrics:   n.Metrics,
		ToolCalls: turn.toolCalls,
		Reasoning: turn.reasoning,
	}
	if len(n.ToolCalls) > 0 {
		msg.ToolCalls = make([]ToolCallRecord, 0, len(n.ToolCalls))
		for _, tc := range n.ToolCalls {
			status := ToolCompleted
			if tc.Error != "" {
				status = ToolFailed
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCallRecord{
				ID:        tc.ID,
				Name:      tc.Name,
				Arguments: tc.Arguments,
				Status:    status,
				Result:    tc.Result,
				Error:     tc.Error,
			})
		}
	}
	if len(n.Reasoning) > 0 {
		msg.Reasoning = n.Reasoning
	}
	return msg, true
}

// Finalize freezes the active turn from a call result instead of a terminal
// notification, for the case where the reply lands without a stream_complete
// having been observed. The result's text is authoritative over whatever was
// streamed so far.
func (a *Assembler) Finalize(sessionID, text string, metrics protocol.Metrics) (Message, bool) {
	msg, ok := a.Complete(protocol.StreamComplete{
		SessionID: sessionID,
		Metrics:   metrics,
	})
	if !ok {
		return Message{}, false
	}
	if text != "" {
		msg.Content = text
	}
	return msg, true
}

// Discard drops the active turn without producing a Message, for connection
// loss and cancellation. A half-streamed answer is never persisted; its
// metrics are unknown.
func (a *Assembler) Discard() (sessionID string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active == nil {
		return "", false
	}
	sessionID = a.active.sessionID
	a.active = nil
	return sessionID, true
}

// claim checks that an event belongs to the active turn. A turn begun before
// its session existed (empty id) adopts the id of the first tagged event.
// Callers hold a.mu.
func (a *Assembler) claim(sessionID, method string) bool {
	if a.active == nil {
		a.log.Debug("dropping stream event with no active turn",
			zap.String("method", method),
			zap.String("session_id", sessionID))
		return false
	}
	if a.active.sessionID == "" {
		a.active.sessionID = sessionID
		return true
	}
	if sessionID != "" && sessionID != a.active.sessionID {
		a.log.Warn("dropping stream event for a different session",
			zap.String("method", method),
			zap.String("session_id", sessionID),
			zap.String("active_session_id", a.active.sessionID))
		return false
	}
	return true
}

func (t *activeTurn) findToolCall(id string) *ToolCallRecord {
	for i := range t.toolCalls {
		if t.toolCalls[i].ID == id {
			return &t.toolCalls[i]
		}
	}
	return nil
}

func (t *activeTurn) snapshot() Turn {
	out := Turn{
		SessionID:       t.sessionID,
		Content:         t.content.String(),
		ReasoningActive: t.reasoningActive,
		StartedAt:       t.startedAt,
	}
	if len(t.toolCalls) > 0 {
		out.ToolCalls = append([]ToolCallRecord(nil), t.toolCalls...)
	}
	if len(t.reasoning) > 0 {
		out.Reasoning = append([]string(nil), t.reasoning...)
	}
	return out
}
