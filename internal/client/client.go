// Package client wires the link, stream assembler, and session registry into
// one component and fans their activity out as a single event stream.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tether/internal/link"
	"tether/internal/sessions"
	"tether/internal/stream"
	"tether/pkg/protocol"
)

const defaultEventBuffer = 256

// Options configures a Client.
type Options struct {
	URL              string
	ReconnectDelay   time.Duration
	CallTimeout      time.Duration
	HandshakeTimeout time.Duration
	EventBuffer      int
	AppVersion       string

	// Store persists the active-session pointer and the session snapshot.
	// Nil disables persistence.
	Store *sessions.Store

	Logger *zap.Logger
}

// Client is the root component: it owns the connection manager, assembles
// streaming turns, and reconciles the session cache. All inbound activity is
// published on a buffered event channel; consumers that fall behind lose
// events rather than stalling the read loop.
type Client struct {
	log        *zap.Logger
	manager    *link.Manager
	assembler  *stream.Assembler
	registry   *sessions.Registry
	instanceID string
	appVersion string
	events     chan Event

	mu              sync.Mutex
	editorConnected bool
	project         *protocol.ProjectInfo
}

// New builds a Client. Run must be called to connect.
func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}

	c := &Client{
		log:        log,
		assembler:  stream.NewAssembler(log),
		instanceID: uuid.NewString(),
		appVersion: opts.AppVersion,
		events:     make(chan Event, opts.EventBuffer),
	}
	c.manager = link.NewManager(link.Options{
		URL:              opts.URL,
		ReconnectDelay:   opts.ReconnectDelay,
		CallTimeout:      opts.CallTimeout,
		HandshakeTimeout: opts.HandshakeTimeout,
		OnConnect:        c.handshake,
		OnStateChange:    c.onStateChange,
		Router:           link.NewRouter(log, c, c, c, c),
		Logger:           log,
	})
	c.registry = sessions.NewRegistry(log, c.manager, opts.Store)
	return c
}

// Run drives the connection until ctx is done.
func (c *Client) Run(ctx context.Context) {
	c.manager.Run(ctx)
}

// Events is the client's outbound event stream.
func (c *Client) Events() <-chan Event { return c.events }

// State reports the current link state.
func (c *Client) State() link.State { return c.manager.State() }

// Sessions exposes the session registry for list/create/switch/rename/delete.
func (c *Client) Sessions() *sessions.Registry { return c.registry }

// EditorState reports whether the editor plugin is attached and to which
// project.
func (c *Client) EditorState() (bool, *protocol.ProjectInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editorConnected, c.project
}

// SendMessage runs one full turn: it opens the placeholder, issues the
// user_message call, and blocks until the call resolves. Streaming progress
// arrives on the event channel in the meantime. model overrides the
// runtime's default when non-empty.
func (c *Client) SendMessage(ctx context.Context, text, model string) error {
	sessionID := c.registry.ActiveID()
	turn := c.assembler.Begin(sessionID)
	c.emit(TurnUpdateEvent{Turn: turn})

	var res protocol.UserMessageResult
	err := c.manager.Call(ctx, protocol.MethodUserMessage, protocol.UserMessageParams{
		Text:      text,
		SessionID: sessionID,
		Model:     model,
	}, &res)
	if err != nil {
		if id, ok := c.assembler.Discard(); ok {
			c.emit(TurnDiscardedEvent{SessionID: id})
		}
		return fmt.Errorf("user_message failed: %w", err)
	}

	if res.Cancelled {
		if id, ok := c.assembler.Discard(); ok {
			c.emit(TurnDiscardedEvent{SessionID: id, Cancelled: true})
		}
		return nil
	}

	// Normally stream_complete lands before the reply and the turn is gone
	// by now. If not, the reply itself is authoritative.
	if msg, ok := c.assembler.Finalize(res.SessionID, res.Text, res.Metrics); ok {
		c.completeTurn(msg)
	}
	return nil
}

// CancelTurn asks the runtime to stop the in-flight turn. The turn itself is
// discarded when the stream_cancelled notification arrives.
func (c *Client) CancelTurn(ctx context.Context) error {
	var res protocol.CancelResult
	if err := c.manager.Call(ctx, protocol.MethodCancelRequest, struct{}{}, &res); err != nil {
		return fmt.Errorf("cancel_request failed: %w", err)
	}
	return nil
}

// RespondConfirmation answers a pending confirmation_request.
func (c *Client) RespondConfirmation(ctx context.Context, confirmationID string, approved bool, modifiedContent string) error {
	var res protocol.ConfirmationResponseResult
	err := c.manager.Call(ctx, protocol.MethodConfirmationResponse, protocol.ConfirmationResponseParams{
		ConfirmationID:  confirmationID,
		Approved:        approved,
		ModifiedContent: modifiedContent,
	}, &res)
	if err != nil {
		return fmt.Errorf("confirmation_response failed: %w", err)
	}
	if !res.Accepted {
		return fmt.Errorf("confirmation %s was not accepted", confirmationID)
	}
	return nil
}

// Status probes the runtime.
func (c *Client) Status(ctx context.Context) (protocol.StatusResult, error) {
	var res protocol.StatusResult
	if err := c.manager.Call(ctx, protocol.MethodGetStatus, struct{}{}, &res); err != nil {
		return protocol.StatusResult{}, fmt.Errorf("get_status failed: %w", err)
	}
	c.setEditorState(res.EditorConnected, res.Project)
	return res, nil
}

func (c *Client) onStateChange(state link.State, err error) {
	if state != link.StateOpen {
		// A half-streamed answer is untrustworthy; drop it and let the UI
		// clear the placeholder.
		if id, ok := c.assembler.Discard(); ok {
			c.emit(TurnDiscardedEvent{SessionID: id})
		}
	}
	c.emit(StateEvent{State: state, Err: err})
}

func (c *Client) completeTurn(msg stream.Message) {
	c.registry.MergeTurnMetrics(msg.SessionID, msg.Metrics)
	c.emit(TurnCompleteEvent{Message: msg})
	c.emitSessions()
}

func (c *Client) setEditorState(connected bool, project *protocol.ProjectInfo) {
	c.mu.Lock()
	changed := c.editorConnected != connected
	c.editorConnected = connected
	if project != nil || !connected {
		c.project = project
	}
	project = c.project
	c.mu.Unlock()

	if changed {
		c.emit(EditorStateEvent{Connected: connected, Project: project})
	}
}

func (c *Client) emitSessions() {
	c.emit(SessionsEvent{Sessions: c.registry.List(), ActiveID: c.registry.ActiveID()})
}

// emit publishes without blocking; the read loop must never stall on a slow
// consumer.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event buffer full, dropping event", zap.Any("event", ev))
	}
}

// HandleStreamChunk implements link.StreamHandler.
func (c *Client) HandleStreamChunk(n protocol.StreamChunk) {
	if turn, ok := c.assembler.ApplyChunk(n); ok {
		c.emit(TurnUpdateEvent{Turn: turn})
	}
}

func (c *Client) HandleStreamToolCall(n protocol.StreamToolCall) {
	if turn, ok := c.assembler.ApplyToolCall(n); ok {
		c.emit(TurnUpdateEvent{Turn: turn})
	}
}

func (c *Client) HandleStreamReasoning(n protocol.StreamReasoning) {
	if turn, ok := c.assembler.ApplyReasoning(n); ok {
		c.emit(TurnUpdateEvent{Turn: turn})
	}
}

func (c *Client) HandleStreamComplete(n protocol.StreamComplete) {
	if msg, ok := c.assembler.Complete(n); ok {
		c.completeTurn(msg)
	}
}

func (c *Client) HandleStreamCancelled(n protocol.StreamCancelled) {
	if id, ok := c.assembler.Discard(); ok {
		c.emit(TurnDiscardedEvent{SessionID: id, Cancelled: true})
	}
}

// HandleSessionUpdated implements link.SessionHandler.
func (c *Client) HandleSessionUpdated(n protocol.SessionUpdated) {
	c.registry.ApplyUpdate(n)
	c.emitSessions()
}

// HandleEditorConnected implements link.PeerHandler.
func (c *Client) HandleEditorConnected(n protocol.EditorConnected) {
	c.setEditorState(true, n.Project)
}

func (c *Client) HandleEditorDisconnected(protocol.EditorDisconnected) {
	c.setEditorState(false, nil)
}

func (c *Client) HandleTokenUpdate(n protocol.TokenUpdate) {
	c.emit(TokenUsageEvent{Total: n.Total, SessionID: n.SessionID})
}

// HandleConfirmationRequest implements link.ConfirmationHandler.
func (c *Client) HandleConfirmationRequest(n protocol.ConfirmationRequest) {
	c.emit(ConfirmationEvent{Request: n})
}
