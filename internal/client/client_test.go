package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tether/internal/link"
	"tether/internal/sessions"
	"tether/pkg/protocol"
)

var upgrader = websocket.Upgrader{}

type frame struct {
	ID     *int64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// runtimeHandler is one fake runtime: it receives each correlated call and
// may push notifications before replying.
type runtimeHandler func(ws *websocket.Conn, f frame)

func startRuntime(t *testing.T, handler runtimeHandler) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			if json.Unmarshal(data, &f) != nil {
				continue
			}
			handler(ws, f)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func reply(ws *websocket.Conn, id int64, result any) {
	data, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
	ws.WriteMessage(websocket.TextMessage, data)
}

func notify(ws *websocket.Conn, method string, params any) {
	data, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "method": method, "params": params})
	ws.WriteMessage(websocket.TextMessage, data)
}

func session(id, title string) protocol.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return protocol.Session{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}
}

// defaultHello answers the handshake pair; tests layer their own methods on
// top.
func helloHandler(res protocol.HelloResult, status protocol.StatusResult) runtimeHandler {
	return func(ws *websocket.Conn, f frame) {
		switch f.Method {
		case protocol.MethodHello:
			reply(ws, *f.ID, res)
		case protocol.MethodGetStatus:
			reply(ws, *f.ID, status)
		}
	}
}

func startClient(t *testing.T, url string, store *sessions.Store) *Client {
	t.Helper()
	c := New(Options{
		URL:            url,
		ReconnectDelay: 20 * time.Millisecond,
		Store:          store,
		Logger:         zaptest.NewLogger(t),
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)

	require.Eventually(t, func() bool { return c.State() == link.StateOpen },
		5*time.Second, 10*time.Millisecond, "client never reached open")
	return c
}

// waitEvent drains the event channel until match accepts one.
func waitEvent(t *testing.T, c *Client, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("expected event never arrived")
		}
	}
}

func TestHandshakeInstallsSnapshot(t *testing.T) {
	url := startRuntime(t, helloHandler(
		protocol.HelloResult{
			ProtocolVersion: protocol.Version,
			Sessions:        []protocol.Session{session("s1", "A")},
			ActiveSessionID: "s1",
		},
		protocol.StatusResult{},
	))

	c := startClient(t, url, nil)

	list := c.Sessions().List()
	require.Len(t, list, 1)
	assert.Equal(t, "s1", list[0].ID)
	assert.Equal(t, "s1", c.Sessions().ActiveID())
}

func TestPersistedActiveSessionWinsOverServerSuggestion(t *testing.T) {
	store, err := sessions.OpenStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.SetActiveSessionID("s2"))

	url := startRuntime(t, helloHandler(
		protocol.HelloResult{
			Sessions:        []protocol.Session{session("s1", "A"), session("s2", "B")},
			ActiveSessionID: "s1",
		},
		protocol.StatusResult{},
	))

	c := startClient(t, url, store)
	assert.Equal(t, "s2", c.Sessions().ActiveID())
}

func TestStatusProbeSettlesReadinessRace(t *testing.T) {
	// The hello reply claims no editor, the follow-up probe says otherwise;
	// the probe wins.
	url := startRuntime(t, helloHandler(
		protocol.HelloResult{EditorConnected: false},
		protocol.StatusResult{EditorConnected: true, Project: &protocol.ProjectInfo{Name: "platformer"}},
	))

	c := startClient(t, url, nil)

	connected, project := c.EditorState()
	assert.True(t, connected)
	require.NotNil(t, project)
	assert.Equal(t, "platformer", project.Name)
}

func TestSendMessageAssemblesStreamedTurn(t *testing.T) {
	base := helloHandler(
		protocol.HelloResult{Sessions: []protocol.Session{session("s1", "A")}, ActiveSessionID: "s1"},
		protocol.StatusResult{},
	)
	url := startRuntime(t, func(ws *websocket.Conn, f frame) {
		if f.Method != protocol.MethodUserMessage {
			base(ws, f)
			return
		}
		notify(ws, protocol.MethodStreamChunk, protocol.StreamChunk{Content: "Hel", SessionID: "s1"})
		notify(ws, protocol.MethodStreamChunk, protocol.StreamChunk{Content: "lo", SessionID: "s1"})
		notify(ws, protocol.MethodStreamComplete, protocol.StreamComplete{
			Metrics:   protocol.Metrics{TotalTokens: 12},
			SessionID: "s1",
		})
		reply(ws, *f.ID, protocol.UserMessageResult{Text: "Hello", Metrics: protocol.Metrics{TotalTokens: 12}, SessionID: "s1"})
	})

	c := startClient(t, url, nil)
	require.NoError(t, c.SendMessage(context.Background(), "hi", ""))

	ev := waitEvent(t, c, func(ev Event) bool { _, ok := ev.(TurnCompleteEvent); return ok })
	msg := ev.(TurnCompleteEvent).Message
	assert.Equal(t, "Hello", msg.Content)
	assert.Equal(t, 12, msg.Metrics.TotalTokens)
	assert.Equal(t, "s1", msg.SessionID)

	// The owning session's running totals absorbed the turn.
	require.Eventually(t, func() bool {
		return c.Sessions().List()[0].TotalTokens == 12
	}, time.Second, 10*time.Millisecond)
}

func TestSendMessageFinalizesFromReplyWithoutStreamComplete(t *testing.T) {
	base := helloHandler(
		protocol.HelloResult{Sessions: []protocol.Session{session("s1", "A")}, ActiveSessionID: "s1"},
		protocol.StatusResult{},
	)
	url := startRuntime(t, func(ws *websocket.Conn, f frame) {
		if f.Method != protocol.MethodUserMessage {
			base(ws, f)
			return
		}
		reply(ws, *f.ID, protocol.UserMessageResult{Text: "direct", Metrics: protocol.Metrics{TotalTokens: 3}, SessionID: "s1"})
	})

	c := startClient(t, url, nil)
	require.NoError(t, c.SendMessage(context.Background(), "hi", ""))

	ev := waitEvent(t, c, func(ev Event) bool { _, ok := ev.(TurnCompleteEvent); return ok })
	assert.Equal(t, "direct", ev.(TurnCompleteEvent).Message.Content)
}

func TestCancelledTurnIsDiscarded(t *testing.T) {
	base := helloHandler(
		protocol.HelloResult{Sessions: []protocol.Session{session("s1", "A")}, ActiveSessionID: "s1"},
		protocol.StatusResult{},
	)
	url := startRuntime(t, func(ws *websocket.Conn, f frame) {
		switch f.Method {
		case protocol.MethodUserMessage:
			notify(ws, protocol.MethodStreamChunk, protocol.StreamChunk{Content: "half an ans", SessionID: "s1"})
			notify(ws, protocol.MethodStreamCancelled, protocol.StreamCancelled{SessionID: "s1"})
			reply(ws, *f.ID, protocol.UserMessageResult{Cancelled: true, SessionID: "s1"})
		case protocol.MethodCancelRequest:
			reply(ws, *f.ID, protocol.CancelResult{Cancelled: true, SessionID: "s1"})
		default:
			base(ws, f)
		}
	})

	c := startClient(t, url, nil)
	require.NoError(t, c.SendMessage(context.Background(), "hi", ""))

	ev := waitEvent(t, c, func(ev Event) bool { _, ok := ev.(TurnDiscardedEvent); return ok })
	discarded := ev.(TurnDiscardedEvent)
	assert.True(t, discarded.Cancelled)
	assert.Equal(t, "s1", discarded.SessionID)
}

func TestSessionUpdatedNotificationRefreshesCache(t *testing.T) {
	base := helloHandler(protocol.HelloResult{}, protocol.StatusResult{})
	var pushed protocol.Session
	url := startRuntime(t, func(ws *websocket.Conn, f frame) {
		base(ws, f)
		if f.Method == protocol.MethodGetStatus && pushed.ID == "" {
			pushed = session("auto", "Auto-created")
			notify(ws, protocol.MethodSessionUpdated, protocol.SessionUpdated{Session: pushed, IsNew: true})
		}
	})

	c := startClient(t, url, nil)

	waitEvent(t, c, func(ev Event) bool {
		se, ok := ev.(SessionsEvent)
		return ok && len(se.Sessions) == 1 && se.ActiveID == "auto"
	})
}

func TestDeleteActiveSessionFallsBack(t *testing.T) {
	base := helloHandler(
		protocol.HelloResult{
			Sessions:        []protocol.Session{session("s1", "A"), session("s2", "B")},
			ActiveSessionID: "s1",
		},
		protocol.StatusResult{},
	)
	url := startRuntime(t, func(ws *websocket.Conn, f frame) {
		if f.Method == protocol.MethodDeleteSession {
			reply(ws, *f.ID, protocol.DeleteSessionResult{Deleted: true})
			return
		}
		base(ws, f)
	})

	c := startClient(t, url, nil)
	require.NoError(t, c.Sessions().Delete(context.Background(), "s1"))
	assert.Equal(t, "s2", c.Sessions().ActiveID())
}

func TestConfirmationRoundTrip(t *testing.T) {
	base := helloHandler(protocol.HelloResult{}, protocol.StatusResult{})
	url := startRuntime(t, func(ws *websocket.Conn, f frame) {
		switch f.Method {
		case protocol.MethodConfirmationResponse:
			reply(ws, *f.ID, protocol.ConfirmationResponseResult{Accepted: true})
		case protocol.MethodGetStatus:
			base(ws, f)
			notify(ws, protocol.MethodConfirmationRequest, protocol.ConfirmationRequest{
				ConfirmationID: "c1",
				ActionType:     "delete_node",
				Description:    "Delete Player/Sprite2D",
			})
		default:
			base(ws, f)
		}
	})

	c := startClient(t, url, nil)

	ev := waitEvent(t, c, func(ev Event) bool { _, ok := ev.(ConfirmationEvent); return ok })
	req := ev.(ConfirmationEvent).Request
	assert.Equal(t, "c1", req.ConfirmationID)

	require.NoError(t, c.RespondConfirmation(context.Background(), req.ConfirmationID, true, ""))
}

func TestSendMessageFailsFastWhenDisconnected(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:1/never", Logger: zaptest.NewLogger(t)})
	err := c.SendMessage(context.Background(), "hi", "")
	require.ErrorIs(t, err, link.ErrNotConnected)
}
