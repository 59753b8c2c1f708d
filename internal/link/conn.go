package link

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tether/pkg/protocol"
)

// Conn owns one duplex transport and the calls outstanding on it. A
// reconnect always produces a brand-new Conn; instances are never reused, so
// call ids stay unique and increasing for the lifetime of the transport.
type Conn struct {
	ws          *websocket.Conn
	log         *zap.Logger
	callTimeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]*Call
	closed  bool

	done chan struct{}
}

func newConn(ws *websocket.Conn, callTimeout time.Duration, log *zap.Logger) *Conn {
	return &Conn{
		ws:          ws,
		log:         log,
		callTimeout: callTimeout,
		pending:     make(map[int64]*Call),
		done:        make(chan struct{}),
	}
}

// Done is closed once the read loop has exited and every pending call has
// been failed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Go issues a correlated call and returns its future.
func (c *Conn) Go(method string, params any) *Call {
	call := newCall(method)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		call.finish(nil, ErrNotConnected)
		return call
	}
	c.nextID++
	call.ID = c.nextID
	c.pending[call.ID] = call
	call.timer = time.AfterFunc(c.callTimeout, func() { c.expire(call.ID) })
	c.mu.Unlock()

	data, err := protocol.EncodeRequest(call.ID, method, params)
	if err != nil {
		c.completePending(call.ID, nil, err)
		return call
	}
	if err := c.write(data); err != nil {
		c.completePending(call.ID, nil, err)
		return call
	}
	return call
}

// Call issues a correlated call and blocks for its completion.
func (c *Conn) Call(ctx context.Context, method string, params, out any) error {
	return c.Go(method, params).Wait(ctx, out)
}

func (c *Conn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// completePending removes one pending call and finishes it. Removal from the
// table is the single-completion gate: whichever of reply, timeout, or
// connection loss removes the call first wins, the others are no-ops.
func (c *Conn) completePending(id int64, result []byte, err error) {
	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if ok {
		call.finish(result, err)
	}
}

func (c *Conn) expire(id int64) {
	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if ok {
		c.log.Warn("call timed out",
			zap.Int64("id", id),
			zap.String("method", call.Method),
			zap.Duration("after", time.Since(call.SubmittedAt)))
		call.finish(nil, ErrTimeout)
	}
}

// dispatchReply routes an inbound reply to its pending call. Malformed
// replies and replies with no matching call are logged and dropped; the
// dispatch loop must never crash on peer misbehavior.
func (c *Conn) dispatchReply(reply *protocol.Reply) {
	if !reply.Valid() {
		c.log.Warn("dropping protocol violation: reply must carry exactly one of result and error",
			zap.Int64("id", reply.ID))
		return
	}

	c.mu.Lock()
	call, ok := c.pending[reply.ID]
	if ok {
		delete(c.pending, reply.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Warn("dropping reply with no matching call", zap.Int64("id", reply.ID))
		return
	}

	if reply.Err != nil {
		call.finish(nil, &RemoteError{Payload: *reply.Err})
		return
	}
	call.finish(reply.Result, nil)
}

// fail transitions the Conn to closed and synchronously rejects every
// outstanding call, so no caller is ever left waiting forever. Idempotent.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	orphaned := make([]*Call, 0, len(c.pending))
	for id, call := range c.pending {
		orphaned = append(orphaned, call)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, call := range orphaned {
		call.finish(nil, err)
	}
	close(c.done)
}

// readLoop reads frames in arrival order and dispatches them: replies to
// the correlation table, notifications to the router. Single-goroutine
// dispatch is what makes downstream incremental mutation safe without locks.
func (c *Conn) readLoop(dispatch func(protocol.Notification)) {
	defer c.fail(ErrConnectionLost)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn("read error", zap.Error(err))
			}
			return
		}

		in, err := protocol.DecodeFrame(data)
		if err != nil {
			var unknown *protocol.UnknownMethodError
			if errors.As(err, &unknown) {
				c.log.Warn("ignoring unrecognized notification", zap.String("method", unknown.Method))
				continue
			}
			c.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		switch v := in.(type) {
		case *protocol.Reply:
			c.dispatchReply(v)
		case protocol.Notification:
			dispatch(v)
		}
	}
}

// Close tears the transport down. Pending calls are failed by the read loop
// unwinding.
func (c *Conn) Close() {
	c.writeMu.Lock()
	c.ws.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	c.writeMu.Unlock()
	c.ws.Close()
}
