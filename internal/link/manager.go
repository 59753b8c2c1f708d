package link

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tether/pkg/protocol"
)

// State describes the lifecycle of the logical peer link.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	defaultReconnectDelay   = 3 * time.Second
	defaultCallTimeout      = 5 * time.Minute
	defaultHandshakeTimeout = 15 * time.Second
)

// Options configures a Manager.
type Options struct {
	URL              string
	ReconnectDelay   time.Duration
	CallTimeout      time.Duration
	HandshakeTimeout time.Duration

	// OnConnect runs once per new connection, before it is published as
	// current. Calls issued through the passed Conn bypass the Open gate,
	// which is what lets the handshake go first.
	OnConnect func(ctx context.Context, conn *Conn) error

	// OnStateChange observes lifecycle transitions. A Connecting transition
	// with a non-nil error means the previous connection was lost.
	OnStateChange func(state State, err error)

	Router *Router
	Logger *zap.Logger
}

// Manager owns the single active connection to the peer: it dials, runs the
// handshake, publishes the connection, and on closure rejects pending calls
// and redials after a fixed delay, forever. Reconnection is never a
// user-visible error; availability wins over resource economy on a trusted
// local link.
type Manager struct {
	opts   Options
	log    *zap.Logger
	dialer *websocket.Dialer

	mu      sync.RWMutex
	current *Conn
	state   State
}

// NewManager builds a Manager; Run starts it.
func NewManager(opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		opts:   opts,
		log:    opts.Logger,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		state:  StateConnecting,
	}
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Go issues a correlated call on the current connection, failing fast with
// ErrNotConnected while the link is not open.
func (m *Manager) Go(method string, params any) *Call {
	m.mu.RLock()
	conn, state := m.current, m.state
	m.mu.RUnlock()

	if state != StateOpen || conn == nil {
		return failedCall(method, ErrNotConnected)
	}
	return conn.Go(method, params)
}

// Call issues a correlated call and blocks for its completion.
func (m *Manager) Call(ctx context.Context, method string, params, out any) error {
	return m.Go(method, params).Wait(ctx, out)
}

// Run drives the connect/handshake/reconnect loop until ctx is done. Each
// iteration builds a brand-new Conn; no call state survives a reconnect.
func (m *Manager) Run(ctx context.Context) {
	defer m.setState(StateClosed, ctx.Err())

	for {
		if ctx.Err() != nil {
			return
		}

		ws, _, err := m.dialer.DialContext(ctx, m.opts.URL, nil)
		if err != nil {
			m.log.Warn("dial failed, retrying",
				zap.String("url", m.opts.URL),
				zap.Duration("delay", m.opts.ReconnectDelay),
				zap.Error(err))
			if !sleep(ctx, m.opts.ReconnectDelay) {
				return
			}
			continue
		}

		conn := newConn(ws, m.opts.CallTimeout, m.log)
		go conn.readLoop(m.dispatch)

		if m.opts.OnConnect != nil {
			hctx, cancel := context.WithTimeout(ctx, m.opts.HandshakeTimeout)
			err = m.opts.OnConnect(hctx, conn)
			cancel()
			if err != nil {
				m.log.Warn("handshake failed", zap.Error(err))
				conn.Close()
				<-conn.Done()
				if !sleep(ctx, m.opts.ReconnectDelay) {
					return
				}
				continue
			}
		}

		m.mu.Lock()
		m.current = conn
		m.state = StateOpen
		m.mu.Unlock()
		m.notify(StateOpen, nil)
		m.log.Info("link open", zap.String("url", m.opts.URL))

		select {
		case <-ctx.Done():
			conn.Close()
			<-conn.Done()
			m.clearCurrent()
			return
		case <-conn.Done():
			m.clearCurrent()
			m.setState(StateConnecting, ErrConnectionLost)
			m.log.Warn("connection lost, reconnecting",
				zap.Duration("delay", m.opts.ReconnectDelay))
		}

		if !sleep(ctx, m.opts.ReconnectDelay) {
			return
		}
	}
}

func (m *Manager) dispatch(n protocol.Notification) {
	if m.opts.Router != nil {
		m.opts.Router.Dispatch(n)
	}
}

func (m *Manager) clearCurrent() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}

func (m *Manager) setState(state State, err error) {
	m.mu.Lock()
	changed := m.state != state
	m.state = state
	m.mu.Unlock()
	if changed || err != nil {
		m.notify(state, err)
	}
}

func (m *Manager) notify(state State, err error) {
	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(state, err)
	}
}

// sleep waits for d or ctx, reporting false when ctx won.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
