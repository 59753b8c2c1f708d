package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tether/pkg/protocol"
)

// Caller issues one correlated call and decodes its result.
type Caller interface {
	Call(ctx context.Context, method string, params, out any) error
}

// Registry is the client-side cache of the remote session store. Every
// mutation derives from a call result or a session_updated notification,
// never from a request's own input, so the cache cannot drift from what the
// server actually did.
type Registry struct {
	log    *zap.Logger
	caller Caller
	store  *Store

	mu       sync.RWMutex
	sessions []protocol.Session
	activeID string
}

// NewRegistry builds a Registry. store may be nil, in which case nothing is
// persisted across restarts.
func NewRegistry(log *zap.Logger, caller Caller, store *Store) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{log: log, caller: caller, store: store}
}

// Bootstrap installs the handshake snapshot. The client's persisted active
// pointer wins over the server's suggestion, provided that session still
// exists in the snapshot.
func (r *Registry) Bootstrap(res protocol.HelloResult) {
	persisted := ""
	if r.store != nil {
		var err error
		persisted, err = r.store.ActiveSessionID()
		if err != nil {
			r.log.Warn("failed to read persisted active session", zap.Error(err))
		}
	}

	active := res.ActiveSessionID
	if persisted != "" {
		for _, sess := range res.Sessions {
			if sess.ID == persisted {
				active = persisted
				break
			}
		}
	}

	r.mu.Lock()
	r.sessions = append([]protocol.Session(nil), res.Sessions...)
	r.activeID = active
	r.mu.Unlock()

	r.persist()
}

// List returns a copy of the cached sessions.
func (r *Registry) List() []protocol.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]protocol.Session(nil), r.sessions...)
}

// ActiveID returns the active session id, or "" when none is active.
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// Active returns the active session record, if one exists in the cache.
func (r *Registry) Active() (protocol.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.activeID == "" {
		return protocol.Session{}, false
	}
	for _, sess := range r.sessions {
		if sess.ID == r.activeID {
			return sess, true
		}
	}
	return protocol.Session{}, false
}

// Refresh replaces the cache from a list_sessions call.
func (r *Registry) Refresh(ctx context.Context) ([]protocol.Session, error) {
	var res protocol.ListSessionsResult
	if err := r.caller.Call(ctx, protocol.MethodListSessions, struct{}{}, &res); err != nil {
		return nil, fmt.Errorf("list_sessions failed: %w", err)
	}

	r.mu.Lock()
	r.sessions = append([]protocol.Session(nil), res.Sessions...)
	if r.activeID != "" && r.find(r.activeID) < 0 {
		r.activeID = ""
	}
	out := append([]protocol.Session(nil), r.sessions...)
	r.mu.Unlock()

	r.persist()
	return out, nil
}

// Create asks the server for a new session and adopts the returned canonical
// record as active.
func (r *Registry) Create(ctx context.Context, title string) (protocol.Session, error) {
	var res protocol.SessionResult
	err := r.caller.Call(ctx, protocol.MethodCreateSession, protocol.CreateSessionParams{Title: title}, &res)
	if err != nil {
		return protocol.Session{}, fmt.Errorf("create_session failed: %w", err)
	}

	r.mu.Lock()
	r.sessions = append([]protocol.Session{res.Session}, r.remove(res.Session.ID)...)
	r.activeID = res.Session.ID
	r.mu.Unlock()

	r.persist()
	return res.Session, nil
}

// Switch makes id the active session and returns its history. Fetching the
// history doubles as validation that the session still exists remotely.
func (r *Registry) Switch(ctx context.Context, id string) ([]protocol.HistoryMessage, error) {
	history, err := r.History(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.activeID = id
	r.mu.Unlock()

	r.persist()
	return history, nil
}

// Rename updates a session title, overwriting the cached record with the
// server's returned canonical one.
func (r *Registry) Rename(ctx context.Context, id, title string) (protocol.Session, error) {
	var res protocol.SessionResult
	err := r.caller.Call(ctx, protocol.MethodRenameSession, protocol.RenameSessionParams{SessionID: id, Title: title}, &res)
	if err != nil {
		return protocol.Session{}, fmt.Errorf("rename_session failed: %w", err)
	}

	r.mu.Lock()
	if i := r.find(res.Session.ID); i >= 0 {
		r.sessions[i] = res.Session
	}
	r.mu.Unlock()

	r.persist()
	return res.Session, nil
}

// Delete removes a session. Deleting the active one falls back to the first
// remaining session, or to no active session at all; a new one is created
// lazily on the next user action.
func (r *Registry) Delete(ctx context.Context, id string) error {
	var res protocol.DeleteSessionResult
	err := r.caller.Call(ctx, protocol.MethodDeleteSession, protocol.DeleteSessionParams{SessionID: id}, &res)
	if err != nil {
		return fmt.Errorf("delete_session failed: %w", err)
	}

	r.mu.Lock()
	r.sessions = r.remove(id)
	if r.activeID == id {
		r.activeID = ""
		if len(r.sessions) > 0 {
			r.activeID = r.sessions[0].ID
		}
	}
	r.mu.Unlock()

	r.persist()
	return nil
}

// History fetches the message history of one session.
func (r *Registry) History(ctx context.Context, id string) ([]protocol.HistoryMessage, error) {
	var res protocol.HistoryResult
	err := r.caller.Call(ctx, protocol.MethodGetSessionHistory, protocol.HistoryParams{SessionID: id}, &res)
	if err != nil {
		return nil, fmt.Errorf("get_session_history failed: %w", err)
	}
	return res.Messages, nil
}

// ApplyUpdate folds a session_updated notification into the cache. New
// sessions are prepended and adopted as active only when nothing is active;
// known sessions get their mutable fields overwritten. When an update races
// a local switch, the last writer wins.
func (r *Registry) ApplyUpdate(n protocol.SessionUpdated) {
	r.mu.Lock()
	if n.IsNew {
		r.sessions = append([]protocol.Session{n.Session}, r.remove(n.Session.ID)...)
		if r.activeID == "" {
			r.activeID = n.Session.ID
		}
	} else if i := r.find(n.Session.ID); i >= 0 {
		r.sessions[i] = n.Session
	} else {
		// Touched a session we have never seen; treat it as new but do not
		// steal the active slot.
		r.sessions = append([]protocol.Session{n.Session}, r.sessions...)
	}
	r.mu.Unlock()

	r.persist()
}

// MergeTurnMetrics folds a completed turn's metrics into the owning
// session's running totals.
func (r *Registry) MergeTurnMetrics(sessionID string, m protocol.Metrics) {
	r.mu.Lock()
	if i := r.find(sessionID); i >= 0 {
		if m.SessionTotalTokens > 0 {
			r.sessions[i].TotalTokens = m.SessionTotalTokens
		} else {
			r.sessions[i].TotalTokens += m.TotalTokens
		}
		r.sessions[i].TotalCost += m.RequestCost
		r.sessions[i].UpdatedAt = time.Now()
	}
	r.mu.Unlock()

	r.persist()
}

// find returns the cache index of id, or -1. Callers hold r.mu.
func (r *Registry) find(id string) int {
	for i := range r.sessions {
		if r.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// remove returns the cache without id. Callers hold r.mu.
func (r *Registry) remove(id string) []protocol.Session {
	out := r.sessions[:0:0]
	for _, sess := range r.sessions {
		if sess.ID != id {
			out = append(out, sess)
		}
	}
	return out
}

// persist writes the cache and active pointer through to the state store.
// Best effort; the cache is rebuilt from the next handshake anyway.
func (r *Registry) persist() {
	if r.store == nil {
		return
	}

	r.mu.RLock()
	sessions := append([]protocol.Session(nil), r.sessions...)
	active := r.activeID
	r.mu.RUnlock()

	if err := r.store.SaveSnapshot(sessions); err != nil {
		r.log.Warn("failed to persist session snapshot", zap.Error(err))
	}
	if err := r.store.SetActiveSessionID(active); err != nil {
		r.log.Warn("failed to persist active session", zap.Error(err))
	}
}
