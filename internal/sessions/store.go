// Package sessions keeps the client's view of the remote session store: an
// in-memory cache reconciled from call results and notifications, plus a
// small sqlite database for state that must survive restarts.
package sessions

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"tether/pkg/protocol"
)

const activeSessionKey = "active_session_id"

// Store persists client-local state. The session snapshot is a cache of the
// remote store, never the source of truth; the active-session pointer is
// client-local and survives restarts.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed creates) the state database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stateSQL := `
	CREATE TABLE IF NOT EXISTS client_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`

	if _, err := s.db.Exec(stateSQL); err != nil {
		return fmt.Errorf("failed to create client_state table: %w", err)
	}

	snapshotSQL := `
	CREATE TABLE IF NOT EXISTS session_snapshot (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		message_count INTEGER DEFAULT 0,
		total_tokens INTEGER DEFAULT 0,
		total_cost REAL DEFAULT 0
	);`

	if _, err := s.db.Exec(snapshotSQL); err != nil {
		return fmt.Errorf("failed to create session_snapshot table: %w", err)
	}

	return nil
}

// ActiveSessionID returns the persisted active-session pointer, or "" when
// none has been recorded.
func (s *Store) ActiveSessionID() (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT value FROM client_state WHERE key = ?`, activeSessionKey).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read active session: %w", err)
	}
	return id, nil
}

// SetActiveSessionID records the active-session pointer. An empty id clears
// it, representing the "no active session" state.
func (s *Store) SetActiveSessionID(id string) error {
	if id == "" {
		if _, err := s.db.Exec(`DELETE FROM client_state WHERE key = ?`, activeSessionKey); err != nil {
			return fmt.Errorf("failed to clear active session: %w", err)
		}
		return nil
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO client_state (key, value) VALUES (?, ?)
	`, activeSessionKey, id)
	if err != nil {
		return fmt.Errorf("failed to save active session: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the cached session snapshot wholesale. The snapshot
// only exists so a restarted client can validate its persisted pointer and
// render something before the first handshake completes.
func (s *Store) SaveSnapshot(sessions []protocol.Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM session_snapshot`); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	for _, sess := range sessions {
		_, err := tx.Exec(`
			INSERT INTO session_snapshot
			(id, title, created_at, updated_at, message_count, total_tokens, total_cost)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, sess.ID, sess.Title, sess.CreatedAt.UTC(), sess.UpdatedAt.UTC(), sess.MessageCount, sess.TotalTokens, sess.TotalCost)
		if err != nil {
			return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Snapshot returns the cached session list, most recently updated first.
func (s *Store) Snapshot() ([]protocol.Session, error) {
	rows, err := s.db.Query(`
		SELECT id, title, created_at, updated_at, message_count, total_tokens, total_cost
		FROM session_snapshot
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	var sessions []protocol.Session
	for rows.Next() {
		var sess protocol.Session
		err := rows.Scan(
			&sess.ID,
			&sess.Title,
			&sess.CreatedAt,
			&sess.UpdatedAt,
			&sess.MessageCount,
			&sess.TotalTokens,
			&sess.TotalCost,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return sessions, nil
}

// PruneSnapshot deletes cached sessions not updated within maxAge and
// returns the number removed. The remote store remains untouched; a pruned
// session reappears on the next handshake if it still exists there.
func (s *Store) PruneSnapshot(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UTC()
	res, err := s.db.Exec(`DELETE FROM session_snapshot WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	return n, nil
}
