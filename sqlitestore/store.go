// Package sqlitestore persists checkout sessions in SQLite. The session
// document is stored as a JSON blob next to the columns the store queries
// on, so schema changes in the session shape do not require migrations.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/johnquery/ucp"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkout_sessions (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	document   TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkout_sessions_expires
	ON checkout_sessions (expires_at, status);
`

// Store is a SessionStore backed by a SQLite database file.
type Store struct {
	db          *sql.DB
	consistency ucp.ConsistencyLevel
}

// Open opens (creating if needed) the database at path and prepares the
// schema. WAL mode keeps reads from blocking the janitor's deletes.
func Open(path string, level ucp.ConsistencyLevel) (*Store, error) {
	if level == "" {
		level = ucp.ConsistencyLastWriterWins
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare sqlite schema: %w", err)
	}
	return &Store{db: db, consistency: level}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new session row.
func (s *Store) Create(ctx context.Context, session *ucp.Session) error {
	session.Version = 1
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkout_sessions (id, status, version, document, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, string(session.Status), session.Version, string(doc),
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(), session.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, id string) (*ucp.Session, error) {
	var (
		doc     string
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT document, version FROM checkout_sessions WHERE id = ?`, id,
	).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ucp.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	var session ucp.Session
	if err := json.Unmarshal([]byte(doc), &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	session.Version = version
	return &session, nil
}

// Save overwrites the session row. At the versioned consistency level the
// update is guarded by the version the caller loaded; a raced row returns
// ErrVersionConflict.
func (s *Store) Save(ctx context.Context, session *ucp.Session) error {
	loadedVersion := session.Version
	session.Version++
	doc, err := json.Marshal(session)
	if err != nil {
		session.Version = loadedVersion
		return fmt.Errorf("encode session: %w", err)
	}

	query := `
		UPDATE checkout_sessions
		SET status = ?, version = ?, document = ?, updated_at = ?, expires_at = ?
		WHERE id = ?`
	args := []any{
		string(session.Status), session.Version, string(doc),
		session.UpdatedAt.Unix(), session.ExpiresAt.Unix(), session.ID,
	}
	if s.consistency == ucp.ConsistencyVersioned {
		query += ` AND version = ?`
		args = append(args, loadedVersion)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		session.Version = loadedVersion
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected == 0 {
		session.Version = loadedVersion
		if s.consistency == ucp.ConsistencyVersioned {
			var exists int
			if err := s.db.QueryRowContext(ctx,
				`SELECT 1 FROM checkout_sessions WHERE id = ?`, session.ID,
			).Scan(&exists); err == nil {
				return ucp.ErrVersionConflict
			}
		}
		return ucp.ErrSessionNotFound
	}
	return nil
}

// Delete removes the session row if present.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM checkout_sessions WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired purges sessions past their deadline that never completed.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM checkout_sessions WHERE expires_at < ? AND status != ?`,
		now.Unix(), string(ucp.SessionStatusComplete),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
