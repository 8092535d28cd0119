package ucp

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrSessionNotFound is returned by stores for unknown session ids.
var ErrSessionNotFound = errors.New("ucp: session not found")

// ErrVersionConflict is returned by stores running at the versioned
// consistency level when a save races another writer.
var ErrVersionConflict = errors.New("ucp: session version conflict")

// ConsistencyLevel selects how a store handles concurrent saves of the same
// session. The protocol itself does not serialize concurrent agent retries;
// the default mirrors that (last writer wins), and versioned opts into
// optimistic locking via the session's version counter.
type ConsistencyLevel string

const (
	ConsistencyLastWriterWins ConsistencyLevel = "last_writer_wins"
	ConsistencyVersioned      ConsistencyLevel = "versioned"
)

// SessionStore persists checkout sessions. Save increments the session's
// version on success.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes sessions whose deadline passed and that never
	// completed. Idempotent and safe to run concurrently.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// MemoryStore is a mutex-guarded in-process SessionStore. It backs tests and
// single-node deployments that do not need durability.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	consistency ConsistencyLevel
}

// NewMemoryStore builds an empty MemoryStore at the given consistency level.
// An empty level defaults to last-writer-wins.
func NewMemoryStore(level ConsistencyLevel) *MemoryStore {
	if level == "" {
		level = ConsistencyLastWriterWins
	}
	return &MemoryStore{
		sessions:    make(map[string]*Session),
		consistency: level,
	}
}

// Create stores a new session.
func (s *MemoryStore) Create(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.Version = 1
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

// Get returns a copy of the stored session.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *stored
	return &cp, nil
}

// Save overwrites the stored session. At the versioned level a stale
// in-memory version is rejected with ErrVersionConflict.
func (s *MemoryStore) Save(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.ID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.consistency == ConsistencyVersioned && stored.Version != session.Version {
		return ErrVersionConflict
	}
	session.Version++
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

// Delete removes the session if present.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// DeleteExpired purges sessions past their deadline that never completed.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, session := range s.sessions {
		if session.Expired(now) && session.Status != SessionStatusComplete {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// StartJanitor periodically purges expired sessions until ctx is cancelled.
// A non-positive interval falls back to one minute. Multiple janitors over
// the same store are safe; the delete is idempotent.
func StartJanitor(ctx context.Context, store SessionStore, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				removed, err := store.DeleteExpired(ctx, now)
				if err != nil {
					log.Warn("expired session cleanup failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					log.Debug("purged expired sessions", zap.Int64("count", removed))
				}
			}
		}
	}()
}
