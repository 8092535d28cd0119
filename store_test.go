package ucp

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore("")
	ctx := context.Background()
	now := time.Now()

	session := NewSession("USD", now, 30*time.Minute)
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if session.Version != 1 {
		t.Errorf("version after create = %d, want 1", session.Version)
	}

	loaded, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.ID != session.ID || loaded.Currency != "USD" {
		t.Errorf("loaded = %+v, want id %s currency USD", loaded, session.ID)
	}

	// The store hands out copies; mutating the loaded session must not leak.
	loaded.Currency = "EUR"
	again, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if again.Currency != "USD" {
		t.Error("Get() leaked a mutable reference to stored state")
	}

	loaded.Currency = "USD"
	loaded.Status = SessionStatusReadyForComplete
	if err := store.Save(ctx, loaded); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if loaded.Version != 2 {
		t.Errorf("version after save = %d, want 2", loaded.Version)
	}

	if err := store.Delete(ctx, session.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStoreSaveUnknownSession(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore("")
	session := NewSession("USD", time.Now(), 30*time.Minute)
	if err := store.Save(context.Background(), session); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Save() error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStoreVersionedConflict(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(ConsistencyVersioned)
	ctx := context.Background()

	session := NewSession("USD", time.Now(), 30*time.Minute)
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	first, _ := store.Get(ctx, session.ID)
	second, _ := store.Get(ctx, session.ID)

	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	if err := store.Save(ctx, second); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("stale Save() error = %v, want ErrVersionConflict", err)
	}
}

func TestMemoryStoreLastWriterWins(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(ConsistencyLastWriterWins)
	ctx := context.Background()

	session := NewSession("USD", time.Now(), 30*time.Minute)
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	first, _ := store.Get(ctx, session.ID)
	second, _ := store.Get(ctx, session.ID)

	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	second.Currency = "EUR"
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("second Save() error = %v, want last writer to win", err)
	}

	final, _ := store.Get(ctx, session.ID)
	if final.Currency != "EUR" {
		t.Errorf("currency = %q, want the last writer's EUR", final.Currency)
	}
}

func TestStartJanitorClampsInterval(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore("")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A non-positive interval must not panic the ticker goroutine.
	StartJanitor(ctx, store, 0, nil)
	StartJanitor(ctx, store, -time.Minute, nil)
}

func TestMemoryStoreDeleteExpired(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore("")
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	expired := NewSession("USD", base, 30*time.Minute)
	completed := NewSession("USD", base, 30*time.Minute)
	completed.Status = SessionStatusComplete
	fresh := NewSession("USD", base.Add(time.Hour), 30*time.Minute)

	for _, s := range []*Session{expired, completed, fresh} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	removed, err := store.DeleteExpired(ctx, base.Add(45*time.Minute))
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := store.Get(ctx, expired.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Error("expired session should have been purged")
	}
	if _, err := store.Get(ctx, completed.ID); err != nil {
		t.Error("completed session must survive the purge")
	}
	if _, err := store.Get(ctx, fresh.ID); err != nil {
		t.Error("fresh session must survive the purge")
	}
}
