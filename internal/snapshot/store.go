// Package snapshot persists session state across page reloads. Snapshots are
// short-lived: a snapshot is consumed at most once and expires a few seconds
// after capture.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codefionn/flowpilot/internal/consts"
	"github.com/codefionn/flowpilot/internal/logger"
	"github.com/codefionn/flowpilot/internal/session"
)

// Snapshot is the persisted form of a session at one point in time.
type Snapshot struct {
	State      session.ExportedState `json:"state"`
	CapturedAt time.Time             `json:"captured_at"`
}

// StaleError reports a snapshot found past its lifetime. Callers treat it as
// "nothing to restore" and start fresh.
type StaleError struct {
	Age time.Duration
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("snapshot is stale (age %s, limit %s)", e.Age, consts.SnapshotTTL)
}

// KV is the persistence backend for snapshot blobs.
type KV interface {
	Save(ctx context.Context, key string, blob []byte) error
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store captures and restores sessions through a KV backend with a
// freshness bound.
type Store struct {
	kv  KV
	ttl time.Duration
	now func() time.Time
}

// NewStore creates a snapshot store over the backend
func NewStore(kv KV) *Store {
	return &Store{kv: kv, ttl: consts.SnapshotTTL, now: time.Now}
}

// SetClock overrides the freshness clock (tests).
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Capture persists the session state under its id.
func (s *Store) Capture(ctx context.Context, sess *session.Session) error {
	snap := Snapshot{State: sess.Export(), CapturedAt: s.now()}
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.kv.Save(ctx, snap.State.ID, blob); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	logger.Debug("captured snapshot for session %s", snap.State.ID)
	return nil
}

// Restore loads and consumes the snapshot under key. The stored blob is
// deleted before the freshness check so a snapshot is never restored twice.
// A missing snapshot returns (nil, nil); a stale one returns StaleError.
func (s *Store) Restore(ctx context.Context, key string) (*session.ExportedState, error) {
	blob, found, err := s.kv.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if !found {
		return nil, nil
	}

	if err := s.kv.Delete(ctx, key); err != nil {
		logger.Warn("failed to delete consumed snapshot %s: %v", key, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	age := s.now().Sub(snap.CapturedAt)
	if age > s.ttl {
		logger.Info("discarding stale snapshot for session %s (age %s)", key, age)
		return nil, &StaleError{Age: age}
	}

	return &snap.State, nil
}

// Close releases the backend
func (s *Store) Close() error {
	return s.kv.Close()
}
