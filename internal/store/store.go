package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a session has no stored snapshot
	ErrNotFound = errors.New("snapshot not found")
	// ErrClosed is returned when the store was used after Close
	ErrClosed = errors.New("snapshot store is closed")
	// ErrInvalidSession is returned for session ids that cannot be used as key parts
	ErrInvalidSession = errors.New("invalid session id")
	// ErrInvalidBackend is returned when an unknown backend is configured
	ErrInvalidBackend = errors.New("invalid snapshot backend")
)

// Backend names the storage behind a Store.
type Backend string

const (
	// BackendNone disables persistence
	BackendNone Backend = "none"
	// BackendBadger keeps snapshots in an embedded badger database
	BackendBadger Backend = "badger"
	// BackendMemory keeps snapshots in an in-memory badger database
	BackendMemory Backend = "memory"
)

// Config contains configuration for the snapshot store
type Config struct {
	Backend Backend
	Dir     string
	// Keep is how many snapshots are retained per session. Zero keeps all.
	Keep int
	// QueueSize bounds the async writer's backlog.
	QueueSize int
}

// DefaultConfig returns a default store configuration
func DefaultConfig() Config {
	return Config{
		Backend:   BackendNone,
		Dir:       "data/snapshots",
		Keep:      5,
		QueueSize: 8,
	}
}

// Snapshot is one autosave of a session: the compressed level text at a tick.
type Snapshot struct {
	SessionID string
	Tick      uint64
	Data      []byte
	SavedAt   time.Time
}

// Store persists session snapshots.
type Store interface {
	// Put stores a snapshot and applies retention
	Put(ctx context.Context, snap Snapshot) error

	// Latest returns the newest snapshot of a session
	Latest(ctx context.Context, sessionID string) (Snapshot, error)

	// Ticks lists the stored ticks of a session in ascending order
	Ticks(ctx context.Context, sessionID string) ([]uint64, error)

	// Delete removes every snapshot of a session
	Delete(ctx context.Context, sessionID string) error

	// Close cleanly shuts down the store
	Close() error

	// Stats returns store statistics
	Stats() Stats
}

// Stats contains statistics about store operations
type Stats struct {
	TotalWritten int64     `json:"total_written"`
	TotalPruned  int64     `json:"total_pruned"`
	BytesWritten int64     `json:"bytes_written"`
	WriteErrors  int64     `json:"write_errors"`
	LastWrite    time.Time `json:"last_write"`
}

// NullStore discards snapshots.
type NullStore struct{}

func (NullStore) Put(ctx context.Context, snap Snapshot) error { return nil }

func (NullStore) Latest(ctx context.Context, sessionID string) (Snapshot, error) {
	return Snapshot{}, ErrNotFound
}

func (NullStore) Ticks(ctx context.Context, sessionID string) ([]uint64, error) { return nil, nil }
func (NullStore) Delete(ctx context.Context, sessionID string) error           { return nil }
func (NullStore) Close() error                                                 { return nil }
func (NullStore) Stats() Stats                                                 { return Stats{} }

// New opens the store selected by cfg.
func New(cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendNone, "":
		return NullStore{}, nil
	case BackendBadger, BackendMemory:
		dir := cfg.Dir
		if cfg.Backend == BackendMemory {
			dir = ""
		}
		bs, err := OpenBadger(dir, cfg.Keep, logger)
		if err != nil {
			return nil, err
		}
		return bs, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidBackend, cfg.Backend)
	}
}
