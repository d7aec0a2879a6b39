package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// AsyncWriter persists snapshots on its own goroutine so the tick never waits
// on disk. When the backlog is full new snapshots are dropped; the next
// autosave supersedes them anyway.
type AsyncWriter struct {
	store  Store
	queue  chan Snapshot
	logger zerolog.Logger

	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	onWrite func(Snapshot, time.Duration, error)
}

// NewAsyncWriter starts a writer with room for queueSize pending snapshots.
func NewAsyncWriter(s Store, queueSize int, logger zerolog.Logger) *AsyncWriter {
	if queueSize <= 0 {
		queueSize = 1
	}
	w := &AsyncWriter{
		store:  s,
		queue:  make(chan Snapshot, queueSize),
		logger: logger.With().Str("component", "SnapshotWriter").Logger(),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// OnWrite registers a callback invoked after every write attempt. It must be
// set before the first Enqueue.
func (w *AsyncWriter) OnWrite(fn func(snap Snapshot, took time.Duration, err error)) {
	w.onWrite = fn
}

// Enqueue hands a snapshot to the writer without blocking. It reports false
// when the snapshot was dropped.
func (w *AsyncWriter) Enqueue(sessionID string, tick uint64, data []byte) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.queue <- Snapshot{SessionID: sessionID, Tick: tick, Data: data, SavedAt: time.Now()}:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// Dropped returns how many snapshots were refused because the backlog was full.
func (w *AsyncWriter) Dropped() int64 { return w.dropped.Load() }

func (w *AsyncWriter) run() {
	defer w.wg.Done()
	for snap := range w.queue {
		start := time.Now()
		err := w.store.Put(context.Background(), snap)
		took := time.Since(start)
		if err != nil {
			w.logger.Error().
				Err(err).
				Str("session_id", snap.SessionID).
				Uint64("tick", snap.Tick).
				Msg("Failed to persist snapshot")
		} else {
			w.logger.Debug().
				Str("session_id", snap.SessionID).
				Uint64("tick", snap.Tick).
				Int("bytes", len(snap.Data)).
				Dur("took", took).
				Msg("Snapshot persisted")
		}
		if w.onWrite != nil {
			w.onWrite(snap, took, err)
		}
	}
}

// Close stops accepting snapshots and waits for the backlog to be written or
// for ctx to expire. The store itself is not closed.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
