package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"
)

// BadgerStore keeps snapshots in badger under snap:<session>:<tick>. Ticks
// are zero padded so key order is tick order.
type BadgerStore struct {
	db     *badger.DB
	keep   int
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool

	statsMu sync.Mutex
	stats   Stats
}

// OpenBadger opens a badger store in dir, or an in-memory one when dir is empty.
func OpenBadger(dir string, keep int, logger zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", dir, err)
	}
	logger = logger.With().Str("component", "SnapshotStore").Logger()
	logger.Info().Str("dir", dir).Int("keep", keep).Msg("Snapshot store opened")
	return &BadgerStore{db: db, keep: keep, logger: logger}, nil
}

func sessionPrefix(sessionID string) []byte {
	return []byte("snap:" + sessionID + ":")
}

func snapshotKey(sessionID string, tick uint64) []byte {
	return []byte(fmt.Sprintf("snap:%s:%020d", sessionID, tick))
}

func tickFromKey(key []byte) (uint64, error) {
	s := string(key)
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return 0, fmt.Errorf("malformed snapshot key %q", s)
	}
	return strconv.ParseUint(s[i+1:], 10, 64)
}

func (bs *BadgerStore) ready() error {
	if bs.closed {
		return ErrClosed
	}
	return nil
}

// Put stores snap and prunes the session down to the retention limit in the
// same transaction.
func (bs *BadgerStore) Put(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	if err := bs.ready(); err != nil {
		return err
	}
	if strings.ContainsRune(snap.SessionID, ':') {
		return fmt.Errorf("%w: session id %q contains ':'", ErrInvalidSession, snap.SessionID)
	}

	pruned := 0
	err := bs.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(snapshotKey(snap.SessionID, snap.Tick), snap.Data); err != nil {
			return err
		}
		if bs.keep <= 0 {
			return nil
		}
		keys, err := sessionKeys(txn, snap.SessionID)
		if err != nil {
			return err
		}
		for len(keys) > bs.keep {
			if err := txn.Delete(keys[0]); err != nil {
				return err
			}
			keys = keys[1:]
			pruned++
		}
		return nil
	})

	bs.recordWrite(len(snap.Data), pruned, err)
	if err != nil {
		return fmt.Errorf("failed to store snapshot %s@%d: %w", snap.SessionID, snap.Tick, err)
	}
	return nil
}

func (bs *BadgerStore) recordWrite(n, pruned int, err error) {
	bs.statsMu.Lock()
	defer bs.statsMu.Unlock()
	if err != nil {
		bs.stats.WriteErrors++
	} else {
		bs.stats.TotalWritten++
		bs.stats.TotalPruned += int64(pruned)
		bs.stats.BytesWritten += int64(n)
		bs.stats.LastWrite = time.Now()
	}
}

// sessionKeys returns the session's keys in tick order. Keys are copied out
// of the iterator.
func sessionKeys(txn *badger.Txn, sessionID string) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = sessionPrefix(sessionID)
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

// Latest returns the snapshot with the highest tick.
func (bs *BadgerStore) Latest(ctx context.Context, sessionID string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	if err := bs.ready(); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{SessionID: sessionID}
	err := bs.db.View(func(txn *badger.Txn) error {
		prefix := sessionPrefix(sessionID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts from the first key after the prefix range.
		it.Seek(append(append([]byte(nil), prefix...), 0xff))
		if !it.Valid() {
			return ErrNotFound
		}
		item := it.Item()
		tick, err := tickFromKey(item.Key())
		if err != nil {
			return err
		}
		snap.Tick = tick
		snap.Data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return Snapshot{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read snapshot of %s: %w", sessionID, err)
	}
	return snap, nil
}

// Ticks lists the stored ticks of a session in ascending order.
func (bs *BadgerStore) Ticks(ctx context.Context, sessionID string) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	if err := bs.ready(); err != nil {
		return nil, err
	}

	var ticks []uint64
	err := bs.db.View(func(txn *badger.Txn) error {
		keys, err := sessionKeys(txn, sessionID)
		if err != nil {
			return err
		}
		for _, k := range keys {
			tick, err := tickFromKey(k)
			if err != nil {
				return err
			}
			ticks = append(ticks, tick)
		}
		return nil
	})
	return ticks, err
}

// Delete removes every snapshot of a session.
func (bs *BadgerStore) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	if err := bs.ready(); err != nil {
		return err
	}
	return bs.db.DropPrefix(sessionPrefix(sessionID))
}

// Close closes the database. Further calls return ErrClosed.
func (bs *BadgerStore) Close() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.closed {
		return nil
	}
	bs.closed = true
	bs.logger.Info().Int64("written", bs.Stats().TotalWritten).Msg("Snapshot store closed")
	return bs.db.Close()
}

func (bs *BadgerStore) Stats() Stats {
	bs.statsMu.Lock()
	defer bs.statsMu.Unlock()
	return bs.stats
}
