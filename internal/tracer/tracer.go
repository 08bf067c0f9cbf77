// Package tracer records the causal tree of decisions an algo order makes.
//
// Each decision point creates a Signal, optionally parented to an earlier signal of the
// same tracer. Signals queue in creation order and are flushed oldest first to a Store. A
// signal flushed before it ended stays queued and is stored again once it ends.
package tracer

import (
	"context"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
)

// Store persists flushed signals.
type Store interface {
	Store(ctx context.Context, signal types.Signal) error
}

// Signal is a live handle to a queued signal record.
type Signal struct {
	tracer *Tracer
	record *types.Signal
}

// ID returns the signal id, unique and increasing within its tracer.
func (s *Signal) ID() int64 {
	return s.record.ID
}

// Name returns the signal name.
func (s *Signal) Name() string {
	return s.record.Name
}

// End records the end time. Ending a signal twice is an error.
func (s *Signal) End() error {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()

	if s.record.EndedAt != nil {
		return errors.Newf(errors.ErrCodeSignalAlreadyEnded, "signal %d (%s) already ended", s.record.ID, s.record.Name)
	}

	now := s.tracer.now()
	s.record.EndedAt = &now

	return nil
}

// Snapshot returns a copy of the record.
func (s *Signal) Snapshot() types.Signal {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()

	return copyRecord(s.record)
}

type queued struct {
	record *types.Signal
	// storedOpen is set once the record was stored before it ended
	storedOpen bool
}

// Tracer creates signals and flushes them to a Store.
type Tracer struct {
	mu     sync.Mutex
	nextID int64
	queue  []*queued
	store  Store
	now    func() time.Time
}

// New creates a tracer flushing into store. A nil store discards flushed signals.
func New(store Store) *Tracer {
	return &Tracer{
		mu:     sync.Mutex{},
		nextID: 0,
		queue:  nil,
		store:  store,
		now:    time.Now,
	}
}

// Signal creates and queues a signal. parent may be nil for a root signal; otherwise it must
// belong to this tracer.
func (t *Tracer) Signal(name string, parent *Signal, gid int64, meta map[string]any) (*Signal, error) {
	if parent != nil && parent.tracer != t {
		return nil, errors.Newf(errors.ErrCodeSignalForeignParent, "parent signal %d of %q belongs to another tracer", parent.ID(), name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++

	record := &types.Signal{
		ID:        t.nextID,
		Name:      name,
		Parent:    nil,
		GID:       gid,
		Meta:      meta,
		StartedAt: t.now(),
		EndedAt:   nil,
	}

	if parent != nil {
		parentID := parent.record.ID
		record.Parent = &parentID
	}

	t.queue = append(t.queue, &queued{record: record, storedOpen: false})

	return &Signal{tracer: t, record: record}, nil
}

// Pending returns the number of queued signals.
func (t *Tracer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.queue)
}

// Flush writes queued signals oldest first. Ended signals are removed once stored. Open
// signals are stored once and kept until they end, so the store sees their end time. On a
// store error the failing signal and everything after it stay queued. Without a store the
// queue is discarded.
func (t *Tracer) Flush(ctx context.Context) error {
	t.mu.Lock()
	if t.store == nil {
		t.queue = nil
		t.mu.Unlock()

		return nil
	}

	entries := make([]*queued, len(t.queue))
	batch := make([]types.Signal, len(t.queue))
	skip := make([]bool, len(t.queue))

	for i, entry := range t.queue {
		entries[i] = entry
		batch[i] = copyRecord(entry.record)
		skip[i] = entry.storedOpen && batch[i].EndedAt == nil
	}
	t.mu.Unlock()

	done := make(map[*queued]bool, len(batch))

	var flushErr error

	for i, record := range batch {
		if skip[i] {
			continue
		}

		if err := t.store.Store(ctx, record); err != nil {
			flushErr = errors.Wrapf(errors.ErrCodeStorageFailed, err, "failed to store signal %d", record.ID)

			break
		}

		if record.EndedAt != nil {
			done[entries[i]] = true

			continue
		}

		t.mu.Lock()
		entries[i].storedOpen = true
		t.mu.Unlock()
	}

	t.mu.Lock()
	kept := t.queue[:0]

	for _, entry := range t.queue {
		if !done[entry] {
			kept = append(kept, entry)
		}
	}

	t.queue = kept
	t.mu.Unlock()

	return flushErr
}

func copyRecord(record *types.Signal) types.Signal {
	out := *record
	if record.Parent != nil {
		parent := *record.Parent
		out.Parent = &parent
	}

	if record.EndedAt != nil {
		ended := *record.EndedAt
		out.EndedAt = &ended
	}

	return out
}
