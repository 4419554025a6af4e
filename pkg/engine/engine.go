// Package engine implements calsync's event synchronization: last-write-wins
// upserts, tombstone deletes and the incremental pull.
//
// Every mutation is a load-modify-save cycle over the whole snapshot and runs
// as one task on the write serializer. Pulls read the last saved snapshot
// directly; the store's atomic save guarantees they never see a torn state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/daviddao/calsync/pkg/clock"
	"github.com/daviddao/calsync/pkg/model"
	"github.com/daviddao/calsync/pkg/queue"
	"github.com/daviddao/calsync/pkg/store"
)

// ErrEmptyBatch is returned when a mutation carries no items at all.
var ErrEmptyBatch = errors.New("engine: empty batch")

// Change kinds reported to a ChangeNotifier.
const (
	ChangeUpsert = "upsert"
	ChangeDelete = "delete"
)

// Change describes one committed mutation.
type Change struct {
	Kind  string   `json:"kind"`
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
	At    int64    `json:"at"`
}

// ChangeNotifier is told about every committed mutation that changed at
// least one record, in commit order, from a single goroutine. Mutations do
// not wait for it; notices beyond the backlog are dropped.
type ChangeNotifier interface {
	Notify(ctx context.Context, c Change) error
}

const (
	notifyTimeout = 2 * time.Second
	noticeBacklog = 64
)

// Engine is the sync engine.
type Engine struct {
	store    store.StoreInterface
	queue    *queue.Serializer
	clock    *clock.Clock
	notifier ChangeNotifier
	log      *zap.Logger

	// Committed changes waiting for the notifier, in commit order.
	notices    chan Change
	noticesEnd chan struct{}
	closeOnce  sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used to stamp writes that carry no timestamp.
func WithClock(c *clock.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithNotifier sets the change notifier.
func WithNotifier(n ChangeNotifier) Option { return func(e *Engine) { e.notifier = n } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// New returns an Engine persisting to st. Mutations run on q.
func New(st store.StoreInterface, q *queue.Serializer, opts ...Option) *Engine {
	e := &Engine{store: st, queue: q}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = clock.New(nil)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	e.log = e.log.Named("engine")
	if e.notifier != nil {
		e.notices = make(chan Change, noticeBacklog)
		e.noticesEnd = make(chan struct{})
		go e.publish()
	}
	return e
}

// Close delivers pending change notices and stops the publisher. Call it
// after the serializer has been closed; no mutation may follow.
func (e *Engine) Close() {
	if e.notices == nil {
		return
	}
	e.closeOnce.Do(func() { close(e.notices) })
	<-e.noticesEnd
}

// publish hands committed changes to the notifier one at a time, outside
// the serializer.
func (e *Engine) publish() {
	defer close(e.noticesEnd)
	for c := range e.notices {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		if err := e.notifier.Notify(ctx, c); err != nil {
			e.log.Warn("change notification failed", zap.String("kind", c.Kind), zap.Error(err))
		}
		cancel()
	}
}

// ListSince returns every record with UpdatedAt > since, tombstones
// included, ordered by UpdatedAt then id. A since of 0 or less returns all.
func (e *Engine) ListSince(since int64) []model.Event {
	snap := e.store.Load()
	out := make([]model.Event, 0, len(snap))
	for _, ev := range snap {
		if since <= 0 || ev.UpdatedAt > since {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return clock.PullOrderLess(out[i].UpdatedAt, out[i].ID, out[j].UpdatedAt, out[j].ID)
	})
	return out
}

// Counts returns the number of stored records and of non-tombstoned ones.
func (e *Engine) Counts() (total, active int) {
	snap := e.store.Load()
	return len(snap), snap.Active()
}

// ApplyUpserts applies a batch of candidates and persists once. A candidate
// replaces the stored record in full when its UpdatedAt is >= the stored
// one (0 for unknown ids). Candidates without an id are skipped; those
// without a timestamp are stamped with the current time. Returns the number
// accepted; a non-nil error means the batch may not be persisted.
func (e *Engine) ApplyUpserts(candidates []model.Candidate) (int, error) {
	if len(candidates) == 0 {
		return 0, ErrEmptyBatch
	}
	var accepted []string
	err := e.queue.Do("upsert", func() error {
		snap := e.store.Load()
		for _, c := range candidates {
			if c.ID == "" {
				continue
			}
			ev := c.Event
			if !c.Stamped {
				ev.UpdatedAt = e.clock.Now()
			}
			if !clock.Accepts(ev.UpdatedAt, snap[ev.ID].UpdatedAt) {
				continue
			}
			snap[ev.ID] = ev
			accepted = append(accepted, ev.ID)
		}
		return e.commit(snap, ChangeUpsert, accepted)
	})
	if err != nil {
		return len(accepted), fmt.Errorf("apply upserts: %w", err)
	}
	e.log.Debug("upserts applied", zap.Int("candidates", len(candidates)), zap.Int("accepted", len(accepted)))
	return len(accepted), nil
}

// ApplyDeletes tombstones each id at mark and persists once. An existing
// record is overwritten when mark >= its UpdatedAt; an unknown id gets a
// fresh tombstone. Empty ids are skipped. A mark of 0 or less means now.
func (e *Engine) ApplyDeletes(ids []string, mark int64) (int, error) {
	if len(ids) == 0 {
		return 0, ErrEmptyBatch
	}
	var affected []string
	err := e.queue.Do("delete", func() error {
		at := mark
		if at <= 0 {
			at = e.clock.Now()
		}
		snap := e.store.Load()
		for _, id := range ids {
			if id == "" {
				continue
			}
			if cur, ok := snap[id]; ok && !clock.Accepts(at, cur.UpdatedAt) {
				continue
			}
			snap[id] = model.Tombstone(id, at)
			affected = append(affected, id)
		}
		return e.commit(snap, ChangeDelete, affected)
	})
	if err != nil {
		return len(affected), fmt.Errorf("apply deletes: %w", err)
	}
	e.log.Debug("deletes applied", zap.Int("ids", len(ids)), zap.Int("affected", len(affected)))
	return len(affected), nil
}

// commit saves snap when the batch changed anything and queues the change
// for the notifier without waiting on it. Runs inside a serializer task.
func (e *Engine) commit(snap model.Snapshot, kind string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := e.store.Save(snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if e.notices == nil {
		return nil
	}
	c := Change{Kind: kind, IDs: ids, Count: len(ids), At: e.clock.Now()}
	select {
	case e.notices <- c:
	default:
		e.log.Warn("change notice dropped, publisher backlog full", zap.String("kind", kind), zap.Int("count", len(ids)))
	}
	return nil
}
