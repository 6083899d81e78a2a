package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/pale-court/krangler-go/internal/dcontext"
	"github.com/pale-court/krangler-go/internal/digest"
)

// LazyBytes defers producing an object's bytes until they're actually
// needed — the common case during ingest, where most candidates turn out
// to already be present and are never read from the source (§9 design
// note). The materializing func is called at most once; its result is
// memoized.
type LazyBytes struct {
	data func() ([]byte, error)
	once bool
	val  []byte
	err  error
}

// Ready wraps bytes that are already in hand.
func Ready(b []byte) LazyBytes {
	return LazyBytes{once: true, val: b}
}

// Deferred wraps a func that produces bytes on first demand.
func Deferred(f func() ([]byte, error)) LazyBytes {
	return LazyBytes{data: f}
}

// Bytes materializes (and memoizes) the underlying bytes.
func (l *LazyBytes) Bytes() ([]byte, error) {
	if !l.once {
		l.val, l.err = l.data()
		l.once = true
	}
	return l.val, l.err
}

// pendingObject is one entry queued in a Queue, with the size its caller
// declared.
type pendingObject struct {
	size int
	data LazyBytes
}

// Queue is the batching queue (C4): it accumulates pending object writes
// and flushes them as "bulk-ask what's missing, then bulk-insert only the
// gaps" against a Store, grounded directly on the coalescing discipline of
// the original ingest pipeline's BatchQueue.
type Queue struct {
	store Store

	sizeBudget  int64
	countBudget int

	sizeAcc  int64
	countAcc int
	objects  map[digest.Digest]pendingObject
	order    []digest.Digest
}

// NewQueue constructs a Queue against store. A zero budget disables that
// dimension's automatic flush trigger; Flush(ctx) always flushes
// unconditionally regardless of budgets.
func NewQueue(s Store, sizeBudget int64, countBudget int) *Queue {
	return &Queue{
		store:       s,
		sizeBudget:  sizeBudget,
		countBudget: countBudget,
		objects:     make(map[digest.Digest]pendingObject),
	}
}

// StoreOne queues one object for eventual upload, counting knownSize
// toward the size budget if ≥ 0; a negative knownSize is not counted and
// the object is not sized later. It auto-flushes once either budget is
// reached.
func (q *Queue) StoreOne(ctx context.Context, d digest.Digest, knownSize int, data LazyBytes) error {
	if _, exists := q.objects[d]; !exists {
		q.order = append(q.order, d)
	}
	q.objects[d] = pendingObject{size: knownSize, data: data}
	q.countAcc++
	if knownSize >= 0 {
		q.sizeAcc += int64(knownSize)
	}

	if (q.sizeBudget > 0 && q.sizeAcc >= q.sizeBudget) || (q.countBudget > 0 && q.countAcc >= q.countBudget) {
		return q.Flush(ctx)
	}
	return nil
}

// Flush performs the bulk-missing-check-then-bulk-insert round trip
// unconditionally, then clears the queue.
func (q *Queue) Flush(ctx context.Context) error {
	if len(q.order) == 0 {
		return nil
	}

	missing, err := q.store.ListMissingObjects(ctx, q.order)
	if err != nil {
		return fmt.Errorf("store: queue flush: list missing: %w", err)
	}

	log := dcontext.GetLogger(ctx)
	log.Infof("flushing %d bytes over %d items, %d new", q.sizeAcc, q.countAcc, len(missing))

	bulk, err := q.store.WriteDataBulk(ctx)
	if err != nil {
		return fmt.Errorf("store: queue flush: open bulk writer: %w", err)
	}
	for _, d := range missing {
		obj := q.objects[d]
		data, err := obj.data.Bytes()
		if err != nil {
			if errors.Is(err, ErrMissingSource) {
				log.Warnf("skipping %s: %v", d, err)
				continue
			}
			return fmt.Errorf("store: queue flush: materialize %s: %w", d, err)
		}
		if err := bulk.Store(d, data); err != nil {
			return fmt.Errorf("store: queue flush: store %s: %w", d, err)
		}
	}
	if err := bulk.Commit(); err != nil {
		return fmt.Errorf("store: queue flush: commit: %w", err)
	}

	q.objects = make(map[digest.Digest]pendingObject)
	q.order = nil
	q.sizeAcc = 0
	q.countAcc = 0
	return nil
}
