package ebr

import (
	"runtime"
	"sync/atomic"
)

// retired is one entry waiting for deferred destruction: the container's
// strong reference needs to be released, but not before every guard that
// was live when it was retired has left.
type retired struct {
	release func()
	epoch   uint64
	next    atomic.Pointer[retired]
}

// retireQueue is a lock-free multi-producer, single-consumer linked-list
// queue, structurally the same Michael-Scott CAS-append algorithm the
// teacher's own MPSC queue uses, adapted so the "consumer" side is a
// pull-based drain instead of a channel delivery: nothing here blocks
// waiting for items, because reclamation only ever happens opportunistically
// from Retire or an explicit Reclaim call, never from a dedicated
// goroutine.
type retireQueue struct {
	head     atomic.Pointer[retired]
	tail     atomic.Pointer[retired]
	draining atomic.Bool
}

func newRetireQueue() *retireQueue {
	sentinel := &retired{}
	q := &retireQueue{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

func (q *retireQueue) push(epoch uint64, release func()) {
	n := &retired{epoch: epoch, release: release}

	var backoff uint8
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				q.tail.CompareAndSwap(tail, n)
				return
			}
		} else {
			q.tail.CompareAndSwap(tail, next)
		}

		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
	}
}

// drain releases every entry retired strictly before safeEpoch, stopping at
// the first entry that is not yet safe (entries are pushed in roughly
// increasing epoch order, so this is a reasonable, not exhaustive, amortized
// pass). Only one goroutine drains at a time; a concurrent caller that finds
// draining already in progress returns immediately rather than spinning.
func (q *retireQueue) drain(safeEpoch uint64) int {
	if !q.draining.CompareAndSwap(false, true) {
		return 0
	}
	defer q.draining.Store(false)

	released := 0
	for {
		head := q.head.Load()
		next := head.next.Load()
		if next == nil || next.epoch >= safeEpoch {
			return released
		}
		q.head.Store(next)
		next.release()
		next.release = nil
		released++
	}
}
