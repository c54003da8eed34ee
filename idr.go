// Package idr implements a concurrent identifier resolver: a lock-free slab
// that hands out small integer keys for inserted values and resolves those
// keys back to values without taking a lock on the read path.
//
// Inserts route to one of a fixed number of shards by the calling
// goroutine's identity, each shard growing its own geometrically-sized
// sequence of pages independently, so that unrelated goroutines rarely
// contend on the same page's free-stack. Get is wait-free: it is a handful
// of atomic loads, gated by an epoch guard that defers the actual release
// of a removed value's storage until nothing could still be reading it.
package idr

import (
	"math/bits"
	"runtime"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arcanelabs/idr/internal/ebr"
	"github.com/arcanelabs/idr/internal/metrics"
	"github.com/arcanelabs/idr/internal/seed"
	"github.com/arcanelabs/idr/internal/slab"
	"github.com/arcanelabs/idr/internal/threadid"
	"github.com/arcanelabs/idr/internal/xlog"
)

// MaxShards bounds how many shards an Idr will ever create, regardless of
// how much parallelism the host reports. Past this point additional shards
// buy less contention relief than they cost in idle page-table overhead.
const MaxShards = 128

// Idr is a concurrent identifier resolver over values of type T.
type Idr[T any] struct {
	shards []*slab.Shard[T]
	layout layout

	ebrMgr  *ebr.Manager
	metrics *metrics.Set
	log     *xlog.Logger

	// scanSalt is XORed into the goroutine id from which VacantEntry
	// derives its page-scan starting point, so that two Idr instances in
	// the same process rarely send goroutines with the same id to the same
	// starting page.
	scanSalt uint64

	pageStatsCache *xsync.MapOf[int, []PageStat]
}

// New builds an Idr with the given Config and a shard count derived from
// the host's reported parallelism (capped at MaxShards, rounded up to a
// power of two so shard indices fill the key's shard bits exactly).
func New[T any](cfg Config) (*Idr[T], error) {
	return NewNamed[T]("idr", cfg)
}

// NewNamed is New but lets the caller pick the name metrics and log lines
// are tagged with, for processes that host more than one Idr.
func NewNamed[T any](name string, cfg Config) (*Idr[T], error) {
	shardCount := nextPow2(runtime.GOMAXPROCS(0))
	if shardCount > MaxShards {
		shardCount = MaxShards
	}
	return newWithShardCount[T](name, cfg, shardCount)
}

// newWithShardCount is the common constructor behind New and NewNamed. It
// is also what tests use to pin a deterministic shard count instead of
// riding on whatever parallelism the test host happens to report.
func newWithShardCount[T any](name string, cfg Config, shardCount int) (*Idr[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l, err := newLayout(cfg.derive(), shardCount)
	if err != nil {
		return nil, err
	}

	shards := make([]*slab.Shard[T], shardCount)
	for i := range shards {
		shards[i] = slab.NewShard[T](cfg.InitialPageSize, int(cfg.MaxPages))
	}

	return &Idr[T]{
		shards:         shards,
		layout:         l,
		ebrMgr:         ebr.NewManager(),
		metrics:        metrics.New(name),
		log:            xlog.New(name),
		scanSalt:       seed.Generate(),
		pageStatsCache: newPageStatsCache(),
	}, nil
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// scramble spreads a goroutine id across the full 64-bit range so that
// nearby ids (the common case: goroutines are created in runs) don't pick
// nearby starting pages. splitmix64's finalizer step, chosen because it is
// a handful of shift/multiply/xor instructions and nothing in the example
// pack ships a general-purpose PRNG this trivial use would justify pulling
// in as a dependency.
func scramble(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

func (idr *Idr[T]) shardFor() (int, *slab.Shard[T]) {
	idx := int(threadid.Current() % uint64(len(idr.shards)))
	return idx, idr.shards[idx]
}

// Insert stores value, returning the key it can be looked up by, or false
// if every page of the calling goroutine's shard is full. Other shards are
// not tried.
func (idr *Idr[T]) Insert(value T) (Key, bool) {
	v, ok := idr.VacantEntry()
	if !ok {
		return InvalidKey, false
	}
	key := v.Key()
	v.Insert(value)
	return key, true
}

// VacantEntry reserves a slot without publishing a value into it yet,
// returning a handle whose Key is already final. Exactly one of the
// handle's Insert or Abandon must be called.
//
// The page scan within the chosen shard first visits the pages already
// allocated, starting at a pseudo-random one derived from the calling
// goroutine's identity, rather than always at page 0: once many goroutines
// hash into the same shard, starting them all at page 0 would pile every one
// of them onto that page's free-stack CAS until it fills, which defeats half
// the point of sharding in the first place. Only if none of those has a free
// slot does it scan every page from 0, allocating pages as it reaches them.
func (idr *Idr[T]) VacantEntry() (VacantEntry[T], bool) {
	shardIndex, shard := idr.shardFor()

	n := shard.NumPages()
	allocated := 0
	for allocated < n && shard.Page(allocated).Allocated() {
		allocated++
	}
	start := int(scramble(threadid.Current()^idr.scanSalt) % uint64(n))

	for i := 0; i < allocated+n; i++ {
		pageIndex := i - allocated
		if i < allocated {
			pageIndex = (start + i) % allocated
		}
		page := shard.Page(pageIndex)
		wasAllocated := page.Allocated()
		page.InitializeIfNeeded()
		if !wasAllocated && page.Allocated() {
			idr.log.Debugf("page allocated: shard=%d page=%d capacity=%d", shardIndex, pageIndex, page.Capacity())
		}

		offset, ok := page.TryClaimFreeSlot()
		if !ok {
			continue
		}

		slot, _ := page.SlotAt(offset)
		ordinal := pageStartOrdinal(idr.layout.derived, pageIndex) + uint64(offset)
		key := pack(idr.layout, shardIndex, ordinal, slot.Generation())

		return VacantEntry[T]{idr: idr, page: page, slot: slot, off: offset, key: key}, true
	}

	idr.metrics.InsertCapacityFull.Inc()
	return VacantEntry[T]{}, false
}

// Remove deletes the entry at key, returning whether one was present at the
// moment of removal. A second Remove with the same key always returns
// false, because the slot's generation has already advanced.
func (idr *Idr[T]) Remove(key Key) bool {
	shardIndex, pageIndex, offset, generation, err := decode(idr.layout, key)
	if err != nil {
		idr.metrics.RemoveMisses.Inc()
		return false
	}

	shard := idr.shards[shardIndex]
	page := shard.Page(pageIndex)
	if !page.Allocated() {
		idr.metrics.RemoveMisses.Inc()
		return false
	}
	slot, ok := page.SlotAt(offset)
	if !ok {
		idr.metrics.RemoveMisses.Inc()
		return false
	}

	container, ok := slot.Remove(generation, uint64(idr.layout.genFieldMask))
	if !ok {
		idr.metrics.RemoveMisses.Inc()
		return false
	}

	if slot.Generation() == 1 {
		idr.metrics.GenerationWraps.Inc()
		idr.log.Warnf("generation wrapped to 1: shard=%d page=%d offset=%d", shardIndex, pageIndex, offset)
	}

	reclaimed := idr.ebrMgr.Retire(container.Release)
	idr.metrics.ReclaimBatchSize.Update(float64(reclaimed))
	idr.log.Debugf("ebr reclaim batch: %d", reclaimed)
	page.PushFree(offset)
	idr.metrics.Removes.Inc()
	return true
}

// Get returns a borrowed handle to the entry at key, or false if none
// exists. The returned BorrowedEntry must not be used after guard is
// released.
func (idr *Idr[T]) Get(key Key, guard *Guard) (BorrowedEntry[T], bool) {
	_ = guard
	shardIndex, pageIndex, offset, generation, err := decode(idr.layout, key)
	if err != nil {
		idr.metrics.GetMisses.Inc()
		return BorrowedEntry[T]{}, false
	}

	page := idr.shards[shardIndex].Page(pageIndex)
	if !page.Allocated() {
		idr.metrics.GetMisses.Inc()
		return BorrowedEntry[T]{}, false
	}
	slot, ok := page.SlotAt(offset)
	if !ok {
		idr.metrics.GetMisses.Inc()
		return BorrowedEntry[T]{}, false
	}

	container, ok := slot.Read(generation)
	if !ok {
		idr.metrics.GetMisses.Inc()
		return BorrowedEntry[T]{}, false
	}

	idr.metrics.Gets.Inc()
	return BorrowedEntry[T]{container: container, key: key}, true
}

// GetOwned returns an owned handle to the entry at key, or false if none
// exists. Unlike Get, no guard is required: the returned handle holds its
// own strong reference and can outlive this Idr.
func (idr *Idr[T]) GetOwned(key Key) (OwnedEntry[T], bool) {
	g := idr.Enter()
	defer g.Leave()

	b, ok := idr.Get(key, g)
	if !ok {
		return OwnedEntry[T]{}, false
	}
	return b.ToOwned()
}

// Contains reports whether key currently resolves to a live entry, without
// ever dereferencing the container.
func (idr *Idr[T]) Contains(key Key) bool {
	shardIndex, pageIndex, offset, generation, err := decode(idr.layout, key)
	if err != nil {
		return false
	}
	page := idr.shards[shardIndex].Page(pageIndex)
	if !page.Allocated() {
		return false
	}
	slot, ok := page.SlotAt(offset)
	if !ok {
		return false
	}
	_, ok = slot.Read(generation)
	return ok
}

// Iter returns a restartable iterator over every currently occupied entry.
func (idr *Idr[T]) Iter(guard *Guard) *Iter[T] {
	_ = guard
	return &Iter[T]{idr: idr}
}

// Enter creates a new epoch guard. While it is live, nothing retired by a
// Remove that happens after this call will actually be released.
func (idr *Idr[T]) Enter() *Guard {
	return &Guard{inner: idr.ebrMgr.Enter()}
}

// Guard is a scoped reservation returned by Idr.Enter. Call Leave when the
// borrowed handles obtained under it are no longer needed.
type Guard struct {
	inner *ebr.Guard
}

// Leave releases the guard.
func (g *Guard) Leave() {
	g.inner.Leave()
}

// Metrics exposes this Idr's metrics.Set for an embedding process to wire
// into its own /metrics endpoint.
func (idr *Idr[T]) Metrics() *metrics.Set {
	return idr.metrics
}

// Log exposes this Idr's logger so an embedding process can raise or lower
// its level.
func (idr *Idr[T]) Log() *xlog.Logger {
	return idr.log
}
