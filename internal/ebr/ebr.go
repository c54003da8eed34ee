// Package ebr implements epoch-based reclamation: a Guard marks a thread as
// possibly holding references into data that a concurrent writer might
// retire, and Retire defers the release of such data until every guard that
// could have observed it has gone away.
//
// This is the external collaborator the core slab/slot/page machinery is
// written against (see idr.Idr's use of Manager), not a dependency of the
// slab package itself -- slab knows nothing about epochs.
package ebr

import (
	"sync"
	"sync/atomic"
)

const noFreeSlot = ^uint32(0)
const inactiveEpoch = ^uint64(0)

// slotState is one reservation: a goroutine that has entered a guard
// publishes the epoch it entered at here, and clears it back to
// inactiveEpoch on Leave. Reused across many Enter/Leave cycles via the
// free stack below rather than allocated fresh each time.
type slotState struct {
	epoch    atomic.Uint64
	nextFree atomic.Uint32
}

// Manager owns the global epoch counter, the table of reservation slots,
// and the queue of containers awaiting deferred release. One Manager is
// shared by an entire Idr.
type Manager struct {
	epoch atomic.Uint64

	mu       sync.Mutex
	slotsPtr atomic.Pointer[[]*slotState]

	freeHead atomic.Uint64
	retired  *retireQueue
}

// NewManager constructs a Manager with no reservation slots yet; the table
// grows on demand as concurrent guards are created.
func NewManager() *Manager {
	m := &Manager{retired: newRetireQueue()}
	m.epoch.Store(1)
	empty := make([]*slotState, 0)
	m.slotsPtr.Store(&empty)
	m.freeHead.Store(encodeFreeHead(0, noFreeSlot))
	return m
}

func encodeFreeHead(tag, index uint32) uint64 { return uint64(tag)<<32 | uint64(index) }
func decodeFreeHead(w uint64) (tag, index uint32) { return uint32(w >> 32), uint32(w) }

func (m *Manager) popFreeSlot() (uint32, bool) {
	for {
		head := m.freeHead.Load()
		tag, idx := decodeFreeHead(head)
		if idx == noFreeSlot {
			return 0, false
		}
		slots := *m.slotsPtr.Load()
		next := slots[idx].nextFree.Load()
		if m.freeHead.CompareAndSwap(head, encodeFreeHead(tag+1, next)) {
			return idx, true
		}
	}
}

func (m *Manager) pushFreeSlot(idx uint32) {
	slots := *m.slotsPtr.Load()
	slot := slots[idx]
	for {
		head := m.freeHead.Load()
		tag, top := decodeFreeHead(head)
		slot.nextFree.Store(top)
		if m.freeHead.CompareAndSwap(head, encodeFreeHead(tag+1, idx)) {
			return
		}
	}
}

// growAndClaim appends a fresh slot under the (rarely contended) growth
// lock and returns its index, already claimed by the caller. Existing
// slot pointers are never invalidated: the slice is only ever replaced by
// a strictly longer copy, and the *slotState values it points at are never
// moved or freed.
func (m *Manager) growAndClaim() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := *m.slotsPtr.Load()
	fresh := make([]*slotState, len(old)+1)
	copy(fresh, old)
	fresh[len(old)] = &slotState{}
	idx := uint32(len(old))
	m.slotsPtr.Store(&fresh)
	return idx
}

// Guard is a scoped reservation: while it exists, the Manager guarantees
// that nothing retired at or after the guard's entry epoch will be released.
type Guard struct {
	mgr  *Manager
	slot uint32
}

// Enter creates a guard pinned to the Manager's current epoch. Amortized
// O(1): the common case is a single CAS pop off the free stack plus a
// single atomic store of the entry epoch.
func (m *Manager) Enter() *Guard {
	idx, ok := m.popFreeSlot()
	if !ok {
		idx = m.growAndClaim()
	}
	slots := *m.slotsPtr.Load()
	slots[idx].epoch.Store(m.epoch.Load())
	return &Guard{mgr: m, slot: idx}
}

// Leave releases the guard's reservation, making its slot available for
// reuse and allowing the epoch it held back to advance past it.
func (g *Guard) Leave() {
	slots := *g.mgr.slotsPtr.Load()
	slots[g.slot].epoch.Store(inactiveEpoch)
	g.mgr.pushFreeSlot(g.slot)
}

// minActiveEpoch returns the oldest epoch any live guard is pinned to, or
// the epoch just past the current one if no guard is active.
func (m *Manager) minActiveEpoch() uint64 {
	min := m.epoch.Load() + 1
	for _, s := range *m.slotsPtr.Load() {
		if e := s.epoch.Load(); e < min {
			min = e
		}
	}
	return min
}

// Retire schedules release for execution no earlier than the epoch after
// every guard live right now has left. It advances the global epoch so
// that guards entering from this point on are never confused for one of
// the guards this retirement needs to outlive, then makes a best-effort
// pass at draining anything that has since become safe, returning how many
// retirements that pass released.
func (m *Manager) Retire(release func()) int {
	retiredAt := m.epoch.Load()
	m.retired.push(retiredAt, release)
	m.epoch.Add(1)
	return m.Reclaim()
}

// Reclaim drains every retirement that has become safe to release. Calling
// it is never required for correctness -- Retire already does this
// opportunistically -- but a caller that wants to bound worst-case queue
// depth (e.g. a maintenance goroutine) can call it directly.
func (m *Manager) Reclaim() int {
	return m.retired.drain(m.minActiveEpoch())
}

// CurrentEpoch returns the manager's current global epoch. Exposed for
// instrumentation and tests.
func (m *Manager) CurrentEpoch() uint64 {
	return m.epoch.Load()
}
