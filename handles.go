package idr

import "github.com/arcanelabs/idr/internal/slab"

// BorrowedEntry is a short-lived reference to a value stored in an Idr,
// returned by Get. Its validity is tied to the Guard it was obtained under:
// it must not be kept, copied out, or used after that Guard's Leave.
// Because Get never mutates memory, holding a BorrowedEntry creates no
// contention at all -- that is the entire point of paying for EBR.
type BorrowedEntry[T any] struct {
	container *slab.Container[T]
	key       Key
}

// Value returns the referenced value.
func (b BorrowedEntry[T]) Value() T {
	return b.container.Value
}

// Key returns the key this entry was looked up by.
func (b BorrowedEntry[T]) Key() Key {
	return b.key
}

// ToOwned attempts to promote this borrow into an OwnedEntry, which holds
// its own strong reference and outlives the guard. It fails only if the
// container's strong count has already dropped to zero -- possible if the
// entry was removed and every other strong reference released between the
// Get that produced this borrow and this call.
func (b BorrowedEntry[T]) ToOwned() (OwnedEntry[T], bool) {
	if !b.container.TryAcquire() {
		return OwnedEntry[T]{}, false
	}
	return OwnedEntry[T]{container: b.container, key: b.key}, true
}

// OwnedEntry holds a strong reference to a value stored in an Idr (or
// formerly stored, if it has since been removed). Unlike BorrowedEntry it
// has no lifetime tied to a guard: it can be passed across goroutines and
// held indefinitely, and it keeps the value alive even past the owning
// Idr's own lifetime. Call Release when done with it.
type OwnedEntry[T any] struct {
	container *slab.Container[T]
	key       Key
}

// Value returns the referenced value.
func (o OwnedEntry[T]) Value() T {
	return o.container.Value
}

// Key returns the key this entry was looked up or inserted by.
func (o OwnedEntry[T]) Key() Key {
	return o.key
}

// Clone acquires a second strong reference to the same container. Always
// succeeds: an OwnedEntry existing at all proves the strong count has not
// reached zero.
func (o OwnedEntry[T]) Clone() OwnedEntry[T] {
	if !o.container.TryAcquire() {
		panic("idr: OwnedEntry.Clone on a container with no remaining strong references")
	}
	return OwnedEntry[T]{container: o.container, key: o.key}
}

// Release drops this handle's strong reference. Once every OwnedEntry and
// the owning slot (if still occupied) have released their references, the
// container becomes unreachable and the garbage collector reclaims it.
func (o OwnedEntry[T]) Release() {
	o.container.Release()
}

// VacantEntry is a reservation for a not-yet-published slot, returned by
// Idr.VacantEntry. It exposes the key the eventual value will be inserted
// at before that value exists, which is useful for values that need to
// embed their own key. Exactly one of Insert or Abandon must be called;
// neither is implicit, since Go has no destructors to run one on scope
// exit the way the reference implementation does.
type VacantEntry[T any] struct {
	idr  *Idr[T]
	page *slab.Page[T]
	slot *slab.Slot[T]
	off  uint32
	key  Key
}

// Key returns the key the value will be inserted at.
func (v VacantEntry[T]) Key() Key {
	return v.key
}

// Insert publishes value into the reserved slot, making it visible to
// subsequent Get/GetOwned/Contains/Iter calls. Wait-free.
func (v VacantEntry[T]) Insert(value T) {
	v.slot.Install(slab.NewContainer(value))
	v.idr.metrics.Inserts.Inc()
}

// Abandon releases the reservation without ever publishing a value,
// returning the slot to its page's free stack.
func (v VacantEntry[T]) Abandon() {
	v.page.PushFree(v.off)
}

// Iter is a restartable, lazy sequence of (Key, BorrowedEntry) pairs over
// every currently occupied slot in an Idr, in shard-index, page-index,
// slot-offset order. It performs no snapshot isolation: concurrent inserts
// and removes may or may not be observed, but iteration itself is always
// safe under concurrent mutation, since every step is a single Slot.Read.
// A slot whose generation has changed by the time its container pointer
// has been loaded is skipped rather than yielded.
type Iter[T any] struct {
	idr        *Idr[T]
	shardIndex int
	pageIndex  int
	offset     uint32
}

// Next advances the iterator, returning the next occupied entry, or false
// once every shard has been exhausted.
func (it *Iter[T]) Next() (Key, BorrowedEntry[T], bool) {
	for it.shardIndex < len(it.idr.shards) {
		shard := it.idr.shards[it.shardIndex]
		for it.pageIndex < shard.NumPages() {
			page := shard.Page(it.pageIndex)
			if page.Allocated() {
				for it.offset < page.Capacity() {
					slot, ok := page.SlotAt(it.offset)
					it.offset++
					if !ok {
						break
					}
					gen := slot.Generation()
					container, ok := slot.Read(gen)
					if !ok {
						continue
					}
					if slot.Generation() != gen {
						continue
					}
					ordinal := pageStartOrdinal(it.idr.layout.derived, it.pageIndex) + uint64(it.offset-1)
					key := pack(it.idr.layout, it.shardIndex, ordinal, gen)
					return key, BorrowedEntry[T]{container: container, key: key}, true
				}
			}
			it.pageIndex++
			it.offset = 0
		}
		it.shardIndex++
		it.pageIndex = 0
	}
	return InvalidKey, BorrowedEntry[T]{}, false
}
