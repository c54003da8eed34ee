package idr

import "testing"

func TestBorrowedEntryToOwnedSucceedsWhileLive(t *testing.T) {
	r, err := New[string](DefaultConfig)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key, _ := r.Insert("x")

	g := r.Enter()
	borrowed, ok := r.Get(key, g)
	if !ok {
		t.Fatalf("Get failed")
	}
	owned, ok := borrowed.ToOwned()
	if !ok {
		t.Fatalf("ToOwned should succeed while the entry is live")
	}
	g.Leave()

	if owned.Value() != "x" {
		t.Errorf("OwnedEntry.Value() = %q, want %q", owned.Value(), "x")
	}
	owned.Release()
}

// TestBorrowedEntryToOwnedFailsOnceStrongCountHitsZero is the "weak
// promotion failure" case: a guard keeps a removed entry's container
// reachable, but once every strong reference to it (here, just the slot's
// own) has actually been released by the EBR engine, ToOwned must refuse
// to resurrect it rather than handing back a live-looking OwnedEntry.
func TestBorrowedEntryToOwnedFailsOnceStrongCountHitsZero(t *testing.T) {
	r, err := New[string](DefaultConfig)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	key, ok := r.Insert("x")
	if !ok {
		t.Fatalf("Insert failed")
	}

	g := r.Enter()
	borrowed, ok := r.Get(key, g)
	if !ok {
		t.Fatalf("Get failed")
	}

	// Removing while g is still held defers the container's release: the
	// slot's strong reference is still intact at this point.
	if !r.Remove(key) {
		t.Fatalf("Remove failed")
	}
	g.Leave()

	// Nothing has forced a reclaim pass yet, so drive one: any later
	// Remove opportunistically drains everything safe to release,
	// including the one deferred above.
	otherKey, ok := r.Insert("y")
	if !ok {
		t.Fatalf("Insert failed")
	}
	if !r.Remove(otherKey) {
		t.Fatalf("Remove failed")
	}

	if _, ok := borrowed.ToOwned(); ok {
		t.Fatalf("ToOwned should fail once the container's strong count has hit zero")
	}
}

// TestOwnedEntryCloneOnReleasedContainerPanics documents that Clone is not
// a fallible operation: an OwnedEntry existing at all proves the strong
// count has not reached zero, so calling Clone after already releasing
// every reference is caller misuse, not a recoverable "not found" outcome,
// and is reported by panicking instead of silently resurrecting the value.
func TestOwnedEntryCloneOnReleasedContainerPanics(t *testing.T) {
	r, err := New[string](DefaultConfig)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key, _ := r.Insert("x")

	owned, ok := r.GetOwned(key)
	if !ok {
		t.Fatalf("GetOwned failed")
	}
	r.Remove(key)
	owned.Release()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Clone on a released container to panic")
		}
	}()
	owned.Clone()
}

func TestOwnedEntryCloneAddsAReference(t *testing.T) {
	r, err := New[string](DefaultConfig)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key, _ := r.Insert("x")

	owned, ok := r.GetOwned(key)
	if !ok {
		t.Fatalf("GetOwned failed")
	}
	clone := owned.Clone()

	r.Remove(key)

	if owned.Value() != "x" || clone.Value() != "x" {
		t.Errorf("clone or original lost its value after Remove")
	}

	owned.Release()
	if clone.Value() != "x" {
		t.Errorf("clone should survive releasing the original")
	}
	clone.Release()
}

func TestVacantEntryAbandonFreesTheSlotForReuse(t *testing.T) {
	cfg := Config{InitialPageSize: 2, MaxPages: 1, ReservedBits: 0}
	r, err := newWithShardCount[string](t.Name(), cfg, 1)
	if err != nil {
		t.Fatalf("newWithShardCount: %v", err)
	}

	ve, ok := r.VacantEntry()
	if !ok {
		t.Fatalf("VacantEntry failed")
	}
	ve.Abandon()

	if _, ok := r.Insert("a"); !ok {
		t.Fatalf("insert after Abandon should still find a free slot")
	}
	if _, ok := r.Insert("b"); !ok {
		t.Fatalf("second insert should still fit the page's remaining slot")
	}
	if _, ok := r.Insert("c"); ok {
		t.Fatalf("page should be full: Abandon does not grow capacity")
	}
}
