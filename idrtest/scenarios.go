// Package idrtest is a reusable concurrency-scenario suite for idr.Idr,
// parameterized over value type and Config the same way a RunKVDBTests
// harness parameterizes over store implementations.
package idrtest

import (
	"sync"
	"testing"

	"github.com/arcanelabs/idr"
)

// Factory builds a fresh, empty Idr for one subtest.
type Factory[T any] func() (*idr.Idr[T], error)

// RunScenarios runs the full suite against whatever Factory produces.
func RunScenarios[T comparable](t *testing.T, name string, newIdr Factory[T], sample func(i int) T) {
	t.Run(name, func(t *testing.T) {
		t.Run("InsertGetRemoveRoundTrip", func(t *testing.T) {
			scenarioInsertGetRemoveRoundTrip(t, newIdr, sample)
		})
		t.Run("ManyDistinctKeys", func(t *testing.T) {
			scenarioManyDistinctKeys(t, newIdr, sample)
		})
		t.Run("GetOwnedOutlivesGuard", func(t *testing.T) {
			scenarioGetOwnedOutlivesGuard(t, newIdr, sample)
		})
		t.Run("ConcurrentInsertRemoveGet", func(t *testing.T) {
			scenarioConcurrentInsertRemoveGet(t, newIdr, sample)
		})
		t.Run("VacantEntryInsert", func(t *testing.T) {
			scenarioVacantEntryInsert(t, newIdr, sample)
		})
		t.Run("RemoveTwiceSecondFails", func(t *testing.T) {
			scenarioRemoveTwiceSecondFails(t, newIdr, sample)
		})
		t.Run("DistinctInsertsNeverCollide", func(t *testing.T) {
			scenarioDistinctInsertsNeverCollide(t, newIdr, sample)
		})
	})
}

// scenarioInsertGetRemoveRoundTrip is S1: insert, get hits, remove succeeds
// once, get then misses, remove then fails.
func scenarioInsertGetRemoveRoundTrip[T comparable](t *testing.T, newIdr Factory[T], sample func(i int) T) {
	r, err := newIdr()
	if err != nil {
		t.Fatalf("newIdr: %v", err)
	}

	v := sample(0)
	key, ok := r.Insert(v)
	if !ok {
		t.Fatalf("Insert failed")
	}

	g := r.Enter()
	entry, ok := r.Get(key, g)
	if !ok || entry.Value() != v {
		t.Fatalf("Get after Insert: got (%v, %v), want (%v, true)", entry.Value(), ok, v)
	}
	g.Leave()

	if !r.Remove(key) {
		t.Fatalf("first Remove should succeed")
	}

	g = r.Enter()
	if _, ok := r.Get(key, g); ok {
		t.Errorf("Get after Remove should miss")
	}
	g.Leave()

	if r.Remove(key) {
		t.Errorf("second Remove should fail")
	}
}

// scenarioManyDistinctKeys is S2: insert N values, confirm every key
// retrieves its own value, and Iter's multiset matches what was inserted.
func scenarioManyDistinctKeys[T comparable](t *testing.T, newIdr Factory[T], sample func(i int) T) {
	r, err := newIdr()
	if err != nil {
		t.Fatalf("newIdr: %v", err)
	}

	const n = 1000
	want := make(map[idr.Key]T, n)
	for i := 0; i < n; i++ {
		v := sample(i)
		key, ok := r.Insert(v)
		if !ok {
			t.Fatalf("Insert %d failed", i)
		}
		want[key] = v
	}

	g := r.Enter()
	for key, v := range want {
		entry, ok := r.Get(key, g)
		if !ok || entry.Value() != v {
			t.Errorf("Get(%d): got (%v, %v), want (%v, true)", key, entry.Value(), ok, v)
		}
	}

	seen := map[idr.Key]bool{}
	it := r.Iter(g)
	for {
		key, entry, ok := it.Next()
		if !ok {
			break
		}
		if seen[key] {
			t.Fatalf("Iter yielded key %d twice", key)
		}
		seen[key] = true
		wantV, present := want[key]
		if !present {
			t.Errorf("Iter yielded key %d that was never inserted", key)
			continue
		}
		if entry.Value() != wantV {
			t.Errorf("Iter value for key %d: got %v, want %v", key, entry.Value(), wantV)
		}
	}
	g.Leave()

	if len(seen) != len(want) {
		t.Errorf("Iter yielded %d entries, want %d", len(seen), len(want))
	}
}

// scenarioGetOwnedOutlivesGuard is S3: an OwnedEntry remains valid with no
// guard held at all, and Release drops its reference.
func scenarioGetOwnedOutlivesGuard[T comparable](t *testing.T, newIdr Factory[T], sample func(i int) T) {
	r, err := newIdr()
	if err != nil {
		t.Fatalf("newIdr: %v", err)
	}

	v := sample(0)
	key, ok := r.Insert(v)
	if !ok {
		t.Fatalf("Insert failed")
	}

	owned, ok := r.GetOwned(key)
	if !ok {
		t.Fatalf("GetOwned failed")
	}
	if owned.Value() != v {
		t.Fatalf("OwnedEntry.Value() = %v, want %v", owned.Value(), v)
	}

	r.Remove(key)

	if owned.Value() != v {
		t.Errorf("OwnedEntry.Value() after Remove changed: got %v, want %v", owned.Value(), v)
	}

	owned.Release()
}

// scenarioConcurrentInsertRemoveGet is S4: after a key is inserted, one
// goroutine removes it while another holds a guard and repeatedly gets it. The
// observed outcome set must be exactly {found, not found}, and a found
// result's value must always be the one that was inserted.
func scenarioConcurrentInsertRemoveGet[T comparable](t *testing.T, newIdr Factory[T], sample func(i int) T) {
	r, err := newIdr()
	if err != nil {
		t.Fatalf("newIdr: %v", err)
	}

	v := sample(0)
	key, ok := r.Insert(v)
	if !ok {
		t.Fatalf("Insert failed")
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		r.Remove(key)
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			g := r.Enter()
			if entry, ok := r.Get(key, g); ok && entry.Value() != v {
				t.Errorf("Get under guard returned wrong value: got %v, want %v", entry.Value(), v)
			}
			g.Leave()
		}
	}()

	wg.Wait()
}

// scenarioVacantEntryInsert is S6: a reserved-but-unpublished key misses
// on Get, and publishing it with Insert makes it visible.
func scenarioVacantEntryInsert[T comparable](t *testing.T, newIdr Factory[T], sample func(i int) T) {
	r, err := newIdr()
	if err != nil {
		t.Fatalf("newIdr: %v", err)
	}

	v := sample(0)
	ve, ok := r.VacantEntry()
	if !ok {
		t.Fatalf("VacantEntry failed")
	}
	key := ve.Key()

	g := r.Enter()
	if _, ok := r.Get(key, g); ok {
		t.Errorf("Get on an unpublished VacantEntry's key should miss")
	}
	g.Leave()

	ve.Insert(v)

	g = r.Enter()
	entry, ok := r.Get(key, g)
	if !ok || entry.Value() != v {
		t.Errorf("Get after Insert: got (%v, %v), want (%v, true)", entry.Value(), ok, v)
	}
	g.Leave()
}

// scenarioRemoveTwiceSecondFails is property 4.
func scenarioRemoveTwiceSecondFails[T comparable](t *testing.T, newIdr Factory[T], sample func(i int) T) {
	r, err := newIdr()
	if err != nil {
		t.Fatalf("newIdr: %v", err)
	}

	key, ok := r.Insert(sample(0))
	if !ok {
		t.Fatalf("Insert failed")
	}
	if !r.Remove(key) {
		t.Errorf("first Remove should return true")
	}
	if r.Remove(key) {
		t.Errorf("second Remove should return false")
	}
}

// scenarioDistinctInsertsNeverCollide is property 3.
func scenarioDistinctInsertsNeverCollide[T comparable](t *testing.T, newIdr Factory[T], sample func(i int) T) {
	r, err := newIdr()
	if err != nil {
		t.Fatalf("newIdr: %v", err)
	}

	const n = 500
	seen := make(map[idr.Key]bool, n)
	for i := 0; i < n; i++ {
		key, ok := r.Insert(sample(i))
		if !ok {
			t.Fatalf("Insert %d failed", i)
		}
		if seen[key] {
			t.Fatalf("Insert %d returned a key already returned by a prior Insert", i)
		}
		seen[key] = true
	}
}
