package slab

import (
	"sync"
	"testing"
)

func TestSlotInitStartsVacantAtGenerationOne(t *testing.T) {
	var s Slot[string]
	s.Init(NoNextFree)

	if _, ok := s.Read(1); ok {
		t.Fatalf("fresh slot should not be readable")
	}
	if got := s.Generation(); got != 1 {
		t.Errorf("expected initial generation 1, got %d", got)
	}
}

func TestSlotInstallThenRead(t *testing.T) {
	var s Slot[string]
	s.Init(NoNextFree)

	c := NewContainer("hello")
	s.Install(c)

	got, ok := s.Read(1)
	if !ok {
		t.Fatalf("expected to read back the installed container")
	}
	if got.Value != "hello" {
		t.Errorf("expected %q, got %q", "hello", got.Value)
	}
}

func TestSlotReadRejectsWrongGeneration(t *testing.T) {
	var s Slot[string]
	s.Init(NoNextFree)
	s.Install(NewContainer("hello"))

	if _, ok := s.Read(2); ok {
		t.Fatalf("expected a generation mismatch to read as not found")
	}
}

func TestSlotInstallPanicsOnAlreadyOccupied(t *testing.T) {
	var s Slot[string]
	s.Init(NoNextFree)
	s.Install(NewContainer("first"))

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Install on an occupied slot to panic")
		}
	}()
	s.Install(NewContainer("second"))
}

func TestSlotRemoveAdvancesGenerationAndVacates(t *testing.T) {
	var s Slot[string]
	s.Init(NoNextFree)
	s.Install(NewContainer("hello"))

	const mask = ^uint64(0)
	container, ok := s.Remove(1, mask)
	if !ok {
		t.Fatalf("expected Remove to succeed")
	}
	if container.Value != "hello" {
		t.Errorf("expected removed container to carry the original value")
	}
	if _, ok := s.Read(1); ok {
		t.Fatalf("slot should read as vacant after Remove")
	}
	if got := s.Generation(); got != 2 {
		t.Errorf("expected generation to advance to 2, got %d", got)
	}
}

func TestSlotRemoveRejectsStaleGeneration(t *testing.T) {
	var s Slot[string]
	s.Init(NoNextFree)
	s.Install(NewContainer("hello"))

	const mask = ^uint64(0)
	if _, ok := s.Remove(99, mask); ok {
		t.Fatalf("expected Remove with a stale generation to fail")
	}
}

func TestSlotGenerationWrapsUnderMask(t *testing.T) {
	var s Slot[int]
	s.Init(NoNextFree)

	// A 2-bit generation mask: 1 -> 2 -> 3 -> 1 (0 is skipped, reserved for
	// the "no key" invariant) -> 2 ...
	const mask = uint64(0b11)
	want := []uint32{2, 3, 1, 2}
	gen := s.Generation()
	for i, w := range want {
		s.Install(NewContainer(i))
		_, ok := s.Remove(gen, mask)
		if !ok {
			t.Fatalf("round %d: expected Remove to succeed at generation %d", i, gen)
		}
		gen = s.Generation()
		if gen != w {
			t.Fatalf("round %d: expected generation to advance to %d, got %d", i, w, gen)
		}
	}
}

func TestSlotReusableAfterRemove(t *testing.T) {
	var s Slot[string]
	s.Init(NoNextFree)
	s.Install(NewContainer("v1"))
	gen := s.Generation()

	if _, ok := s.Remove(gen, ^uint64(0)); !ok {
		t.Fatalf("expected remove to succeed")
	}

	newGen := s.Generation()
	s.Install(NewContainer("v2"))
	got, ok := s.Read(newGen)
	if !ok || got.Value != "v2" {
		t.Fatalf("expected slot to be reusable at its new generation")
	}
	if _, ok := s.Read(gen); ok {
		t.Fatalf("the old generation must no longer resolve")
	}
}

func TestSlotFreeLinkIsIndependentOfMetadata(t *testing.T) {
	var s Slot[string]
	s.Init(5)
	if got := s.NextFree(); got != 5 {
		t.Fatalf("expected next-free link 5, got %d", got)
	}
	s.Install(NewContainer("x"))
	// Occupying the slot must not disturb its (currently unused) free link.
	if got := s.NextFree(); got != 5 {
		t.Fatalf("Install must not touch next-free, got %d", got)
	}
}

func TestSlotConcurrentInstallReadRemove(t *testing.T) {
	const rounds = 2000
	var s Slot[int]
	s.Init(NoNextFree)

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				s.Read(s.Generation())
			}
		}
	}()

	gen := s.Generation()
	for i := 0; i < rounds; i++ {
		s.Install(NewContainer(i))
		c, ok := s.Remove(gen, ^uint64(0))
		if !ok {
			t.Fatalf("round %d: Remove should succeed", i)
		}
		if c.Value != i {
			t.Fatalf("round %d: expected value %d, got %d", i, i, c.Value)
		}
		gen = s.Generation()
	}
	close(done)
	wg.Wait()
}
