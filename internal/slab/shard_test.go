package slab

import "testing"

func TestShardPageCapacitiesDouble(t *testing.T) {
	s := NewShard[string](32, 5)
	want := uint32(32)
	for p := 0; p < s.NumPages(); p++ {
		if got := s.Page(p).Capacity(); got != want {
			t.Errorf("page %d: expected capacity %d, got %d", p, want, got)
		}
		want *= 2
	}
}

func TestShardPagesAreIndependentlyAllocated(t *testing.T) {
	s := NewShard[string](4, 3)
	s.Page(1).InitializeIfNeeded()

	if s.Page(0).Allocated() {
		t.Errorf("page 0 must not be allocated just because page 1 was")
	}
	if !s.Page(1).Allocated() {
		t.Errorf("page 1 should be allocated")
	}
	if s.Page(2).Allocated() {
		t.Errorf("page 2 must not be allocated just because page 1 was")
	}
}
