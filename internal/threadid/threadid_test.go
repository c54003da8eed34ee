package threadid

import (
	"sync"
	"testing"
)

func TestParseGoroutineID(t *testing.T) {
	cases := map[string]uint64{
		"goroutine 1 [running]:\nmain.main()":       1,
		"goroutine 4242 [chan receive]:\nfoo.bar()":  4242,
		"not a stack header at all":                  0,
		"goroutine [running]:":                       0,
	}
	for header, want := range cases {
		if got := parseGoroutineID([]byte(header)); got != want {
			t.Errorf("parseGoroutineID(%q) = %d, want %d", header, got, want)
		}
	}
}

func TestCurrentIsStableWithinAGoroutine(t *testing.T) {
	a := Current()
	b := Current()
	if a != b {
		t.Errorf("expected the same goroutine to observe a stable ID, got %d then %d", a, b)
	}
}

func TestCurrentDiffersAcrossGoroutinesUsually(t *testing.T) {
	const n = 16
	ids := make([]uint64, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			ids[i] = Current()
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, id := range ids {
		seen[id] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected goroutines to mostly observe distinct IDs, got only %d distinct values across %d goroutines", len(seen), n)
	}
}
