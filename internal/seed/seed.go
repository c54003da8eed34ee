// Package seed produces a one-shot random uint64, used to salt the
// pseudo-random page-scan starting point each Idr picks per insert so that
// two Idr instances in the same process don't send goroutines with the
// same id to the same starting page.
package seed

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// Generate returns a random uint64, falling back to the current time if
// the system's random source is unavailable. This only ever runs once per
// Idr construction, not on any hot path, so crypto/rand's syscall cost is
// irrelevant here.
func Generate() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}
