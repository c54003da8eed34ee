package idr

import (
	"fmt"
	"math/bits"
)

// Key is an opaque, non-zero handle into an Idr. The zero Key is never
// valid -- it is reserved to mean "no key" -- which is why the generation
// counter a Key carries is biased to start at 1 and why the encoded slot
// ordinal is biased by one internally (see pack/unpack below): with that
// second bias, the very first slot of the very first page cannot pack into
// a wholly-zero key even at generation zero, which slots themselves never
// use (their generation wraps past zero straight to 1).
type Key uint64

// InvalidKey is the reserved zero value.
const InvalidKey Key = 0

// Uint64 returns the raw bit pattern backing this Key.
func (k Key) Uint64() uint64 { return uint64(k) }

// KeyFromUint64 reconstructs a Key from its raw bit pattern, failing if it
// is zero. It does not validate the reserved bits against any particular
// Config -- that happens in decode, where a Config is actually in scope.
func KeyFromUint64(raw uint64) (Key, error) {
	if raw == 0 {
		return InvalidKey, fmt.Errorf("idr: zero is not a valid key")
	}
	return Key(raw), nil
}

// layout extends a Config's derived bit widths with shard routing. The
// reference implementation has no notion of a shard -- one Idr owns one
// flat sequence of pages, synchronized by a single PageControl -- so a key
// there only ever needs to carry (ordinal, generation). This redesign gives
// each shard its own independent page sequence to cut cross-thread
// contention on free-stack pops, which means a key now also has to say
// which shard it came from. Rather than grow the key by a separate field
// (which would eat into the 64-bit budget twice -- once for shard, once
// for padding to a byte boundary), shard index is packed into the
// high-order bits of what Config still calls the generation field: a shard
// count of 2^k shaves k bits off the effective generation width. This is
// recorded here, not in Config, because shard count is chosen from runtime
// parallelism at Idr construction, not part of the portable configuration.
type layout struct {
	derived

	shardCount int
	shardBits  uint32
	shardMask  uint32

	// genFieldBits/genFieldMask describe the actual generation counter
	// width once shardBits has been carved out of derived.generationBits.
	genFieldBits uint32
	genFieldMask uint32
}

// newLayout combines a Config's derived values with a shard count, failing
// if the shard count leaves no room for a generation counter.
func newLayout(d derived, shardCount int) (layout, error) {
	shardBits := uint32(0)
	if shardCount > 1 {
		shardBits = uint32(bits.Len(uint(shardCount - 1)))
	}
	var shardMask uint32
	if shardBits > 0 {
		shardMask = (uint32(1) << shardBits) - 1
	}

	if d.generationBits <= shardBits {
		return layout{}, fmt.Errorf("idr: %d shards leave no generation bits after taking %d for shard routing (only %d available)", shardCount, shardBits, d.generationBits)
	}
	genFieldBits := d.generationBits - shardBits
	genFieldMask := (uint32(1) << genFieldBits) - 1

	return layout{
		derived:      d,
		shardCount:   shardCount,
		shardBits:    shardBits,
		shardMask:    shardMask,
		genFieldBits: genFieldBits,
		genFieldMask: genFieldMask,
	}, nil
}

// pack encodes (shard index, flat per-shard slot ordinal, generation) into
// a Key. ordinal is zero-based; internally it is stored as ordinal+1 so
// that ordinal 0 never collides with the reserved all-zero key even
// transiently at generation 0.
func pack(l layout, shardIndex int, ordinal uint64, generation uint32) Key {
	rawOrdinal := ordinal + 1
	raw := (uint64(shardIndex) << (l.slotBits + l.genFieldBits)) |
		(uint64(generation) << l.slotBits) |
		rawOrdinal
	return Key(raw)
}

// unpack is the inverse of pack.
func unpack(l layout, k Key) (shardIndex int, ordinal uint64, generation uint32) {
	raw := uint64(k)
	rawOrdinal := raw & uint64(l.slotMask)
	generation = uint32(raw>>l.slotBits) & l.genFieldMask
	shardIndex = int(uint32(raw>>(l.slotBits+l.genFieldBits)) & l.shardMask)
	return shardIndex, rawOrdinal - 1, generation
}

// decode fully validates a Key against an Idr's layout and recovers
// (shard index, page index, slot offset, generation). It rejects a Key
// with any bit set above usedBits, a zero generation, a shard index beyond
// shardCount, or an ordinal whose page index falls outside MaxPages.
func decode(l layout, k Key) (shardIndex, pageIndex int, slotOffset uint32, generation uint32, err error) {
	if k == InvalidKey {
		return 0, 0, 0, 0, fmt.Errorf("idr: invalid key: zero")
	}
	raw := uint64(k)
	if l.usedBits < 64 && raw>>l.usedBits != 0 {
		return 0, 0, 0, 0, fmt.Errorf("idr: invalid key: reserved bits are set")
	}

	shardIndex, ordinal, generation := unpack(l, k)
	if generation == 0 {
		return 0, 0, 0, 0, fmt.Errorf("idr: invalid key: zero generation")
	}
	if shardIndex < 0 || shardIndex >= l.shardCount {
		return 0, 0, 0, 0, fmt.Errorf("idr: invalid key: shard index %d out of range", shardIndex)
	}

	pageIndex, slotOffset = ordinalToPage(l.derived, ordinal)
	if pageIndex < 0 || pageIndex >= int(l.cfg.MaxPages) {
		return 0, 0, 0, 0, fmt.Errorf("idr: invalid key: page index %d out of range", pageIndex)
	}
	return shardIndex, pageIndex, slotOffset, generation, nil
}

// ordinalToPage recovers (page index, slot offset) from a zero-based flat
// ordinal, by the inverse of the doubling-page-size geometry: page p starts
// at ordinal InitialPageSize*(2^p-1) and holds InitialPageSize*2^p slots.
func ordinalToPage(d derived, ordinal uint64) (pageIndex int, slotOffset uint32) {
	ips := uint64(d.cfg.InitialPageSize)
	p := bits.Len64(ordinal/ips+1) - 1
	start := ips * ((uint64(1) << uint(p)) - 1)
	return p, uint32(ordinal - start)
}

// pageStartOrdinal returns the zero-based ordinal of slot 0 of the given
// page index, the inverse half of ordinalToPage's geometry.
func pageStartOrdinal(d derived, pageIndex int) uint64 {
	ips := uint64(d.cfg.InitialPageSize)
	return ips * ((uint64(1) << uint(pageIndex)) - 1)
}
