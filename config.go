package idr

import (
	"fmt"
	"math/bits"
)

// Config tunes the capacity and key layout of an Idr. The zero value is not
// valid; use DefaultConfig or build one and call Validate.
//
// Each shard holds (2^MaxPages - 1) * InitialPageSize slots.
type Config struct {
	// InitialPageSize is the slot count of the first page. Each later page
	// doubles the previous one. Must be a power of two.
	InitialPageSize uint32
	// MaxPages bounds how many times a shard can grow. Must be positive.
	MaxPages uint32
	// ReservedBits are high-order bits of the key left untouched by this
	// package, taken out of the bits left for the generation counter (which
	// is at most 32 bits wide). Callers that
	// don't need reserved bits for their own tagging should leave this 0.
	ReservedBits uint32
}

// DefaultConfig matches the reference configuration: no reserved bits, a
// capacity of 4,294,967,264 slots per shard, and a 32-bit generation counter.
var DefaultConfig = Config{
	InitialPageSize: 32,
	MaxPages:        27,
	ReservedBits:    0,
}

// derived holds every value computed from a Config, cached once at Idr
// construction so the hot paths never recompute them.
type derived struct {
	cfg Config

	usedBits        uint32
	slotBits        uint32
	slotMask        uint32
	generationBits  uint32
	generationMask  uint32
	maxSlots        uint64
	maxGenerations  uint64
}

// Validate checks the invariants Config must satisfy before it can back an
// Idr: InitialPageSize is a power of two, MaxPages is positive, and the bit
// budget (reserved + slot + generation bits) fits in 64 with room for at
// least one generation bit.
func (c Config) Validate() error {
	if c.InitialPageSize == 0 || c.InitialPageSize&(c.InitialPageSize-1) != 0 {
		return fmt.Errorf("idr: InitialPageSize (%d) must be a power of two", c.InitialPageSize)
	}
	if c.MaxPages == 0 {
		return fmt.Errorf("idr: MaxPages must be positive")
	}
	if c.ReservedBits > 32 {
		return fmt.Errorf("idr: ReservedBits (%d) must be <= 32", c.ReservedBits)
	}

	d := c.derive()
	if d.slotBits > 32 {
		return fmt.Errorf("idr: InitialPageSize/MaxPages combination needs %d slot bits, more than 32", d.slotBits)
	}
	if d.usedBits < d.slotBits {
		return fmt.Errorf("idr: ReservedBits (%d) leaves no room for slot bits", c.ReservedBits)
	}
	if d.generationBits == 0 {
		return fmt.Errorf("idr: configuration leaves zero generation bits, ABA protection would be absent")
	}
	if d.generationBits > 32 {
		return fmt.Errorf("idr: configuration implies %d generation bits, more than 32", d.generationBits)
	}
	return nil
}

// derive computes every value that follows mechanically from Config. Used by
// Validate and String; New calls it after Validate has succeeded and caches
// the result on Idr.
func (c Config) derive() derived {
	usedBits := uint32(64) - c.ReservedBits
	slotBits := c.MaxPages + uint32(bits.TrailingZeros32(c.InitialPageSize))
	var slotMask uint32
	if slotBits >= 32 {
		slotMask = ^uint32(0)
	} else {
		slotMask = (uint32(1) << slotBits) - 1
	}
	generationBits := usedBits - slotBits
	if generationBits > 32 {
		// The generation counter is a uint32; any key bits beyond that stay unused.
		generationBits = 32
	}
	var generationMask uint32
	if generationBits >= 32 {
		generationMask = ^uint32(0)
	} else {
		generationMask = (uint32(1) << generationBits) - 1
	}
	maxSlots := (uint64(1)<<c.MaxPages - 1) * uint64(c.InitialPageSize)
	maxGenerations := uint64(1) << generationBits

	return derived{
		cfg:            c,
		usedBits:       usedBits,
		slotBits:       slotBits,
		slotMask:       slotMask,
		generationBits: generationBits,
		generationMask: generationMask,
		maxSlots:       maxSlots,
		maxGenerations: maxGenerations,
	}
}

// String renders a Config together with every derived value.
func (c Config) String() string {
	d := c.derive()
	return fmt.Sprintf(
		"Config{InitialPageSize:%d MaxPages:%d ReservedBits:%d UsedBits:%d SlotBits:%d GenerationBits:%d MaxSlots:%d MaxGenerations:%d}",
		c.InitialPageSize, c.MaxPages, c.ReservedBits,
		d.usedBits, d.slotBits, d.generationBits, d.maxSlots, d.maxGenerations,
	)
}
