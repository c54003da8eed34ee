package idr

import "testing"

func TestDefaultConfigMatchesReferenceValues(t *testing.T) {
	if err := DefaultConfig.Validate(); err != nil {
		t.Fatalf("DefaultConfig should validate: %v", err)
	}
	d := DefaultConfig.derive()

	if d.usedBits != 64 {
		t.Errorf("UsedBits = %d, want 64", d.usedBits)
	}
	if d.slotBits != 32 {
		t.Errorf("SlotBits = %d, want 32", d.slotBits)
	}
	if d.generationBits != 32 {
		t.Errorf("GenerationBits = %d, want 32", d.generationBits)
	}
	if d.maxSlots != 4_294_967_264 {
		t.Errorf("MaxSlots = %d, want 4294967264", d.maxSlots)
	}
	if d.maxGenerations != 4_294_967_296 {
		t.Errorf("MaxGenerations = %d, want 4294967296", d.maxGenerations)
	}
}

func TestValidateRejectsNonPowerOfTwoPageSize(t *testing.T) {
	cfg := Config{InitialPageSize: 10, MaxPages: 4}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected a non-power-of-two InitialPageSize to be rejected")
	}
}

func TestValidateRejectsZeroMaxPages(t *testing.T) {
	cfg := Config{InitialPageSize: 32, MaxPages: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected MaxPages=0 to be rejected")
	}
}

func TestValidateRejectsOversizedReservedBits(t *testing.T) {
	cfg := Config{InitialPageSize: 32, MaxPages: 4, ReservedBits: 40}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected ReservedBits > 32 to be rejected")
	}
}

func TestValidateRejectsZeroGenerationBits(t *testing.T) {
	// SlotBits for ips=32,maxPages=27 is already 32; reserving the other 32
	// bits leaves nothing for the generation counter.
	cfg := Config{InitialPageSize: 32, MaxPages: 27, ReservedBits: 32}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected a configuration with zero generation bits to be rejected")
	}
}

func TestValidateAcceptsSmallConfig(t *testing.T) {
	cfg := Config{InitialPageSize: 2, MaxPages: 2, ReservedBits: 0}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected small config to validate: %v", err)
	}
}

func TestConfigStringIncludesDerivedValues(t *testing.T) {
	s := DefaultConfig.String()
	if s == "" {
		t.Fatalf("expected a non-empty debug string")
	}
}
