package memory

import (
	"testing"
)

// TestMemoryTrivial just does basic get/set tests
func TestMemoryTrivial(t *testing.T) {

	mem := new(Memory)

	// Set
	mem.Set(0x00, 0x01)
	mem.Set(0x01, 0x02)

	// Get
	if mem.Get(0x00) != 0x01 {
		t.Fatalf("failed to get expected result")
	}
	if mem.Get(0x01) != 0x02 {
		t.Fatalf("failed to get expected result")
	}
	// GetU16
	if mem.GetU16(0x00) != 0x0201 {
		t.Fatalf("failed to get expected result")
	}

	// Fill with 0xCD
	mem.FillRange(0x00, 0xFFFF, 0xCD)

	if mem.Get(0xFFFE) != 0xCD {
		t.Fatalf("failed to get expected result")
	}
	// GetU16
	if mem.GetU16(0x0100) != 0xCDCD {
		t.Fatalf("failed to get expected result")
	}

	// Get a random range
	out := mem.GetRange(0x300, 0x00FF)
	if len(out) != 0xFF {
		t.Fatalf("wrong length from GetRange")
	}
	for _, d := range out {
		if d != 0xCD {
			t.Fatalf("wrong result in GetRange")
		}
	}

	// Put a (small) range
	out = []uint8{0x01, 0x02, 0x03}
	mem.SetRange(0x0000, out[:]...)

	if mem.Get(0x00) != 0x01 {
		t.Fatalf("failed to get expected result")
	}
	if mem.Get(0x01) != 0x02 {
		t.Fatalf("failed to get expected result")
	}
	// GetU16
	if mem.GetU16(0x00) != 0x0201 {
		t.Fatalf("failed to get expected result")
	}
	if mem.GetU16(0x02) != 0xCD03 {
		t.Fatalf("failed to get expected result")
	}
}

// TestWrap ensures a DMA block at the top of RAM wraps around.
func TestWrap(t *testing.T) {

	mem := new(Memory)

	block := make([]uint8, 128)
	for i := range block {
		block[i] = uint8(i)
	}

	mem.SetRange(0xFFC0, block...)

	if mem.Get(0xFFFF) != 63 {
		t.Fatalf("wrong value at top of RAM")
	}
	if mem.Get(0x0000) != 64 {
		t.Fatalf("write didn't wrap")
	}

	out := mem.GetRange(0xFFC0, 128)
	for i, c := range out {
		if c != uint8(i) {
			t.Fatalf("wrong value at offset %d", i)
		}
	}
}
