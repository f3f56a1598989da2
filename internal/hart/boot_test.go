package hart

import (
	"bytes"
	"testing"
)

// TestBootPrologueReachesEntry is concrete scenario 1 of spec.md §8: the
// fixed reset vector runs for exactly five instructions and lands at the
// ELF entry point with a0 holding mhartid and a1 holding the DTB address.
func TestBootPrologueReachesEntry(t *testing.T) {
	m := NewMachine(Rv64, nil, DRAMBase, 0, &bytes.Buffer{}, bytes.NewReader(nil))
	h := m.Hart

	for i := 0; i < 5; i++ {
		if !h.Step() {
			t.Fatalf("unexpected halt at step %d", i)
		}
	}

	if h.PC != DRAMBase {
		t.Fatalf("PC = %#x, want entry %#x", h.PC, uint64(DRAMBase))
	}
	if v := h.Regs.Read(10, Rv64); v != 0 {
		t.Fatalf("a0 (mhartid) = %d, want 0", v)
	}
	if v := h.Regs.Read(11, Rv64); v != MROMBase+32 {
		t.Fatalf("a1 (dtb addr) = %#x, want %#x", v, uint64(MROMBase+32))
	}
}
