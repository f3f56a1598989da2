package hart

import "testing"

// TestCompressedArithmetic is concrete scenario 2 of spec.md §8: two
// compressed instructions back to back, each advancing PC by 2.
func TestCompressedArithmetic(t *testing.T) {
	h := newTestHart(Rv64)
	if err := h.Bus.Write16(DRAMBase, 0x4581); err != nil { // c.li a1, 0
		t.Fatalf("write insn: %v", err)
	}
	if err := h.Bus.Write16(DRAMBase+2, 0x0589); err != nil { // c.addi a1, 2
		t.Fatalf("write insn: %v", err)
	}

	start := h.PC
	if !h.Step() {
		t.Fatalf("unexpected halt")
	}
	if h.PC != start+2 {
		t.Fatalf("PC after first compressed step = %#x, want %#x", h.PC, start+2)
	}
	if v := h.Regs.Read(11, Rv64); v != 0 {
		t.Fatalf("a1 after c.li = %d, want 0", v)
	}

	if !h.Step() {
		t.Fatalf("unexpected halt")
	}
	if h.PC != start+4 {
		t.Fatalf("PC after second compressed step = %#x, want %#x", h.PC, start+4)
	}
	if v := h.Regs.Read(11, Rv64); v != 2 {
		t.Fatalf("a1 after c.addi = %d, want 2", v)
	}
}
