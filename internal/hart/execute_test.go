package hart

import "testing"

// TestALUImmediate covers ADDI/ANDI/ORI/XORI through one straight-line
// sequence, in the teacher's style of hand-assembled instruction words
// (rv64/emulator_test.go's TestALUOperations).
func TestALUImmediate(t *testing.T) {
	h := newTestHart(Rv64)
	code := []uint32{
		0x00a00513, // addi a0, zero, 10
		0x0ff57593, // andi a1, a0, 0xff
		0x0ff56613, // ori  a2, a0, 0xff
		0x0ff54693, // xori a3, a0, 0xff
	}
	loadCode(h, DRAMBase, code)
	for range code {
		if !h.Step() {
			t.Fatalf("unexpected halt")
		}
	}
	if v := h.Regs.Read(10, Rv64); v != 10 {
		t.Fatalf("a0 = %d, want 10", v)
	}
	if v := h.Regs.Read(11, Rv64); v != 10 {
		t.Fatalf("a1 = %d, want 10", v)
	}
	if v := h.Regs.Read(12, Rv64); v != 0xff {
		t.Fatalf("a2 = %#x, want 0xff", v)
	}
	if v := h.Regs.Read(13, Rv64); v != 0xf5 {
		t.Fatalf("a3 = %#x, want 0xf5", v)
	}
}

// TestPCAdvancesByEncodingWidth is the universal invariant of spec.md §8:
// for a non-branching, non-trapping step, PC_after - PC_before equals the
// encoding width (4 for an uncompressed instruction).
func TestPCAdvancesByEncodingWidth(t *testing.T) {
	h := newTestHart(Rv64)
	loadCode(h, DRAMBase, []uint32{0x00000013}) // nop (addi x0, x0, 0)
	before := h.PC
	if !h.Step() {
		t.Fatalf("unexpected halt")
	}
	if h.PC-before != 4 {
		t.Fatalf("PC advanced by %d, want 4", h.PC-before)
	}
}

// TestJalSavesLinkAndJumps exercises a non-immediate-only control transfer:
// JAL must save PC+4 to rd and set PC to PC+immJ.
func TestJalSavesLinkAndJumps(t *testing.T) {
	h := newTestHart(Rv64)
	loadCode(h, DRAMBase, []uint32{0x008000ef}) // jal ra, 8
	start := h.PC
	if !h.Step() {
		t.Fatalf("unexpected halt")
	}
	if v := h.Regs.Read(1, Rv64); v != start+4 {
		t.Fatalf("ra = %#x, want %#x", v, start+4)
	}
	if h.PC != start+8 {
		t.Fatalf("PC = %#x, want %#x", h.PC, start+8)
	}
}

// TestDivisionEdgeCases is concrete scenario 6 of spec.md §8: division by
// zero and signed overflow both produce defined results instead of
// trapping.
func TestDivisionEdgeCases(t *testing.T) {
	mostNeg := uint64(1) << 63

	t.Run("overflow div", func(t *testing.T) {
		h := newTestHart(Rv64)
		h.Regs.Write(10, mostNeg, Rv64)    // a0 = most negative
		h.Regs.Write(11, ^uint64(0), Rv64) // a1 = -1
		loadCode(h, DRAMBase, []uint32{0x02b54733}) // div a4, a0, a1
		if !h.Step() {
			t.Fatalf("unexpected halt")
		}
		if v := h.Regs.Read(14, Rv64); v != mostNeg {
			t.Fatalf("div(most_neg, -1) = %#x, want %#x", v, mostNeg)
		}
	})

	t.Run("overflow rem", func(t *testing.T) {
		h := newTestHart(Rv64)
		h.Regs.Write(10, mostNeg, Rv64)
		h.Regs.Write(11, ^uint64(0), Rv64)
		loadCode(h, DRAMBase, []uint32{0x02b567b3}) // rem a5, a0, a1
		if !h.Step() {
			t.Fatalf("unexpected halt")
		}
		if v := h.Regs.Read(15, Rv64); v != 0 {
			t.Fatalf("rem(most_neg, -1) = %#x, want 0", v)
		}
	})

	t.Run("divide by zero", func(t *testing.T) {
		h := newTestHart(Rv64)
		h.Regs.Write(10, mostNeg, Rv64)
		h.Regs.Write(12, 0, Rv64) // a2 = 0
		loadCode(h, DRAMBase, []uint32{0x02c54833}) // div a6, a0, a2
		if !h.Step() {
			t.Fatalf("unexpected halt")
		}
		if v := h.Regs.Read(16, Rv64); v != ^uint64(0) {
			t.Fatalf("div(most_neg, 0) = %#x, want all-ones", v)
		}
	})
}
