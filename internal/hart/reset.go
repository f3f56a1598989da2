package hart

import "encoding/binary"

// BuildResetVector assembles the fixed eight-word reset prologue of spec.md
// §6: it computes a1 as the DTB's load address (reset vector base + 32),
// reads mhartid into a0, then loads the ELF entry point from its own
// trailing data word(s) and jumps to it. The DTB image is appended starting
// at offset 32, where a1 points.
func BuildResetVector(xlen Base, entry uint64, dtb []byte) []byte {
	out := make([]byte, 32+len(dtb))

	putInsn := func(off int, insn uint32) {
		binary.LittleEndian.PutUint32(out[off:], insn)
	}

	putInsn(0x00, 0x00000297) // auipc t0, 0
	putInsn(0x04, 0x02028593) // addi a1, t0, 32
	putInsn(0x08, 0xf1402573) // csrr a0, mhartid

	if xlen == Rv64 {
		putInsn(0x0C, 0x0182b283) // ld t0, 24(t0)
	} else {
		putInsn(0x0C, 0x0182a283) // lw t0, 24(t0)
	}
	putInsn(0x10, 0x00028067) // jr t0
	putInsn(0x14, 0)

	binary.LittleEndian.PutUint32(out[0x18:], uint32(entry))
	binary.LittleEndian.PutUint32(out[0x1C:], uint32(entry>>32))

	copy(out[32:], dtb)
	return out
}
