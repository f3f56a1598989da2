package hart

// Compressed-instruction field extraction (spec.md §4.7). Quadrant 0/1's
// three-bit register fields index x8-x15; quadrant 2's are full five-bit
// fields.
func cOp(insn uint16) uint16     { return insn & 0x3 }
func cFunct3(insn uint16) uint16 { return (insn >> 13) & 0x7 }

func cRd_(insn uint16) uint32  { return uint32(((insn>>2)&0x7)+8) }
func cRs1_(insn uint16) uint32 { return uint32(((insn>>7)&0x7)+8) }
func cRs2_(insn uint16) uint32 { return uint32(((insn>>2)&0x7)+8) }

func cRd(insn uint16) uint32  { return uint32((insn >> 7) & 0x1f) }
func cRs1(insn uint16) uint32 { return uint32((insn >> 7) & 0x1f) }
func cRs2(insn uint16) uint32 { return uint32((insn >> 2) & 0x1f) }

func cIllegal(insn uint16) (uint32, error) {
	return 0, trap(CauseIllegalInsn, uint64(insn))
}

// expandCompressed rewrites a 16-bit compressed encoding into its
// equivalent 32-bit form, so the rest of the pipeline decodes and executes
// one uniform instruction shape (spec.md §4.7's design rationale). There is
// no F extension in this core, so the compressed floating-point load/store
// forms (C.FLD/C.FSD/C.FLDSP/C.FSDSP) decode to illegal-instruction.
func expandCompressed(insn uint16) (uint32, error) {
	switch cOp(insn) {
	case 0b00:
		return expandQ0(insn, cFunct3(insn))
	case 0b01:
		return expandQ1(insn, cFunct3(insn))
	case 0b10:
		return expandQ2(insn, cFunct3(insn))
	default:
		return cIllegal(insn)
	}
}

func expandQ0(insn uint16, funct3 uint16) (uint32, error) {
	switch funct3 {
	case 0b000: // C.ADDI4SPN
		imm := ((uint32(insn) >> 6) & 0x1) << 2
		imm |= ((uint32(insn) >> 5) & 0x1) << 3
		imm |= ((uint32(insn) >> 11) & 0x3) << 4
		imm |= ((uint32(insn) >> 7) & 0xf) << 6
		if imm == 0 {
			return cIllegal(insn)
		}
		rd := cRd_(insn)
		return (imm << 20) | (2 << 15) | (0b000 << 12) | (rd << 7) | 0b0010011, nil

	case 0b010: // C.LW
		imm := ((uint32(insn) >> 6) & 0x1) << 2
		imm |= ((uint32(insn) >> 10) & 0x7) << 3
		imm |= ((uint32(insn) >> 5) & 0x1) << 6
		rs1 := cRs1_(insn)
		rd := cRd_(insn)
		return (imm << 20) | (rs1 << 15) | (0b010 << 12) | (rd << 7) | 0b0000011, nil

	case 0b011: // C.LD (RV64)
		imm := ((uint32(insn) >> 10) & 0x7) << 3
		imm |= ((uint32(insn) >> 5) & 0x3) << 6
		rs1 := cRs1_(insn)
		rd := cRd_(insn)
		return (imm << 20) | (rs1 << 15) | (0b011 << 12) | (rd << 7) | 0b0000011, nil

	case 0b110: // C.SW
		imm := ((uint32(insn) >> 6) & 0x1) << 2
		imm |= ((uint32(insn) >> 10) & 0x7) << 3
		imm |= ((uint32(insn) >> 5) & 0x1) << 6
		rs1 := cRs1_(insn)
		rs2 := cRs2_(insn)
		immHi := (imm >> 5) & 0x7f
		immLo := imm & 0x1f
		return (immHi << 25) | (rs2 << 20) | (rs1 << 15) | (0b010 << 12) | (immLo << 7) | 0b0100011, nil

	case 0b111: // C.SD (RV64)
		imm := ((uint32(insn) >> 10) & 0x7) << 3
		imm |= ((uint32(insn) >> 5) & 0x3) << 6
		rs1 := cRs1_(insn)
		rs2 := cRs2_(insn)
		immHi := (imm >> 5) & 0x7f
		immLo := imm & 0x1f
		return (immHi << 25) | (rs2 << 20) | (rs1 << 15) | (0b011 << 12) | (immLo << 7) | 0b0100011, nil
	}
	return cIllegal(insn)
}

func expandQ1(insn uint16, funct3 uint16) (uint32, error) {
	switch funct3 {
	case 0b000: // C.NOP / C.ADDI
		rd := cRd(insn)
		imm := uint32(insn>>2) & 0x1f
		if (insn>>12)&1 != 0 {
			imm |= 0xffffffe0
		}
		if rd == 0 {
			return 0b0010011, nil
		}
		return (imm << 20) | (rd << 15) | (0b000 << 12) | (rd << 7) | 0b0010011, nil

	case 0b001: // C.ADDIW (RV64)
		rd := cRd(insn)
		if rd == 0 {
			return cIllegal(insn)
		}
		imm := uint32(insn>>2) & 0x1f
		if (insn>>12)&1 != 0 {
			imm |= 0xffffffe0
		}
		return (imm << 20) | (rd << 15) | (0b000 << 12) | (rd << 7) | 0b0011011, nil

	case 0b010: // C.LI
		rd := cRd(insn)
		imm := uint32(insn>>2) & 0x1f
		if (insn>>12)&1 != 0 {
			imm |= 0xffffffe0
		}
		return (imm << 20) | (0 << 15) | (0b000 << 12) | (rd << 7) | 0b0010011, nil

	case 0b011: // C.ADDI16SP / C.LUI
		rd := cRd(insn)
		if rd == 2 {
			imm := ((uint32(insn) >> 2) & 0x1) << 5
			imm |= ((uint32(insn) >> 3) & 0x3) << 7
			imm |= ((uint32(insn) >> 5) & 0x1) << 6
			imm |= ((uint32(insn) >> 6) & 0x1) << 4
			if (insn>>12)&1 != 0 {
				imm |= 0xfffffe00
			}
			if imm == 0 {
				return cIllegal(insn)
			}
			return (imm << 20) | (2 << 15) | (0b000 << 12) | (2 << 7) | 0b0010011, nil
		}
		if rd == 0 {
			return cIllegal(insn)
		}
		imm := (uint32(insn>>2) & 0x1f) << 12
		if (insn>>12)&1 != 0 {
			imm |= 0xfffe0000
		}
		if imm == 0 {
			return cIllegal(insn)
		}
		return (imm & 0xfffff000) | (rd << 7) | 0b0110111, nil

	case 0b100: // C.SRLI, C.SRAI, C.ANDI, C.SUB, C.XOR, C.OR, C.AND, C.SUBW, C.ADDW
		funct2 := (insn >> 10) & 0x3
		rd := cRs1_(insn)
		switch funct2 {
		case 0b00:
			shamt := uint32(insn>>2) & 0x1f
			if (insn>>12)&1 != 0 {
				shamt |= 0x20
			}
			return (shamt << 20) | (rd << 15) | (0b101 << 12) | (rd << 7) | 0b0010011, nil
		case 0b01:
			shamt := uint32(insn>>2) & 0x1f
			if (insn>>12)&1 != 0 {
				shamt |= 0x20
			}
			return (0b0100000<<25 | shamt<<20) | (rd << 15) | (0b101 << 12) | (rd << 7) | 0b0010011, nil
		case 0b10:
			imm := uint32(insn>>2) & 0x1f
			if (insn>>12)&1 != 0 {
				imm |= 0xffffffe0
			}
			return (imm << 20) | (rd << 15) | (0b111 << 12) | (rd << 7) | 0b0010011, nil
		case 0b11:
			rs2 := cRs2_(insn)
			funct1 := (insn >> 12) & 0x1
			funct2b := (insn >> 5) & 0x3
			if funct1 == 0 {
				switch funct2b {
				case 0b00:
					return (0b0100000 << 25) | (rs2 << 20) | (rd << 15) | (0b000 << 12) | (rd << 7) | 0b0110011, nil
				case 0b01:
					return (rs2 << 20) | (rd << 15) | (0b100 << 12) | (rd << 7) | 0b0110011, nil
				case 0b10:
					return (rs2 << 20) | (rd << 15) | (0b110 << 12) | (rd << 7) | 0b0110011, nil
				case 0b11:
					return (rs2 << 20) | (rd << 15) | (0b111 << 12) | (rd << 7) | 0b0110011, nil
				}
			} else {
				switch funct2b {
				case 0b00:
					return (0b0100000 << 25) | (rs2 << 20) | (rd << 15) | (0b000 << 12) | (rd << 7) | 0b0111011, nil
				case 0b01:
					return (rs2 << 20) | (rd << 15) | (0b000 << 12) | (rd << 7) | 0b0111011, nil
				}
			}
		}
		return cIllegal(insn)

	case 0b101: // C.J
		imm := ((uint32(insn) >> 2) & 0x1) << 5
		imm |= ((uint32(insn) >> 3) & 0x7) << 1
		imm |= ((uint32(insn) >> 6) & 0x1) << 7
		imm |= ((uint32(insn) >> 7) & 0x1) << 6
		imm |= ((uint32(insn) >> 8) & 0x1) << 10
		imm |= ((uint32(insn) >> 9) & 0x3) << 8
		imm |= ((uint32(insn) >> 11) & 0x1) << 4
		if (insn>>12)&1 != 0 {
			imm |= 0xfffff800
		}
		jimm := ((imm >> 12) & 0xff) << 12
		jimm |= ((imm >> 11) & 0x1) << 20
		jimm |= ((imm >> 1) & 0x3ff) << 21
		jimm |= ((imm >> 11) & 0x1) << 31
		return (jimm & 0xfffff000) | (0 << 7) | 0b1101111, nil

	case 0b110: // C.BEQZ
		rs1 := cRs1_(insn)
		imm := ((uint32(insn) >> 2) & 0x1) << 5
		imm |= ((uint32(insn) >> 3) & 0x3) << 1
		imm |= ((uint32(insn) >> 5) & 0x3) << 6
		imm |= ((uint32(insn) >> 10) & 0x3) << 3
		if (insn>>12)&1 != 0 {
			imm |= 0xffffff00
		}
		bimm := ((imm >> 11) & 0x1) << 31
		bimm |= ((imm >> 5) & 0x3f) << 25
		bimm |= ((imm >> 1) & 0xf) << 8
		bimm |= ((imm >> 11) & 0x1) << 7
		return bimm | (0 << 20) | (rs1 << 15) | (0b000 << 12) | 0b1100011, nil

	case 0b111: // C.BNEZ
		rs1 := cRs1_(insn)
		imm := ((uint32(insn) >> 2) & 0x1) << 5
		imm |= ((uint32(insn) >> 3) & 0x3) << 1
		imm |= ((uint32(insn) >> 5) & 0x3) << 6
		imm |= ((uint32(insn) >> 10) & 0x3) << 3
		if (insn>>12)&1 != 0 {
			imm |= 0xffffff00
		}
		bimm := ((imm >> 11) & 0x1) << 31
		bimm |= ((imm >> 5) & 0x3f) << 25
		bimm |= ((imm >> 1) & 0xf) << 8
		bimm |= ((imm >> 11) & 0x1) << 7
		return bimm | (0 << 20) | (rs1 << 15) | (0b001 << 12) | 0b1100011, nil
	}
	return cIllegal(insn)
}

func expandQ2(insn uint16, funct3 uint16) (uint32, error) {
	switch funct3 {
	case 0b000: // C.SLLI
		rd := cRd(insn)
		if rd == 0 {
			return cIllegal(insn)
		}
		shamt := uint32(insn>>2) & 0x1f
		if (insn>>12)&1 != 0 {
			shamt |= 0x20
		}
		return (shamt << 20) | (rd << 15) | (0b001 << 12) | (rd << 7) | 0b0010011, nil

	case 0b010: // C.LWSP
		rd := cRd(insn)
		if rd == 0 {
			return cIllegal(insn)
		}
		imm := ((uint32(insn) >> 2) & 0x3) << 6
		imm |= ((uint32(insn) >> 4) & 0x7) << 2
		imm |= ((uint32(insn) >> 12) & 0x1) << 5
		return (imm << 20) | (2 << 15) | (0b010 << 12) | (rd << 7) | 0b0000011, nil

	case 0b011: // C.LDSP (RV64)
		rd := cRd(insn)
		if rd == 0 {
			return cIllegal(insn)
		}
		imm := ((uint32(insn) >> 2) & 0x7) << 6
		imm |= ((uint32(insn) >> 5) & 0x3) << 3
		imm |= ((uint32(insn) >> 12) & 0x1) << 5
		return (imm << 20) | (2 << 15) | (0b011 << 12) | (rd << 7) | 0b0000011, nil

	case 0b100: // C.JR, C.MV, C.EBREAK, C.JALR, C.ADD
		rs1 := cRs1(insn)
		rs2 := cRs2(insn)
		if (insn>>12)&1 == 0 {
			if rs2 == 0 {
				if rs1 == 0 {
					return cIllegal(insn)
				}
				return (rs1 << 15) | (0b000 << 12) | (0 << 7) | 0b1100111, nil
			}
			return (rs2 << 20) | (0 << 15) | (0b000 << 12) | (rs1 << 7) | 0b0110011, nil
		}
		if rs2 == 0 {
			if rs1 == 0 {
				return 0x00100073, nil // C.EBREAK
			}
			return (rs1 << 15) | (0b000 << 12) | (1 << 7) | 0b1100111, nil
		}
		return (rs2 << 20) | (rs1 << 15) | (0b000 << 12) | (rs1 << 7) | 0b0110011, nil

	case 0b110: // C.SWSP
		rs2 := cRs2(insn)
		imm := ((uint32(insn) >> 7) & 0x3) << 6
		imm |= ((uint32(insn) >> 9) & 0xf) << 2
		immHi := (imm >> 5) & 0x7f
		immLo := imm & 0x1f
		return (immHi << 25) | (rs2 << 20) | (2 << 15) | (0b010 << 12) | (immLo << 7) | 0b0100011, nil

	case 0b111: // C.SDSP (RV64)
		rs2 := cRs2(insn)
		imm := ((uint32(insn) >> 7) & 0x7) << 6
		imm |= ((uint32(insn) >> 10) & 0x7) << 3
		immHi := (imm >> 5) & 0x7f
		immLo := imm & 0x1f
		return (immHi << 25) | (rs2 << 20) | (2 << 15) | (0b011 << 12) | (immLo << 7) | 0b0100011, nil
	}
	return cIllegal(insn)
}
