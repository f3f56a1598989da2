package hart

// reservation is the LR/SC reservation set: an address and the exact width
// it was reserved at (spec.md §4.8 requires an exactly matching width, not
// just an overlapping address).
type reservation struct {
	valid bool
	addr  uint64
	size  int
}

func (r *reservation) set(addr uint64, size int) {
	r.valid, r.addr, r.size = true, addr, size
}

func (r *reservation) clear() {
	*r = reservation{}
}

func (r *reservation) matches(addr uint64, size int) bool {
	return r.valid && r.addr == addr && r.size == size
}

// execAMO dispatches AMO/LR/SC at the width funct3 selects, translating the
// address through the hart's MMU/PMP rather than a raw bus access.
func (h *Hart) execAMO(insn uint32) error {
	f3 := funct3(insn)
	f5 := funct7(insn) >> 2

	vaddr := h.Regs.Read(rs1(insn), h.XLEN)
	rs2Val := h.Regs.Read(rs2(insn), h.XLEN)

	switch f3 {
	case 0b010:
		if vaddr&3 != 0 {
			return trap(CauseStoreAddrMisaligned, vaddr)
		}
		return h.execAMOWidth(insn, vaddr, rs2Val, f5, 4)
	case 0b011:
		if h.XLEN == Rv32 {
			return trap(CauseIllegalInsn, uint64(insn))
		}
		if vaddr&7 != 0 {
			return trap(CauseStoreAddrMisaligned, vaddr)
		}
		return h.execAMOWidth(insn, vaddr, rs2Val, f5, 8)
	default:
		return trap(CauseIllegalInsn, uint64(insn))
	}
}

func (h *Hart) execAMOWidth(insn uint32, vaddr, rs2Val uint64, f5 uint32, size int) error {
	rdReg := rd(insn)

	switch f5 {
	case 0b00010: // LR.W/D
		val, err := h.loadWidth(vaddr, size, accessLoad)
		if err != nil {
			return err
		}
		h.Regs.Write(rdReg, val, h.XLEN)
		h.Reservation.set(vaddr, size)
		h.PC += h.lastInsnSize
		return nil

	case 0b00011: // SC.W/D
		if !h.Reservation.matches(vaddr, size) {
			h.Regs.Write(rdReg, 1, h.XLEN)
			h.Reservation.clear()
			h.PC += h.lastInsnSize
			return nil
		}
		if err := h.storeWidth(vaddr, size, rs2Val); err != nil {
			return err
		}
		h.Regs.Write(rdReg, 0, h.XLEN)
		h.Reservation.clear()
		h.PC += h.lastInsnSize
		return nil

	default:
		oldVal, err := h.loadWidth(vaddr, size, accessLoad)
		if err != nil {
			return err
		}
		newVal, err := amoCompute(f5, oldVal, rs2Val, size, insn)
		if err != nil {
			return err
		}
		if err := h.storeWidth(vaddr, size, newVal); err != nil {
			return err
		}
		h.Reservation.clear()
		h.Regs.Write(rdReg, oldVal, h.XLEN)
		h.PC += h.lastInsnSize
		return nil
	}
}

func amoCompute(f5 uint32, oldVal, rs2Val uint64, size int, insn uint32) (uint64, error) {
	if size == 4 {
		old := int32(uint32(oldVal))
		rhs := int32(uint32(rs2Val))
		var val int32
		switch f5 {
		case 0b00001: // AMOSWAP
			val = rhs
		case 0b00000: // AMOADD
			val = old + rhs
		case 0b00100: // AMOXOR
			val = old ^ rhs
		case 0b01100: // AMOAND
			val = old & rhs
		case 0b01000: // AMOOR
			val = old | rhs
		case 0b10000: // AMOMIN
			if old < rhs {
				val = old
			} else {
				val = rhs
			}
		case 0b10100: // AMOMAX
			if old > rhs {
				val = old
			} else {
				val = rhs
			}
		case 0b11000: // AMOMINU
			if uint32(old) < uint32(rhs) {
				val = old
			} else {
				val = rhs
			}
		case 0b11100: // AMOMAXU
			if uint32(old) > uint32(rhs) {
				val = old
			} else {
				val = rhs
			}
		default:
			return 0, trap(CauseIllegalInsn, uint64(insn))
		}
		return uint64(uint32(val)), nil
	}

	old := int64(oldVal)
	rhs := int64(rs2Val)
	var val int64
	switch f5 {
	case 0b00001: // AMOSWAP
		val = rhs
	case 0b00000: // AMOADD
		val = old + rhs
	case 0b00100: // AMOXOR
		val = old ^ rhs
	case 0b01100: // AMOAND
		val = old & rhs
	case 0b01000: // AMOOR
		val = old | rhs
	case 0b10000: // AMOMIN
		if old < rhs {
			val = old
		} else {
			val = rhs
		}
	case 0b10100: // AMOMAX
		if old > rhs {
			val = old
		} else {
			val = rhs
		}
	case 0b11000: // AMOMINU
		if oldVal < rs2Val {
			val = old
		} else {
			val = rhs
		}
	case 0b11100: // AMOMAXU
		if oldVal > rs2Val {
			val = old
		} else {
			val = rhs
		}
	default:
		return 0, trap(CauseIllegalInsn, uint64(insn))
	}
	return uint64(val), nil
}
