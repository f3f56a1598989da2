package hart

// execute is the per-opcode dispatch of spec.md §4.8: one arm per opcode
// tag, each reading operands, computing, and writing back. PC advancement
// for non-branching arms happens in the driver loop; an arm that jumps or
// branches writes PC itself.
func (h *Hart) execute(insn uint32) error {
	switch opcode(insn) {
	case opLui:
		return h.execLui(insn)
	case opAuipc:
		return h.execAuipc(insn)
	case opJal:
		return h.execJal(insn)
	case opJalr:
		return h.execJalr(insn)
	case opBranch:
		return h.execBranch(insn)
	case opLoad:
		return h.execLoad(insn)
	case opStore:
		return h.execStore(insn)
	case opOpImm:
		return h.execOpImm(insn)
	case opOpImm32:
		return h.execOpImm32(insn)
	case opOp:
		return h.execOp(insn)
	case opOp32:
		return h.execOp32(insn)
	case opMiscMem:
		return h.execMiscMem(insn)
	case opSystem:
		return h.execSystem(insn)
	case opAMO:
		return h.execAMO(insn)
	default:
		return trap(CauseIllegalInsn, uint64(insn))
	}
}

func (h *Hart) execLui(insn uint32) error {
	h.Regs.Write(rd(insn), uint64(immU(insn)), h.XLEN)
	return nil
}

func (h *Hart) execAuipc(insn uint32) error {
	h.Regs.Write(rd(insn), uint64(int64(h.PC)+immU(insn)), h.XLEN)
	return nil
}

func (h *Hart) execJal(insn uint32) error {
	target := uint64(int64(h.PC) + immJ(insn))
	h.Regs.Write(rd(insn), h.PC+h.lastInsnSize, h.XLEN)
	h.PC = target
	return nil
}

func (h *Hart) execJalr(insn uint32) error {
	link := h.PC + h.lastInsnSize
	target := uint64(int64(h.Regs.Read(rs1(insn), h.XLEN))+immI(insn)) &^ 1
	h.Regs.Write(rd(insn), link, h.XLEN)
	h.PC = target
	return nil
}

func (h *Hart) execBranch(insn uint32) error {
	r1 := h.Regs.Read(rs1(insn), h.XLEN)
	r2 := h.Regs.Read(rs2(insn), h.XLEN)

	var taken bool
	switch funct3(insn) {
	case 0b000: // BEQ
		taken = r1 == r2
	case 0b001: // BNE
		taken = r1 != r2
	case 0b100: // BLT
		taken = int64(r1) < int64(r2)
	case 0b101: // BGE
		taken = int64(r1) >= int64(r2)
	case 0b110: // BLTU
		taken = r1 < r2
	case 0b111: // BGEU
		taken = r1 >= r2
	default:
		return trap(CauseIllegalInsn, uint64(insn))
	}

	if taken {
		target := uint64(int64(h.PC) + immB(insn))
		if target&1 != 0 {
			return trap(CauseInsnAddrMisaligned, target)
		}
		h.PC = target
	}
	return nil
}

func (h *Hart) execLoad(insn uint32) error {
	vaddr := uint64(int64(h.Regs.Read(rs1(insn), h.XLEN)) + immI(insn))

	var val uint64
	var err error
	switch funct3(insn) {
	case 0b000: // LB
		v, e := h.loadWidth(vaddr, 1, accessLoad)
		val, err = uint64(signExtend(v, 8)), e
	case 0b001: // LH
		v, e := h.loadWidth(vaddr, 2, accessLoad)
		val, err = uint64(signExtend(v, 16)), e
	case 0b010: // LW
		v, e := h.loadWidth(vaddr, 4, accessLoad)
		val, err = uint64(signExtend(v, 32)), e
	case 0b011: // LD
		if h.XLEN == Rv32 {
			return trap(CauseIllegalInsn, uint64(insn))
		}
		val, err = h.loadWidth(vaddr, 8, accessLoad)
	case 0b100: // LBU
		val, err = h.loadWidth(vaddr, 1, accessLoad)
	case 0b101: // LHU
		val, err = h.loadWidth(vaddr, 2, accessLoad)
	case 0b110: // LWU
		if h.XLEN == Rv32 {
			return trap(CauseIllegalInsn, uint64(insn))
		}
		val, err = h.loadWidth(vaddr, 4, accessLoad)
	default:
		return trap(CauseIllegalInsn, uint64(insn))
	}
	if err != nil {
		return err
	}
	h.Regs.Write(rd(insn), val, h.XLEN)
	return nil
}

func (h *Hart) execStore(insn uint32) error {
	vaddr := uint64(int64(h.Regs.Read(rs1(insn), h.XLEN)) + immS(insn))
	val := h.Regs.Read(rs2(insn), h.XLEN)

	var err error
	switch funct3(insn) {
	case 0b000: // SB
		err = h.storeWidth(vaddr, 1, val)
	case 0b001: // SH
		err = h.storeWidth(vaddr, 2, val)
	case 0b010: // SW
		err = h.storeWidth(vaddr, 4, val)
	case 0b011: // SD
		if h.XLEN == Rv32 {
			return trap(CauseIllegalInsn, uint64(insn))
		}
		err = h.storeWidth(vaddr, 8, val)
	default:
		return trap(CauseIllegalInsn, uint64(insn))
	}
	if err != nil {
		return err
	}
	h.Reservation.clear()
	return nil
}

func (h *Hart) execOpImm(insn uint32) error {
	r1 := h.Regs.Read(rs1(insn), h.XLEN)
	imm := immI(insn)
	sh := shamt64(insn)
	if h.XLEN == Rv32 {
		sh &= 0x1f
	}

	var val uint64
	switch funct3(insn) {
	case 0b000: // ADDI
		val = uint64(int64(r1) + imm)
	case 0b001: // SLLI
		val = r1 << sh
	case 0b010: // SLTI
		if int64(r1) < imm {
			val = 1
		}
	case 0b011: // SLTIU
		if r1 < uint64(imm) {
			val = 1
		}
	case 0b100: // XORI
		val = r1 ^ uint64(imm)
	case 0b101: // SRLI/SRAI
		if (insn>>30)&1 == 1 {
			val = uint64(int64(r1) >> sh)
		} else {
			val = r1 >> sh
		}
	case 0b110: // ORI
		val = r1 | uint64(imm)
	case 0b111: // ANDI
		val = r1 & uint64(imm)
	default:
		return trap(CauseIllegalInsn, uint64(insn))
	}
	h.Regs.Write(rd(insn), val, h.XLEN)
	return nil
}

func (h *Hart) execOpImm32(insn uint32) error {
	if h.XLEN == Rv32 {
		return trap(CauseIllegalInsn, uint64(insn))
	}
	r1 := uint32(h.Regs.Read(rs1(insn), h.XLEN))
	imm := int32(immI(insn))
	sh := shamt32(insn)

	var val int32
	switch funct3(insn) {
	case 0b000: // ADDIW
		val = int32(r1) + imm
	case 0b001: // SLLIW
		val = int32(r1 << sh)
	case 0b101: // SRLIW/SRAIW
		if (insn>>30)&1 == 1 {
			val = int32(r1) >> sh
		} else {
			val = int32(r1 >> sh)
		}
	default:
		return trap(CauseIllegalInsn, uint64(insn))
	}
	h.Regs.Write(rd(insn), uint64(int64(val)), h.XLEN)
	return nil
}

func (h *Hart) execOp(insn uint32) error {
	r1 := h.Regs.Read(rs1(insn), h.XLEN)
	r2 := h.Regs.Read(rs2(insn), h.XLEN)
	f7 := funct7(insn)

	if f7 == 0b0000001 {
		return h.execOpM(insn, r1, r2)
	}

	var val uint64
	switch funct3(insn) {
	case 0b000: // ADD/SUB
		if f7 == 0b0100000 {
			val = uint64(int64(r1) - int64(r2))
		} else {
			val = uint64(int64(r1) + int64(r2))
		}
	case 0b001: // SLL
		val = r1 << (r2 & shiftMask(h.XLEN))
	case 0b010: // SLT
		if int64(r1) < int64(r2) {
			val = 1
		}
	case 0b011: // SLTU
		if r1 < r2 {
			val = 1
		}
	case 0b100: // XOR
		val = r1 ^ r2
	case 0b101: // SRL/SRA
		if f7 == 0b0100000 {
			val = uint64(int64(r1) >> (r2 & shiftMask(h.XLEN)))
		} else {
			val = r1 >> (r2 & shiftMask(h.XLEN))
		}
	case 0b110: // OR
		val = r1 | r2
	case 0b111: // AND
		val = r1 & r2
	default:
		return trap(CauseIllegalInsn, uint64(insn))
	}
	h.Regs.Write(rd(insn), val, h.XLEN)
	return nil
}

func shiftMask(xlen Base) uint64 {
	if xlen == Rv32 {
		return 0x1f
	}
	return 0x3f
}

// execOpM implements the M extension's register-register multiply/divide
// (spec.md §4.8): DIV/REM define division-by-zero and overflow results
// without trapping.
func (h *Hart) execOpM(insn uint32, r1, r2 uint64) error {
	var val uint64
	switch funct3(insn) {
	case 0b000: // MUL
		val = uint64(int64(r1) * int64(r2))
	case 0b001: // MULH
		hi, _ := mulh64(int64(r1), int64(r2))
		val = uint64(hi)
	case 0b010: // MULHSU
		hi, _ := mulhsu64(int64(r1), r2)
		val = uint64(hi)
	case 0b011: // MULHU
		hi, _ := mulhu64(r1, r2)
		val = hi
	case 0b100: // DIV
		switch {
		case r2 == 0:
			val = ^uint64(0)
		case r1 == minInt64Bits(h.XLEN) && r2 == ^uint64(0):
			val = r1
		default:
			val = uint64(int64(r1) / int64(r2))
		}
	case 0b101: // DIVU
		if r2 == 0 {
			val = ^uint64(0)
		} else {
			val = r1 / r2
		}
	case 0b110: // REM
		switch {
		case r2 == 0:
			val = r1
		case r1 == minInt64Bits(h.XLEN) && r2 == ^uint64(0):
			val = 0
		default:
			val = uint64(int64(r1) % int64(r2))
		}
	case 0b111: // REMU
		if r2 == 0 {
			val = r1
		} else {
			val = r1 % r2
		}
	default:
		return trap(CauseIllegalInsn, uint64(insn))
	}
	h.Regs.Write(rd(insn), val, h.XLEN)
	return nil
}

// minInt64Bits returns the most-negative representable value at the active
// XLEN, reinterpreted as unsigned, for the DIV/REM overflow special case.
func minInt64Bits(xlen Base) uint64 {
	if xlen == Rv32 {
		return uint64(uint32(1 << 31))
	}
	return uint64(1) << 63
}

// mulhu64 returns the high and low 64 bits of the full 128-bit product of
// two unsigned 64-bit operands, via 32x32 partial products.
func mulhu64(a, b uint64) (uint64, uint64) {
	const mask32 = 0xFFFFFFFF
	a0 := a & mask32
	a1 := a >> 32
	b0 := b & mask32
	b1 := b >> 32

	p0 := a0 * b0
	p1 := a0 * b1
	p2 := a1 * b0
	p3 := a1 * b1

	carry := ((p0 >> 32) + (p1 & mask32) + (p2 & mask32)) >> 32
	hi := p3 + (p1 >> 32) + (p2 >> 32) + carry
	lo := a * b

	return hi, lo
}

// mulh64 returns the high and low 64 bits of the full 128-bit product of
// two signed 64-bit operands, by multiplying magnitudes and negating the
// 128-bit result when the operand signs differ.
func mulh64(a, b int64) (int64, uint64) {
	negResult := (a < 0) != (b < 0)
	ua := uint64(a)
	ub := uint64(b)
	if a < 0 {
		ua = uint64(-a)
	}
	if b < 0 {
		ub = uint64(-b)
	}

	hi, lo := mulhu64(ua, ub)

	if negResult {
		lo = ^lo + 1
		hi = ^hi
		if lo == 0 {
			hi++
		}
	}

	return int64(hi), lo
}

// mulhsu64 returns the high and low 64 bits of the full 128-bit product of
// a signed and an unsigned 64-bit operand.
func mulhsu64(a int64, b uint64) (int64, uint64) {
	negResult := a < 0
	ua := uint64(a)
	if a < 0 {
		ua = uint64(-a)
	}

	hi, lo := mulhu64(ua, b)

	if negResult {
		lo = ^lo + 1
		hi = ^hi
		if lo == 0 {
			hi++
		}
	}

	return int64(hi), lo
}

func (h *Hart) execOp32(insn uint32) error {
	if h.XLEN == Rv32 {
		return trap(CauseIllegalInsn, uint64(insn))
	}
	r1 := uint32(h.Regs.Read(rs1(insn), h.XLEN))
	r2 := uint32(h.Regs.Read(rs2(insn), h.XLEN))
	f7 := funct7(insn)

	if f7 == 0b0000001 {
		return h.execOp32M(insn, r1, r2)
	}

	var val int32
	switch funct3(insn) {
	case 0b000: // ADDW/SUBW
		if f7 == 0b0100000 {
			val = int32(r1) - int32(r2)
		} else {
			val = int32(r1) + int32(r2)
		}
	case 0b001: // SLLW
		val = int32(r1 << (r2 & 0x1f))
	case 0b101: // SRLW/SRAW
		if f7 == 0b0100000 {
			val = int32(r1) >> (r2 & 0x1f)
		} else {
			val = int32(r1 >> (r2 & 0x1f))
		}
	default:
		return trap(CauseIllegalInsn, uint64(insn))
	}
	h.Regs.Write(rd(insn), uint64(int64(val)), h.XLEN)
	return nil
}

func (h *Hart) execOp32M(insn uint32, r1, r2 uint32) error {
	var val int32
	switch funct3(insn) {
	case 0b000: // MULW
		val = int32(r1) * int32(r2)
	case 0b100: // DIVW
		switch {
		case r2 == 0:
			val = -1
		case r1 == uint32(1<<31) && r2 == ^uint32(0):
			val = int32(r1)
		default:
			val = int32(r1) / int32(r2)
		}
	case 0b101: // DIVUW
		if r2 == 0 {
			val = -1
		} else {
			val = int32(r1 / r2)
		}
	case 0b110: // REMW
		switch {
		case r2 == 0:
			val = int32(r1)
		case r1 == uint32(1<<31) && r2 == ^uint32(0):
			val = 0
		default:
			val = int32(r1) % int32(r2)
		}
	case 0b111: // REMUW
		if r2 == 0 {
			val = int32(r1)
		} else {
			val = int32(r1 % r2)
		}
	default:
		return trap(CauseIllegalInsn, uint64(insn))
	}
	h.Regs.Write(rd(insn), uint64(int64(val)), h.XLEN)
	return nil
}

func (h *Hart) execMiscMem(insn uint32) error {
	switch funct3(insn) {
	case 0b000, 0b001: // FENCE, FENCE.I: no-op, single hart and no icache.
		return nil
	default:
		return trap(CauseIllegalInsn, uint64(insn))
	}
}

// execSystem handles ECALL/EBREAK/MRET/SRET/WFI/SFENCE.VMA and the CSR
// instruction family (spec.md §4.8).
func (h *Hart) execSystem(insn uint32) error {
	f3 := funct3(insn)
	if f3 == 0 {
		switch insn {
		case 0x00000073: // ECALL
			return h.handleEcall()
		case 0x00100073: // EBREAK
			return trap(CauseBreakpoint, h.PC)
		case 0x30200073: // MRET
			return h.handleMret()
		case 0x10200073: // SRET
			return h.handleSret()
		case 0x10500073: // WFI
			h.State = WaitForInterrupt
			return nil
		default:
			if funct7(insn) == 0b0001001 { // SFENCE.VMA
				if h.Priv == PrivSupervisor && h.CSR.raw(CSRMstatus)&MstatusTVM != 0 {
					return trap(CauseIllegalInsn, uint64(insn))
				}
				h.MMU.Flush()
				return nil
			}
			return trap(CauseIllegalInsn, uint64(insn))
		}
	}
	return h.execCSR(insn, f3)
}

func (h *Hart) execCSR(insn uint32, f3 uint32) error {
	csrNum := uint16(insn >> 20)
	rdReg := rd(insn)
	rs1Reg := rs1(insn)

	isImmForm := f3 >= 5
	var srcVal uint64
	if isImmForm {
		srcVal = uint64(rs1Reg)
	} else {
		srcVal = h.Regs.Read(rs1Reg, h.XLEN)
	}

	// CSRRW never performs the read side effect when rd = x0 (spec.md
	// §4.8); every other form always reads first since the result always
	// feeds rd.
	var old uint64
	var err error
	if f3&3 != 1 || rdReg != 0 {
		old, err = h.csrRead(csrNum)
		if err != nil {
			return err
		}
	}

	switch f3 & 3 {
	case 1: // CSRRW(I)
		if err := h.csrWrite(csrNum, srcVal); err != nil {
			return err
		}
	case 2: // CSRRS(I)
		if srcVal != 0 {
			if err := h.csrWrite(csrNum, old|srcVal); err != nil {
				return err
			}
		}
	case 3: // CSRRC(I)
		if srcVal != 0 {
			if err := h.csrWrite(csrNum, old&^srcVal); err != nil {
				return err
			}
		}
	default:
		return trap(CauseIllegalInsn, uint64(insn))
	}
	h.Regs.Write(rdReg, old, h.XLEN)
	return nil
}

// csrRead/csrWrite route the pmpcfg/pmpaddr CSR ranges to the PMP (which
// CSRFile itself treats as a no-op pass-through) and flush the TLB on a
// satp write, per spec.md §4.6.2.
func (h *Hart) csrRead(num uint16) (uint64, error) {
	if isPMPCSR(num) {
		if !csrNumDefined(num) || h.Priv < uint8((num>>8)&3) {
			return 0, trap(CauseIllegalInsn, uint64(num))
		}
		return h.PMP.ReadCSR(num, h.XLEN), nil
	}
	return h.CSR.Read(num, h.Priv)
}

func (h *Hart) csrWrite(num uint16, val uint64) error {
	if isPMPCSR(num) {
		if !csrNumDefined(num) || h.Priv < uint8((num>>8)&3) {
			return trap(CauseIllegalInsn, uint64(num))
		}
		h.PMP.WriteCSR(num, val, h.XLEN)
		return nil
	}
	if err := h.CSR.Write(num, val, h.Priv); err != nil {
		return err
	}
	if num == CSRSatp {
		h.MMU.Flush()
	}
	return nil
}

func isPMPCSR(num uint16) bool {
	return (num >= CSRPmpcfg0 && num < CSRPmpcfg0+16) ||
		(num >= CSRPmpaddr0 && num < CSRPmpaddr0+uint16(NumPMPEntries))
}

func (h *Hart) handleEcall() error {
	switch h.Priv {
	case PrivUser:
		return trap(CauseEcallFromU, 0)
	case PrivSupervisor:
		logSBICall(h)
		return trap(CauseEcallFromS, 0)
	default:
		return trap(CauseEcallFromM, 0)
	}
}

func (h *Hart) handleMret() error {
	if h.Priv < PrivMachine {
		return trap(CauseIllegalInsn, 0)
	}
	mstatus := h.CSR.raw(CSRMstatus)
	mpp := uint8((mstatus >> MstatusMPPShift) & 3)
	h.Priv = mpp

	if mstatus&MstatusMPIE != 0 {
		mstatus |= MstatusMIE
	} else {
		mstatus &^= MstatusMIE
	}
	mstatus |= MstatusMPIE
	mstatus &^= MstatusMPP // MPP reverts to least-privileged (User)
	h.CSR.rawSet(CSRMstatus, mstatus)

	h.PC = h.CSR.raw(CSRMepc)
	return nil
}

func (h *Hart) handleSret() error {
	if h.Priv < PrivSupervisor {
		return trap(CauseIllegalInsn, 0)
	}
	mstatus := h.CSR.raw(CSRMstatus)
	if h.Priv == PrivSupervisor && mstatus&MstatusTSR != 0 {
		return trap(CauseIllegalInsn, 0)
	}

	spp := (mstatus >> MstatusSPPShift) & 1
	if spp == 1 {
		h.Priv = PrivSupervisor
	} else {
		h.Priv = PrivUser
	}

	if mstatus&MstatusSPIE != 0 {
		mstatus |= MstatusSIE
	} else {
		mstatus &^= MstatusSIE
	}
	mstatus |= MstatusSPIE
	mstatus &^= MstatusSPP
	h.CSR.rawSet(CSRMstatus, mstatus)

	h.PC = h.CSR.raw(CSRSepc)
	return nil
}
