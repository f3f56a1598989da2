package hart

import "testing"

// TestPageFaultDelegatesToSupervisor is concrete scenario 3 of spec.md §8: a
// load through an Sv32 walk that lands on an invalid PTE, with medeleg bit 13
// set, traps into S-mode rather than M-mode and carries the faulting address
// in stval.
func TestPageFaultDelegatesToSupervisor(t *testing.T) {
	h := newTestHart(Rv32)

	// One full-permission PMP entry covering all of memory, so the walk's
	// own fault (not a PMP denial) is what the test observes.
	h.PMP.cfg[0] = (PMPTOR << 3) | PMPR | PMPW | PMPX
	h.PMP.addr[0] = 0xFFFFFFFF

	const (
		tableAddr = DRAMBase + 0x10000
		codeVA    = 0x0040_0000 // vpn1 = 1
		codePhys  = DRAMBase
		dataVA    = 0x0080_0000 // vpn1 = 2, left unmapped
	)

	// Root-level superpage leaf mapping codeVA's 4MiB region to codePhys,
	// valid and executable but not user-accessible.
	leafPTE := uint32((codePhys>>pageShift)<<10) | PteV | PteR | PteW | PteX
	if err := h.Bus.Write32(tableAddr+1*4, leafPTE); err != nil {
		t.Fatalf("seed page table: %v", err)
	}
	// Index 2 (covering dataVA) is left zeroed: PteV==0, an invalid PTE.

	h.CSR.rawSet(CSRSatp, (uint64(SatpModeSv32)<<31)|uint64(tableAddr>>pageShift))
	h.CSR.rawSet(CSRMedeleg, 1<<CauseLoadPageFault)
	h.CSR.rawSet(CSRStvec, 0x8000_2000)
	h.Priv = PrivSupervisor
	h.PC = codeVA
	h.Regs.Write(10, dataVA, Rv32) // a0 = unmapped data address

	if err := h.Bus.Write32(codePhys, 0x00052583); err != nil { // lw a1, 0(a0)
		t.Fatalf("seed instruction: %v", err)
	}

	if !h.Step() {
		t.Fatalf("unexpected halt")
	}

	if h.Priv != PrivSupervisor {
		t.Fatalf("priv = %d, want PrivSupervisor", h.Priv)
	}
	if v := h.CSR.raw(CSRScause); v != CauseLoadPageFault {
		t.Fatalf("scause = %d, want %d", v, CauseLoadPageFault)
	}
	if v := h.CSR.raw(CSRStval); v != dataVA {
		t.Fatalf("stval = %#x, want %#x", v, uint64(dataVA))
	}
	if v := h.CSR.raw(CSRSepc); v != codeVA {
		t.Fatalf("sepc = %#x, want %#x", v, uint64(codeVA))
	}
	if h.PC != 0x8000_2000 {
		t.Fatalf("PC = %#x, want stvec 0x80002000", h.PC)
	}
}

// TestTimerInterruptRedirectsToMtvec is concrete scenario 4 of spec.md §8:
// once mtime reaches mtimecmp, with MTIE and mstatus.MIE both set, the
// driver redirects to mtvec instead of retiring the next instruction, saves
// the previous MIE into MPIE, and clears MIE.
func TestTimerInterruptRedirectsToMtvec(t *testing.T) {
	h := newTestHart(Rv64)
	h.CLINT.mtimecmp = 5
	h.CSR.rawSet(CSRMie, MipMTIP)
	h.CSR.rawSet(CSRMstatus, MstatusMIE)
	h.CSR.rawSet(CSRMtvec, 0x8000_4000)

	nops := make([]uint32, 20)
	for i := range nops {
		nops[i] = 0x00000013 // addi x0, x0, 0
	}
	loadCode(h, DRAMBase, nops)

	delivered := false
	for i := 0; i < len(nops); i++ {
		if !h.Step() {
			t.Fatalf("unexpected halt")
		}
		if h.CSR.raw(CSRMcause) == CauseMTimerInt {
			delivered = true
			break
		}
	}
	if !delivered {
		t.Fatalf("timer interrupt never delivered")
	}

	if h.PC != 0x8000_4000 {
		t.Fatalf("PC = %#x, want mtvec 0x80004000", h.PC)
	}
	mstatus := h.CSR.raw(CSRMstatus)
	if mstatus&MstatusMIE != 0 {
		t.Fatalf("mstatus.MIE still set after interrupt delivery")
	}
	if mstatus&MstatusMPIE == 0 {
		t.Fatalf("mstatus.MPIE not set from the prior MIE")
	}
}

// TestFetchTriggerRaisesBreakpoint guards Step's fetch path against an
// instruction-address debug trigger: programming tdata1/tdata2 for a type-2
// fetch trigger at the hart's current PC must raise a breakpoint exception
// before the instruction there is ever fetched or executed, the same way
// loadWidth/storeWidth already check triggerMatch ahead of a load or store.
func TestFetchTriggerRaisesBreakpoint(t *testing.T) {
	h := newTestHart(Rv64)

	// addi a0, x0, 1 -- must never retire if the trigger fires first.
	loadCode(h, DRAMBase, []uint32{0x00100513})

	const triggerFetch = 1 << 2
	if err := h.CSR.Write(CSRTselect, 0, PrivMachine); err != nil {
		t.Fatalf("select trigger 0: %v", err)
	}
	if err := h.CSR.Write(CSRTdata2, DRAMBase, PrivMachine); err != nil {
		t.Fatalf("write tdata2: %v", err)
	}
	if err := h.CSR.Write(CSRTdata1, (uint64(2)<<60)|triggerFetch, PrivMachine); err != nil {
		t.Fatalf("write tdata1: %v", err)
	}

	if !h.Step() {
		t.Fatalf("unexpected halt")
	}

	if v := h.CSR.raw(CSRMcause); v != CauseBreakpoint {
		t.Fatalf("mcause = %d, want CauseBreakpoint", v)
	}
	if v := h.Regs.Read(10, Rv64); v != 0 {
		t.Fatalf("a0 = %d, want 0: the trapped instruction must not have executed", v)
	}
}
