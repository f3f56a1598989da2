package hart

import "testing"

// TestTLBHitRechecksPermissionsAgainstCurrentMstatus guards the fix for a
// permission-check bypass: the TLB caches a VPN->PPN mapping on a miss, but
// whether that mapping is actually *accessible* depends on mstatus.SUM and
// the current privilege level at the time of access, not just the mapping
// itself. A supervisor access to a user page is legal while SUM=1; the same
// access against the very same cached entry must fault once SUM is cleared,
// rather than silently succeeding from the TLB.
func TestTLBHitRechecksPermissionsAgainstCurrentMstatus(t *testing.T) {
	bus := NewBus()
	bus.Attach(DRAMBase, NewDRAM(DRAMSize))

	var pmp PMP
	pmp.cfg[0] = (PMPTOR << 3) | PMPR | PMPW | PMPX
	pmp.addr[0] = 0xFFFFFFFF

	const (
		tableAddr = DRAMBase + 0x10000
		vaddr     = 0x0040_0000 // vpn1 = 1
	)

	// A root-level superpage leaf, readable and user-accessible, mapping
	// vaddr's 4MiB region onto DRAMBase.
	leafPTE := uint32((DRAMBase>>pageShift)<<10) | PteV | PteR | PteU
	if err := bus.Write32(tableAddr+1*4, leafPTE); err != nil {
		t.Fatalf("seed page table: %v", err)
	}

	satp := (uint64(SatpModeSv32) << 31) | uint64(tableAddr>>pageShift)

	var mmu MMU

	// First access: supervisor mode, SUM=1. Legal, and populates the TLB.
	paddr, err := mmu.Translate(bus, satp, Rv32, accessLoad, vaddr, PrivSupervisor, MstatusSUM, &pmp, 4)
	if err != nil {
		t.Fatalf("first translate (SUM=1): %v", err)
	}
	if paddr != DRAMBase {
		t.Fatalf("paddr = %#x, want %#x", paddr, uint64(DRAMBase))
	}

	// Second access: same VPN, same privilege, but SUM is now clear. A
	// cached mapping must not bypass the recheck.
	_, err = mmu.Translate(bus, satp, Rv32, accessLoad, vaddr, PrivSupervisor, 0, &pmp, 4)
	exc, ok := asException(err)
	if !ok || exc.Cause != CauseLoadPageFault {
		t.Fatalf("second translate (SUM=0) = %v, want a load page fault", err)
	}
}
