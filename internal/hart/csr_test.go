package hart

import "testing"

// TestMstatusWriteMaskBounds is a universal invariant of spec.md §4.2: a
// write to mstatus only ever changes the bits mstatusWritableMask names,
// leaving read-only bits like MPP's reserved neighbors or a previously-set
// SD bit untouched by fields the mask doesn't cover.
func TestMstatusWriteMaskBounds(t *testing.T) {
	c := NewCSRFile(Rv64)

	if err := c.Write(CSRMstatus, ^uint64(0), PrivMachine); err != nil {
		t.Fatalf("write mstatus: %v", err)
	}
	got, err := c.Read(CSRMstatus, PrivMachine)
	if err != nil {
		t.Fatalf("read mstatus: %v", err)
	}
	if got&^mstatusWritableMask&^MstatusSD != 0 {
		t.Fatalf("mstatus = %#x, bits outside the writable mask (and SD) were set", got)
	}
	if got&mstatusWritableMask != mstatusWritableMask {
		t.Fatalf("mstatus = %#x, every writable bit should have been set by an all-ones write", got)
	}
}

// TestSstatusWriteIsRestrictedView is the spec.md §4.2 invariant that the
// sstatus alias only ever touches the S-mode-visible subset of mstatus: a
// write of all-ones through sstatus must not set MIE, a machine-only bit.
func TestSstatusWriteIsRestrictedView(t *testing.T) {
	c := NewCSRFile(Rv64)
	if err := c.Write(CSRSstatus, ^uint64(0), PrivSupervisor); err != nil {
		t.Fatalf("write sstatus: %v", err)
	}
	if c.raw(CSRMstatus)&MstatusMIE != 0 {
		t.Fatalf("sstatus write leaked into mstatus.MIE")
	}
	if c.raw(CSRMstatus)&MstatusSIE == 0 {
		t.Fatalf("sstatus write did not set mstatus.SIE")
	}
}

// TestCSRWriteRejectsLowerPrivilege is the spec.md §4.2 invariant that a
// CSR whose address encodes a minimum privilege (bits 9:8) rejects access
// from a lower current privilege with an illegal-instruction trap.
func TestCSRWriteRejectsLowerPrivilege(t *testing.T) {
	c := NewCSRFile(Rv64)
	err := c.Write(CSRMstatus, 0, PrivUser)
	exc, ok := asException(err)
	if !ok || exc.Cause != CauseIllegalInsn {
		t.Fatalf("write to mstatus from user mode = %v, want illegal-instruction", err)
	}
}

// TestBareModeTranslateIsIdentity is the spec.md §4.6 invariant that satp
// MODE=Bare returns the virtual address unchanged, with no page-table walk.
func TestBareModeTranslateIsIdentity(t *testing.T) {
	var mmu MMU
	var pmp PMP
	pmp.cfg[0] = (PMPTOR << 3) | PMPR | PMPW | PMPX
	pmp.addr[0] = 0xFFFFFFFF

	bus := NewBus()
	paddr, err := mmu.Translate(bus, 0 /* satp Bare */, Rv64, accessLoad, 0x1234_5678, PrivSupervisor, 0, &pmp, 4)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if paddr != 0x1234_5678 {
		t.Fatalf("paddr = %#x, want identity 0x12345678", paddr)
	}
}
