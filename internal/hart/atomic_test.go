package hart

import "testing"

// TestLoadReservedStoreConditionalSucceeds is concrete scenario 5 of
// spec.md §8: an SC to the exact address/width most recently reserved by
// an LR succeeds and clears the reservation.
func TestLoadReservedStoreConditionalSucceeds(t *testing.T) {
	h := newTestHart(Rv64)
	dataAddr := uint64(DRAMBase + 0x1000)
	if err := h.Bus.Write32(dataAddr, 0x11223344); err != nil {
		t.Fatalf("seed memory: %v", err)
	}
	h.Regs.Write(10, dataAddr, Rv64) // a0 = data address

	code := []uint32{
		0x100525af, // lr.w a1, (a0)
		0x18b5262f, // sc.w a2, a1, (a0)
	}
	loadCode(h, DRAMBase, code)

	if !h.Step() { // lr.w
		t.Fatalf("unexpected halt")
	}
	if v := h.Regs.Read(11, Rv64); v != 0x11223344 {
		t.Fatalf("a1 after lr.w = %#x, want 0x11223344", v)
	}
	if !h.Reservation.matches(dataAddr, 4) {
		t.Fatalf("reservation not set after lr.w")
	}

	if !h.Step() { // sc.w
		t.Fatalf("unexpected halt")
	}
	if v := h.Regs.Read(12, Rv64); v != 0 {
		t.Fatalf("a2 after sc.w = %d, want 0 (success)", v)
	}
	if h.Reservation.valid {
		t.Fatalf("reservation still valid after successful sc.w")
	}
}

// TestStoreBetweenLrAndScInvalidatesReservation covers the failure half of
// scenario 5: any store that lands between the LR and the SC clears the
// reservation, so the SC reports failure (rd=1) and leaves memory alone.
func TestStoreBetweenLrAndScInvalidatesReservation(t *testing.T) {
	h := newTestHart(Rv64)
	dataAddr := uint64(DRAMBase + 0x1000)
	if err := h.Bus.Write32(dataAddr, 0x11223344); err != nil {
		t.Fatalf("seed memory: %v", err)
	}
	h.Regs.Write(10, dataAddr, Rv64) // a0 = data address
	h.Regs.Write(13, 0x55, Rv64)     // a3 = value for the intervening store

	code := []uint32{
		0x100525af, // lr.w a1, (a0)
		0x00d52023, // sw a3, 0(a0)
		0x18b5262f, // sc.w a2, a1, (a0)
	}
	loadCode(h, DRAMBase, code)

	if !h.Step() { // lr.w
		t.Fatalf("unexpected halt")
	}
	if !h.Step() { // sw, clears the reservation
		t.Fatalf("unexpected halt")
	}
	if h.Reservation.valid {
		t.Fatalf("reservation still valid after intervening store")
	}

	if !h.Step() { // sc.w
		t.Fatalf("unexpected halt")
	}
	if v := h.Regs.Read(12, Rv64); v != 1 {
		t.Fatalf("a2 after failed sc.w = %d, want 1 (failure)", v)
	}
	if v, err := h.Bus.Read32(dataAddr); err != nil || v != 0x55 {
		t.Fatalf("memory after failed sc.w = %#x, err=%v, want 0x55 unchanged by sc", v, err)
	}
}
