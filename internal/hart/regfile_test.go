package hart

import "testing"

func TestRegFileX0AlwaysZero(t *testing.T) {
	var r RegFile
	r.Write(0, 0xdeadbeef, Rv64)
	if v := r.Read(0, Rv64); v != 0 {
		t.Fatalf("x0 = %#x, want 0", v)
	}
}

func TestRegFileRoundTrip(t *testing.T) {
	var r RegFile
	r.Write(5, 0x1122334455667788, Rv64)
	if v := r.Read(5, Rv64); v != 0x1122334455667788 {
		t.Fatalf("x5 = %#x, want 0x1122334455667788", v)
	}
}

func TestRegFileMaskedUnderRv32(t *testing.T) {
	var r RegFile
	r.Write(10, 0x1_0000_0001, Rv32)
	if v := r.Read(10, Rv32); v != 1 {
		t.Fatalf("x10 = %#x, want 1 (masked to 32 bits)", v)
	}
}
