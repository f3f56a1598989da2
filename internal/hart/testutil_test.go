package hart

import "bytes"

// newTestHart builds a minimal machine for running hand-assembled code
// directly out of DRAM, the same bare-bones setup style as the teacher's
// own TestBasicExecution/TestALUOperations (rv64/emulator_test.go): no
// loader, no DTB, PC parked wherever the test wants to start.
func newTestHart(xlen Base) *Hart {
	bus := NewBus()
	dram := NewDRAM(DRAMSize)
	clint := NewCLINT()
	plic := NewPLIC()
	uart := NewUART(&bytes.Buffer{}, bytes.NewReader(nil))

	bus.Attach(DRAMBase, dram)
	bus.Attach(CLINTBase, clint)
	bus.Attach(PLICBase, plic)
	bus.Attach(UARTBase, uart)

	h := NewHart(xlen, bus, clint, plic, uart)
	h.PC = DRAMBase
	return h
}

// loadCode writes insns as little-endian 32-bit words starting at addr.
func loadCode(h *Hart, addr uint64, insns []uint32) {
	for i, insn := range insns {
		if err := h.Bus.Write32(addr+uint64(i*4), insn); err != nil {
			panic(err)
		}
	}
}
