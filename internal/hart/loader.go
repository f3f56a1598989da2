package hart

import "io"

// LoadSegment is the collaborator contract of spec.md §6: one loadable ELF
// segment's physical address and bytes, trimmed to its file size (memory
// beyond that is left zeroed, matching .bss).
type LoadSegment struct {
	PhysAddr uint64
	Data     []byte
	MemSize  uint64
}

// Machine wires a hart to its bus and standard device set: MROM, CLINT,
// PLIC, UART, DRAM at the fixed memory map of spec.md §3.
type Machine struct {
	Hart  *Hart
	Bus   *Bus
	DRAM  *DRAM
	MROM  *MROM
	CLINT *CLINT
	PLIC  *PLIC
	UART  *UART
}

// NewMachine builds the bus, attaches the standard device set, copies
// segments into DRAM, patches the MROM reset vector (prologue + DTB at
// entry), and returns a hart parked at the MROM base ready to run.
func NewMachine(xlen Base, segments []LoadSegment, entry uint64, toHost uint64, uartOut io.Writer, uartIn io.Reader) *Machine {
	bus := NewBus()
	dram := NewDRAM(DRAMSize)
	mrom := NewMROM(MROMSize)
	clint := NewCLINT()
	plic := NewPLIC()
	uart := NewUART(uartOut, uartIn)

	bus.Attach(MROMBase, mrom)
	bus.Attach(CLINTBase, clint)
	bus.Attach(PLICBase, plic)
	bus.Attach(UARTBase, uart)
	bus.Attach(DRAMBase, dram)

	for _, seg := range segments {
		if seg.PhysAddr < DRAMBase || seg.PhysAddr+seg.MemSize > DRAMBase+DRAMSize {
			continue // outside modeled DRAM: not a loadable target for this platform
		}
		off := seg.PhysAddr - DRAMBase
		copy(dram.Bytes()[off:], seg.Data)
	}

	dtb := GenerateFDT(xlen, DRAMSize, "")
	mrom.WriteInit(0, BuildResetVector(xlen, entry, dtb))

	h := NewHart(xlen, bus, clint, plic, uart)
	if toHost >= DRAMBase {
		h.SetToHost(toHost)
	}

	return &Machine{Hart: h, Bus: bus, DRAM: dram, MROM: mrom, CLINT: clint, PLIC: plic, UART: uart}
}
