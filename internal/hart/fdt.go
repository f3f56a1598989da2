package hart

import (
	"bytes"
	"encoding/binary"
)

// Flattened device-tree structure tokens (spec.md §6).
const (
	fdtMagic       = 0xd00dfeed
	fdtBeginNode   = 0x00000001
	fdtEndNode     = 0x00000002
	fdtProp        = 0x00000003
	fdtNOP         = 0x00000004
	fdtEnd         = 0x00000009
	fdtVersion     = 17
	fdtLastCompVer = 16
)

// fdtBuilder assembles a flattened device tree: a structure block of
// preorder BEGIN_NODE/PROP/END_NODE tokens and a strings block referenced
// by offset, joined under one header at Build time.
type fdtBuilder struct {
	structure bytes.Buffer
	strings   bytes.Buffer
	stringMap map[string]uint32
}

func newFDTBuilder() *fdtBuilder {
	return &fdtBuilder{stringMap: make(map[string]uint32)}
}

func (f *fdtBuilder) putU32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	f.structure.Write(buf[:])
}

func (f *fdtBuilder) addString(s string) uint32 {
	if off, ok := f.stringMap[s]; ok {
		return off
	}
	off := uint32(f.strings.Len())
	f.strings.WriteString(s)
	f.strings.WriteByte(0)
	f.stringMap[s] = off
	return off
}

func (f *fdtBuilder) beginNode(name string) {
	f.putU32(fdtBeginNode)
	f.structure.WriteString(name)
	f.structure.WriteByte(0)
	for f.structure.Len()%4 != 0 {
		f.structure.WriteByte(0)
	}
}

func (f *fdtBuilder) endNode() {
	f.putU32(fdtEndNode)
}

func (f *fdtBuilder) propString(name, value string) {
	f.putU32(fdtProp)
	f.putU32(uint32(len(value) + 1))
	f.putU32(f.addString(name))
	f.structure.WriteString(value)
	f.structure.WriteByte(0)
	for f.structure.Len()%4 != 0 {
		f.structure.WriteByte(0)
	}
}

func (f *fdtBuilder) propStringList(name string, values []string) {
	var buf bytes.Buffer
	for _, v := range values {
		buf.WriteString(v)
		buf.WriteByte(0)
	}
	f.putU32(fdtProp)
	f.putU32(uint32(buf.Len()))
	f.putU32(f.addString(name))
	f.structure.Write(buf.Bytes())
	for f.structure.Len()%4 != 0 {
		f.structure.WriteByte(0)
	}
}

func (f *fdtBuilder) propU32(name string, value uint32) {
	f.putU32(fdtProp)
	f.putU32(4)
	f.putU32(f.addString(name))
	f.putU32(value)
}

func (f *fdtBuilder) propU32Array(name string, values []uint32) {
	f.putU32(fdtProp)
	f.putU32(uint32(len(values) * 4))
	f.putU32(f.addString(name))
	for _, v := range values {
		f.putU32(v)
	}
}

func (f *fdtBuilder) propEmpty(name string) {
	f.putU32(fdtProp)
	f.putU32(0)
	f.putU32(f.addString(name))
}

// build finalizes the blob: header, a memory-reservation block holding only
// its terminating entry (two zero doublewords), the structure block, then
// strings.
func (f *fdtBuilder) build() []byte {
	f.putU32(fdtEnd)

	for f.strings.Len()%4 != 0 {
		f.strings.WriteByte(0)
	}

	const headerSize = 40
	const memRsvmapSize = 16 // one terminating all-zero entry
	memRsvmapOff := uint32(headerSize)
	structOff := memRsvmapOff + memRsvmapSize
	structSize := uint32(f.structure.Len())
	stringsOff := structOff + structSize
	stringsSize := uint32(f.strings.Len())
	totalSize := stringsOff + stringsSize

	var header bytes.Buffer
	hdr := func(v uint32) {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], v)
		header.Write(buf[:])
	}
	hdr(fdtMagic)
	hdr(totalSize)
	hdr(structOff)
	hdr(stringsOff)
	hdr(memRsvmapOff)
	hdr(fdtVersion)
	hdr(fdtLastCompVer)
	hdr(0) // boot_cpuid_phys
	hdr(stringsSize)
	hdr(structSize)

	result := make([]byte, totalSize)
	copy(result[0:], header.Bytes())
	copy(result[structOff:], f.structure.Bytes())
	copy(result[stringsOff:], f.strings.Bytes())
	return result
}

// GenerateFDT builds the device tree described in spec.md §6: one CPU, a
// memory node anchored at DRAMBase, a CLINT node, a PLIC node, a UART node,
// and an HTIF node describing the tohost/fromhost sentinel contract.
func GenerateFDT(xlen Base, ramSize uint64, cmdline string) []byte {
	f := newFDTBuilder()
	isa := "rv32imac"
	mmuType := "riscv,sv32"
	if xlen == Rv64 {
		isa = "rv64imac"
		mmuType = "riscv,sv39"
	}

	f.beginNode("")
	f.propU32("#address-cells", 2)
	f.propU32("#size-cells", 2)
	f.propString("compatible", "riscv-iss")
	f.propString("model", "riscv-iss,generic")

	f.beginNode("chosen")
	f.propString("bootargs", cmdline)
	f.propString("stdout-path", "/soc/serial@10000000")
	f.endNode()

	f.beginNode("cpus")
	f.propU32("#address-cells", 1)
	f.propU32("#size-cells", 0)
	f.propU32("timebase-frequency", 10000000)

	f.beginNode("cpu@0")
	f.propString("device_type", "cpu")
	f.propU32("reg", 0)
	f.propString("status", "okay")
	f.propString("compatible", "riscv")
	f.propString("riscv,isa", isa+"_zicsr")
	f.propString("mmu-type", mmuType)

	f.beginNode("interrupt-controller")
	f.propU32("#interrupt-cells", 1)
	f.propEmpty("interrupt-controller")
	f.propString("compatible", "riscv,cpu-intc")
	f.propU32("phandle", 1)
	f.endNode()

	f.endNode() // cpu@0
	f.endNode() // cpus

	f.beginNode("memory@80000000")
	f.propString("device_type", "memory")
	f.propU32Array("reg", []uint32{
		uint32(DRAMBase >> 32), uint32(DRAMBase),
		uint32(ramSize >> 32), uint32(ramSize),
	})
	f.endNode()

	f.beginNode("soc")
	f.propU32("#address-cells", 2)
	f.propU32("#size-cells", 2)
	f.propStringList("compatible", []string{"simple-bus"})
	f.propEmpty("ranges")

	f.beginNode("clint@2000000")
	f.propStringList("compatible", []string{"sifive,clint0", "riscv,clint0"})
	f.propU32Array("reg", []uint32{
		uint32(CLINTBase >> 32), uint32(CLINTBase),
		uint32(CLINTSize >> 32), uint32(CLINTSize),
	})
	f.propU32Array("interrupts-extended", []uint32{1, 3, 1, 7})
	f.endNode()

	f.beginNode("plic@c000000")
	f.propString("compatible", "sifive,plic-1.0.0")
	f.propU32("#interrupt-cells", 1)
	f.propEmpty("interrupt-controller")
	f.propU32Array("reg", []uint32{
		uint32(PLICBase >> 32), uint32(PLICBase),
		uint32(PLICSize >> 32), uint32(PLICSize),
	})
	f.propU32Array("interrupts-extended", []uint32{1, 9, 1, 11})
	f.propU32("riscv,ndev", 64)
	f.propU32("phandle", 2)
	f.endNode()

	f.beginNode("serial@10000000")
	f.propString("compatible", "ns16550a")
	f.propU32Array("reg", []uint32{
		uint32(UARTBase >> 32), uint32(UARTBase),
		uint32(UARTSize >> 32), uint32(UARTSize),
	})
	f.propU32("clock-frequency", 3686400)
	f.propU32("interrupts", UARTIRQ)
	f.propU32("interrupt-parent", 2)
	f.endNode()

	f.beginNode("htif")
	f.propStringList("compatible", []string{"ucb,htif0"})
	f.endNode()

	f.endNode() // soc
	f.endNode() // root

	return f.build()
}
