package hart

import (
	"errors"
	"fmt"
)

// errUnmapped marks an address owned by no device; errBadWidth marks a
// device's own rejection of an access it owns (an unsupported width, or a
// store to a read-only region). Bus.Load/Store return both unwrapped —
// callers classify them into the page-fault or access-fault cause
// appropriate to their own access direction (spec.md §4.3).
var errUnmapped = errors.New("bus: no device at address")
var errBadWidth = errors.New("bus: device rejected access")

// Device is a memory-mapped peripheral (spec.md §4.3). Every load/store
// decides its own access-size legality; offsets are relative to the
// device's own base.
type Device interface {
	Load(offset uint64, size int) (uint64, error)
	Store(offset uint64, size int, value uint64) error
	Size() uint64
}

type mapping struct {
	base uint64
	size uint64
	dev  Device
}

// Bus is the address-decoded dispatcher of spec.md §4.3. Byte order on the
// bus is little-endian throughout.
type Bus struct {
	maps []mapping
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Attach maps dev at the given base address.
func (b *Bus) Attach(base uint64, dev Device) {
	b.maps = append(b.maps, mapping{base: base, size: dev.Size(), dev: dev})
}

func (b *Bus) find(addr uint64) (Device, uint64, bool) {
	for _, m := range b.maps {
		if addr >= m.base && addr < m.base+m.size {
			return m.dev, addr - m.base, true
		}
	}
	return nil, 0, false
}

// Load reads size bytes (1/2/4/8) at addr. An address owned by no device
// returns errUnmapped; a device may itself reject an unsupported access
// width with its own access-fault-class error (spec.md §4.3).
func (b *Bus) Load(addr uint64, size int) (uint64, error) {
	dev, off, ok := b.find(addr)
	if !ok {
		return 0, errUnmapped
	}
	return dev.Load(off, size)
}

// Store writes size bytes (1/2/4/8) to addr.
func (b *Bus) Store(addr uint64, size int, value uint64) error {
	dev, off, ok := b.find(addr)
	if !ok {
		return errUnmapped
	}
	return dev.Store(off, size, value)
}

// classifyBusError turns a raw Bus.Load/Store error into the trap class
// spec.md §4.3 calls for: an unmapped address is a page fault, a device's
// own width rejection is an access fault, both in the access's own
// direction. Anything else is already an *Exception and passes through.
func classifyBusError(err error, intent Access, vaddr uint64) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errUnmapped):
		return pageFault(intent, vaddr)
	case errors.Is(err, errBadWidth):
		return accessFault(intent, vaddr)
	default:
		return err
	}
}

func (b *Bus) Read8(addr uint64) (uint8, error) {
	v, err := b.Load(addr, 1)
	return uint8(v), err
}

func (b *Bus) Read16(addr uint64) (uint16, error) {
	v, err := b.Load(addr, 2)
	return uint16(v), err
}

func (b *Bus) Read32(addr uint64) (uint32, error) {
	v, err := b.Load(addr, 4)
	return uint32(v), err
}

func (b *Bus) Read64(addr uint64) (uint64, error) {
	return b.Load(addr, 8)
}

func (b *Bus) Write8(addr uint64, v uint8) error   { return b.Store(addr, 1, uint64(v)) }
func (b *Bus) Write16(addr uint64, v uint16) error { return b.Store(addr, 2, uint64(v)) }
func (b *Bus) Write32(addr uint64, v uint32) error { return b.Store(addr, 4, uint64(v)) }
func (b *Bus) Write64(addr uint64, v uint64) error { return b.Store(addr, 8, v) }

// LoadBytes writes a block of bytes starting at addr, one byte-store per
// byte, so it goes through the same device-decode path as architectural
// stores. NewMachine does not use it: it copies ELF segments straight into
// DRAM's backing slice.
func (b *Bus) LoadBytes(addr uint64, data []byte) error {
	for i, bb := range data {
		if err := b.Write8(addr+uint64(i), bb); err != nil {
			return fmt.Errorf("load bytes at 0x%x+%d: %w", addr, i, err)
		}
	}
	return nil
}

// Fetch reads the first 16 bits at addr to classify compressed vs 32-bit
// form, then reads the remaining 16 bits only if needed (spec.md §4.7).
// translate is called once per half-fetched word so an independent
// mid-instruction page fault on the upper half is reported correctly.
func Fetch(bus *Bus, translate func(vaddr uint64) (uint64, error), vaddr uint64) (uint32, int, error) {
	paddr, err := translate(vaddr)
	if err != nil {
		return 0, 0, err
	}
	lo, err := bus.Read16(paddr)
	if err != nil {
		return 0, 0, classifyBusError(err, accessFetch, vaddr)
	}
	if lo&0x3 != 0x3 {
		return uint32(lo), 2, nil
	}

	paddr2, err := translate(vaddr + 2)
	if err != nil {
		return 0, 0, err
	}
	hi, err := bus.Read16(paddr2)
	if err != nil {
		return 0, 0, classifyBusError(err, accessFetch, vaddr+2)
	}
	return uint32(lo) | uint32(hi)<<16, 4, nil
}
