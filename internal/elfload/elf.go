// Package elfload loads a RISC-V ELF binary into the collaborator contract
// spec.md §6 describes: base ISA, entry point, and the loadable segments a
// bus constructor copies into DRAM. It is built on the standard library's
// debug/elf rather than a third-party dependency: ELF parsing sits outside
// the simulator's own domain (DESIGN.md explains why no pack dependency
// covers it), and debug/elf is the complete, load-bearing answer to it.
package elfload

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"

	"github.com/openhart/riscv-iss/internal/hart"
)

// Segment is one PT_LOAD program header: a block of file bytes to place at
// a physical address, zero-padded out to MemSize.
type Segment struct {
	PhysAddr uint64
	FileSize uint64
	MemSize  uint64
	Data     []byte
}

// Image is everything the bus constructor needs to stand up DRAM and patch
// the reset vector (spec.md §6's ELF loader collaborator).
type Image struct {
	Base     hart.Base
	Entry    uint64
	Segments []Segment
	ToHost   uint64 // physical address of the `tohost` symbol, 0 if absent
}

// Load parses r as an ELF file and extracts the loadable segments, entry
// point, and base ISA. Only EM_RISCV binaries are accepted; non-PT_LOAD
// segments are ignored per spec.md §6.
func Load(r io.ReaderAt) (*Image, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}
	defer f.Close()

	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("unsupported ELF machine %d (want RISC-V)", f.Machine)
	}

	var base hart.Base
	switch f.Class {
	case elf.ELFCLASS32:
		base = hart.Rv32
	case elf.ELFCLASS64:
		base = hart.Rv64
	default:
		return nil, fmt.Errorf("unsupported ELF class %v", f.Class)
	}
	if f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("unsupported ELF data encoding %v (want little-endian)", f.Data)
	}

	var segments []Segment
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}
		data := make([]byte, prog.Filesz)
		if prog.Filesz > 0 {
			if _, err := prog.ReadAt(data, 0); err != nil {
				return nil, fmt.Errorf("read segment at file offset %#x: %w", prog.Off, err)
			}
		}
		segments = append(segments, Segment{
			PhysAddr: prog.Paddr,
			FileSize: prog.Filesz,
			MemSize:  prog.Memsz,
			Data:     data,
		})
	}
	if len(segments) == 0 {
		return nil, errors.New("elf: no loadable segments")
	}

	img := &Image{Base: base, Entry: f.Entry, Segments: segments}

	if syms, err := f.Symbols(); err == nil {
		for _, sym := range syms {
			if sym.Name == "tohost" {
				img.ToHost = sym.Value
				break
			}
		}
	}

	return img, nil
}
