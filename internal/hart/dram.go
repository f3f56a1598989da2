package hart

import "encoding/binary"

// DRAM is the flat byte-addressable main memory device of spec.md §4.3: any
// access width is legal.
type DRAM struct {
	data []byte
}

// NewDRAM allocates a zeroed DRAM device of the given size.
func NewDRAM(size uint64) *DRAM {
	return &DRAM{data: make([]byte, size)}
}

func (d *DRAM) Size() uint64 { return uint64(len(d.data)) }

func (d *DRAM) Load(offset uint64, size int) (uint64, error) {
	if offset+uint64(size) > uint64(len(d.data)) {
		return 0, errBadWidth
	}
	switch size {
	case 1:
		return uint64(d.data[offset]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(d.data[offset:])), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(d.data[offset:])), nil
	case 8:
		return binary.LittleEndian.Uint64(d.data[offset:]), nil
	}
	return 0, errBadWidth
}

func (d *DRAM) Store(offset uint64, size int, value uint64) error {
	if offset+uint64(size) > uint64(len(d.data)) {
		return errBadWidth
	}
	switch size {
	case 1:
		d.data[offset] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(d.data[offset:], uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(d.data[offset:], uint32(value))
	case 8:
		binary.LittleEndian.PutUint64(d.data[offset:], value)
	default:
		return errBadWidth
	}
	return nil
}

// Bytes exposes the backing slice for direct ELF segment copies.
func (d *DRAM) Bytes() []byte { return d.data }

var _ Device = (*DRAM)(nil)
