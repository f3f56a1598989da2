package hart

import "encoding/binary"

// MROM is the reset-vector/DTB mask ROM of spec.md §3: any load is legal,
// every store faults.
type MROM struct {
	data []byte
}

// NewMROM allocates a zeroed MROM of the given size (≤ 64 KiB per spec.md).
func NewMROM(size uint64) *MROM {
	return &MROM{data: make([]byte, size)}
}

func (m *MROM) Size() uint64 { return uint64(len(m.data)) }

func (m *MROM) Load(offset uint64, size int) (uint64, error) {
	if offset+uint64(size) > uint64(len(m.data)) {
		return 0, errBadWidth
	}
	switch size {
	case 1:
		return uint64(m.data[offset]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(m.data[offset:])), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(m.data[offset:])), nil
	case 8:
		return binary.LittleEndian.Uint64(m.data[offset:]), nil
	}
	return 0, errBadWidth
}

func (m *MROM) Store(offset uint64, size int, value uint64) error {
	return errBadWidth
}

// WriteInit patches the ROM's backing image before the hart starts running
// (the reset-vector prologue and the flattened device tree); it bypasses
// the Store fault since it models mask-ROM manufacture, not a runtime
// write.
func (m *MROM) WriteInit(offset uint64, data []byte) {
	copy(m.data[offset:], data)
}

var _ Device = (*MROM)(nil)
