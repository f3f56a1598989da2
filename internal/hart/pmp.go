package hart

// PMP modes (bits 3:4 of a pmpcfg byte).
const (
	PMPOff   = 0
	PMPTOR   = 1
	PMPNA4   = 2
	PMPNAPOT = 3
)

// PMP bit flags within a pmpcfg byte.
const (
	PMPR = 1 << 0
	PMPW = 1 << 1
	PMPX = 1 << 2
	PMPL = 1 << 7
)

// PMP implements physical memory protection (spec.md §4.6.1): up to 16
// ordered range entries, each a 4-bit mode plus R/W/X permission bits.
type PMP struct {
	cfg  [NumPMPEntries]uint8
	addr [NumPMPEntries]uint64
}

// ReadCSR reads a pmpcfgN/pmpaddrN register. RV64 packs 8 cfg bytes per
// pmpcfgN register (only even N defined); RV32 packs 4.
func (p *PMP) ReadCSR(num uint16, xlen Base) uint64 {
	switch {
	case num >= CSRPmpcfg0 && num < CSRPmpcfg0+16:
		return p.readCfgReg(num-CSRPmpcfg0, xlen)
	case num >= CSRPmpaddr0 && num < CSRPmpaddr0+uint16(NumPMPEntries):
		return p.addr[num-CSRPmpaddr0]
	}
	return 0
}

// WriteCSR writes a pmpcfgN/pmpaddrN register. A locked entry (L bit set)
// ignores writes to both its cfg byte and its addr register.
func (p *PMP) WriteCSR(num uint16, val uint64, xlen Base) {
	switch {
	case num >= CSRPmpcfg0 && num < CSRPmpcfg0+16:
		p.writeCfgReg(num-CSRPmpcfg0, val, xlen)
	case num >= CSRPmpaddr0 && num < CSRPmpaddr0+uint16(NumPMPEntries):
		idx := num - CSRPmpaddr0
		if p.cfg[idx]&PMPL == 0 {
			p.addr[idx] = val
		}
	}
}

func (p *PMP) readCfgReg(regIdx uint16, xlen Base) uint64 {
	perReg := 8
	if xlen == Rv32 {
		perReg = 4
	}
	base := int(regIdx) * 4
	if xlen == Rv64 {
		if regIdx%2 != 0 {
			return 0 // only pmpcfg0/pmpcfg2 exist on RV64
		}
		base = int(regIdx) * 4
	}
	var out uint64
	for i := 0; i < perReg && base+i < NumPMPEntries; i++ {
		out |= uint64(p.cfg[base+i]) << (8 * i)
	}
	return out
}

func (p *PMP) writeCfgReg(regIdx uint16, val uint64, xlen Base) {
	perReg := 8
	if xlen == Rv32 {
		perReg = 4
	} else if regIdx%2 != 0 {
		return
	}
	base := int(regIdx) * 4
	for i := 0; i < perReg && base+i < NumPMPEntries; i++ {
		if p.cfg[base+i]&PMPL != 0 {
			continue
		}
		p.cfg[base+i] = uint8(val>>(8*i)) & 0x9F // bits 5:6 reserved, forced to zero
	}
}

// Check scans PMP entries in order; the first match decides. If no entry
// matches, Machine-mode access is permitted and any other privilege level
// faults, per spec.md §4.6.1.
func (p *PMP) Check(paddr uint64, size int, access Access, priv uint8) error {
	for i := 0; i < NumPMPEntries; i++ {
		mode := (p.cfg[i] >> 3) & 3
		if mode == PMPOff {
			continue
		}
		lo, hi, ok := p.entryRange(i, mode)
		if !ok {
			continue
		}
		if !rangesOverlapFully(paddr, uint64(size), lo, hi) {
			continue
		}
		if priv == PrivMachine && p.cfg[i]&PMPL == 0 {
			return nil
		}
		if !pmpPermitted(p.cfg[i], access) {
			return pmpFault(access, paddr)
		}
		return nil
	}
	if priv == PrivMachine {
		return nil
	}
	return pmpFault(access, paddr)
}

func pmpPermitted(cfg uint8, access Access) bool {
	switch access {
	case accessLoad:
		return cfg&PMPR != 0
	case accessStore:
		return cfg&PMPW != 0
	default:
		return cfg&PMPX != 0
	}
}

// entryRange computes the [lo, hi) byte range an entry covers. TOR pairs
// with the previous entry's pmpaddr as its low bound.
func (p *PMP) entryRange(i int, mode uint8) (lo, hi uint64, ok bool) {
	switch mode {
	case PMPTOR:
		lo = 0
		if i > 0 {
			lo = p.addr[i-1] << 2
		}
		hi = p.addr[i] << 2
		return lo, hi, hi > lo
	case PMPNA4:
		base := p.addr[i] << 2
		return base, base + 4, true
	case PMPNAPOT:
		a := p.addr[i]
		// Right-shift past the contiguous low-one run to find the size.
		ones := 0
		for a&1 != 0 {
			ones++
			a >>= 1
		}
		size := uint64(8) << ones
		base := (p.addr[i] >> uint(ones+1)) << uint(ones+1) << 2
		return base, base + size, true
	}
	return 0, 0, false
}

func rangesOverlapFully(addr, size, lo, hi uint64) bool {
	return addr >= lo && addr+size <= hi
}

// pmpFault raises the intent-specific page fault, per spec.md §4.6.1: a PMP
// denial is a page fault, not an access fault.
func pmpFault(access Access, addr uint64) error {
	return pageFault(access, addr)
}
