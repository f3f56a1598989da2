package hart

// xstatus masks: which mstatus bits are visible/writable through each
// privilege-mode alias (spec.md §3, §4.2).
const (
	mstatusWritableMask = MstatusSIE | MstatusMIE | MstatusSPIE | MstatusUBE |
		MstatusMPIE | MstatusSPP | MstatusMPP | MstatusFS | MstatusMPRV |
		MstatusSUM | MstatusMXR | MstatusTVM | MstatusTW | MstatusTSR

	sstatusMask = MstatusSIE | MstatusSPIE | MstatusUBE | MstatusSPP |
		MstatusFS | MstatusXS | MstatusSUM | MstatusMXR | MstatusSD

	ustatusMask uint64 = 0 // no N-extension (user-mode traps) support
)

// CSRFile is the dense 4096-entry control/status register array (spec.md
// §4.2). It holds no back-pointer to the owning Hart; callers pass
// whatever privilege/ISA context a given read or write needs.
type CSRFile struct {
	regs [4096]uint64

	tselect  uint64
	tdata1   [NumTriggers]uint64
	tdata2   [NumTriggers]uint64
}

// NewCSRFile creates a CSR file with misa set for the given base ISA.
func NewCSRFile(xlen Base) *CSRFile {
	c := &CSRFile{}
	var mxl uint64
	if xlen == Rv64 {
		mxl = MXL64
	} else {
		mxl = MXL32
	}
	mxlShift := uint(30)
	if xlen == Rv64 {
		mxlShift = 62
	}
	c.regs[CSRMisa] = (mxl << mxlShift) | MisaI | MisaM | MisaA | MisaC | MisaS | MisaU
	return c
}

// MisaC reports whether the compressed extension is enabled in misa.
func (c *CSRFile) MisaC() bool {
	return c.regs[CSRMisa]&MisaC != 0
}

// Read performs a CSR read, enforcing the privilege check of spec.md §4.2.
func (c *CSRFile) Read(num uint16, priv uint8) (uint64, error) {
	if !csrNumDefined(num) {
		return 0, trap(CauseIllegalInsn, uint64(num))
	}
	csrPriv := uint8((num >> 8) & 3)
	if priv < csrPriv {
		return 0, trap(CauseIllegalInsn, uint64(num))
	}

	switch num {
	case CSRUstatus:
		return c.regs[CSRMstatus] & ustatusMask, nil
	case CSRSstatus:
		return c.regs[CSRMstatus] & sstatusMask, nil
	case CSRSie:
		return c.regs[CSRMie] & c.regs[CSRMideleg], nil
	case CSRSip:
		return c.regs[CSRMip] & c.regs[CSRMideleg], nil
	case CSRMepc:
		return c.maskEpc(c.regs[CSRMepc]), nil
	case CSRSepc:
		return c.maskEpc(c.regs[CSRSepc]), nil
	case CSRTselect:
		return c.tselect, nil
	case CSRTdata1:
		return c.tdata1[c.tselect%NumTriggers], nil
	case CSRTdata2:
		return c.tdata2[c.tselect%NumTriggers], nil
	}

	if isPMPCSR(num) {
		return 0, nil // PMP config/addr CSRs are owned by PMP, routed at Hart level.
	}
	return c.regs[num], nil
}

// Write performs a CSR write, enforcing the privilege and read-only checks
// of spec.md §4.2.
func (c *CSRFile) Write(num uint16, val uint64, priv uint8) error {
	if !csrNumDefined(num) {
		return trap(CauseIllegalInsn, uint64(num))
	}
	csrPriv := uint8((num >> 8) & 3)
	if priv < csrPriv {
		return trap(CauseIllegalInsn, uint64(num))
	}
	if (num>>10)&3 == 3 {
		return trap(CauseIllegalInsn, uint64(num)) // read-only range
	}

	switch num {
	case CSRUstatus:
		c.regs[CSRMstatus] = (c.regs[CSRMstatus] &^ ustatusMask) | (val & ustatusMask)
	case CSRSstatus:
		c.regs[CSRMstatus] = (c.regs[CSRMstatus] &^ sstatusMask) | (val & sstatusMask)
		c.updateSD()
	case CSRMstatus:
		c.regs[CSRMstatus] = (c.regs[CSRMstatus] &^ mstatusWritableMask) | (val & mstatusWritableMask)
		c.updateSD()
	case CSRSie:
		c.regs[CSRMie] = (c.regs[CSRMie] &^ c.regs[CSRMideleg]) | (val & c.regs[CSRMideleg])
	case CSRSip:
		mask := c.regs[CSRMideleg] & MipSSIP
		c.regs[CSRMip] = (c.regs[CSRMip] &^ mask) | (val & mask)
	case CSRMisa:
		// WARL, read-only in this implementation: extension set is fixed
		// at construction.
	case CSRMedeleg:
		c.regs[CSRMedeleg] = val & 0xb3ff
	case CSRMideleg:
		c.regs[CSRMideleg] = val & (MipSSIP | MipSTIP | MipSEIP)
	case CSRMie:
		c.regs[CSRMie] = val & (MipSSIP | MipMSIP | MipSTIP | MipMTIP | MipSEIP | MipMEIP)
	case CSRMip:
		mask := uint64(MipSSIP | MipSTIP | MipSEIP)
		c.regs[CSRMip] = (c.regs[CSRMip] &^ mask) | (val & mask)
	case CSRMepc:
		c.regs[CSRMepc] = val &^ 1
	case CSRSepc:
		c.regs[CSRSepc] = val &^ 1
	case CSRTselect:
		if val < NumTriggers {
			c.tselect = val
		}
	case CSRTdata1:
		c.tdata1[c.tselect%NumTriggers] = val
	case CSRTdata2:
		c.tdata2[c.tselect%NumTriggers] = val
	default:
		if isPMPCSR(num) {
			return nil // routed at Hart level
		}
		c.regs[num] = val
	}
	return nil
}

// SetBits implements the CSRRS-style atomic set.
func (c *CSRFile) SetBits(num uint16, mask uint64, priv uint8) (uint64, error) {
	old, err := c.Read(num, priv)
	if err != nil {
		return 0, err
	}
	if mask != 0 {
		if err := c.Write(num, old|mask, priv); err != nil {
			return 0, err
		}
	}
	return old, nil
}

// ClearBits implements the CSRRC-style atomic clear.
func (c *CSRFile) ClearBits(num uint16, mask uint64, priv uint8) (uint64, error) {
	old, err := c.Read(num, priv)
	if err != nil {
		return 0, err
	}
	if mask != 0 {
		if err := c.Write(num, old&^mask, priv); err != nil {
			return 0, err
		}
	}
	return old, nil
}

// maskEpc forces the low bit(s) of an xepc read to zero depending on
// whether misa.C is set: IALIGN=16 masks bit 0 only, IALIGN=32 masks bits
// 0 and 1 (spec.md §4.2).
func (c *CSRFile) maskEpc(val uint64) uint64 {
	if c.MisaC() {
		return val &^ 1
	}
	return val &^ 3
}

// updateSD recomputes mstatus.SD from FS/XS, matching the teacher's
// writeMstatus (rv64/csr.go) generalized to also consult XS.
func (c *CSRFile) updateSD() {
	fsDirty := c.regs[CSRMstatus]&MstatusFS == MstatusFS
	xsDirty := c.regs[CSRMstatus]&MstatusXS == MstatusXS
	if fsDirty || xsDirty {
		c.regs[CSRMstatus] |= MstatusSD
	} else {
		c.regs[CSRMstatus] &^= MstatusSD
	}
}

// raw/rawSet bypass the privilege/read-only checks of Read/Write: the trap
// controller and interrupt-pending logic are internal callers, not
// CSR-instruction execution, and need direct access to mcause/mepc/mstatus
// and friends (spec.md §4.9).
func (c *CSRFile) raw(num uint16) uint64 {
	return c.regs[num]
}

func (c *CSRFile) rawSet(num uint16, val uint64) {
	c.regs[num] = val
}

// csrNumDefined reports whether num is one of the CSRs this core
// implements. Reads/writes to anything else raise illegal-instruction at
// the caller, per spec.md §4.2.
func csrNumDefined(num uint16) bool {
	switch num {
	case CSRFflags, CSRFrm, CSRFcsr,
		CSRCycle, CSRTime, CSRInstret,
		CSRUstatus, CSRSstatus, CSRSie, CSRStvec, CSRScounteren,
		CSRSscratch, CSRSepc, CSRScause, CSRStval, CSRSip, CSRSatp,
		CSRMstatus, CSRMisa, CSRMedeleg, CSRMideleg, CSRMie, CSRMtvec,
		CSRMcounteren, CSRMscratch, CSRMepc, CSRMcause, CSRMtval, CSRMip,
		CSRTselect, CSRTdata1, CSRTdata2, CSRTdata3,
		CSRMvendorid, CSRMarchid, CSRMimpid, CSRMhartid:
		return true
	}
	if num >= CSRPmpcfg0 && num < CSRPmpcfg0+16 {
		return true
	}
	if num >= CSRPmpaddr0 && num < CSRPmpaddr0+uint16(NumPMPEntries) {
		return true
	}
	return false
}
