package hart

// TrapController is an empty type with no methods. The trap-controller
// logic (spec.md §4.9) is the package-level PendingInterrupt, Deliver and
// triggerMatch functions below, which operate directly on a CSRFile via
// raw/rawSet, since delivery happens outside CSR-instruction execution and
// must bypass the usual privilege checks.
type TrapController struct{}

// PendingInterrupt returns the highest-priority interrupt cause that is
// currently deliverable, in priority order MEI > MSI > MTI > SEI > SSI > STI,
// gated by mie, mip, the current privilege, and the relevant xIE bit. ok is
// false if no interrupt should be taken.
func PendingInterrupt(csr *CSRFile, priv uint8) (cause uint64, ok bool) {
	mip := csr.raw(CSRMip)
	mie := csr.raw(CSRMie)
	mideleg := csr.raw(CSRMideleg)
	mstatus := csr.raw(CSRMstatus)

	pending := mip & mie
	if pending == 0 {
		return 0, false
	}

	mEnabled := priv < PrivMachine || (priv == PrivMachine && mstatus&MstatusMIE != 0)
	sEnabled := priv < PrivSupervisor || (priv == PrivSupervisor && mstatus&MstatusSIE != 0)

	check := func(bit uint64, cause uint64, delegatable bool) (uint64, bool) {
		if pending&bit == 0 {
			return 0, false
		}
		if delegatable && mideleg&bit != 0 {
			if sEnabled {
				return cause, true
			}
			return 0, false
		}
		if mEnabled {
			return cause, true
		}
		return 0, false
	}

	if c, ok := check(MipMEIP, CauseMExternalInt, false); ok {
		return c, true
	}
	if c, ok := check(MipMSIP, CauseMSoftwareInt, false); ok {
		return c, true
	}
	if c, ok := check(MipMTIP, CauseMTimerInt, false); ok {
		return c, true
	}
	if c, ok := check(MipSEIP, CauseSExternalInt, true); ok {
		return c, true
	}
	if c, ok := check(MipSSIP, CauseSSoftwareInt, true); ok {
		return c, true
	}
	if c, ok := check(MipSTIP, CauseSTimerInt, true); ok {
		return c, true
	}
	return 0, false
}

// Deliver runs the exception/interrupt delivery algorithm of spec.md §4.9:
// mcause/mepc (or scause/sepc under delegation) set, mstatus.xIE saved into
// xPIE and cleared, current privilege recorded in xPP, privilege switched,
// and PC redirected to the trap vector. It returns the new PC and privilege.
func Deliver(csr *CSRFile, priv uint8, pc uint64, cause, tval uint64) (newPC uint64, newPriv uint8) {
	isInterrupt := cause>>63 != 0
	code := cause &^ (1 << 63)

	delegate := false
	if priv <= PrivSupervisor {
		if isInterrupt {
			delegate = csr.raw(CSRMideleg)&(1<<code) != 0
		} else {
			delegate = csr.raw(CSRMedeleg)&(1<<code) != 0
		}
	}

	mstatus := csr.raw(CSRMstatus)

	if delegate {
		csr.rawSet(CSRSepc, pc)
		csr.rawSet(CSRScause, cause)
		csr.rawSet(CSRStval, tval)

		if mstatus&MstatusSIE != 0 {
			mstatus |= MstatusSPIE
		} else {
			mstatus &^= MstatusSPIE
		}
		mstatus &^= MstatusSIE

		if priv == PrivSupervisor {
			mstatus |= MstatusSPP
		} else {
			mstatus &^= MstatusSPP
		}
		csr.rawSet(CSRMstatus, mstatus)

		stvec := csr.raw(CSRStvec)
		newPC = vectoredPC(stvec, code, isInterrupt)
		return newPC, PrivSupervisor
	}

	csr.rawSet(CSRMepc, pc)
	csr.rawSet(CSRMcause, cause)
	csr.rawSet(CSRMtval, tval)

	if mstatus&MstatusMIE != 0 {
		mstatus |= MstatusMPIE
	} else {
		mstatus &^= MstatusMPIE
	}
	mstatus &^= MstatusMIE
	mstatus &^= MstatusMPP
	mstatus |= uint64(priv) << MstatusMPPShift
	csr.rawSet(CSRMstatus, mstatus)

	mtvec := csr.raw(CSRMtvec)
	newPC = vectoredPC(mtvec, code, isInterrupt)
	return newPC, PrivMachine
}

// vectoredPC applies mtvec/stvec's mode bit: vectored (base + 4*cause) for
// interrupts only when the low bit is set, direct otherwise.
func vectoredPC(tvec, code uint64, isInterrupt bool) uint64 {
	if tvec&1 == 1 && isInterrupt {
		return (tvec &^ 1) + 4*code
	}
	return tvec &^ 3
}

// triggerMatch walks tdata1[0..tselect] for a type-2 trigger whose tdata2
// matches vaddr under the given intent's enable bit, per spec.md §4.9. Only
// type-2 (address/data match) triggers are modeled; type 0 never fires, so
// EBREAK always delivers as an architectural breakpoint exception rather
// than a host-side debugger stop (spec.md §9 Open Question 4).
func triggerMatch(csr *CSRFile, intent Access, vaddr uint64) bool {
	for i := 0; i <= int(csr.tselect) && i < NumTriggers; i++ {
		data1 := csr.tdata1[i]
		triggerType := data1 >> 60
		if triggerType != 2 {
			continue
		}
		const (
			triggerLoad  = 1 << 0
			triggerStore = 1 << 1
			triggerFetch = 1 << 2
		)
		var enableBit uint64
		switch intent {
		case accessLoad:
			enableBit = triggerLoad
		case accessStore:
			enableBit = triggerStore
		case accessFetch, accessDeleg:
			enableBit = triggerFetch
		}
		if data1&enableBit == 0 {
			continue
		}
		if csr.tdata2[i] == vaddr {
			return true
		}
	}
	return false
}
