package hart

// HartState is the state machine of spec.md §4.10.
type HartState int

const (
	Running HartState = iota
	WaitForInterrupt
	Halted
)

// Hart is one RISC-V hart: register file, CSR file, MMU/PMP, the bus and
// its devices, and the driver state. It holds direct references to CLINT/
// PLIC/UART only to poll their exposed pending state each step; none of
// those devices holds a reference back (spec.md §9's no-back-pointer
// strategy).
type Hart struct {
	XLEN Base

	Regs RegFile
	CSR  *CSRFile
	PMP  PMP
	MMU  MMU
	Bus  *Bus

	CLINT *CLINT
	PLIC  *PLIC
	UART  *UART

	PC          uint64
	Priv        uint8
	Reservation reservation
	State       HartState

	HaltCode     uint64
	instret      uint64
	lastInsnSize uint64

	// BreakpointPC and BreakpointOn support the CLI's optional breakpoint
	// (spec.md §6); Run stops before stepping at BreakpointPC only while
	// BreakpointOn is set, so the zero value disables it.
	BreakpointPC uint64
	BreakpointOn bool

	// ToHostAddr is the physical address of the tohost sentinel word; zero
	// disables halt-on-write detection.
	ToHostAddr uint64

	// InputPoll, when set, runs once per Step before interrupts are
	// polled. The CLI's interactive mode (spec.md §6) uses it to drain a
	// host stdin reader goroutine into UART.EnqueueInput without handing
	// the UART itself to a second goroutine.
	InputPoll func()
}

// NewHart creates a hart at the given base ISA, reset at MROM's entry
// point and Machine privilege.
func NewHart(xlen Base, bus *Bus, clint *CLINT, plic *PLIC, uart *UART) *Hart {
	h := &Hart{
		XLEN:  xlen,
		CSR:   NewCSRFile(xlen),
		Bus:   bus,
		CLINT: clint,
		PLIC:  plic,
		UART:  uart,
		PC:    MROMBase,
		Priv:  PrivMachine,
	}
	return h
}

// translate wraps MMU.Translate with this hart's current CSR/PMP/priv
// state, the shape Fetch and loadWidth/storeWidth need.
func (h *Hart) translate(intent Access, vaddr uint64, size int) (uint64, error) {
	satp := h.CSR.raw(CSRSatp)
	mstatus := h.CSR.raw(CSRMstatus)
	return h.MMU.Translate(h.Bus, satp, h.XLEN, intent, vaddr, h.Priv, mstatus, &h.PMP, size)
}

func (h *Hart) loadWidth(vaddr uint64, size int, intent Access) (uint64, error) {
	if triggerMatch(h.CSR, intent, vaddr) {
		return 0, trap(CauseBreakpoint, vaddr)
	}
	paddr, err := h.translate(intent, vaddr, size)
	if err != nil {
		return 0, err
	}
	v, err := h.Bus.Load(paddr, size)
	if err != nil {
		return 0, classifyBusError(err, intent, vaddr)
	}
	return v, nil
}

func (h *Hart) storeWidth(vaddr uint64, size int, value uint64) error {
	if triggerMatch(h.CSR, accessStore, vaddr) {
		return trap(CauseBreakpoint, vaddr)
	}
	paddr, err := h.translate(accessStore, vaddr, size)
	if err != nil {
		return err
	}
	if err := h.Bus.Store(paddr, size, value); err != nil {
		return classifyBusError(err, accessStore, vaddr)
	}
	return nil
}

// pollInterrupts folds CLINT/PLIC pending state into mip, the driver's once-
// per-step responsibility since those devices hold no hart back-pointer.
func (h *Hart) pollInterrupts() {
	h.PLIC.SetInterruptLevel(UARTIRQ, h.UART.InterruptPending())

	mip := h.CSR.raw(CSRMip)
	setBit64(&mip, MipMSIP, h.CLINT.SoftwarePending())
	setBit64(&mip, MipMTIP, h.CLINT.TimerPending())
	setBit64(&mip, MipMEIP, h.PLIC.MachinePending())
	setBit64(&mip, MipSEIP, h.PLIC.SupervisorPending() || h.UART.InterruptPending())
	h.CSR.rawSet(CSRMip, mip)
}

func setBit64(word *uint64, bit uint64, v bool) {
	if v {
		*word |= bit
	} else {
		*word &^= bit
	}
}

// Step runs one iteration of the driver loop of spec.md §4.10: poll
// interrupts, fetch, decode, execute, advance mtime. Any error from fetch/
// decode/execute is handed to the trap controller. Returns false once the
// hart has halted.
func (h *Hart) Step() bool {
	if h.State == Halted {
		return false
	}
	h.State = Running // WFI is a no-op: it returns to Running immediately.

	if h.InputPoll != nil {
		h.InputPoll()
	}
	h.pollInterrupts()
	if cause, ok := PendingInterrupt(h.CSR, h.Priv); ok {
		pc, priv := Deliver(h.CSR, h.Priv, h.PC, cause, 0)
		h.PC, h.Priv = pc, priv
		h.CLINT.AdvanceTime()
		h.instret++
		return true
	}

	var insn uint32
	var size int
	var err error
	if triggerMatch(h.CSR, accessFetch, h.PC) {
		err = trap(CauseBreakpoint, h.PC)
	} else {
		insn, size, err = Fetch(h.Bus, func(vaddr uint64) (uint64, error) {
			return h.translate(accessFetch, vaddr, 2)
		}, h.PC)
	}
	if err == nil {
		insn, err = expandIfCompressed(insn, size, h.XLEN)
	}
	if err == nil {
		h.lastInsnSize = uint64(size)
		startPC := h.PC
		err = h.execute(insn)
		if err == nil {
			if h.PC == startPC {
				h.PC += h.lastInsnSize
			}
		}
	}

	if err != nil {
		h.handleTrapError(err)
	}

	h.CLINT.AdvanceTime()
	h.instret++
	h.checkHalt()
	return h.State != Halted
}

// expandIfCompressed widens a compressed 16-bit encoding into its 32-bit
// equivalent, rejecting RV64-only expansions when running RV32 (spec.md
// §4.7's "RV64-only opcodes under RV32 decode to illegal-instruction").
func expandIfCompressed(insn uint32, size int, xlen Base) (uint32, error) {
	if size != 2 {
		if xlen == Rv32 && rv64Only(insn) {
			return 0, trap(CauseIllegalInsn, uint64(insn))
		}
		return insn, nil
	}
	expanded, err := expandCompressed(uint16(insn))
	if err != nil {
		return 0, err
	}
	if xlen == Rv32 && rv64Only(expanded) {
		return 0, trap(CauseIllegalInsn, uint64(insn))
	}
	return expanded, nil
}

// handleTrapError classifies err into an exception cause and runs delivery.
// Any trap clears the reservation set (spec.md §4.8).
func (h *Hart) handleTrapError(err error) {
	exc, ok := asException(err)
	if !ok {
		panic(err) // non-architectural: an impossible address-decoded state
	}
	h.Reservation.clear()
	pc, priv := Deliver(h.CSR, h.Priv, h.PC, exc.Cause, exc.Tval)
	h.PC, h.Priv = pc, priv
}

// checkHalt implements the tohost sentinel of spec.md §4.10/§6: any non-
// zero word written to the well-known DRAM offset ends the run.
func (h *Hart) checkHalt() {
	if h.ToHostAddr == 0 {
		return
	}
	v, err := h.Bus.Read64(h.ToHostAddr)
	if err != nil || v == 0 {
		return
	}
	h.State = Halted
	if v&1 != 0 {
		h.HaltCode = v >> 1
	} else {
		h.HaltCode = v
	}
}

// SetToHost records the tohost sentinel's physical address, once the
// loader resolves it from the ELF's symbol table.
func (h *Hart) SetToHost(addr uint64) { h.ToHostAddr = addr }

// Run steps the hart until it halts or maxSteps is exhausted (0 means
// unbounded), honoring an optional breakpoint address.
func (h *Hart) Run(maxSteps uint64) {
	for i := uint64(0); maxSteps == 0 || i < maxSteps; i++ {
		if h.BreakpointOn && h.PC == h.BreakpointPC {
			return
		}
		if !h.Step() {
			return
		}
	}
}
