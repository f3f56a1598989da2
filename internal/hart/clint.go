package hart

// CLINT register offsets, relative to CLINTBase (spec.md §4.4).
const (
	clintMsip     = 0x0000
	clintMtimecmp = 0x4000
	clintMtime    = 0xbff8
)

// CLINT is the core-local interruptor: a software-interrupt pending bit
// plus a free-running timer compared against mtimecmp. It holds no
// back-pointer to the hart; the driver reads SoftwarePending/TimerPending
// once per step and folds them into mip itself.
type CLINT struct {
	msip     uint32
	mtimecmp uint64
	mtime    uint64
}

// NewCLINT creates a CLINT with mtimecmp at its reset value of all-ones, so
// no timer interrupt is pending until software programs a compare value.
func NewCLINT() *CLINT {
	return &CLINT{mtimecmp: ^uint64(0)}
}

func (c *CLINT) Size() uint64 { return CLINTSize }

// Load implements Device. Only 32- and 64-bit accesses are defined.
func (c *CLINT) Load(offset uint64, size int) (uint64, error) {
	if size != 4 && size != 8 {
		return 0, errBadWidth
	}
	switch {
	case offset >= clintMsip && offset < clintMsip+4:
		return uint64(c.msip), nil
	case offset >= clintMtimecmp && offset < clintMtimecmp+8:
		return readSplit64(c.mtimecmp, offset-clintMtimecmp, size), nil
	case offset >= clintMtime && offset < clintMtime+8:
		return readSplit64(c.mtime, offset-clintMtime, size), nil
	}
	return 0, nil
}

// Store implements Device.
func (c *CLINT) Store(offset uint64, size int, value uint64) error {
	if size != 4 && size != 8 {
		return errBadWidth
	}
	switch {
	case offset >= clintMsip && offset < clintMsip+4:
		c.msip = uint32(value) & 1
	case offset >= clintMtimecmp && offset < clintMtimecmp+8:
		c.mtimecmp = writeSplit64(c.mtimecmp, offset-clintMtimecmp, size, value)
	case offset >= clintMtime && offset < clintMtime+8:
		c.mtime = writeSplit64(c.mtime, offset-clintMtime, size, value)
	}
	return nil
}

// AdvanceTime ticks mtime by one, called once per simulated instruction by
// the hart driver (spec.md §4.4's Open Question 2 resolution: mtime is a
// step counter, not wall-clock derived).
func (c *CLINT) AdvanceTime() { c.mtime++ }

// SoftwarePending reports msip's interrupt-pending bit.
func (c *CLINT) SoftwarePending() bool { return c.msip&1 != 0 }

// TimerPending reports whether mtime has reached mtimecmp. Gating this on
// mie.MTIP, as spec.md §4.4 describes, is the driver's job.
func (c *CLINT) TimerPending() bool { return c.mtime >= c.mtimecmp }

// Mtime returns the current counter value, for the time/cycle CSR reads.
func (c *CLINT) Mtime() uint64 { return c.mtime }

// readSplit64/writeSplit64 let a 64-bit register be read or written through
// either a single 64-bit access or two 32-bit halves at reg and reg+4.
func readSplit64(reg uint64, off uint64, size int) uint64 {
	if size == 8 {
		return reg
	}
	if off == 0 {
		return reg & 0xffffffff
	}
	return reg >> 32
}

func writeSplit64(reg uint64, off uint64, size int, value uint64) uint64 {
	if size == 8 {
		return value
	}
	if off == 0 {
		return (reg &^ 0xffffffff) | (value & 0xffffffff)
	}
	return (reg &^ (0xffffffff << 32)) | ((value & 0xffffffff) << 32)
}

var _ Device = (*CLINT)(nil)
