package hart

// PLIC register layout (spec.md §4.5), matching the SiFive PLIC addressing
// convention: priority array, then a pending bitmap, then one enable
// bitmap per context, then a threshold+claim pair per context.
const (
	plicPriorityBase  = 0x000000
	plicPendingBase   = 0x001000
	plicEnableBase    = 0x002000
	plicThresholdBase = 0x200000
	plicContextStride = 0x1000
	plicEnableStride  = 0x80
)

const plicMaxSources = 1024

const (
	plicCtxMachine    = 0
	plicCtxSupervisor = 1
	plicNumContexts   = 2
)

// PLIC is the platform-level interrupt controller: it takes externally
// driven source levels and routes them to the machine and supervisor
// contexts' external-interrupt pending bits, gated by per-context priority
// threshold and enable bitmaps.
type PLIC struct {
	priority [plicMaxSources]uint8
	level    [plicMaxSources]bool

	enable          [plicNumContexts][plicMaxSources / 32]uint32
	pending         [plicNumContexts][plicMaxSources / 32]uint32
	pendingPriority [plicNumContexts][plicMaxSources]uint8
	claimed         [plicNumContexts][plicMaxSources / 32]uint32
	threshold       [plicNumContexts]uint8
}

// NewPLIC creates a PLIC with nothing enabled or pending.
func NewPLIC() *PLIC {
	return &PLIC{}
}

func (p *PLIC) Size() uint64 { return PLICSize }

func (p *PLIC) Load(offset uint64, size int) (uint64, error) {
	if size != 4 && size != 8 {
		return 0, errBadWidth
	}
	if size == 8 {
		lo, err := p.Load(offset, 4)
		if err != nil {
			return 0, err
		}
		hi, err := p.Load(offset+4, 4)
		if err != nil {
			return 0, err
		}
		return lo | hi<<32, nil
	}

	switch {
	case offset < plicPendingBase:
		source := offset / 4
		if source < plicMaxSources {
			return uint64(p.priority[source]), nil
		}
	case offset >= plicPendingBase && offset < plicEnableBase:
		word := (offset - plicPendingBase) / 4
		if word < uint64(len(p.pending[0])) {
			return uint64(p.pending[plicCtxMachine][word] | p.pending[plicCtxSupervisor][word]), nil
		}
	case offset >= plicEnableBase && offset < plicThresholdBase:
		ctx, word, ok := p.enableIndex(offset)
		if ok {
			return uint64(p.enable[ctx][word]), nil
		}
	case offset >= plicThresholdBase:
		ctx, reg := p.contextReg(offset)
		if ctx < plicNumContexts {
			switch reg {
			case 0:
				return uint64(p.threshold[ctx]), nil
			case 4:
				return uint64(p.claim(int(ctx))), nil
			}
		}
	}
	return 0, nil
}

func (p *PLIC) Store(offset uint64, size int, value uint64) error {
	if size != 4 && size != 8 {
		return errBadWidth
	}
	// spec.md §9 Open Question 3: unlike CLINT/UART, a 64-bit PLIC write
	// splits into two ordered 32-bit writes.
	if size == 8 {
		if err := p.Store(offset, 4, value&0xffffffff); err != nil {
			return err
		}
		return p.Store(offset+4, 4, value>>32)
	}

	switch {
	case offset < plicPendingBase:
		source := offset / 4
		if source > 0 && source < plicMaxSources {
			p.priority[source] = uint8(value) & 0xf
		}
	case offset >= plicEnableBase && offset < plicThresholdBase:
		ctx, word, ok := p.enableIndex(offset)
		if ok {
			p.enable[ctx][word] = uint32(value)
		}
	case offset >= plicThresholdBase:
		ctx, reg := p.contextReg(offset)
		if ctx < plicNumContexts {
			switch reg {
			case 0:
				p.threshold[ctx] = uint8(value) & 0xf
			case 4:
				p.complete(int(ctx), uint32(value))
			}
		}
	}
	return nil
}

func (p *PLIC) enableIndex(offset uint64) (ctx, word uint64, ok bool) {
	rel := offset - plicEnableBase
	ctx = rel / plicEnableStride
	word = (rel % plicEnableStride) / 4
	return ctx, word, ctx < plicNumContexts && word < uint64(len(p.enable[0]))
}

func (p *PLIC) contextReg(offset uint64) (ctx, reg uint64) {
	rel := offset - plicThresholdBase
	return rel / plicContextStride, rel % plicContextStride
}

func (p *PLIC) enabled(ctx int, id uint32) bool {
	return p.enable[ctx][id/32]&(1<<(id%32)) != 0
}

func setBit(word *uint32, bit uint32, v bool) {
	if v {
		*word |= 1 << bit
	} else {
		*word &^= 1 << bit
	}
}

// SetInterruptLevel is the external hook of spec.md §4.5: it updates the
// raw level bit for id, and for every context whose enable bit is set,
// updates that context's pending bit and pending-priority.
func (p *PLIC) SetInterruptLevel(id uint32, level bool) {
	if id == 0 || id >= plicMaxSources {
		return
	}
	p.level[id] = level
	for ctx := 0; ctx < plicNumContexts; ctx++ {
		if !p.enabled(ctx, id) {
			continue
		}
		setBit(&p.pending[ctx][id/32], id%32, level)
		if level {
			p.pendingPriority[ctx][id] = p.priority[id]
		}
	}
}

// claim returns the highest-priority pending, unclaimed source for ctx
// (ties broken by lowest id), marks it claimed, and clears its pending bit.
func (p *PLIC) claim(ctx int) uint32 {
	var best uint32
	var bestPriority uint8
	for id := uint32(1); id < plicMaxSources; id++ {
		if p.pending[ctx][id/32]&(1<<(id%32)) == 0 {
			continue
		}
		if p.claimed[ctx][id/32]&(1<<(id%32)) != 0 {
			continue
		}
		if p.pendingPriority[ctx][id] <= p.threshold[ctx] {
			continue
		}
		if p.pendingPriority[ctx][id] > bestPriority {
			bestPriority = p.pendingPriority[ctx][id]
			best = id
		}
	}
	if best != 0 {
		setBit(&p.pending[ctx][best/32], best%32, false)
		setBit(&p.claimed[ctx][best/32], best%32, true)
	}
	return best
}

// complete clears the claimed bit for id in ctx (interrupt-handling
// completion signalled by the guest).
func (p *PLIC) complete(ctx int, id uint32) {
	if id == 0 || id >= plicMaxSources {
		return
	}
	setBit(&p.claimed[ctx][id/32], id%32, false)
}

func (p *PLIC) hasPendingAbove(ctx int) bool {
	for id := uint32(1); id < plicMaxSources; id++ {
		if p.pending[ctx][id/32]&(1<<(id%32)) == 0 {
			continue
		}
		if p.claimed[ctx][id/32]&(1<<(id%32)) != 0 {
			continue
		}
		if p.pendingPriority[ctx][id] > p.threshold[ctx] {
			return true
		}
	}
	return false
}

// MachinePending/SupervisorPending report whether MEIP/SEIP should be
// asserted; the hart driver reads these once per step and folds them into
// mip itself, since the PLIC holds no back-pointer to the hart.
func (p *PLIC) MachinePending() bool    { return p.hasPendingAbove(plicCtxMachine) }
func (p *PLIC) SupervisorPending() bool { return p.hasPendingAbove(plicCtxSupervisor) }

var _ Device = (*PLIC)(nil)
