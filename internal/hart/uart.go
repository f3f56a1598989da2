package hart

import "io"

// UART register offsets, 16550-compatible (spec.md §4.3's byte-oriented
// console row).
const (
	uartRBR = 0 // receive buffer (read)
	uartTHR = 0 // transmit holding (write)
	uartIER = 1 // interrupt enable
	uartIIR = 2 // interrupt identification (read)
	uartFCR = 2 // FIFO control (write)
	uartLCR = 3 // line control
	uartMCR = 4 // modem control
	uartLSR = 5 // line status
	uartMSR = 6 // modem status
	uartSCR = 7 // scratch
)

const (
	uartLSRDataReady = 1 << 0
	uartLSRTHREmpty  = 1 << 5
	uartLSRTxEmpty   = 1 << 6
	uartIIRNone      = 1 << 0
)

// UART is a minimal 16550-compatible console: every access must be a
// single byte (spec.md §4.3). Input bytes arrive through the explicit
// EnqueueInput entry point the driver calls between steps; output bytes go
// straight to Output.
type UART struct {
	Output io.Writer
	Input  io.Reader

	ier, iir, fcr, lcr, mcr, lsr, msr, scr uint8
	dll, dlh                               uint8

	rxBuf []byte
	rxPos int

	interruptPending bool
}

// NewUART creates a UART with its transmitter ready and no interrupt
// pending.
func NewUART(output io.Writer, input io.Reader) *UART {
	return &UART{
		Output: output,
		Input:  input,
		lsr:    uartLSRTHREmpty | uartLSRTxEmpty,
		iir:    uartIIRNone,
	}
}

func (u *UART) Size() uint64 { return UARTSize }

func (u *UART) Load(offset uint64, size int) (uint64, error) {
	if size != 1 {
		return 0, errBadWidth
	}
	dlab := u.lcr&0x80 != 0
	switch offset {
	case uartRBR:
		if dlab {
			return uint64(u.dll), nil
		}
		u.updateLSR()
		data := uint8(0)
		if u.rxPos < len(u.rxBuf) {
			data = u.rxBuf[u.rxPos]
			u.rxPos++
			if u.rxPos >= len(u.rxBuf) {
				u.rxBuf, u.rxPos = nil, 0
			}
		}
		u.updateLSR()
		u.updateInterrupt()
		return uint64(data), nil
	case uartIER:
		if dlab {
			return uint64(u.dlh), nil
		}
		return uint64(u.ier), nil
	case uartIIR:
		return uint64(u.iir), nil
	case uartLCR:
		return uint64(u.lcr), nil
	case uartMCR:
		return uint64(u.mcr), nil
	case uartLSR:
		u.updateLSR()
		return uint64(u.lsr), nil
	case uartMSR:
		return uint64(u.msr), nil
	case uartSCR:
		return uint64(u.scr), nil
	}
	return 0, nil
}

func (u *UART) Store(offset uint64, size int, value uint64) error {
	if size != 1 {
		return errBadWidth
	}
	data := uint8(value)
	dlab := u.lcr&0x80 != 0
	switch offset {
	case uartTHR:
		if dlab {
			u.dll = data
			return nil
		}
		if u.Output != nil {
			_, _ = u.Output.Write([]byte{data})
		}
	case uartIER:
		if dlab {
			u.dlh = data
			return nil
		}
		u.ier = data
		u.updateInterrupt()
	case uartFCR:
		u.fcr = data
		if data&0x01 != 0 && data&0x02 != 0 {
			u.rxBuf, u.rxPos = nil, 0
		}
	case uartLCR:
		u.lcr = data
	case uartMCR:
		u.mcr = data
	case uartSCR:
		u.scr = data
	}
	return nil
}

func (u *UART) updateLSR() {
	u.lsr = uartLSRTHREmpty | uartLSRTxEmpty
	if u.rxPos < len(u.rxBuf) {
		u.lsr |= uartLSRDataReady
	}
}

func (u *UART) updateInterrupt() {
	pending := false
	switch {
	case u.ier&0x01 != 0 && u.rxPos < len(u.rxBuf):
		pending = true
		u.iir = 0x04
	case u.ier&0x02 != 0:
		pending = true
		u.iir = 0x02
	default:
		u.iir = uartIIRNone
	}
	u.interruptPending = pending
}

// EnqueueInput appends bytes for the guest to read, the explicit inject
// entry point of spec.md §5 for host-initiated UART byte ingress.
func (u *UART) EnqueueInput(data []byte) {
	u.rxBuf = append(u.rxBuf, data...)
	u.updateLSR()
	u.updateInterrupt()
}

// InterruptPending reports whether the UART currently wants to raise an
// interrupt; the driver ORs this into the PLIC's console source level.
func (u *UART) InterruptPending() bool { return u.interruptPending }

var _ Device = (*UART)(nil)
