// Package hart implements the RV32IMAC/RV64IMAC core: register file, CSR
// file, bus, MMU, decoder, executor, and trap controller for a single hart.
package hart

// Memory map. Base addresses are XLEN-independent; DRAM size is fixed at
// 128 MiB per the platform layout this core targets.
const (
	MROMBase = 0x0000_1000
	MROMSize = 0x0001_0000 // 64 KiB, reset vector + DTB image

	CLINTBase = 0x0200_0000
	CLINTSize = 0x0001_0000

	PLICBase = 0x0C00_0000
	PLICSize = 0x0100_0000

	UARTBase = 0x1000_0000
	UARTSize = 0x0000_0100

	// UARTIRQ is the UART's PLIC source ID, matching the "interrupts"
	// property the DTB advertises for the serial node (fdt.go).
	UARTIRQ = 10

	DRAMBase = 0x8000_0000
	DRAMSize = 128 * 1024 * 1024
)

// Privilege levels.
const (
	PrivUser       uint8 = 0
	PrivSupervisor uint8 = 1
	PrivMachine    uint8 = 3
)

// Base ISA selector.
type Base int

const (
	Rv32 Base = 32
	Rv64 Base = 64
)

// misa extension bits.
const (
	MisaA uint64 = 1 << 0
	MisaC uint64 = 1 << 2
	MisaI uint64 = 1 << 8
	MisaM uint64 = 1 << 12
	MisaS uint64 = 1 << 18
	MisaU uint64 = 1 << 20
)

// misa MXL field values (top two bits of misa, XLEN-width shifted).
const (
	MXL32 uint64 = 1
	MXL64 uint64 = 2
)

// mstatus bit positions, shared by the 32- and 64-bit views (the upper
// SXL/UXL/SD-at-bit-63 layout used on RV64 is collapsed onto the same
// constants; SD lives at bit 63 which only RV64 mstatus reads expose, RV32
// exposes it through mstatush which this core does not model separately
// since it is never consulted by the executor).
const (
	MstatusSIE  uint64 = 1 << 1
	MstatusMIE  uint64 = 1 << 3
	MstatusSPIE uint64 = 1 << 5
	MstatusUBE  uint64 = 1 << 6
	MstatusMPIE uint64 = 1 << 7
	MstatusSPP  uint64 = 1 << 8
	MstatusMPP  uint64 = 3 << 11
	MstatusFS   uint64 = 3 << 13
	MstatusXS   uint64 = 3 << 15
	MstatusMPRV uint64 = 1 << 17
	MstatusSUM  uint64 = 1 << 18
	MstatusMXR  uint64 = 1 << 19
	MstatusTVM  uint64 = 1 << 20
	MstatusTW   uint64 = 1 << 21
	MstatusTSR  uint64 = 1 << 22
	MstatusSD   uint64 = 1 << 63
)

const (
	MstatusSPPShift = 8
	MstatusMPPShift = 11
)

// mip/mie bits.
const (
	MipSSIP uint64 = 1 << 1
	MipMSIP uint64 = 1 << 3
	MipSTIP uint64 = 1 << 5
	MipMTIP uint64 = 1 << 7
	MipSEIP uint64 = 1 << 9
	MipMEIP uint64 = 1 << 11
)

// Exception causes.
const (
	CauseInsnAddrMisaligned  uint64 = 0
	CauseInsnAccessFault     uint64 = 1
	CauseIllegalInsn         uint64 = 2
	CauseBreakpoint          uint64 = 3
	CauseLoadAddrMisaligned  uint64 = 4
	CauseLoadAccessFault     uint64 = 5
	CauseStoreAddrMisaligned uint64 = 6
	CauseStoreAccessFault    uint64 = 7
	CauseEcallFromU          uint64 = 8
	CauseEcallFromS          uint64 = 9
	CauseEcallFromM          uint64 = 11
	CauseInsnPageFault       uint64 = 12
	CauseLoadPageFault       uint64 = 13
	CauseStorePageFault      uint64 = 15
)

// Interrupt causes (bit 63 set).
const (
	CauseSSoftwareInt uint64 = (1 << 63) | 1
	CauseMSoftwareInt uint64 = (1 << 63) | 3
	CauseSTimerInt    uint64 = (1 << 63) | 5
	CauseMTimerInt    uint64 = (1 << 63) | 7
	CauseSExternalInt uint64 = (1 << 63) | 9
	CauseMExternalInt uint64 = (1 << 63) | 11
)

// CSR addresses used directly by name elsewhere in the package.
const (
	CSRFflags  uint16 = 0x001
	CSRFrm     uint16 = 0x002
	CSRFcsr    uint16 = 0x003
	CSRCycle   uint16 = 0xC00
	CSRTime    uint16 = 0xC01
	CSRInstret uint16 = 0xC02

	CSRSstatus    uint16 = 0x100
	CSRSie        uint16 = 0x104
	CSRStvec      uint16 = 0x105
	CSRScounteren uint16 = 0x106
	CSRSscratch   uint16 = 0x140
	CSRSepc       uint16 = 0x141
	CSRScause     uint16 = 0x142
	CSRStval      uint16 = 0x143
	CSRSip        uint16 = 0x144
	CSRSatp       uint16 = 0x180

	CSRUstatus uint16 = 0x000

	CSRMstatus    uint16 = 0x300
	CSRMisa       uint16 = 0x301
	CSRMedeleg    uint16 = 0x302
	CSRMideleg    uint16 = 0x303
	CSRMie        uint16 = 0x304
	CSRMtvec      uint16 = 0x305
	CSRMcounteren uint16 = 0x306
	CSRMscratch   uint16 = 0x340
	CSRMepc       uint16 = 0x341
	CSRMcause     uint16 = 0x342
	CSRMtval      uint16 = 0x343
	CSRMip        uint16 = 0x344

	CSRPmpcfg0   uint16 = 0x3A0
	CSRPmpaddr0  uint16 = 0x3B0
	CSRTselect   uint16 = 0x7A0
	CSRTdata1    uint16 = 0x7A1
	CSRTdata2    uint16 = 0x7A2
	CSRTdata3    uint16 = 0x7A3
	CSRMvendorid uint16 = 0xF11
	CSRMarchid   uint16 = 0xF12
	CSRMimpid    uint16 = 0xF13
	CSRMhartid   uint16 = 0xF14
)

// NumPMPEntries is the number of PMP address/config pairs scanned, per
// spec.md §4.6.1.
const NumPMPEntries = 16

// NumTriggers is the number of debug trigger register pairs, per spec.md
// §4.2's "up to 8 triggers" (indices 0 through 7 inclusive).
const NumTriggers = 8
