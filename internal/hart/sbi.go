package hart

import "log/slog"

// SBI extension IDs, kept as named constants for host-side diagnostics only
// (spec.md §4.8): this core never implements the supervisor binary
// interface, it always raises the architectural ecall exception and lets
// the guest's own trap handler or firmware stub answer the call. Grounded
// on the teacher's rv64/sbi.go, which the original hypervisor used to
// actually service these calls; here they exist purely so a log line can
// name what the guest asked for.
const (
	SBIExtBase          = 0x10
	SBIExtTimer         = 0x54494D45 // "TIME"
	SBIExtIPI           = 0x735049   // "sPI"
	SBIExtRFence        = 0x52464E43 // "RFNC"
	SBIExtHSM           = 0x48534D   // "HSM"
	SBIExtSRST          = 0x53525354 // "SRST"
	SBIExtLegacyPutchar = 0x01
	SBIExtLegacyGetchar = 0x02
)

// sbiExtName maps the extension IDs above to a readable label for logging;
// an unrecognized ID still logs, just without a name.
var sbiExtName = map[uint64]string{
	SBIExtBase:          "base",
	SBIExtTimer:         "timer",
	SBIExtIPI:           "ipi",
	SBIExtRFence:        "rfence",
	SBIExtHSM:           "hsm",
	SBIExtSRST:          "srst",
	SBIExtLegacyPutchar: "legacy-putchar",
	SBIExtLegacyGetchar: "legacy-getchar",
}

// logSBICall records an S-mode ecall's a7/a6/a0 (extension, function,
// first argument) before the architectural exception is raised, purely as
// a diagnostic breadcrumb; it never changes what the trap controller does.
func logSBICall(h *Hart) {
	ext := h.Regs.Read(17, h.XLEN) // a7
	fid := h.Regs.Read(16, h.XLEN) // a6
	arg0 := h.Regs.Read(10, h.XLEN) // a0
	name, known := sbiExtName[ext]
	if !known {
		name = "unknown"
	}
	slog.Debug("sbi call", "ext", ext, "ext_name", name, "fid", fid, "a0", arg0, "pc", h.PC)
}
