// Command riscv-iss runs a RISC-V ELF binary against the hart model in
// internal/hart. It is the CLI collaborator of spec.md §6: it owns flag
// parsing, logging, and the console, and hands the core only parsed
// values (never the parser itself).
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/openhart/riscv-iss/internal/elfload"
	"github.com/openhart/riscv-iss/internal/hart"
	"github.com/openhart/riscv-iss/internal/hconfig"
)

func main() {
	if err := run(); err != nil {
		var exitErr *haltError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.code))
		}
		fmt.Fprintf(os.Stderr, "riscv-iss: %v\n", err)
		os.Exit(1)
	}
}

// haltError carries the guest's tohost exit code through to the process
// exit status without logging it as a simulator failure.
type haltError struct{ code uint64 }

func (e *haltError) Error() string { return fmt.Sprintf("guest halted with code %d", e.code) }

// abiRegs maps RISC-V ABI mnemonics to register indices, for the
// -result-reg flag.
var abiRegs = map[string]uint32{
	"zero": 0, "ra": 1, "sp": 2, "gp": 3, "tp": 4,
	"t0": 5, "t1": 6, "t2": 7,
	"s0": 8, "fp": 8, "s1": 9,
	"a0": 10, "a1": 11, "a2": 12, "a3": 13, "a4": 14, "a5": 15, "a6": 16, "a7": 17,
	"s2": 18, "s3": 19, "s4": 20, "s5": 21, "s6": 22, "s7": 23, "s8": 24, "s9": 25, "s10": 26, "s11": 27,
	"t3": 28, "t4": 29, "t5": 30, "t6": 31,
}

func run() error {
	// A machine profile can supply defaults for every other flag, and its
	// own path is itself a flag, so -profile is parsed in its own pass
	// before the flags it feeds are declared.
	profileSet := flag.NewFlagSet("riscv-iss", flag.ContinueOnError)
	profileSet.SetOutput(os.Stderr)
	profilePath := profileSet.String("profile", "", "path to a YAML machine profile supplying flag defaults")
	if err := profileSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	profile, err := hconfig.Load(*profilePath)
	if err != nil {
		return err
	}

	flag.String("profile", "", "path to a YAML machine profile supplying flag defaults")
	entry := flag.Uint64("entry", profile.Entry, "override the ELF entry point (0 keeps the ELF-declared entry)")
	breakpoint := flag.Uint64("break", profile.BreakpointPC, "halt the run when PC reaches this address (0 disables)")
	resultReg := flag.String("result-reg", profile.ResultReg, "ABI register name to print after the run halts")
	logLevel := flag.String("log-level", orDefault(profile.LogLevel, "info"), "log level: debug, info, warn, error")
	interactive := flag.Bool("interactive", profile.Interactive, "connect the host terminal to the guest UART in raw mode")
	maxSteps := flag.Uint64("max-steps", 0, "stop after this many retired instructions (0 is unbounded)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: riscv-iss [flags] <elf-path>\n\nflags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return fmt.Errorf("exactly one ELF path is required")
	}
	elfPath := flag.Arg(0)

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	f, err := os.Open(elfPath)
	if err != nil {
		return fmt.Errorf("open elf: %w", err)
	}
	defer f.Close()

	img, err := elfload.Load(f)
	if err != nil {
		return fmt.Errorf("load elf: %w", err)
	}

	loadEntry := img.Entry
	if *entry != 0 {
		loadEntry = *entry
	}

	if want := profileBase(profile.Base); want != 0 && want != img.Base {
		return fmt.Errorf("machine profile declares %v but ELF is %v", want, img.Base)
	}

	segments := make([]hart.LoadSegment, len(img.Segments))
	for i, seg := range img.Segments {
		segments[i] = hart.LoadSegment{PhysAddr: seg.PhysAddr, Data: seg.Data, MemSize: seg.MemSize}
	}

	if *interactive && term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("enable raw mode: %w", err)
		}
		defer term.Restore(int(os.Stdin.Fd()), oldState)
	}

	m := hart.NewMachine(img.Base, segments, loadEntry, img.ToHost, os.Stdout, os.Stdin)

	if *interactive {
		stdinCh := make(chan []byte, 64)
		go pumpStdin(os.Stdin, stdinCh)
		m.Hart.InputPoll = func() {
			for {
				select {
				case chunk := <-stdinCh:
					m.Hart.UART.EnqueueInput(chunk)
				default:
					return
				}
			}
		}
	}

	if *breakpoint != 0 {
		m.Hart.BreakpointOn = true
		m.Hart.BreakpointPC = *breakpoint
	}

	slog.Info("starting run", "elf", elfPath, "base", img.Base, "entry", loadEntry)
	m.Hart.Run(*maxSteps)

	if reg, ok := abiRegs[*resultReg]; ok {
		slog.Info("result register", "name", *resultReg, "value", m.Hart.Regs.Read(reg, m.Hart.XLEN))
	}

	if m.Hart.State == hart.Halted {
		return &haltError{code: m.Hart.HaltCode}
	}
	return nil
}

// pumpStdin reads the host terminal in small chunks and forwards each one
// to ch for Hart.InputPoll to drain, keeping the UART itself touched by a
// single goroutine (spec.md §6's interactive console). It returns once the
// read side errors, typically when the process exits and stdin closes
// underneath it.
func pumpStdin(r io.Reader, ch chan<- []byte) {
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			ch <- chunk
		}
		if err != nil {
			return
		}
	}
}

func profileBase(s string) hart.Base {
	switch s {
	case "rv32":
		return hart.Rv32
	case "rv64":
		return hart.Rv64
	default:
		return 0
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
