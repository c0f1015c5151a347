// Package main provides the entry point for kplsim.
// kplsim is a functional emulator for Kepler (sm_35) GPU kernels.
package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/kplsim/config"
	"github.com/sarchlab/kplsim/emu"
	"github.com/sarchlab/kplsim/insts"
	"github.com/sarchlab/kplsim/loader"
)

func main() {
	atexit.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options holds the parsed command line.
type options struct {
	configPath string
	kernel     string
	grid       [3]uint32
	block      [3]uint32
	params     []uint32
	disasm     bool
	dump       bool
	trace      bool
	verbose    bool
	maxInsts   uint64
	readBack   []memRange
	cubinPath  string
}

// memRange is a span of global memory printed after the launch.
type memRange struct {
	addr  uint64
	words int
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("kplsim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	var (
		grid   = fs.String("grid", "1", "Grid dimensions x[,y[,z]]")
		block  = fs.String("block", "32", "Block dimensions x[,y[,z]]")
		params = fs.String("params", "", "Comma-separated 32-bit kernel arguments")
		read   = fs.String("read", "", "Global memory to print after the run, addr:words[,addr:words]")
	)
	fs.StringVar(&opts.configPath, "config", "", "Path to emulator configuration JSON file")
	fs.StringVar(&opts.kernel, "kernel", "", "Kernel to run (default: the only kernel)")
	fs.BoolVar(&opts.disasm, "disasm", false, "Print the disassembly instead of running")
	fs.BoolVar(&opts.dump, "dump", false, "Print warp state after the run")
	fs.BoolVar(&opts.trace, "trace", false, "Trace every instruction on stderr")
	fs.BoolVar(&opts.verbose, "v", false, "Verbose output")
	fs.Uint64Var(&opts.maxInsts, "max-insts", 0, "Instruction limit (0: from config)")

	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: kplsim [options] <kernel.cubin>\n")
		_, _ = fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return nil, fmt.Errorf("missing cubin path")
	}
	opts.cubinPath = fs.Arg(0)

	var err error
	if opts.grid, err = parseDim(*grid); err != nil {
		return nil, fmt.Errorf("-grid: %w", err)
	}
	if opts.block, err = parseDim(*block); err != nil {
		return nil, fmt.Errorf("-block: %w", err)
	}
	if opts.params, err = parseWords(*params); err != nil {
		return nil, fmt.Errorf("-params: %w", err)
	}
	if opts.readBack, err = parseRanges(*read); err != nil {
		return nil, fmt.Errorf("-read: %w", err)
	}

	return &opts, nil
}

// parseDim parses "x", "x,y" or "x,y,z". Missing dimensions are 1.
func parseDim(s string) ([3]uint32, error) {
	dim := [3]uint32{1, 1, 1}

	parts := strings.Split(s, ",")
	if len(parts) > 3 {
		return dim, fmt.Errorf("too many dimensions in %q", s)
	}

	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 0, 32)
		if err != nil {
			return dim, fmt.Errorf("invalid dimension %q", p)
		}
		dim[i] = uint32(v)
	}

	return dim, nil
}

// parseWords parses a comma-separated list of 32-bit values. Negative
// values are stored in two's complement.
func parseWords(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}

	var words []uint32
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 0, 64)
		if err != nil || v < -(1<<31) || v >= 1<<32 {
			return nil, fmt.Errorf("invalid 32-bit value %q", p)
		}
		words = append(words, uint32(v))
	}

	return words, nil
}

func parseRanges(s string) ([]memRange, error) {
	if s == "" {
		return nil, nil
	}

	var ranges []memRange
	for _, p := range strings.Split(s, ",") {
		addr, words, ok := strings.Cut(strings.TrimSpace(p), ":")
		if !ok {
			return nil, fmt.Errorf("expected addr:words, got %q", p)
		}

		a, err := strconv.ParseUint(addr, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q", addr)
		}
		n, err := strconv.Atoi(words)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid word count %q", words)
		}

		ranges = append(ranges, memRange{addr: a, words: n})
	}

	return ranges, nil
}

// run executes the command line and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	cfg := config.Default()
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error loading config: %v\n", err)
			return 1
		}
	}
	if opts.maxInsts != 0 {
		cfg.MaxInstructions = opts.maxInsts
	}

	prog, err := loader.Load(opts.cubinPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error loading program: %v\n", err)
		return 1
	}

	k, err := prog.Kernel(opts.kernel)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if opts.verbose {
		_, _ = fmt.Fprintf(stdout, "Loaded: %s (sm_%d)\n", opts.cubinPath, prog.SM)
		_, _ = fmt.Fprintf(stdout, "Kernel: %s, %d bytes of code\n", k.Name, len(k.Code))
	}

	if opts.disasm {
		disassemble(stdout, insts.NewDecoder(), k.Code)
		return 0
	}

	if k.SharedSize > cfg.SharedMemorySize {
		_, _ = fmt.Fprintf(stderr,
			"Error: kernel %s needs %d bytes of shared memory, config has %d\n",
			k.Name, k.SharedSize, cfg.SharedMemorySize)
		return 1
	}

	emuOpts := []emu.EmulatorOption{
		emu.WithConfig(cfg),
		emu.WithStdout(stdout),
	}
	if opts.trace {
		emuOpts = append(emuOpts, emu.WithLogger(slog.New(
			slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: emu.LevelTrace}))))
	}
	emulator := emu.NewEmulator(emuOpts...)

	grid, err := emulator.NewGrid(
		&emu.Kernel{Name: k.Name, Code: k.Code, Const0: k.Const0},
		emu.LaunchConfig{
			GridDim:  opts.grid,
			BlockDim: opts.block,
			Params:   emu.Params(opts.params...),
		})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	atexit.Register(func() {
		if opts.verbose {
			_, _ = fmt.Fprintf(stdout, "Instructions executed: %d\n",
				grid.InstructionCount())
		}
	})

	runErr := grid.Run()

	if opts.dump {
		grid.Dump()
	}

	if runErr != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", runErr)
		return 1
	}

	for _, r := range opts.readBack {
		if err := printMemory(stdout, emulator.Memory(), r); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	return 0
}

// disassemble prints one line per instruction of code, skipping the
// scheduling control words.
func disassemble(w io.Writer, dec *insts.Decoder, code []byte) {
	for addr := 0; addr+insts.InstSize <= len(code); addr += insts.InstSize {
		if dec.IsControlWord(uint32(addr)) {
			continue
		}

		word := binary.LittleEndian.Uint64(code[addr:])
		inst := dec.Decode(word, uint32(addr))
		_, _ = fmt.Fprintf(w, "/*%04x*/ %-10s /* 0x%016x */\n", addr, inst, word)
	}
}

func printMemory(w io.Writer, m *emu.MemorySystem, r memRange) error {
	data, err := m.ReadGlobal(r.addr, uint64(4*r.words))
	if err != nil {
		return fmt.Errorf("reading 0x%x: %w", r.addr, err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Address", "Hex", "Int"})
	for i := 0; i < r.words; i++ {
		v := binary.LittleEndian.Uint32(data[4*i:])
		t.AppendRow(table.Row{
			fmt.Sprintf("0x%x", r.addr+uint64(4*i)),
			fmt.Sprintf("0x%08x", v),
			int32(v),
		})
	}
	t.Render()

	return nil
}
