// Package emu provides functional Kepler SIMT emulation.
package emu

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rs/xid"

	"github.com/sarchlab/kplsim/config"
	"github.com/sarchlab/kplsim/insts"
)

// Kernel is a compiled kernel ready to launch.
type Kernel struct {
	// Name is the kernel's symbol name.
	Name string

	// Code is the machine code. Its length is a multiple of the
	// instruction size and address 0 is its first byte.
	Code []byte

	// Const0 is the initial content of constant bank 0.
	Const0 []byte
}

// LaunchConfig describes the grid of a launch.
type LaunchConfig struct {
	// GridDim is the number of thread blocks per dimension.
	GridDim [3]uint32

	// BlockDim is the number of threads per block per dimension.
	BlockDim [3]uint32

	// Params is the kernel parameter buffer, copied to constant bank 0.
	Params []byte
}

// launch holds the state every warp of one launch shares.
type launch struct {
	id       xid.ID
	code     []byte
	decoder  *insts.Decoder
	cfg      *config.Config
	mem      *MemorySystem
	gridDim  [3]uint32
	blockDim [3]uint32
	executed uint64
}

// Emulator executes Kepler kernels functionally.
type Emulator struct {
	cfg     *config.Config
	decoder *insts.Decoder
	memory  *MemorySystem
	global  Memory
	logger  *slog.Logger
	stdout  io.Writer

	instructionCount uint64
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) EmulatorOption {
	return func(e *Emulator) {
		e.cfg = cfg.Clone()
	}
}

// WithLogger sets the logger trace records go to.
func WithLogger(logger *slog.Logger) EmulatorOption {
	return func(e *Emulator) {
		e.logger = logger
	}
}

// WithStdout sets the writer state dumps go to.
func WithStdout(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stdout = w
	}
}

// WithMaxInstructions sets the maximum number of warp instructions a
// launch may execute. A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.cfg.MaxInstructions = max
	}
}

// WithGlobalMemory replaces the default global memory.
func WithGlobalMemory(m Memory) EmulatorOption {
	return func(e *Emulator) {
		e.global = m
	}
}

// NewEmulator creates a new Kepler emulator.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		cfg:     config.Default(),
		decoder: insts.NewDecoder(),
		stdout:  os.Stdout,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = NewLogger()
	}
	e.memory = NewMemorySystem(e.cfg, e.global)

	return e
}

// Config returns the emulator's configuration.
func (e *Emulator) Config() *config.Config {
	return e.cfg
}

// Memory returns the device memory.
func (e *Emulator) Memory() *MemorySystem {
	return e.memory
}

// Decoder returns the instruction decoder.
func (e *Emulator) Decoder() *insts.Decoder {
	return e.decoder
}

// InstructionCount returns the number of warp instructions executed by
// completed launches.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Grid is a prepared launch: every thread block, ready to run.
type Grid struct {
	emu    *Emulator
	launch *launch
	blocks []*ThreadBlock
	logger *slog.Logger
}

// NewGrid prepares a launch of k. It fills constant bank 0 and creates the
// thread blocks without running them.
func (e *Emulator) NewGrid(k *Kernel, lc LaunchConfig) (*Grid, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(k.Code) == 0 || len(k.Code)%insts.InstSize != 0 {
		return nil, fmt.Errorf("kernel %s: code size %d is not a multiple of %d",
			k.Name, len(k.Code), insts.InstSize)
	}
	for i := 0; i < 3; i++ {
		if lc.GridDim[i] == 0 || lc.BlockDim[i] == 0 {
			return nil, fmt.Errorf("kernel %s: zero launch dimension", k.Name)
		}
	}
	if len(k.Const0) > ConstBankSize {
		return nil, fmt.Errorf("kernel %s: constant bank 0 image of %d bytes",
			k.Name, len(k.Const0))
	}
	if ConstParamAddr+len(lc.Params) > ConstBankSize {
		return nil, fmt.Errorf("kernel %s: %d bytes of parameters",
			k.Name, len(lc.Params))
	}

	l := &launch{
		id:       xid.New(),
		code:     k.Code,
		decoder:  e.decoder,
		cfg:      e.cfg,
		mem:      e.memory,
		gridDim:  lc.GridDim,
		blockDim: lc.BlockDim,
	}

	if err := e.fillConstBank(k, lc); err != nil {
		return nil, fmt.Errorf("kernel %s: %w", k.Name, err)
	}

	g := &Grid{
		emu:    e,
		launch: l,
		logger: e.logger.With("Launch", l.id.String(), "Kernel", k.Name),
	}

	gx, gy, gz := lc.GridDim[0], lc.GridDim[1], lc.GridDim[2]
	for z := uint32(0); z < gz; z++ {
		for y := uint32(0); y < gy; y++ {
			for x := uint32(0); x < gx; x++ {
				id := len(g.blocks)
				g.blocks = append(g.blocks,
					newThreadBlock(id, [3]uint32{x, y, z}, l, g.logger))
			}
		}
	}

	return g, nil
}

// fillConstBank writes the kernel's constant bank 0 followed by the launch
// geometry, the local stack pointer and the parameters.
func (e *Emulator) fillConstBank(k *Kernel, lc LaunchConfig) error {
	if len(k.Const0) > 0 {
		if err := e.memory.WriteConst(0, k.Const0); err != nil {
			return err
		}
	}

	words := map[uint64]uint32{
		ConstStackTopAddr: uint32(LocalWindowBase + e.cfg.LocalMemorySize),
	}
	for i := 0; i < 3; i++ {
		words[ConstNTIDAddr+4*uint64(i)] = lc.BlockDim[i]
		words[ConstNCTAIDAddr+4*uint64(i)] = lc.GridDim[i]
	}
	for addr, v := range words {
		if err := e.memory.WriteConst32(addr, v); err != nil {
			return err
		}
	}

	if len(lc.Params) > 0 {
		if err := e.memory.WriteConst(ConstParamAddr, lc.Params); err != nil {
			return err
		}
	}

	return nil
}

// ID returns the launch id carried by every trace record of the launch.
func (g *Grid) ID() string {
	return g.launch.id.String()
}

// Blocks returns the thread blocks in launch order.
func (g *Grid) Blocks() []*ThreadBlock {
	return g.blocks
}

// InstructionCount returns the number of warp instructions executed so far.
func (g *Grid) InstructionCount() uint64 {
	return g.launch.executed
}

// Run executes the thread blocks one after another until each completes.
// The first error halts the launch.
func (g *Grid) Run() error {
	g.logger.Info("Launch", "Blocks", len(g.blocks),
		"BlockDim", g.launch.blockDim, "GridDim", g.launch.gridDim)

	defer func() {
		g.emu.instructionCount += g.launch.executed
	}()

	for _, b := range g.blocks {
		if err := b.Run(); err != nil {
			g.logger.Error("Launch failed", "Block", b.id, "Error", err)
			return err
		}
	}

	g.logger.Info("Launch complete", "Instructions", g.launch.executed)
	return nil
}

// Dump writes the state of every warp of the grid to the emulator's stdout.
func (g *Grid) Dump() {
	for _, b := range g.blocks {
		_, _ = fmt.Fprintf(g.emu.stdout, "Block %d %v\n", b.id, b.ctaid)
		for _, w := range b.warps {
			w.Dump(g.emu.stdout)
		}
	}
}

// Launch runs k to completion.
func (e *Emulator) Launch(k *Kernel, lc LaunchConfig) error {
	g, err := e.NewGrid(k, lc)
	if err != nil {
		return err
	}
	return g.Run()
}

// Params packs 32-bit kernel arguments into a parameter buffer.
func Params(args ...uint32) []byte {
	buf := make([]byte, 4*len(args))
	for i, a := range args {
		binary.LittleEndian.PutUint32(buf[4*i:], a)
	}
	return buf
}
