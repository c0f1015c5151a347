package emu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sarchlab/kplsim/config"
	"github.com/sarchlab/kplsim/insts"
)

// Warp is a group of threads that share one PC and execute in lockstep
// under an active mask.
type Warp struct {
	id      int
	block   *ThreadBlock
	launch  *launch
	threads []*Thread
	logger  *slog.Logger

	pc       uint32
	targetPC uint32

	activeMask   uint32
	tempMask     uint32 // Taken lanes collected by BRA
	finishedMask uint32

	stack   *SyncStack
	returns *ReturnStack

	finished  bool
	atBarrier bool
	executed  uint64
}

func newWarp(id int, b *ThreadBlock, l *launch, logger *slog.Logger) *Warp {
	return &Warp{
		id:      id,
		block:   b,
		launch:  l,
		logger:  logger.With("Warp", id),
		stack:   NewSyncStack(),
		returns: NewReturnStack(),
	}
}

// addThread appends the next lane. The active mask covers every lane the
// warp holds.
func (w *Warp) addThread(id int, tid [3]uint32) {
	lane := len(w.threads)
	w.threads = append(w.threads, newThread(w, lane, id, tid))
	w.activeMask |= 1 << uint(lane)
}

// ID returns the warp index within its thread block.
func (w *Warp) ID() int {
	return w.id
}

// PC returns the address of the next instruction.
func (w *Warp) PC() uint32 {
	return w.pc
}

// SetPC moves the warp to addr.
func (w *Warp) SetPC(addr uint32) {
	w.pc = addr
}

// ActiveMask returns the lanes that execute the next instruction.
func (w *Warp) ActiveMask() uint32 {
	return w.activeMask
}

// SetActiveMask overrides the active mask.
func (w *Warp) SetActiveMask(mask uint32) {
	w.activeMask = mask
}

// FinishedMask returns the lanes that have executed EXIT.
func (w *Warp) FinishedMask() uint32 {
	return w.finishedMask
}

// Finished reports whether the warp has completed.
func (w *Warp) Finished() bool {
	return w.finished
}

// AtBarrier reports whether the warp waits at a BAR.
func (w *Warp) AtBarrier() bool {
	return w.atBarrier
}

// Threads returns the lanes of the warp.
func (w *Warp) Threads() []*Thread {
	return w.threads
}

// Thread returns the given lane.
func (w *Warp) Thread(lane int) *Thread {
	return w.threads[lane]
}

// SyncStack returns the sync stack currently in use.
func (w *Warp) SyncStack() *SyncStack {
	return w.stack
}

// CallDepth returns the number of pending CALs.
func (w *Warp) CallDepth() int {
	return w.returns.Len()
}

// InstructionCount returns the number of instructions the warp executed.
func (w *Warp) InstructionCount() uint64 {
	return w.executed
}

func (w *Warp) cfg() *config.Config {
	return w.launch.cfg
}

func (w *Warp) mem() *MemorySystem {
	return w.launch.mem
}

// fetch reads and decodes the instruction at the PC.
func (w *Warp) fetch() *insts.Instruction {
	word := binary.LittleEndian.Uint64(w.launch.code[w.pc : w.pc+insts.InstSize])
	return w.launch.decoder.Decode(word, w.pc)
}

// Execute runs one instruction for every lane and advances the PC.
func (w *Warp) Execute() error {
	if w.finished {
		return nil
	}

	if limit := w.cfg().MaxInstructions; limit > 0 && w.launch.executed >= limit {
		return ErrMaxInstructions
	}

	inst := w.fetch()
	handler := handlers[inst.Op]

	switch {
	case w.launch.decoder.IsControlWord(w.pc):
		handler = executeSpecial
	case !inst.IsValid():
		if w.cfg().StrictDecode {
			return w.fail(inst, -1, fmt.Errorf("%w: 0x%016x",
				ErrUnknownEncoding, inst.Word))
		}
		w.trace("Unknown", "Word", fmt.Sprintf("0x%016x", inst.Word))
		handler = executeSpecial
	default:
		w.trace("Issue", "Inst", inst.String(), "Active", hex(w.activeMask))
	}

	for _, t := range w.threads {
		if err := handler(t, inst); err != nil {
			return w.fail(inst, t.lane, err)
		}
	}

	w.pc = w.targetPC
	w.executed++
	w.launch.executed++

	if !w.finished && int(w.pc)+insts.InstSize > len(w.launch.code) {
		w.finish()
	}

	return nil
}

// fail attaches the warp position to an error.
func (w *Warp) fail(inst *insts.Instruction, lane int, err error) error {
	var wf warpFault
	if errors.As(err, &wf) {
		lane = -1
		err = wf.err
	}

	return &ExecError{
		PC:    w.pc,
		Inst:  inst.String(),
		Block: w.block.ID(),
		Warp:  w.id,
		Lane:  lane,
		Err:   err,
	}
}

// warpFault marks an error raised by the warp-level part of an instruction
// rather than by a single lane.
type warpFault struct {
	err error
}

func (f warpFault) Error() string { return f.err.Error() }
func (f warpFault) Unwrap() error { return f.err }

func warpError(format string, args ...any) error {
	return warpFault{err: fmt.Errorf(format, args...)}
}

func (w *Warp) finish() {
	w.finished = true
	w.trace("WarpDone", "Executed", w.executed)
	w.block.warpDone()
}

// Dump renders the warp state followed by its sync stack.
func (w *Warp) Dump(out io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(fmt.Sprintf("Warp %d", w.id))
	t.AppendHeader(table.Row{"PC", "Active", "Finished", "Calls", "State"})

	state := "running"
	switch {
	case w.finished:
		state = "finished"
	case w.atBarrier:
		state = "barrier"
	}

	t.AppendRow(table.Row{
		fmt.Sprintf("0x%04X", w.pc),
		fmt.Sprintf("0x%08X", w.activeMask),
		fmt.Sprintf("0x%08X", w.finishedMask),
		w.returns.Len(),
		state,
	})
	t.Render()

	w.stack.Dump(out)
}
