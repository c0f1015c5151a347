package emu

import (
	"math/bits"

	"github.com/sarchlab/kplsim/insts"
)

// Control-flow instructions. Each handler runs its per-lane part on every
// lane and its warp-level part on the last lane, after all per-lane parts
// of the same instruction have run.

// executeSpecial runs scheduling control words and, unless strict decoding
// is on, unrecognized words. Both only advance the PC.
func executeSpecial(t *Thread, inst *insts.Instruction) error {
	t.begin(inst)
	t.fallThrough()
	return nil
}

func executeNOP(t *Thread, inst *insts.Instruction) error {
	t.begin(inst)
	t.fallThrough()
	return nil
}

func executeUnimplemented(t *Thread, inst *insts.Instruction) error {
	return ErrUnimplementedInstruction
}

func executeBRA(t *Thread, inst *insts.Instruction) error {
	w := t.warp

	t.begin(inst)
	if t.lane == 0 {
		w.tempMask = 0
	}
	if t.enabled() {
		w.tempMask |= t.bit()
	}

	if !t.isLast() {
		return nil
	}

	return w.branch(inst)
}

// branch resolves a BRA once every lane has voted.
func (w *Warp) branch(inst *insts.Instruction) error {
	taken := bits.OnesCount32(w.tempMask)
	active := bits.OnesCount32(w.activeMask)
	next := w.pc + insts.InstSize
	target, err := w.target(inst)
	if err != nil {
		return err
	}

	w.trace("BRA",
		"Offset", inst.Offset(),
		"Target", hex(target),
		"Active", hex(w.activeMask),
		"Taken", hex(w.tempMask),
	)

	switch {
	case taken == 0:
		w.targetPC = next

	case taken == active:
		w.stack.PopTillTarget(target, w.pc)
		w.targetPC = target

	case !inst.Backward():
		if err := w.stack.Push(target, w.tempMask, EntryBranch); err != nil {
			return warpFault{err: err}
		}

		w.activeMask &^= w.tempMask
		if bits.OnesCount32(w.activeMask) != active-taken {
			return warpError("%w: taken mask 0x%X is not a subset of "+
				"active mask 0x%X", ErrStackInconsistency,
				w.tempMask, w.activeMask|w.tempMask)
		}
		w.targetPC = next

	default:
		// The not-taken lanes of a divergent loop back-edge wait at the
		// reconvergence point already on the stack.
		w.activeMask = w.tempMask
		if w.stack.PopTillTarget(target, w.pc) {
			return warpError("%w: backward branch to 0x%X skips pending "+
				"reconvergence points", ErrStackInconsistency, target)
		}
		w.targetPC = target
	}

	return nil
}

// structuredTarget returns the address pushed by SSY, PBK and PCNT.
func (w *Warp) structuredTarget(inst *insts.Instruction) (uint32, error) {
	if inst.ConstantMode() {
		if inst.Op != insts.OpSSY {
			return 0, warpFault{err: unsupported("constant", 1)}
		}

		addr, err := w.mem().ReadConst32(uint64(inst.Field(46, 23)) << 2)
		if err != nil {
			return 0, warpFault{err: err}
		}
		return addr, nil
	}

	if inst.Op != insts.OpSSY && inst.Backward() {
		return 0, warpFault{err: unsupported("offset", uint32(inst.Offset()))}
	}

	return w.target(inst)
}

// target resolves a PC-relative target, which must lie within the code.
func (w *Warp) target(inst *insts.Instruction) (uint32, error) {
	addr := int64(inst.Addr) + insts.InstSize + int64(inst.Offset())
	if addr < 0 || addr > int64(len(w.launch.code)) {
		return 0, warpError("%w: offset %d from 0x%X leaves the code",
			ErrUnsupportedOperand, inst.Offset(), inst.Addr)
	}
	return uint32(addr), nil
}

func executeSSY(t *Thread, inst *insts.Instruction) error {
	return pushStructured(t, inst, EntrySync)
}

func executePBK(t *Thread, inst *insts.Instruction) error {
	return pushStructured(t, inst, EntryLoopBreak)
}

func executePCNT(t *Thread, inst *insts.Instruction) error {
	return pushStructured(t, inst, EntryLoopContinue)
}

func pushStructured(t *Thread, inst *insts.Instruction, et EntryType) error {
	w := t.warp

	t.begin(inst)
	if !t.isLast() {
		return nil
	}

	addr, err := w.structuredTarget(inst)
	if err != nil {
		return err
	}

	mask := w.activeMask
	if et == EntryLoopContinue && w.cfg().PCNTZeroMask {
		mask = 0
	}

	w.trace(et.String(), "Target", hex(addr), "Mask", hex(mask))

	if err := w.stack.Push(addr, mask, et); err != nil {
		return warpFault{err: err}
	}

	w.targetPC = w.pc + insts.InstSize
	return nil
}

func executeBRK(t *Thread, inst *insts.Instruction) error {
	return leaveLoop(t, inst, MaskBreak)
}

func executeCONT(t *Thread, inst *insts.Instruction) error {
	return leaveLoop(t, inst, MaskContinue)
}

// leaveLoop parks every enabled lane at the enclosing PBK or PCNT and jumps
// there once no lane is left behind.
func leaveLoop(t *Thread, inst *insts.Instruction, mt MaskType) error {
	w := t.warp

	t.begin(inst)
	if t.enabled() {
		if err := w.stack.Mask(t.lane, mt); err != nil {
			return err
		}
		w.activeMask &^= t.bit()
	}

	if !t.isLast() {
		return nil
	}

	var (
		addr uint32
		ok   bool
	)
	if mt == MaskBreak {
		addr, ok = w.stack.CheckBreak()
	} else {
		addr, ok = w.stack.CheckContinue()
	}

	w.trace(mt.String(), "Active", hex(w.activeMask), "Target", hex(addr),
		"Ready", ok)

	if ok && w.activeMask == 0 {
		w.stack.PopTillTarget(addr, w.pc)
		w.targetPC = addr
		return nil
	}

	w.targetPC = w.pc + insts.InstSize
	return nil
}

func executeEXIT(t *Thread, inst *insts.Instruction) error {
	w := t.warp

	t.begin(inst)
	if t.enabled() {
		if err := w.stack.Mask(t.lane, MaskExit); err != nil {
			return err
		}
		w.returns.exitLane(t.lane)
		w.activeMask &^= t.bit()
		w.finishedMask |= t.bit()
	}

	if !t.isLast() {
		return nil
	}

	w.trace("EXIT", "Active", hex(w.activeMask),
		"Finished", hex(w.finishedMask))

	w.targetPC = w.pc + insts.InstSize

	switch n := bits.OnesCount32(w.finishedMask); {
	case n > len(w.threads):
		return warpError("%w: %d lanes finished in a warp of %d",
			ErrStackInconsistency, n, len(w.threads))
	case n == len(w.threads):
		w.finish()
	}

	return nil
}

func executeCAL(t *Thread, inst *insts.Instruction) error {
	w := t.warp

	t.begin(inst)
	if !t.isLast() {
		return nil
	}

	next := w.pc + insts.InstSize
	if w.activeMask == 0 {
		w.targetPC = next
		return nil
	}

	target, err := w.target(inst)
	if err != nil {
		return err
	}

	w.returns.Push(CallFrame{
		ReturnAddr: next,
		Mask:       w.activeMask,
		Saved:      w.stack,
	})
	w.stack = NewSyncStack()
	w.targetPC = target

	w.trace("CAL", "Target", hex(w.targetPC), "Mask", hex(w.activeMask),
		"Depth", w.returns.Len())

	return nil
}

func executeRET(t *Thread, inst *insts.Instruction) error {
	w := t.warp

	t.begin(inst)
	if !t.isLast() {
		return nil
	}

	frame, ok := w.returns.Pop()
	if !ok {
		return warpError("%w: RET without a pending CAL",
			ErrStackInconsistency)
	}
	if frame.Mask != w.activeMask {
		return warpError("%w: RET with mask 0x%X, CAL had 0x%X",
			ErrStackInconsistency, w.activeMask, frame.Mask)
	}

	w.trace("RET", "Target", hex(frame.ReturnAddr), "Depth", w.returns.Len())

	w.stack = frame.Saved
	w.targetPC = frame.ReturnAddr
	return nil
}

func executeBAR(t *Thread, inst *insts.Instruction) error {
	w := t.warp

	t.begin(inst)
	if !t.isLast() {
		return nil
	}

	w.targetPC = w.pc + insts.InstSize
	w.block.arrive(w)
	return nil
}
