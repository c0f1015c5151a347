package emu

import (
	"fmt"

	"github.com/sarchlab/akita/v4/mem/mem"

	"github.com/sarchlab/kplsim/insts"
)

// handlerFunc executes one instruction for one lane. Warp.Execute calls the
// handler for every lane in order, so lane 0 runs first and the last lane
// runs last. The warp-level parts of an instruction hang off those two
// calls.
type handlerFunc func(t *Thread, inst *insts.Instruction) error

// Thread is one lane of a warp.
type Thread struct {
	RegFile

	warp  *Warp
	lane  int       // Index within the warp
	id    int       // Linear index within the thread block
	tid   [3]uint32 // Thread index within the block
	local Memory    // Allocated on first use

	// Latched by begin for the instruction being executed.
	active bool
	pred   bool
}

func newThread(w *Warp, lane, id int, tid [3]uint32) *Thread {
	return &Thread{
		warp: w,
		lane: lane,
		id:   id,
		tid:  tid,
	}
}

// Lane returns the lane index within the warp.
func (t *Thread) Lane() int {
	return t.lane
}

// ID returns the linear thread index within the thread block.
func (t *Thread) ID() int {
	return t.id
}

// TID returns the thread index within the block.
func (t *Thread) TID() [3]uint32 {
	return t.tid
}

func (t *Thread) bit() uint32 {
	return 1 << uint(t.lane)
}

// begin performs the reconvergence check on lane 0, then latches whether
// this lane is active and whether its guard predicate holds.
func (t *Thread) begin(inst *insts.Instruction) {
	w := t.warp

	if t.lane == 0 && w.pc != 0 {
		if found, mask := w.stack.Pop(w.pc); found {
			w.trace("Reconverge", "Mask", hex(mask))
			w.activeMask = mask
		}
	}

	t.active = w.activeMask&t.bit() != 0
	t.pred = t.ReadPred(inst.Pred())
}

func (t *Thread) enabled() bool {
	return t.active && t.pred
}

func (t *Thread) isLast() bool {
	return t.lane == len(t.warp.threads)-1
}

// fallThrough sets the warp's next PC to the following instruction.
func (t *Thread) fallThrough() {
	if t.isLast() {
		t.warp.targetPC = t.warp.pc + insts.InstSize
	}
}

// gated wraps a data-path instruction with the lane protocol: the body runs
// only on enabled lanes and the warp always falls through.
func gated(body handlerFunc) handlerFunc {
	return func(t *Thread, inst *insts.Instruction) error {
		t.begin(inst)
		if t.enabled() {
			if err := body(t, inst); err != nil {
				return err
			}
		}
		t.fallThrough()
		return nil
	}
}

// srcB resolves the second source operand to a value.
func (t *Thread) srcB(inst *insts.Instruction) (uint32, error) {
	op := inst.SrcB()
	switch op.Kind {
	case insts.OperandRegister:
		return t.ReadGPR(uint8(op.Value)), nil
	case insts.OperandConstant:
		return t.warp.mem().ReadConst32(uint64(op.Value))
	case insts.OperandImmediate:
		return op.Value, nil
	default:
		return 0, fmt.Errorf("%w: %s has no second source",
			ErrUnsupportedOperand, inst)
	}
}

func (t *Thread) localMemory() Memory {
	if t.local == nil {
		t.local = mem.NewStorage(t.warp.cfg().LocalMemorySize)
	}
	return t.local
}

// readSpecial returns the value S2R reads from a special register.
func (t *Thread) readSpecial(sr SpecialReg) (uint32, error) {
	w := t.warp
	b := w.block
	l := w.launch

	switch sr {
	case SRLaneID:
		return uint32(t.lane), nil
	case SRClock, SRClockLo:
		return uint32(l.executed), nil
	case SRClockHi:
		return uint32(l.executed >> 32), nil
	case SRVirtCfg, SRVirtID:
		return 0, nil
	case SRTID:
		return packDim(t.tid), nil
	case SRTIDX, SRTIDY, SRTIDZ:
		return t.tid[sr-SRTIDX], nil
	case SRCTAIDX, SRCTAIDY, SRCTAIDZ:
		return b.ctaid[sr-SRCTAIDX], nil
	case SRNTID:
		return packDim(l.blockDim), nil
	case SRNTIDX, SRNTIDY, SRNTIDZ:
		return l.blockDim[sr-SRNTIDX], nil
	case SRNCTAIDX, SRNCTAIDY, SRNCTAIDZ:
		return l.gridDim[sr-SRNCTAIDX], nil
	case SRSMemSize:
		return uint32(l.cfg.SharedMemorySize), nil
	case SREqMask:
		return t.bit(), nil
	case SRLtMask:
		return t.bit() - 1, nil
	case SRLeMask:
		return t.bit()<<1 - 1, nil
	case SRGtMask:
		return ^(t.bit()<<1 - 1), nil
	case SRGeMask:
		return ^(t.bit() - 1), nil
	}

	return 0, unsupported("sr", uint32(sr))
}

// packDim packs a 3D index the way SR_TID and SR_NTID present it.
func packDim(d [3]uint32) uint32 {
	return d[0]&0xffff | (d[1]&0x3ff)<<16 | (d[2]&0x3f)<<26
}

func executeS2R(t *Thread, inst *insts.Instruction) error {
	v, err := t.readSpecial(SpecialReg(inst.Field(30, 23)))
	if err != nil {
		return err
	}

	t.WriteGPR(inst.Dst(), v)
	return nil
}
