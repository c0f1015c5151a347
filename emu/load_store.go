package emu

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/kplsim/insts"
)

// Memory data types of LD, ST, LDS and STS.
const (
	memU8  = 0
	memS8  = 1
	memU16 = 2
	memS16 = 3
	mem32  = 4
	mem64  = 5
	mem128 = 6
)

func accessSize(dataType uint32) (uint64, error) {
	switch dataType {
	case memU8, memS8:
		return 1, nil
	case memU16, memS16:
		return 2, nil
	case mem32:
		return 4, nil
	case mem64:
		return 8, nil
	case mem128:
		return 16, nil
	}
	return 0, unsupported("type", dataType)
}

// load reads from the memory a generic address points into.
func (t *Thread) load(addr uint32, size uint64) ([]byte, error) {
	m, local, err := t.route(addr, size)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return t.warp.mem().ReadGlobal(uint64(addr), size)
	}
	return m.Read(local, size)
}

// store writes to the memory a generic address points into.
func (t *Thread) store(addr uint32, data []byte) error {
	m, local, err := t.route(addr, uint64(len(data)))
	if err != nil {
		return err
	}
	if m == nil {
		return t.warp.mem().WriteGlobal(uint64(addr), data)
	}
	return m.Write(local, data)
}

// route finds the window holding addr. A nil Memory means global memory.
func (t *Thread) route(addr uint32, size uint64) (Memory, uint64, error) {
	a := uint64(addr)
	cfg := t.warp.cfg()

	switch {
	case a >= SharedWindowBase:
		off := a - SharedWindowBase
		if err := checkRange("shared", off, size, cfg.SharedMemorySize); err != nil {
			return nil, 0, err
		}
		return t.warp.block.shared, off, nil

	case a >= LocalWindowBase:
		off := a - LocalWindowBase
		if err := checkRange("local", off, size, cfg.LocalMemorySize); err != nil {
			return nil, 0, err
		}
		return t.localMemory(), off, nil
	}

	return nil, 0, nil
}

func (t *Thread) sharedLoad(addr uint32, size uint64) ([]byte, error) {
	if err := checkRange("shared", uint64(addr), size,
		t.warp.cfg().SharedMemorySize); err != nil {
		return nil, err
	}
	return t.warp.block.shared.Read(uint64(addr), size)
}

func (t *Thread) sharedStore(addr uint32, data []byte) error {
	if err := checkRange("shared", uint64(addr), uint64(len(data)),
		t.warp.cfg().SharedMemorySize); err != nil {
		return err
	}
	return t.warp.block.shared.Write(uint64(addr), data)
}

// writeLoaded unpacks loaded bytes into consecutive registers starting at
// dst, extending sub-word values.
func (t *Thread) writeLoaded(dst uint8, dataType uint32, data []byte) error {
	switch dataType {
	case memU8:
		t.WriteGPR(dst, uint32(data[0]))
	case memS8:
		t.WriteGPR(dst, uint32(int32(int8(data[0]))))
	case memU16:
		t.WriteGPR(dst, uint32(binary.LittleEndian.Uint16(data)))
	case memS16:
		t.WriteGPR(dst, uint32(int32(int16(binary.LittleEndian.Uint16(data)))))
	default:
		n := len(data) / 4
		if dst == insts.RegZero {
			return nil
		}
		if err := checkTuple(dst, len(data)); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			t.WriteGPR(dst+uint8(i), binary.LittleEndian.Uint32(data[4*i:]))
		}
	}
	return nil
}

// readStored packs consecutive registers starting at src into bytes. RZ
// stands for a tuple of zeros of any width.
func (t *Thread) readStored(src uint8, size uint64) ([]byte, error) {
	buf := make([]byte, max(size, 4))
	if src == insts.RegZero {
		return buf[:size], nil
	}
	if err := checkTuple(src, int(size)); err != nil {
		return nil, err
	}

	for i := uint64(0); i < max(size/4, 1); i++ {
		binary.LittleEndian.PutUint32(buf[4*i:], t.ReadGPR(src+uint8(i)))
	}
	return buf[:size], nil
}

// checkTuple rejects a register tuple that is not aligned to its width or
// runs into RZ.
func checkTuple(reg uint8, size int) error {
	n := max(size/4, 1)
	if int(reg)%n != 0 || int(reg)+n > insts.RegZero {
		return fmt.Errorf("%w: R%d is not aligned for a %d-byte access",
			ErrUnsupportedOperand, reg, size)
	}
	return nil
}

// globalAddr computes the address of LD and ST: a register plus a 31-bit
// offset whose direction bit 54 selects.
func (t *Thread) globalAddr(inst *insts.Instruction) uint32 {
	base := t.ReadGPR(inst.SrcA())
	off := inst.Field(53, 23)
	if inst.Bit(54) {
		return base - off
	}
	return base + off
}

func executeLD(t *Thread, inst *insts.Instruction) error {
	dataType := inst.Field(58, 56)
	size, err := accessSize(dataType)
	if err != nil {
		return err
	}

	data, err := t.load(t.globalAddr(inst), size)
	if err != nil {
		return err
	}

	return t.writeLoaded(inst.Dst(), dataType, data)
}

func executeST(t *Thread, inst *insts.Instruction) error {
	size, err := accessSize(inst.Field(58, 56))
	if err != nil {
		return err
	}

	data, err := t.readStored(inst.Dst(), size)
	if err != nil {
		return err
	}

	return t.store(t.globalAddr(inst), data)
}

// sharedAddr computes the address of LDS and STS: a register plus a signed
// 19-bit offset.
func (t *Thread) sharedAddr(inst *insts.Instruction) uint32 {
	return t.ReadGPR(inst.SrcA()) + insts.SignExtend(inst.SrcBField(), 19)
}

func executeLDS(t *Thread, inst *insts.Instruction) error {
	dataType := inst.Field(53, 51)
	size, err := accessSize(dataType)
	if err != nil {
		return err
	}

	data, err := t.sharedLoad(t.sharedAddr(inst), size)
	if err != nil {
		return err
	}

	return t.writeLoaded(inst.Dst(), dataType, data)
}

func executeSTS(t *Thread, inst *insts.Instruction) error {
	size, err := accessSize(inst.Field(53, 51))
	if err != nil {
		return err
	}

	data, err := t.readStored(inst.Dst(), size)
	if err != nil {
		return err
	}

	return t.sharedStore(t.sharedAddr(inst), data)
}

// executeLDC reads constant memory at bank [43:39], offset [38:23] plus a
// register.
func executeLDC(t *Thread, inst *insts.Instruction) error {
	dataType := inst.Field(53, 51)
	if dataType != mem32 && dataType != mem64 {
		return unsupported("u_or_s", dataType)
	}
	size, _ := accessSize(dataType)

	addr := inst.Field(38, 23) + t.ReadGPR(inst.SrcA()) + inst.Field(43, 39)<<16

	data, err := t.warp.mem().ReadConst(uint64(addr), size)
	if err != nil {
		return err
	}

	return t.writeLoaded(inst.Dst(), dataType, data)
}
