package emu

import (
	"math"
	"math/bits"

	"github.com/sarchlab/kplsim/insts"
)

// Integer and floating-point data-path instructions. Every handler here
// runs through gated, so it only sees enabled lanes.

// Logic operations of LOP and LOP32I.
const (
	lopAND   = 0
	lopOR    = 1
	lopXOR   = 2
	lopPassB = 3
)

// setAddFlags writes the condition codes of a 32-bit add.
func (t *Thread) setAddFlags(a, b, carry, result uint32, extended bool) {
	if extended {
		t.CC.ZF = result == 0 && t.CC.ZF
	} else {
		t.CC.ZF = result == 0
	}
	t.CC.SF = int32(result) < 0
	t.CC.CF = uint64(a)+uint64(b)+uint64(carry) > math.MaxUint32

	sum := int64(int32(a)) + int64(int32(b)) + int64(carry)
	t.CC.OF = sum > math.MaxInt32 || sum < math.MinInt32
}

func (t *Thread) carry() uint32 {
	if t.CC.CF {
		return 1
	}
	return 0
}

// add implements the shared part of IADD and IADD32I. po selects .PO (3),
// or the negation of b (1) or a (2).
func (t *Thread) add(inst *insts.Instruction, a, b, po uint32,
	x, cc, sat bool) error {
	if sat {
		return unsupported("sat", 1)
	}

	var lsb uint32
	switch po {
	case 1:
		b = ^b
		lsb = 1
	case 2:
		a = ^a
		lsb = 1
	case 3:
		lsb = 1
	}
	if x {
		lsb = t.carry()
	}

	result := a + b + lsb
	if cc {
		t.setAddFlags(a, b, lsb, result, x)
	}

	t.WriteGPR(inst.Dst(), result)
	return nil
}

func executeIADD(t *Thread, inst *insts.Instruction) error {
	b, err := t.srcB(inst)
	if err != nil {
		return err
	}

	return t.add(inst, t.ReadGPR(inst.SrcA()), b, inst.Field(52, 51),
		inst.Bit(46), inst.Bit(50), inst.Bit(53))
}

func executeIADD32I(t *Thread, inst *insts.Instruction) error {
	return t.add(inst, t.ReadGPR(inst.SrcA()), inst.Imm32(), inst.Field(59, 58),
		inst.Bit(56), inst.Bit(55), inst.Bit(57))
}

func executeISCADD(t *Thread, inst *insts.Instruction) error {
	b, err := t.srcB(inst)
	if err != nil {
		return err
	}

	a := t.ReadGPR(inst.SrcA())
	switch inst.Field(52, 51) {
	case 1:
		b = -b
	case 2:
		a = -a
	case 3:
		return unsupported("po", 3)
	}

	a <<= inst.Field(46, 42)
	result := a + b
	if inst.Bit(50) {
		t.setAddFlags(a, b, 0, result, false)
	}

	t.WriteGPR(inst.Dst(), result)
	return nil
}

func executeIMUL(t *Thread, inst *insts.Instruction) error {
	b, err := t.srcB(inst)
	if err != nil {
		return err
	}
	if inst.Bit(50) {
		return unsupported("cc", 1)
	}

	a := t.ReadGPR(inst.SrcA())
	signedA := inst.Bit(43)
	signedB := inst.Bit(44)

	var product uint64
	if signedA || signedB {
		product = uint64(extend(a, signedA) * extend(b, signedB))
	} else {
		product = uint64(a) * uint64(b)
	}

	if inst.Bit(42) {
		t.WriteGPR(inst.Dst(), uint32(product>>32))
	} else {
		t.WriteGPR(inst.Dst(), uint32(product))
	}
	return nil
}

func extend(v uint32, signed bool) int64 {
	if signed {
		return int64(int32(v))
	}
	return int64(v)
}

func executeIMAD(t *Thread, inst *insts.Instruction) error {
	b, err := t.srcB(inst)
	if err != nil {
		return err
	}

	a := t.ReadGPR(inst.SrcA())
	c := t.ReadGPR(inst.SrcC())
	t.WriteGPR(inst.Dst(), a*b+c)
	return nil
}

// executeISETP compares two signed integers and combines the result with a
// third predicate.
//
// The XOR combination is only reached when the compare operation is EQ,
// matching the hardware model this emulator reproduces; other XOR forms
// are reported as unsupported.
func executeISETP(t *Thread, inst *insts.Instruction) error {
	b, err := t.srcB(inst)
	if err != nil {
		return err
	}

	a := t.ReadGPR(inst.SrcA())
	if inst.Bit(46) {
		a -= t.carry()
	}
	sa, sb := int32(a), int32(b)

	dst := inst.Dst()
	p1, p2 := dst>>3&7, dst&7

	p3 := t.ReadPred(uint8(inst.Field(44, 42)))
	if inst.Bit(45) {
		p3 = !p3
	}

	cmpOp := inst.Field(54, 54)<<2 | inst.Field(53, 52)
	var res bool
	switch cmpOp {
	case 1:
		res = sa < sb
	case 2:
		res = sa == sb
	case 3:
		res = sa <= sb
	case 4:
		res = sa > sb
	case 5:
		res = sa != sb
	case 6:
		res = sa >= sb
	default:
		return unsupported("cmp", cmpOp)
	}

	var r1, r2 bool
	switch boolOp := inst.Field(49, 48); {
	case boolOp == 0:
		r1, r2 = res && p3, !res && p3
	case boolOp == 1:
		r1, r2 = res || p3, !res || p3
	case cmpOp == 2:
		r1, r2 = res != p3, res == p3
	default:
		return unsupported("bool", boolOp)
	}

	t.WritePred(p1, r1)
	t.WritePred(p2, r2)
	return nil
}

func logic(op, a, b uint32) uint32 {
	switch op {
	case lopAND:
		return a & b
	case lopOR:
		return a | b
	case lopXOR:
		return a ^ b
	default: // lopPassB
		return b
	}
}

func executeLOP(t *Thread, inst *insts.Instruction) error {
	b, err := t.srcB(inst)
	if err != nil {
		return err
	}
	if inst.Bit(46) {
		return unsupported("x", 1)
	}

	a := t.ReadGPR(inst.SrcA())
	if inst.Bit(42) {
		a = ^a
	}
	if inst.Bit(43) {
		b = ^b
	}

	t.WriteGPR(inst.Dst(), logic(inst.Field(45, 44), a, b))
	return nil
}

func executeLOP32I(t *Thread, inst *insts.Instruction) error {
	if inst.Bit(60) {
		return unsupported("x", 1)
	}

	a := t.ReadGPR(inst.SrcA())
	b := inst.Imm32()
	if inst.Bit(58) {
		a = ^a
	}
	if inst.Bit(59) {
		b = ^b
	}

	t.WriteGPR(inst.Dst(), logic(inst.Field(57, 56), a, b))
	return nil
}

func executeSHL(t *Thread, inst *insts.Instruction) error {
	b, err := t.srcB(inst)
	if err != nil {
		return err
	}
	if inst.Bit(46) {
		return unsupported("x", 1)
	}

	// .W wraps the shift amount; otherwise amounts past 31 clear the result.
	if inst.Bit(42) {
		b &= 31
	}

	a := t.ReadGPR(inst.SrcA())
	t.WriteGPR(inst.Dst(), a<<b)
	return nil
}

func executeSHR(t *Thread, inst *insts.Instruction) error {
	b, err := t.srcB(inst)
	if err != nil {
		return err
	}
	if x := inst.Field(47, 46); x != 0 {
		return unsupported("x", x)
	}

	a := t.ReadGPR(inst.SrcA())
	if inst.Bit(43) {
		a = bits.Reverse32(a)
	}
	if inst.Bit(42) {
		b &= 31
	}

	if inst.Bit(51) {
		t.WriteGPR(inst.Dst(), uint32(int32(a)>>min(b, 31)))
	} else {
		t.WriteGPR(inst.Dst(), a>>b)
	}
	return nil
}

// executeBFE extracts a bit field. srcB packs the start position in bits
// [7:0] and the length in bits [15:8].
func executeBFE(t *Thread, inst *insts.Instruction) error {
	if inst.SrcB().Kind == insts.OperandConstant {
		return unsupported("srcB_mod", 0)
	}

	b, err := t.srcB(inst)
	if err != nil {
		return err
	}

	a := t.ReadGPR(inst.SrcA())
	if inst.Bit(43) {
		a = bits.Reverse32(a)
	}

	pos := b & 0xff
	size := b >> 8 & 0xff
	signed := inst.Bit(51)

	var result uint32
	switch {
	case size == 0:
		result = 0
	case pos >= 32:
		if signed && int32(a) < 0 {
			result = math.MaxUint32
		}
	case pos+size >= 32:
		if signed {
			result = uint32(int32(a) >> pos)
		} else {
			result = a >> pos
		}
	default:
		shifted := a << (32 - pos - size)
		if signed {
			result = uint32(int32(shifted) >> (32 - size))
		} else {
			result = shifted >> (32 - size)
		}
	}

	t.WriteGPR(inst.Dst(), result)
	return nil
}

func executeSEL(t *Thread, inst *insts.Instruction) error {
	b, err := t.srcB(inst)
	if err != nil {
		return err
	}

	if t.ReadPred(uint8(inst.Field(45, 42))) {
		t.WriteGPR(inst.Dst(), t.ReadGPR(inst.SrcA()))
	} else {
		t.WriteGPR(inst.Dst(), b)
	}
	return nil
}

func executeMOV(t *Thread, inst *insts.Instruction) error {
	b, err := t.srcB(inst)
	if err != nil {
		return err
	}

	t.WriteGPR(inst.Dst(), b)
	return nil
}

func executeMOV32I(t *Thread, inst *insts.Instruction) error {
	if inst.Bit(22) {
		return unsupported("s", 1)
	}

	t.WriteGPR(inst.Dst(), inst.Imm32())
	return nil
}

// srcBFloat resolves the second source of a float instruction. A 20-bit
// immediate holds the top bits of the float32 value.
func (t *Thread) srcBFloat(inst *insts.Instruction) (float32, error) {
	op := inst.SrcB()
	if op.Kind == insts.OperandImmediate && inst.Info.SrcB == insts.SrcBImm20 {
		v := inst.SrcBField() << 12
		if inst.Bit(59) {
			v |= 1 << 31
		}
		return math.Float32frombits(v), nil
	}

	v, err := t.srcB(inst)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (t *Thread) readFloat(reg uint8) float32 {
	return math.Float32frombits(t.ReadGPR(reg))
}

func (t *Thread) writeFloat(reg uint8, v float32) {
	t.WriteGPR(reg, math.Float32bits(v))
}

func saturate(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v > 0:
		return v
	default:
		return 0
	}
}

func executeFADD(t *Thread, inst *insts.Instruction) error {
	b, err := t.srcBFloat(inst)
	if err != nil {
		return err
	}
	if inst.Bit(50) {
		return unsupported("cc", 1)
	}
	if rnd := inst.Field(43, 42); rnd != 0 {
		return unsupported("round", rnd)
	}

	a := t.readFloat(inst.SrcA())
	if inst.Bit(49) {
		a = float32(math.Abs(float64(a)))
	}
	if inst.Bit(51) {
		a = -a
	}
	if inst.Bit(52) {
		b = float32(math.Abs(float64(b)))
	}
	if inst.Bit(48) {
		b = -b
	}

	result := a + b
	if inst.Bit(53) {
		result = saturate(result)
	}

	t.writeFloat(inst.Dst(), result)
	return nil
}

func executeFMUL(t *Thread, inst *insts.Instruction) error {
	b, err := t.srcBFloat(inst)
	if err != nil {
		return err
	}
	if inst.Bit(50) {
		return unsupported("cc", 1)
	}

	result := t.readFloat(inst.SrcA()) * b
	if inst.Bit(53) {
		result = saturate(result)
	}

	t.writeFloat(inst.Dst(), result)
	return nil
}

func executeFFMA(t *Thread, inst *insts.Instruction) error {
	b, err := t.srcBFloat(inst)
	if err != nil {
		return err
	}
	if inst.Bit(50) {
		return unsupported("cc", 1)
	}
	if rnd := inst.Field(55, 54); rnd != 0 {
		return unsupported("round", rnd)
	}

	a := t.readFloat(inst.SrcA())
	c := t.readFloat(inst.SrcC())
	if inst.Bit(51) {
		a = -a
	}
	if inst.Bit(52) {
		c = -c
	}

	result := float32(math.FMA(float64(a), float64(b), float64(c)))
	if inst.Bit(53) {
		result = saturate(result)
	}

	t.writeFloat(inst.Dst(), result)
	return nil
}
