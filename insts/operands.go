package insts

// Register conventions shared by every encoding family.
const (
	// RegZero is RZ: reads as zero, writes are discarded.
	RegZero = 255
	// PredTrue is PT: always reads true.
	PredTrue = 7
	// PredNegate is set in a 4-bit predicate selector to negate it.
	PredNegate = 8
)

// OperandKind identifies where an operand value comes from.
type OperandKind uint8

// Operand kinds.
const (
	OperandNone OperandKind = iota
	OperandRegister
	OperandConstant // Value is a byte address into the constant banks
	OperandImmediate
)

// Operand is a decoded second-source operand.
type Operand struct {
	Kind  OperandKind
	Value uint32
}

// Field extracts the inclusive bit range [high:low] of the word.
func (inst *Instruction) Field(high, low uint) uint32 {
	return uint32(bits(inst.Word, high, low))
}

// Bit reports whether bit n of the word is set.
func (inst *Instruction) Bit(n uint) bool {
	return inst.Word>>n&1 == 1
}

// Pred returns the 4-bit guard predicate selector, bits [21:18].
func (inst *Instruction) Pred() uint8 {
	return uint8(inst.Field(21, 18))
}

// Dst returns the destination register, bits [9:2].
func (inst *Instruction) Dst() uint8 {
	return uint8(inst.Field(9, 2))
}

// SrcA returns the first source register, bits [17:10].
func (inst *Instruction) SrcA() uint8 {
	return uint8(inst.Field(17, 10))
}

// SrcC returns the third source register, bits [49:42].
func (inst *Instruction) SrcC() uint8 {
	return uint8(inst.Field(49, 42))
}

// SrcBField returns the raw 19-bit second-source field, bits [41:23].
func (inst *Instruction) SrcBField() uint32 {
	return inst.Field(41, 23)
}

// Imm32 returns the 32-bit immediate, bits [54:23].
func (inst *Instruction) Imm32() uint32 {
	return inst.Field(54, 23)
}

// SrcB decodes the second source according to the opcode's layout.
func (inst *Instruction) SrcB() Operand {
	switch inst.Info.SrcB {
	case SrcBRegOrConst:
		if inst.Bit(63) {
			return Operand{Kind: OperandRegister, Value: inst.SrcBField() & 0xff}
		}
		return Operand{Kind: OperandConstant, Value: inst.SrcBField() << 2}
	case SrcBImm20:
		v := inst.SrcBField()
		if inst.Bit(59) {
			v |= 0xfff80000
		}
		return Operand{Kind: OperandImmediate, Value: v}
	case SrcBImm32:
		return Operand{Kind: OperandImmediate, Value: inst.Imm32()}
	default:
		return Operand{Kind: OperandNone}
	}
}

// Offset returns the signed 24-bit branch offset, bits [46:23].
func (inst *Instruction) Offset() int32 {
	return int32(SignExtend(inst.Field(46, 23), 24))
}

// Backward reports whether the branch offset is negative.
func (inst *Instruction) Backward() bool {
	return inst.Bit(46)
}

// Target returns the PC-relative branch target.
func (inst *Instruction) Target() uint32 {
	return uint32(int64(inst.Addr) + InstSize + int64(inst.Offset()))
}

// ConstantMode reports whether a General1 target is read from the constant
// banks instead of being PC-relative, bit 7.
func (inst *Instruction) ConstantMode() bool {
	return inst.Bit(7)
}

// NoInc returns the no-increment modifier of CAL and JCAL, bit 8.
func (inst *Instruction) NoInc() bool {
	return inst.Bit(8)
}

// CC returns the condition-code selector of General2 instructions, bits [6:2].
func (inst *Instruction) CC() uint8 {
	return uint8(inst.Field(6, 2))
}

// Mod returns the General2 modifier field, bits [9:2].
func (inst *Instruction) Mod() uint8 {
	return uint8(inst.Field(9, 2))
}

// Src returns the General2 source field, bits [17:10].
func (inst *Instruction) Src() uint8 {
	return uint8(inst.Field(17, 10))
}

// SignExtend sign-extends the low width bits of value to 32 bits.
func SignExtend(value uint32, width uint) uint32 {
	if width == 0 || width >= 32 {
		return value
	}

	value &= 1<<width - 1
	if value>>(width-1)&1 == 1 {
		value |= 0xffffffff << width
	}
	return value
}
