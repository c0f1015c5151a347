package insts

// Op represents a Kepler opcode.
//
// Opcodes with both an immediate and a register/constant encoding have two
// values: the Imm variant takes a 20-bit signed immediate as its second
// source, the plain variant takes a register or a constant-bank operand.
type Op uint16

// Kepler opcodes. OpInvalid is reserved for unrecognized encodings.
const (
	OpInvalid Op = iota
	OpBAR
	OpBFEImm
	OpBFE
	OpBFIImm
	OpBFI
	OpBPT
	OpBRA
	OpBRK
	OpBRX
	OpCAL
	OpCONT
	OpDADD
	OpEXIT
	OpF2FImm
	OpF2F
	OpF2IImm
	OpF2I
	OpFADD32I
	OpFADDImm
	OpFADD
	OpFFMA32I
	OpFFMAImm
	OpFFMA
	OpFMUL
	OpFSETImm
	OpFSET
	OpGETCRSPTR
	OpGETLMEMBASE
	OpI2FImm
	OpI2F
	OpI2IImm
	OpI2I
	OpIADD32I
	OpIADDImm
	OpIADD
	OpICMPImm
	OpICMP
	OpIDE
	OpIMAD
	OpIMAD32I
	OpIMADSPImm
	OpIMADSP
	OpIMULImm
	OpIMUL
	OpISADImm
	OpISAD
	OpISCADD32I
	OpISCADDImm
	OpISCADD
	OpISETPImm
	OpISETP
	OpISETImm
	OpISET
	OpJCAL
	OpJMP
	OpJMX
	OpKIL
	OpLD
	OpLDC
	OpLDS
	OpLONGJMP
	OpLOP32I
	OpLOPImm
	OpLOP
	OpMOV32I
	OpMOVImm
	OpMOV
	OpMUFU
	OpNOP
	OpPBK
	OpPCNT
	OpPLONGJMP
	OpPRET
	OpPSETP
	OpRAM
	OpRET
	OpRTT
	OpS2R
	OpSAM
	OpSELImm
	OpSEL
	OpSETCRSPTR
	OpSETLMEMBASE
	OpSHF
	OpSHLImm
	OpSHL
	OpSHRImm
	OpSHR
	OpSSY
	OpST
	OpSTS

	// OpCount is the number of opcodes, OpInvalid included. Handler tables
	// indexed by Op have this length.
	OpCount
)

// Format represents an instruction encoding family.
type Format uint8

// Encoding families.
const (
	FormatInvalid  Format = iota
	FormatGeneral0        // ALU, memory and special-register instructions
	FormatGeneral1        // PC-relative control flow (BRA, SSY, CAL, ...)
	FormatGeneral2        // operand-less control flow (EXIT, RET, BRK, ...)
	FormatImm32           // 32-bit immediate variants (MOV32I, IADD32I, ...)
)

// String returns the family name.
func (f Format) String() string {
	switch f {
	case FormatGeneral0:
		return "General0"
	case FormatGeneral1:
		return "General1"
	case FormatGeneral2:
		return "General2"
	case FormatImm32:
		return "Imm32"
	default:
		return "Invalid"
	}
}

// SrcBLayout describes how an opcode encodes its second source operand.
type SrcBLayout uint8

// Second-source layouts.
const (
	// SrcBNone means the opcode has no generic second source.
	SrcBNone SrcBLayout = iota
	// SrcBRegOrConst reads bits [41:23]. Bit 63 set selects the GPR named
	// by the low 8 bits; clear selects the constant bank address field<<2.
	SrcBRegOrConst
	// SrcBImm20 reads a 19-bit magnitude from [41:23] with its sign at
	// bit 59, sign-filled with 0xfff80000.
	SrcBImm20
	// SrcBImm32 reads a full 32-bit immediate from [54:23].
	SrcBImm32
)

// OpcodeInfo is the immutable metadata of a recognized opcode.
type OpcodeInfo struct {
	Op     Op
	Name   string
	Format Format
	SrcB   SrcBLayout
}

// invalidInfo is installed in every table slot no definition claims.
var invalidInfo = &OpcodeInfo{
	Op:     OpInvalid,
	Name:   "<unknown>",
	Format: FormatInvalid,
}

var opInfos [OpCount]*OpcodeInfo

func init() {
	opInfos[OpInvalid] = invalidInfo
	for i := range instDefs {
		def := &instDefs[i]
		opInfos[def.info.Op] = &def.info
	}
}

// Info returns the metadata for an opcode. Unknown values map to the
// invalid opcode.
func (op Op) Info() *OpcodeInfo {
	if op >= OpCount || opInfos[op] == nil {
		return invalidInfo
	}
	return opInfos[op]
}

// String returns the mnemonic of the opcode.
func (op Op) String() string {
	return op.Info().Name
}
