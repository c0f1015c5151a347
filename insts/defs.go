package insts

// tableLink attaches a child table to one or more slots of a parent table.
// The child indexes bits [high:low] of the instruction word.
type tableLink struct {
	parent string
	slots  []int
	child  string
	low    uint
	high   uint
}

// rootLow and rootHigh are the bits the root table examines.
const (
	rootLow  = 0
	rootHigh = 1
)

// tableLinks is the fixed skeleton of the decode tree. Parents must be
// declared before their children.
var tableLinks = []tableLink{
	{"root", []int{0}, "a", 61, 63},
	{"root", []int{1}, "b", 62, 63},
	{"root", []int{2}, "c", 62, 63},

	{"a", []int{0}, "a_a", 55, 60},

	{"b", []int{0}, "b_a", 61, 61},
	{"b", []int{1}, "b_b", 60, 61},
	{"b", []int{2}, "b_c", 60, 61},
	{"b", []int{3}, "b_d", 60, 61},
	{"b_c", []int{0}, "b_c_a", 58, 58},
	{"b_c", []int{1}, "b_c_b", 58, 58},
	{"b_c", []int{2}, "b_c_c", 58, 58},
	{"b_c", []int{3}, "b_c_d", 57, 58},
	{"b_c_d", []int{1}, "b_c_d_a", 55, 56},
	{"b_c_d", []int{2}, "b_c_d_b", 55, 56},
	{"b_c_d", []int{3}, "b_c_d_c", 55, 56},
	{"b_c_d_c", []int{1}, "b_c_d_c_a", 54, 54},
	{"b_c_d_c", []int{2}, "b_c_d_c_b", 54, 54},
	{"b_c_d_c", []int{3}, "b_c_d_c_c", 54, 54},
	{"b_d", []int{0}, "b_d_a", 54, 58},

	{"c", []int{0}, "c_a", 60, 61},
	{"c", []int{1, 2, 3}, "c_b", 59, 62},
	{"c_a", []int{2}, "c_a_a", 59, 59},
	{"c_a", []int{3}, "c_a_b", 59, 59},
	{"c_b", []int{1, 9}, "c_b_a", 58, 58},
	{"c_b", []int{2, 10}, "c_b_b", 58, 58},
	{"c_b", []int{3, 11}, "c_b_c", 57, 58},
	{"c_b", []int{12}, "c_b_d", 54, 58},
	{"c_b", []int{0, 4, 5, 6, 7, 13, 14, 15}, "c_b_e", 62, 63},
	{"c_b_c", []int{1}, "c_b_c_a", 55, 56},
	{"c_b_c", []int{2}, "c_b_c_b", 55, 56},
	{"c_b_c", []int{3}, "c_b_c_c", 55, 56},
	{"c_b_c_c", []int{1}, "c_b_c_c_a", 54, 54},
	{"c_b_c_c", []int{2}, "c_b_c_c_b", 54, 54},
	{"c_b_c_c", []int{3}, "c_b_c_c_c", 54, 54},
	{"c_b_e", []int{1}, "c_b_e_a", 59, 61},
	{"c_b_e", []int{2}, "c_b_e_b", 61, 61},
	{"c_b_e", []int{3}, "c_b_e_c", 59, 59},
	{"c_b_e_a", []int{6}, "c_b_e_a_a", 56, 58},
	{"c_b_e_a", []int{7}, "c_b_e_a_b", 58, 58},
	{"c_b_e_a_a", []int{4}, "c_b_e_a_a_a", 55, 55},
	{"c_b_e_a_a", []int{5}, "c_b_e_a_a_b", 53, 55},
	{"c_b_e_a_a", []int{6}, "c_b_e_a_a_c", 55, 55},
	{"c_b_e_a_a", []int{7}, "c_b_e_a_a_d", 54, 55},
	{"c_b_e_a_a_c", []int{1}, "c_b_e_a_a_c_a", 54, 54},
	{"c_b_e_a_b", []int{0}, "c_b_e_a_b_a", 56, 57},
	{"c_b_e_a_b", []int{1}, "c_b_e_a_b_b", 54, 57},
	{"c_b_e_a_b_a", []int{0}, "c_b_e_a_b_a_a", 54, 55},
	{"c_b_e_a_b_a", []int{1}, "c_b_e_a_b_a_b", 55, 55},
	{"c_b_e_a_b_a", []int{2}, "c_b_e_a_b_a_c", 54, 55},
	{"c_b_e_b", []int{0}, "c_b_e_b_a", 58, 58},
	{"c_b_e_b", []int{1}, "c_b_e_b_b", 59, 60},
	{"c_b_e_b_a", []int{1}, "c_b_e_b_a_a", 54, 57},
}

// instDef declares a recognized instruction and the index path that leads
// from the root table to its leaf.
type instDef struct {
	info OpcodeInfo
	path []int
}

func def(op Op, name string, format Format, srcB SrcBLayout, path ...int) instDef {
	return instDef{
		info: OpcodeInfo{Op: op, Name: name, Format: format, SrcB: srcB},
		path: path,
	}
}

// Paths into c_b go through c slot 1 unless the leaf needs bit 62 clear.
var instDefs = []instDef{
	// Loads and stores: root a, bits [63:61].
	def(OpLD, "LD", FormatGeneral0, SrcBNone, 0, 6),
	def(OpST, "ST", FormatGeneral0, SrcBNone, 0, 7),

	// Control flow: a_a, bits [60:55].
	def(OpJCAL, "JCAL", FormatGeneral1, SrcBNone, 0, 0, 32),
	def(OpJMP, "JMP", FormatGeneral1, SrcBNone, 0, 0, 33),
	def(OpJMX, "JMX", FormatGeneral1, SrcBNone, 0, 0, 34),
	def(OpBRA, "BRA", FormatGeneral1, SrcBNone, 0, 0, 36),
	def(OpBRX, "BRX", FormatGeneral1, SrcBNone, 0, 0, 37),
	def(OpCAL, "CAL", FormatGeneral1, SrcBNone, 0, 0, 38),
	def(OpPRET, "PRET", FormatGeneral1, SrcBNone, 0, 0, 39),
	def(OpPLONGJMP, "PLONGJMP", FormatGeneral1, SrcBNone, 0, 0, 40),
	def(OpSSY, "SSY", FormatGeneral1, SrcBNone, 0, 0, 41),
	def(OpPBK, "PBK", FormatGeneral1, SrcBNone, 0, 0, 42),
	def(OpPCNT, "PCNT", FormatGeneral1, SrcBNone, 0, 0, 43),
	def(OpGETCRSPTR, "GETCRSPTR", FormatGeneral2, SrcBNone, 0, 0, 44),
	def(OpGETLMEMBASE, "GETLMEMBASE", FormatGeneral2, SrcBNone, 0, 0, 45),
	def(OpSETCRSPTR, "SETCRSPTR", FormatGeneral2, SrcBNone, 0, 0, 46),
	def(OpSETLMEMBASE, "SETLMEMBASE", FormatGeneral2, SrcBNone, 0, 0, 47),
	def(OpEXIT, "EXIT", FormatGeneral2, SrcBNone, 0, 0, 48),
	def(OpLONGJMP, "LONGJMP", FormatGeneral2, SrcBNone, 0, 0, 49),
	def(OpRET, "RET", FormatGeneral2, SrcBNone, 0, 0, 50),
	def(OpKIL, "KIL", FormatGeneral2, SrcBNone, 0, 0, 51),
	def(OpBRK, "BRK", FormatGeneral2, SrcBNone, 0, 0, 52),
	def(OpCONT, "CONT", FormatGeneral2, SrcBNone, 0, 0, 53),
	def(OpRTT, "RTT", FormatGeneral2, SrcBNone, 0, 0, 54),
	def(OpSAM, "SAM", FormatGeneral2, SrcBNone, 0, 0, 55),
	def(OpRAM, "RAM", FormatGeneral2, SrcBNone, 0, 0, 56),
	def(OpBPT, "BPT", FormatGeneral2, SrcBNone, 0, 0, 57),

	// Immediate forms: b.
	def(OpFFMAImm, "FFMA", FormatGeneral0, SrcBImm20, 1, 0, 0),
	def(OpISETImm, "ISET", FormatGeneral0, SrcBImm20, 1, 2, 3, 1, 1),
	def(OpISETPImm, "ISETP", FormatGeneral0, SrcBImm20, 1, 2, 3, 1, 2),
	def(OpICMPImm, "ICMP", FormatGeneral0, SrcBImm20, 1, 2, 3, 1, 3),
	def(OpFSETImm, "FSET", FormatGeneral0, SrcBImm20, 1, 2, 3, 2, 0),
	def(OpIADDImm, "IADD", FormatGeneral0, SrcBImm20, 1, 3, 0, 2),
	def(OpISCADDImm, "ISCADD", FormatGeneral0, SrcBImm20, 1, 3, 0, 3),
	def(OpISADImm, "ISAD", FormatGeneral0, SrcBImm20, 1, 3, 0, 4),
	def(OpIMULImm, "IMUL", FormatGeneral0, SrcBImm20, 1, 3, 0, 5),
	def(OpBFEImm, "BFE", FormatGeneral0, SrcBImm20, 1, 3, 0, 6),
	def(OpBFIImm, "BFI", FormatGeneral0, SrcBImm20, 1, 3, 0, 7),
	def(OpLOPImm, "LOP", FormatGeneral0, SrcBImm20, 1, 3, 0, 8),
	def(OpSHLImm, "SHL", FormatGeneral0, SrcBImm20, 1, 3, 0, 9),
	def(OpSHRImm, "SHR", FormatGeneral0, SrcBImm20, 1, 3, 0, 10),
	def(OpFADDImm, "FADD", FormatGeneral0, SrcBImm20, 1, 3, 0, 11),
	def(OpSELImm, "SEL", FormatGeneral0, SrcBImm20, 1, 3, 0, 12),
	def(OpMOVImm, "MOV", FormatGeneral0, SrcBImm20, 1, 3, 0, 19),
	def(OpI2FImm, "I2F", FormatGeneral0, SrcBImm20, 1, 3, 0, 20),
	def(OpI2IImm, "I2I", FormatGeneral0, SrcBImm20, 1, 3, 0, 21),
	def(OpF2IImm, "F2I", FormatGeneral0, SrcBImm20, 1, 3, 0, 22),
	def(OpF2FImm, "F2F", FormatGeneral0, SrcBImm20, 1, 3, 0, 23),
	def(OpIMADSPImm, "IMADSP", FormatGeneral0, SrcBImm20, 1, 3, 0, 24),

	// Register and constant-bank forms: c.
	def(OpMUFU, "MUFU", FormatGeneral0, SrcBNone, 2, 1, 9, 0),
	def(OpFFMA, "FFMA", FormatGeneral0, SrcBRegOrConst, 2, 1, 9, 1),
	def(OpIMAD, "IMAD", FormatGeneral0, SrcBRegOrConst, 2, 1, 10, 0),
	def(OpSHF, "SHF", FormatGeneral0, SrcBRegOrConst, 2, 1, 10, 1),
	def(OpIDE, "IDE", FormatGeneral0, SrcBNone, 2, 1, 8),
	def(OpISET, "ISET", FormatGeneral0, SrcBRegOrConst, 2, 1, 11, 1, 1),
	def(OpISETP, "ISETP", FormatGeneral0, SrcBRegOrConst, 2, 1, 11, 1, 2),
	def(OpICMP, "ICMP", FormatGeneral0, SrcBRegOrConst, 2, 1, 11, 1, 3),
	def(OpFSET, "FSET", FormatGeneral0, SrcBRegOrConst, 2, 1, 11, 2, 0),
	def(OpLDC, "LDC", FormatGeneral0, SrcBNone, 2, 1, 11, 3, 1, 0),
	def(OpPSETP, "PSETP", FormatGeneral0, SrcBNone, 2, 1, 11, 3, 1, 1),
	def(OpLDS, "LDS", FormatGeneral0, SrcBNone, 2, 1, 11, 3, 2, 0),
	def(OpSTS, "STS", FormatGeneral0, SrcBNone, 2, 1, 11, 3, 2, 1),
	def(OpIADD, "IADD", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 2),
	def(OpISCADD, "ISCADD", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 3),
	def(OpISAD, "ISAD", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 4),
	def(OpIMUL, "IMUL", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 5),
	def(OpBFE, "BFE", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 6),
	def(OpBFI, "BFI", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 7),
	def(OpLOP, "LOP", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 8),
	def(OpSHL, "SHL", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 9),
	def(OpSHR, "SHR", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 10),
	def(OpFADD, "FADD", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 11),
	def(OpSEL, "SEL", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 12),
	def(OpFMUL, "FMUL", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 13),
	def(OpDADD, "DADD", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 14),
	def(OpMOV, "MOV", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 19),
	def(OpI2F, "I2F", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 20),
	def(OpI2I, "I2I", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 21),
	def(OpF2I, "F2I", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 22),
	def(OpF2F, "F2F", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 23),
	def(OpIMADSP, "IMADSP", FormatGeneral0, SrcBRegOrConst, 2, 1, 12, 24),

	// 32-bit immediates: c_b_e_a_a.
	def(OpMOV32I, "MOV32I", FormatImm32, SrcBImm32, 2, 1, 14, 1, 6, 4, 0),
	def(OpIADD32I, "IADD32I", FormatImm32, SrcBImm32, 1, 1, 0),
	def(OpLOP32I, "LOP32I", FormatImm32, SrcBImm32, 1, 0, 1),
	def(OpISCADD32I, "ISCADD32I", FormatImm32, SrcBImm32, 2, 1, 14, 1, 6, 6, 1, 0),
	def(OpFADD32I, "FADD32I", FormatImm32, SrcBImm32, 2, 1, 14, 1, 6, 7, 0),
	def(OpFFMA32I, "FFMA32I", FormatImm32, SrcBImm32, 2, 1, 14, 1, 6, 7, 1),
	def(OpIMAD32I, "IMAD32I", FormatImm32, SrcBImm32, 2, 1, 14, 1, 6, 7, 2),

	// Barrier and special registers: c_b_e_b_a_a, bits [57:54].
	def(OpBAR, "BAR", FormatGeneral0, SrcBNone, 2, 2, 0, 2, 0, 1, 5),
	def(OpNOP, "NOP", FormatGeneral0, SrcBNone, 2, 2, 0, 2, 0, 1, 6),
	def(OpS2R, "S2R", FormatGeneral0, SrcBNone, 2, 2, 0, 2, 0, 1, 9),
}
