package emu

import "github.com/sarchlab/kplsim/insts"

// handlers maps every opcode to its handler. Recognized opcodes without a
// behavioral model raise ErrUnimplementedInstruction.
var handlers = newHandlerTable()

func newHandlerTable() [insts.OpCount]handlerFunc {
	var h [insts.OpCount]handlerFunc
	for op := range h {
		h[op] = executeUnimplemented
	}

	h[insts.OpInvalid] = executeSpecial

	// Control flow
	h[insts.OpBRA] = executeBRA
	h[insts.OpSSY] = executeSSY
	h[insts.OpPBK] = executePBK
	h[insts.OpPCNT] = executePCNT
	h[insts.OpBRK] = executeBRK
	h[insts.OpCONT] = executeCONT
	h[insts.OpEXIT] = executeEXIT
	h[insts.OpCAL] = executeCAL
	h[insts.OpRET] = executeRET
	h[insts.OpBAR] = executeBAR
	h[insts.OpNOP] = executeNOP
	h[insts.OpBPT] = executeNOP

	// Integer
	h[insts.OpIADD] = gated(executeIADD)
	h[insts.OpIADDImm] = gated(executeIADD)
	h[insts.OpIADD32I] = gated(executeIADD32I)
	h[insts.OpISCADD] = gated(executeISCADD)
	h[insts.OpISCADDImm] = gated(executeISCADD)
	h[insts.OpIMUL] = gated(executeIMUL)
	h[insts.OpIMULImm] = gated(executeIMUL)
	h[insts.OpIMAD] = gated(executeIMAD)
	h[insts.OpISETP] = gated(executeISETP)
	h[insts.OpISETPImm] = gated(executeISETP)
	h[insts.OpLOP] = gated(executeLOP)
	h[insts.OpLOPImm] = gated(executeLOP)
	h[insts.OpLOP32I] = gated(executeLOP32I)
	h[insts.OpSHL] = gated(executeSHL)
	h[insts.OpSHLImm] = gated(executeSHL)
	h[insts.OpSHR] = gated(executeSHR)
	h[insts.OpSHRImm] = gated(executeSHR)
	h[insts.OpBFE] = gated(executeBFE)
	h[insts.OpBFEImm] = gated(executeBFE)
	h[insts.OpSEL] = gated(executeSEL)
	h[insts.OpSELImm] = gated(executeSEL)

	// Moves
	h[insts.OpMOV] = gated(executeMOV)
	h[insts.OpMOVImm] = gated(executeMOV)
	h[insts.OpMOV32I] = gated(executeMOV32I)
	h[insts.OpS2R] = gated(executeS2R)

	// Floating point
	h[insts.OpFADD] = gated(executeFADD)
	h[insts.OpFADDImm] = gated(executeFADD)
	h[insts.OpFMUL] = gated(executeFMUL)
	h[insts.OpFFMA] = gated(executeFFMA)
	h[insts.OpFFMAImm] = gated(executeFFMA)

	// Memory
	h[insts.OpLD] = gated(executeLD)
	h[insts.OpST] = gated(executeST)
	h[insts.OpLDC] = gated(executeLDC)
	h[insts.OpLDS] = gated(executeLDS)
	h[insts.OpSTS] = gated(executeSTS)

	return h
}
