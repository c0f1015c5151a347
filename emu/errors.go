package emu

import (
	"errors"
	"fmt"
)

// Error classes raised during execution. Every error that escapes a warp
// step wraps one of them.
var (
	// ErrUnknownEncoding is raised for unrecognized words when strict
	// decoding is enabled. Otherwise such words execute as no-ops.
	ErrUnknownEncoding = errors.New("unknown instruction encoding")

	// ErrUnimplementedInstruction is raised for recognized opcodes that have
	// no behavioral model.
	ErrUnimplementedInstruction = errors.New("unimplemented instruction")

	// ErrUnsupportedOperand is raised for operand encodings outside the
	// verified subset of an implemented instruction.
	ErrUnsupportedOperand = errors.New("unsupported operand variant")

	// ErrStackInconsistency is raised when the divergence bookkeeping cannot
	// represent the control flow of the program.
	ErrStackInconsistency = errors.New("divergence stack inconsistency")

	// ErrOutOfRange is raised for memory accesses outside the configured
	// address spaces.
	ErrOutOfRange = errors.New("memory access out of range")

	// ErrMaxInstructions is returned when the instruction budget runs out.
	ErrMaxInstructions = errors.New("max instructions reached")
)

// ExecError carries the location of a fatal execution error.
type ExecError struct {
	PC    uint32 // Address of the failing instruction
	Inst  string // Mnemonic of the failing instruction
	Block int    // Linear thread block id within the grid
	Warp  int    // Warp id within its thread block
	Lane  int    // Lane id, or -1 when the whole warp is affected
	Err   error
}

func (e *ExecError) Error() string {
	if e.Lane < 0 {
		return fmt.Sprintf("%s at PC=0x%X (block %d, warp %d): %v",
			e.Inst, e.PC, e.Block, e.Warp, e.Err)
	}
	return fmt.Sprintf("%s at PC=0x%X (block %d, warp %d, lane %d): %v",
		e.Inst, e.PC, e.Block, e.Warp, e.Lane, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

func unsupported(field string, value uint32) error {
	return fmt.Errorf("%w: %s=%d", ErrUnsupportedOperand, field, value)
}
