// Package insts provides Kepler SASS instruction definitions and decoding.
//
// Kepler instructions are fixed-width 64-bit words. The decoder walks a
// hierarchical bitfield table: each level examines a range of bits that
// selects either a deeper table or a leaf naming the opcode. Leaf paths are
// declared once per opcode in defs.go and the table is built from them when
// a Decoder is constructed.
//
// Operand fields are read through the accessors on Instruction. Their bit
// positions are fixed per encoding family (General0, General1, General2 and
// the 32-bit immediate family); the encoding of the second source operand is
// declared per opcode.
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x18000000001c003c, 0x8) // EXIT
//	fmt.Printf("Op: %v, Pred: %d\n", inst, inst.Pred())
package insts
