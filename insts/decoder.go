package insts

import "fmt"

// InstSize is the size in bytes of every Kepler instruction word.
const InstSize = 8

// ControlWordStride is the distance between scheduling control words. The
// word at every multiple of this address carries issue hints for the
// following seven instructions and is not an instruction itself.
const ControlWordStride = 64

// Instruction represents a decoded Kepler instruction.
type Instruction struct {
	Word uint64      // Raw instruction word
	Addr uint32      // Byte address of the word
	Op   Op          // Operation code
	Info *OpcodeInfo // Opcode metadata, never nil
}

// String returns the mnemonic, or <unknown> for unrecognized words.
func (inst *Instruction) String() string {
	return inst.Info.Name
}

// IsValid reports whether the word decoded to a recognized opcode.
func (inst *Instruction) IsValid() bool {
	return inst.Op != OpInvalid
}

// Decoder decodes Kepler machine code into instructions. A Decoder is
// immutable after construction and may be shared by any number of warps.
type Decoder struct {
	root  *decodeTable
	paths [OpCount][]int
}

// NewDecoder builds the decode table. It panics if two instruction
// definitions collide, since that can only be a programming error.
func NewDecoder() *Decoder {
	root, err := buildTable(tableLinks, instDefs)
	if err != nil {
		panic(fmt.Sprintf("kepler decode table: %v", err))
	}

	d := &Decoder{root: root}
	for i := range instDefs {
		d.paths[instDefs[i].info.Op] = instDefs[i].path
	}

	return d
}

// Decode decodes the 64-bit instruction word found at addr.
func (d *Decoder) Decode(word uint64, addr uint32) *Instruction {
	table := d.root
	low, high := uint(rootLow), uint(rootHigh)

	for {
		node := &table.nodes[bits(word, high, low)]
		if !node.isInternal() {
			info := node.info
			if info == nil {
				info = invalidInfo
			}
			return &Instruction{Word: word, Addr: addr, Op: info.Op, Info: info}
		}

		table = node.next
		low, high = node.low, node.high
	}
}

// IsControlWord reports whether addr holds a scheduling control word.
func (d *Decoder) IsControlWord(addr uint32) bool {
	return addr%ControlWordStride == 0
}

// Encode returns operandBits with every bit on op's table path forced to
// the value that selects op. It fails if the path assigns conflicting
// values to the same bit.
func (d *Decoder) Encode(op Op, operandBits uint64) (uint64, error) {
	if op == OpInvalid || op >= OpCount || d.paths[op] == nil {
		return 0, fmt.Errorf("no encoding for opcode %d", op)
	}

	word := operandBits
	var fixed uint64

	table := d.root
	low, high := uint(rootLow), uint(rootHigh)
	path := d.paths[op]

	for depth, index := range path {
		fieldMask := mask(high, low)
		value := uint64(index) << low

		if (word^value)&fieldMask&fixed != 0 {
			return 0, fmt.Errorf("%s: table %s needs bits [%d:%d]=%d, "+
				"already fixed differently", op, table.name, high, low, index)
		}

		word = word&^fieldMask | value
		fixed |= fieldMask

		if depth == len(path)-1 {
			break
		}

		node := &table.nodes[index]
		table = node.next
		low, high = node.low, node.high
	}

	return word, nil
}

// Validate checks that every slot of the table tree is exactly one of an
// internal node or a leaf.
func (d *Decoder) Validate() error {
	seen := make(map[*decodeTable]bool)
	return validateTable(d.root, seen)
}

func validateTable(t *decodeTable, seen map[*decodeTable]bool) error {
	if seen[t] {
		return nil
	}
	seen[t] = true

	for i := range t.nodes {
		node := &t.nodes[i]
		switch {
		case node.isInternal() && node.isLeaf():
			return fmt.Errorf("%s[%d] is both internal and leaf", t.name, i)
		case !node.isInternal() && !node.isLeaf():
			return fmt.Errorf("%s[%d] is empty", t.name, i)
		case node.isInternal():
			if node.high < node.low || node.high > 63 {
				return fmt.Errorf("%s[%d] has bad range [%d:%d]",
					t.name, i, node.high, node.low)
			}
			if err := validateTable(node.next, seen); err != nil {
				return err
			}
		}
	}

	return nil
}

// bits extracts the inclusive bit range [high:low] of word.
func bits(word uint64, high, low uint) uint64 {
	return (word >> low) & (1<<(high-low+1) - 1)
}

// mask returns a mask covering bits [high:low].
func mask(high, low uint) uint64 {
	return (1<<(high-low+1) - 1) << low
}
