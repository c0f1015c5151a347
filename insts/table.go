package insts

import "fmt"

// tableNode is one slot of a decode table. A slot is either internal (next
// is set, and low/high name the bits the next table examines) or a leaf
// (info is set).
type tableNode struct {
	next *decodeTable
	low  uint
	high uint
	info *OpcodeInfo
}

func (n *tableNode) isInternal() bool { return n.next != nil }
func (n *tableNode) isLeaf() bool     { return n.info != nil }

// decodeTable is one level of the decode tree.
type decodeTable struct {
	name  string
	nodes []tableNode
}

func newDecodeTable(name string, low, high uint) *decodeTable {
	return &decodeTable{
		name:  name,
		nodes: make([]tableNode, 1<<(high-low+1)),
	}
}

// buildTable constructs the decode tree from a skeleton and a list of
// instruction definitions. Any collision between two definitions, or
// between a definition and the skeleton, is reported as an error.
func buildTable(links []tableLink, defs []instDef) (*decodeTable, error) {
	root := newDecodeTable("root", rootLow, rootHigh)
	tables := map[string]*decodeTable{"root": root}

	for _, link := range links {
		parent, ok := tables[link.parent]
		if !ok {
			return nil, fmt.Errorf("table %s links from undeclared table %s",
				link.child, link.parent)
		}
		if _, dup := tables[link.child]; dup {
			return nil, fmt.Errorf("table %s declared twice", link.child)
		}

		child := newDecodeTable(link.child, link.low, link.high)
		tables[link.child] = child

		for _, slot := range link.slots {
			if slot < 0 || slot >= len(parent.nodes) {
				return nil, fmt.Errorf("table %s: slot %d out of range for %s",
					link.child, slot, parent.name)
			}

			node := &parent.nodes[slot]
			if node.isInternal() || node.isLeaf() {
				return nil, fmt.Errorf("table %s: slot %s[%d] already taken",
					link.child, parent.name, slot)
			}

			node.next = child
			node.low = link.low
			node.high = link.high
		}
	}

	for i := range defs {
		if err := installLeaf(root, &defs[i]); err != nil {
			return nil, err
		}
	}

	for _, t := range tables {
		for i := range t.nodes {
			node := &t.nodes[i]
			if !node.isInternal() && !node.isLeaf() {
				node.info = invalidInfo
			}
		}
	}

	return root, nil
}

func installLeaf(root *decodeTable, d *instDef) error {
	if len(d.path) == 0 {
		return fmt.Errorf("%s: empty table path", d.info.Name)
	}

	table := root
	for depth, index := range d.path {
		if index < 0 || index >= len(table.nodes) {
			return fmt.Errorf("%s: index %d out of range for table %s",
				d.info.Name, index, table.name)
		}

		node := &table.nodes[index]
		if depth == len(d.path)-1 {
			if node.isInternal() {
				return fmt.Errorf("%s: slot %s[%d] holds table %s",
					d.info.Name, table.name, index, node.next.name)
			}
			if node.isLeaf() {
				return fmt.Errorf("%s: slot %s[%d] collides with %s",
					d.info.Name, table.name, index, node.info.Name)
			}
			node.info = &d.info
			return nil
		}

		if node.isLeaf() {
			return fmt.Errorf("%s: path crosses leaf %s at %s[%d]",
				d.info.Name, node.info.Name, table.name, index)
		}
		if !node.isInternal() {
			return fmt.Errorf("%s: no table at %s[%d]",
				d.info.Name, table.name, index)
		}
		table = node.next
	}

	return nil
}
