package insts

// BuildWithExtra builds the decode table with one more definition appended,
// returning the build error.
func BuildWithExtra(op Op, name string, path ...int) error {
	defs := append([]instDef(nil), instDefs...)
	defs = append(defs, def(op, name, FormatGeneral0, SrcBNone, path...))

	_, err := buildTable(tableLinks, defs)
	return err
}
