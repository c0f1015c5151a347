// Package loader reads Kepler kernels from CUDA ELF (cubin) files.
package loader

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

// Section name prefixes of per-kernel sections. The kernel name follows the
// prefix.
const (
	TextPrefix   = ".text."
	ConstPrefix  = ".nv.constant0."
	SharedPrefix = ".nv.shared."
)

// SMMask selects the target SM version in the ELF header flags.
const SMMask = 0xff

// Kernel is one kernel function of a cubin.
type Kernel struct {
	// Name is the kernel's symbol name.
	Name string

	// Code is the content of the kernel's code section. Address 0 is its
	// first byte.
	Code []byte

	// Const0 is the initial content of constant bank 0, nil if the cubin
	// has none for this kernel.
	Const0 []byte

	// SharedSize is the static shared memory the kernel declares.
	SharedSize uint64
}

// Program represents a loaded cubin.
type Program struct {
	// SM is the target SM version, e.g. 35 for sm_35.
	SM uint32

	// Kernels holds every kernel in section order.
	Kernels []*Kernel
}

// Kernel returns the kernel with the given name. An empty name selects the
// only kernel of a single-kernel program.
func (p *Program) Kernel(name string) (*Kernel, error) {
	if name == "" && len(p.Kernels) == 1 {
		return p.Kernels[0], nil
	}

	names := make([]string, 0, len(p.Kernels))
	for _, k := range p.Kernels {
		if k.Name == name {
			return k, nil
		}
		names = append(names, k.Name)
	}

	return nil, fmt.Errorf("kernel %q not found (available: %s)",
		name, strings.Join(names, ", "))
}

// Load parses a CUDA ELF file and returns its kernels.
func Load(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Read(f)
}

// Read parses a CUDA ELF image.
func Read(r io.ReaderAt) (*Program, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF file: %w", err)
	}

	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("not a 64-bit ELF file")
	}

	if f.Machine != elf.EM_CUDA {
		return nil, fmt.Errorf("not a CUDA ELF file (machine type: %v)", f.Machine)
	}

	sm, err := smVersion(r, f.ByteOrder)
	if err != nil {
		return nil, err
	}

	prog := &Program{SM: sm}
	byName := make(map[string]*Kernel)
	kernel := func(name string) *Kernel {
		k, ok := byName[name]
		if !ok {
			k = &Kernel{Name: name}
			byName[name] = k
			prog.Kernels = append(prog.Kernels, k)
		}
		return k
	}

	for _, s := range f.Sections {
		switch {
		case s.Flags&elf.SHF_EXECINSTR != 0:
			data, err := s.Data()
			if err != nil {
				return nil, fmt.Errorf("failed to read section %s: %w", s.Name, err)
			}
			if len(data)%8 != 0 {
				return nil, fmt.Errorf("section %s: size %d is not a multiple of 8",
					s.Name, len(data))
			}
			kernel(strings.TrimPrefix(s.Name, TextPrefix)).Code = data

		case strings.HasPrefix(s.Name, ConstPrefix):
			data, err := s.Data()
			if err != nil {
				return nil, fmt.Errorf("failed to read section %s: %w", s.Name, err)
			}
			kernel(strings.TrimPrefix(s.Name, ConstPrefix)).Const0 = data

		case strings.HasPrefix(s.Name, SharedPrefix):
			kernel(strings.TrimPrefix(s.Name, SharedPrefix)).SharedSize = s.Size
		}
	}

	// Constant banks and shared declarations only count with their code.
	kernels := prog.Kernels[:0]
	for _, k := range prog.Kernels {
		if k.Code != nil {
			kernels = append(kernels, k)
		}
	}
	prog.Kernels = kernels

	if len(prog.Kernels) == 0 {
		return nil, fmt.Errorf("no kernel code sections")
	}

	return prog, nil
}

// smVersion reads e_flags, which debug/elf does not expose.
func smVersion(r io.ReaderAt, order binary.ByteOrder) (uint32, error) {
	var buf [4]byte
	if _, err := r.ReadAt(buf[:], 48); err != nil {
		return 0, fmt.Errorf("failed to read ELF flags: %w", err)
	}

	return order.Uint32(buf[:]) & SMMask, nil
}
