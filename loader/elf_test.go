package loader_test

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/kplsim/loader"
)

var _ = Describe("Cubin Loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "cubin-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	code := func(words ...uint64) []byte {
		buf := make([]byte, 8*len(words))
		for i, w := range words {
			binary.LittleEndian.PutUint64(buf[8*i:], w)
		}
		return buf
	}

	Describe("Load", func() {
		Context("with a valid cubin", func() {
			var (
				cubinPath string
				prog      *loader.Program
			)

			BeforeEach(func() {
				cubinPath = filepath.Join(tempDir, "kernel.cubin")
				writeCubin(cubinPath, elf.EM_CUDA, 0x00230023, []section{
					{name: ".nv.info", typ: elf.SHT_LOOS, data: []byte{1, 2, 3, 4}},
					{name: ".text.vecAdd", typ: elf.SHT_PROGBITS,
						flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR,
						data:  code(0x2000000000000000, 0xe5c00000001c3c1e)},
					{name: ".nv.constant0.vecAdd", typ: elf.SHT_PROGBITS,
						flags: elf.SHF_ALLOC, data: []byte{0xaa, 0xbb, 0xcc, 0xdd}},
					{name: ".nv.shared.vecAdd", typ: elf.SHT_NOBITS,
						flags: elf.SHF_ALLOC | elf.SHF_WRITE, size: 256},
				})

				var err error
				prog, err = loader.Load(cubinPath)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should read the SM version from the flags", func() {
				Expect(prog.SM).To(Equal(uint32(35)))
			})

			It("should name the kernel after its code section", func() {
				Expect(prog.Kernels).To(HaveLen(1))
				Expect(prog.Kernels[0].Name).To(Equal("vecAdd"))
			})

			It("should keep the code bytes", func() {
				Expect(prog.Kernels[0].Code).To(Equal(
					code(0x2000000000000000, 0xe5c00000001c3c1e)))
			})

			It("should attach constant bank 0", func() {
				Expect(prog.Kernels[0].Const0).To(Equal([]byte{0xaa, 0xbb, 0xcc, 0xdd}))
			})

			It("should report the static shared memory size", func() {
				Expect(prog.Kernels[0].SharedSize).To(Equal(uint64(256)))
			})

			It("should select the only kernel without a name", func() {
				k, err := prog.Kernel("")
				Expect(err).NotTo(HaveOccurred())
				Expect(k.Name).To(Equal("vecAdd"))
			})
		})

		Context("with several kernels", func() {
			var prog *loader.Program

			BeforeEach(func() {
				cubinPath := filepath.Join(tempDir, "multi.cubin")
				writeCubin(cubinPath, elf.EM_CUDA, 35, []section{
					{name: ".nv.constant0.second", typ: elf.SHT_PROGBITS,
						flags: elf.SHF_ALLOC, data: []byte{2}},
					{name: ".text.first", typ: elf.SHT_PROGBITS,
						flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, data: code(1)},
					{name: ".text.second", typ: elf.SHT_PROGBITS,
						flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, data: code(2, 3)},
					{name: ".nv.constant0.orphan", typ: elf.SHT_PROGBITS,
						flags: elf.SHF_ALLOC, data: []byte{9}},
				})

				var err error
				prog, err = loader.Load(cubinPath)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return every kernel that has code", func() {
				var names []string
				for _, k := range prog.Kernels {
					names = append(names, k.Name)
				}
				Expect(names).To(ConsistOf("first", "second"))
			})

			It("should pair constant banks by name", func() {
				k, err := prog.Kernel("second")
				Expect(err).NotTo(HaveOccurred())
				Expect(k.Const0).To(Equal([]byte{2}))
				Expect(k.Code).To(HaveLen(16))

				k, err = prog.Kernel("first")
				Expect(err).NotTo(HaveOccurred())
				Expect(k.Const0).To(BeNil())
			})

			It("should list the kernels when the name is unknown", func() {
				_, err := prog.Kernel("third")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("first, second"))
			})

			It("should require a name to choose between kernels", func() {
				_, err := prog.Kernel("")
				Expect(err).To(HaveOccurred())
			})
		})

		Context("with an invalid file", func() {
			It("should return error for non-existent file", func() {
				_, err := loader.Load("/nonexistent/path/to/file.cubin")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to open"))
			})

			It("should return error for non-ELF file", func() {
				notElfPath := filepath.Join(tempDir, "not-elf.bin")
				err := os.WriteFile(notElfPath, []byte("not an elf file"), 0644)
				Expect(err).NotTo(HaveOccurred())

				_, err = loader.Load(notElfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("ELF"))
			})

			It("should return error for empty file", func() {
				emptyPath := filepath.Join(tempDir, "empty.cubin")
				err := os.WriteFile(emptyPath, []byte{}, 0644)
				Expect(err).NotTo(HaveOccurred())

				_, err = loader.Load(emptyPath)
				Expect(err).To(HaveOccurred())
			})

			It("should return error for a code section of partial words", func() {
				cubinPath := filepath.Join(tempDir, "partial.cubin")
				writeCubin(cubinPath, elf.EM_CUDA, 35, []section{
					{name: ".text.k", typ: elf.SHT_PROGBITS,
						flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, data: []byte{1, 2, 3}},
				})

				_, err := loader.Load(cubinPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("multiple of 8"))
			})

			It("should return error when there is no code", func() {
				cubinPath := filepath.Join(tempDir, "nocode.cubin")
				writeCubin(cubinPath, elf.EM_CUDA, 35, []section{
					{name: ".nv.constant0.k", typ: elf.SHT_PROGBITS,
						flags: elf.SHF_ALLOC, data: []byte{1}},
				})

				_, err := loader.Load(cubinPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("no kernel"))
			})
		})

		Context("with a non-CUDA ELF", func() {
			It("should return error for x86-64 ELF", func() {
				elfPath := filepath.Join(tempDir, "x86.elf")
				writeCubin(elfPath, elf.EM_X86_64, 0, []section{
					{name: ".text", typ: elf.SHT_PROGBITS,
						flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, data: code(0)},
				})

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a CUDA"))
			})
		})

		Context("with 32-bit ELF", func() {
			It("should return error for 32-bit ELF", func() {
				elfPath := filepath.Join(tempDir, "elf32.cubin")
				write32BitCubin(elfPath)

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a 64-bit"))
			})
		})
	})

	Describe("Read", func() {
		It("should parse an in-memory image", func() {
			cubinPath := filepath.Join(tempDir, "mem.cubin")
			writeCubin(cubinPath, elf.EM_CUDA, 35, []section{
				{name: ".text.k", typ: elf.SHT_PROGBITS,
					flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, data: code(7)},
			})
			image, err := os.ReadFile(cubinPath)
			Expect(err).NotTo(HaveOccurred())

			prog, err := loader.Read(bytes.NewReader(image))

			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Kernels[0].Code).To(Equal(code(7)))
		})
	})
})

// section describes one section of a synthetic ELF file.
type section struct {
	name  string
	typ   elf.SectionType
	flags elf.SectionFlag
	data  []byte
	size  uint64 // SHT_NOBITS only
}

// writeCubin writes a little-endian 64-bit ELF with the given sections, a
// null section first and the section name table second.
func writeCubin(path string, machine elf.Machine, flags uint32, sections []section) {
	const (
		ehsize    = 64
		shentsize = 64
	)

	shstrtab := []byte{0}
	nameOff := make([]uint32, len(sections))
	for i, s := range sections {
		nameOff[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, s.name...)
		shstrtab = append(shstrtab, 0)
	}
	shstrtabName := uint32(len(shstrtab))
	shstrtab = append(shstrtab, ".shstrtab\x00"...)

	var body bytes.Buffer
	dataOff := make([]uint64, len(sections))
	for i, s := range sections {
		for body.Len()%8 != 0 {
			body.WriteByte(0)
		}
		dataOff[i] = uint64(ehsize + body.Len())
		if s.typ != elf.SHT_NOBITS {
			body.Write(s.data)
		}
	}
	shstrtabOff := uint64(ehsize + body.Len())
	body.Write(shstrtab)
	for body.Len()%8 != 0 {
		body.WriteByte(0)
	}
	shoff := uint64(ehsize + body.Len())

	header := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shoff,
		Flags:     flags,
		Ehsize:    ehsize,
		Phentsize: 56,
		Shentsize: shentsize,
		Shnum:     uint16(len(sections) + 2),
		Shstrndx:  1,
	}
	copy(header.Ident[:], elf.ELFMAG)
	header.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	header.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	header.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	headers := []elf.Section64{
		{},
		{
			Name:      shstrtabName,
			Type:      uint32(elf.SHT_STRTAB),
			Off:       shstrtabOff,
			Size:      uint64(len(shstrtab)),
			Addralign: 1,
		},
	}
	for i, s := range sections {
		size := uint64(len(s.data))
		if s.typ == elf.SHT_NOBITS {
			size = s.size
		}
		headers = append(headers, elf.Section64{
			Name:      nameOff[i],
			Type:      uint32(s.typ),
			Flags:     uint64(s.flags),
			Off:       dataOff[i],
			Size:      size,
			Addralign: 4,
		})
	}

	var out bytes.Buffer
	_ = binary.Write(&out, binary.LittleEndian, header)
	out.Write(body.Bytes())
	_ = binary.Write(&out, binary.LittleEndian, headers)

	err := os.WriteFile(path, out.Bytes(), 0644)
	Expect(err).NotTo(HaveOccurred())
}

// write32BitCubin writes a bare 32-bit CUDA ELF header.
func write32BitCubin(path string) {
	header := elf.Header32{
		Type:    uint16(elf.ET_EXEC),
		Machine: uint16(elf.EM_CUDA),
		Version: uint32(elf.EV_CURRENT),
		Ehsize:  52,
	}
	copy(header.Ident[:], elf.ELFMAG)
	header.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	header.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	header.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var out bytes.Buffer
	_ = binary.Write(&out, binary.LittleEndian, header)
	Expect(os.WriteFile(path, out.Bytes(), 0644)).To(Succeed())
}
