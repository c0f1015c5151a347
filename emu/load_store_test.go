package emu_test

import (
	"bytes"
	"encoding/binary"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/kplsim/emu"
	"github.com/sarchlab/kplsim/insts"
)

var _ = Describe("Memory instructions", func() {
	var (
		e *emu.Emulator
		b *emu.ThreadBlock
		w *emu.Warp
		t *emu.Thread
	)

	BeforeEach(func() {
		e = emu.NewEmulator()
	})

	load := func(lines ...line) {
		lines = append(lines, exit(pt))
		b = launch1D(e, assemble(lines...), 1, 0x11, 0x22).Blocks()[0]
		w = b.Warps()[0]
		t = w.Thread(0)
		w.SetPC(addrOf(0))
	}

	step := func() error {
		return w.Execute()
	}

	shared32 := func(addr uint64) uint32 {
		data, err := b.SharedMemory().Read(addr, 4)
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		return binary.LittleEndian.Uint32(data)
	}

	Describe("LD and ST", func() {
		It("should store and load a word of global memory", func() {
			load(st32(1, 2), ld32(3, 1))
			t.WriteGPR(1, 0x1000)
			t.WriteGPR(2, 0x12345678)

			Expect(step()).To(Succeed())
			Expect(readGlobal32(e, 0x1000)).To(Equal(uint32(0x12345678)))

			Expect(step()).To(Succeed())
			Expect(t.ReadGPR(3)).To(Equal(uint32(0x12345678)))
		})

		It("should add and subtract the immediate offset", func() {
			load(
				op(insts.OpST, guard(pt)|dst(2)|srcA(1)|4<<56|0x10<<23),
				op(insts.OpLD, guard(pt)|dst(3)|srcA(1)|4<<56|1<<54|0x10<<23),
			)
			t.WriteGPR(1, 0x1000)
			t.WriteGPR(2, 7)

			Expect(step()).To(Succeed())
			Expect(readGlobal32(e, 0x1010)).To(Equal(uint32(7)))

			Expect(e.Memory().WriteGlobal(0xff0, []byte{9, 0, 0, 0})).To(Succeed())
			Expect(step()).To(Succeed())
			Expect(t.ReadGPR(3)).To(Equal(uint32(9)))
		})

		DescribeTable("should extend sub-word loads",
			func(dataType uint64, want uint32) {
				load(op(insts.OpLD, guard(pt)|dst(3)|srcA(1)|dataType<<56))
				Expect(e.Memory().WriteGlobal(0x200, []byte{0x80, 0xff})).To(Succeed())
				t.WriteGPR(1, 0x200)

				Expect(step()).To(Succeed())
				Expect(t.ReadGPR(3)).To(Equal(want))
			},
			Entry("U8", uint64(0), uint32(0x80)),
			Entry("S8", uint64(1), uint32(0xffffff80)),
			Entry("U16", uint64(2), uint32(0xff80)),
			Entry("S16", uint64(3), uint32(0xffffff80)),
		)

		It("should fill consecutive registers for wide loads", func() {
			load(op(insts.OpLD, guard(pt)|dst(4)|srcA(1)|5<<56))
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint32(buf, 1)
			binary.LittleEndian.PutUint32(buf[4:], 2)
			Expect(e.Memory().WriteGlobal(0x300, buf)).To(Succeed())
			t.WriteGPR(1, 0x300)

			Expect(step()).To(Succeed())
			Expect(t.ReadGPR(4)).To(Equal(uint32(1)))
			Expect(t.ReadGPR(5)).To(Equal(uint32(2)))
		})

		It("should store consecutive registers for wide stores", func() {
			load(op(insts.OpST, guard(pt)|dst(4)|srcA(1)|6<<56))
			t.WriteGPR(1, 0x400)
			for i := uint8(0); i < 4; i++ {
				t.WriteGPR(4+i, uint32(10+i))
			}

			Expect(step()).To(Succeed())
			for i := uint64(0); i < 4; i++ {
				Expect(readGlobal32(e, 0x400+4*i)).To(Equal(uint32(10 + i)))
			}
		})

		It("should reject a misaligned register pair", func() {
			load(op(insts.OpLD, guard(pt)|dst(3)|srcA(1)|5<<56))

			err := step()

			Expect(errors.Is(err, emu.ErrUnsupportedOperand)).To(BeTrue())
		})

		It("should reject a misaligned register pair on stores", func() {
			load(op(insts.OpST, guard(pt)|dst(3)|srcA(1)|5<<56))
			t.WriteGPR(1, 0x500)

			err := step()

			Expect(errors.Is(err, emu.ErrUnsupportedOperand)).To(BeTrue())
		})

		It("should store zeros for a wide RZ source", func() {
			load(op(insts.OpST, guard(pt)|dst(insts.RegZero)|srcA(2)|5<<56))
			Expect(e.Memory().WriteGlobal(0x600, bytes.Repeat([]byte{0xff}, 8))).To(Succeed())
			t.WriteGPR(0, 0xdeadbeef)
			t.WriteGPR(2, 0x600)

			Expect(step()).To(Succeed())
			Expect(readGlobal32(e, 0x600)).To(BeZero())
			Expect(readGlobal32(e, 0x604)).To(BeZero())
		})

		It("should discard a wide load into RZ", func() {
			load(op(insts.OpLD, guard(pt)|dst(insts.RegZero)|srcA(1)|5<<56))
			t.WriteGPR(0, 0x1234)
			t.WriteGPR(1, 0x700)

			Expect(step()).To(Succeed())
			Expect(t.ReadGPR(0)).To(Equal(uint32(0x1234)))
		})

		It("should reject an undefined data type", func() {
			load(op(insts.OpLD, guard(pt)|dst(3)|srcA(1)|7<<56))

			err := step()

			Expect(errors.Is(err, emu.ErrUnsupportedOperand)).To(BeTrue())
		})

		It("should fail outside global memory", func() {
			load(ld32(3, 1))
			t.WriteGPR(1, 0x10000000)

			err := step()

			Expect(errors.Is(err, emu.ErrOutOfRange)).To(BeTrue())
			var ee *emu.ExecError
			Expect(errors.As(err, &ee)).To(BeTrue())
			Expect(ee.Inst).To(Equal("LD"))
			Expect(ee.Lane).To(Equal(0))
		})

		It("should reach thread-private memory through the local window", func() {
			load(st32(1, 2), ld32(3, 1))
			t.WriteGPR(1, uint32(emu.LocalWindowBase+0x10))
			t.WriteGPR(2, 42)

			Expect(step()).To(Succeed())
			Expect(step()).To(Succeed())
			Expect(t.ReadGPR(3)).To(Equal(uint32(42)))
			Expect(readGlobal32(e, 0x10)).To(BeZero())
		})

		It("should reach block memory through the shared window", func() {
			load(st32(1, 2))
			t.WriteGPR(1, uint32(emu.SharedWindowBase+8))
			t.WriteGPR(2, 42)

			Expect(step()).To(Succeed())
			Expect(shared32(8)).To(Equal(uint32(42)))
			Expect(readGlobal32(e, 8)).To(BeZero())
		})
	})

	Describe("LDS and STS", func() {
		It("should store and load shared memory", func() {
			load(sts32(1, 2), lds32(3, 1))
			t.WriteGPR(1, 0x20)
			t.WriteGPR(2, 0xabcd)

			Expect(step()).To(Succeed())
			Expect(shared32(0x20)).To(Equal(uint32(0xabcd)))

			Expect(step()).To(Succeed())
			Expect(t.ReadGPR(3)).To(Equal(uint32(0xabcd)))
		})

		It("should add a signed offset", func() {
			load(op(insts.OpSTS, guard(pt)|dst(2)|srcA(1)|4<<51|imm20(-4)&(0x7ffff<<23)))
			t.WriteGPR(1, 8)
			t.WriteGPR(2, 5)

			Expect(step()).To(Succeed())
			Expect(shared32(4)).To(Equal(uint32(5)))
		})

		It("should fail past the end of shared memory", func() {
			load(lds32(3, 1))
			t.WriteGPR(1, 48<<10)

			err := step()

			Expect(errors.Is(err, emu.ErrOutOfRange)).To(BeTrue())
		})
	})

	Describe("LDC", func() {
		It("should read a parameter", func() {
			load(ldc(3, insts.RegZero, 0, emu.ConstParamAddr+4, 4))

			Expect(step()).To(Succeed())
			Expect(t.ReadGPR(3)).To(Equal(uint32(0x22)))
		})

		It("should add the register to the offset", func() {
			load(ldc(3, 1, 0, emu.ConstParamAddr, 4))
			t.WriteGPR(1, 4)

			Expect(step()).To(Succeed())
			Expect(t.ReadGPR(3)).To(Equal(uint32(0x22)))
		})

		It("should read a register pair", func() {
			load(ldc(4, insts.RegZero, 0, emu.ConstParamAddr, 5))

			Expect(step()).To(Succeed())
			Expect(t.ReadGPR(4)).To(Equal(uint32(0x11)))
			Expect(t.ReadGPR(5)).To(Equal(uint32(0x22)))
		})

		It("should read other banks", func() {
			Expect(e.Memory().WriteConst32(uint64(emu.ConstAddr(2, 0x10)), 99)).
				To(Succeed())
			load(ldc(3, insts.RegZero, 2, 0x10, 4))

			Expect(step()).To(Succeed())
			Expect(t.ReadGPR(3)).To(Equal(uint32(99)))
		})

		It("should go through the constant cache", func() {
			load(
				ldc(3, insts.RegZero, 0, emu.ConstParamAddr, 4),
				ldc(4, insts.RegZero, 0, emu.ConstParamAddr+4, 4),
			)

			Expect(step()).To(Succeed())
			Expect(step()).To(Succeed())

			stats, ok := e.Memory().ConstCacheStats()
			Expect(ok).To(BeTrue())
			Expect(stats.Hits).To(BeNumerically(">=", 1))
		})

		It("should reject sub-word types", func() {
			load(ldc(3, insts.RegZero, 0, 0, 0))

			err := step()

			Expect(errors.Is(err, emu.ErrUnsupportedOperand)).To(BeTrue())
		})
	})

	Describe("constant bank 0", func() {
		It("should hold the block dimensions", func() {
			load(movConst(3, emu.ConstNTIDAddr))

			Expect(step()).To(Succeed())
			Expect(t.ReadGPR(3)).To(Equal(uint32(1)))
		})

		It("should hold the local stack top", func() {
			load(movConst(3, emu.ConstStackTopAddr))

			Expect(step()).To(Succeed())
			Expect(t.ReadGPR(3)).To(Equal(
				uint32(emu.LocalWindowBase + e.Config().LocalMemorySize)))
		})
	})
})
