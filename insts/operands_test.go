package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/kplsim/insts"
)

var _ = Describe("Operands", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("General0", func() {
		// MOV R1, c[0x0][0x44]
		It("should read a constant-bank second source", func() {
			inst := decoder.Decode(0x64c03c00089c0006, 0x8)

			Expect(inst.Info.Format).To(Equal(insts.FormatGeneral0))
			Expect(inst.Dst()).To(Equal(uint8(1)))
			Expect(inst.Pred()).To(Equal(uint8(insts.PredTrue)))
			Expect(inst.SrcB()).To(Equal(insts.Operand{
				Kind:  insts.OperandConstant,
				Value: 0x44,
			}))
		})

		// ISETP.GE.AND P0, PT, R0, c[0x0][0x28], PT
		It("should expose ISETP predicate destinations", func() {
			inst := decoder.Decode(0x5b681c00051c001e, 0x8)

			Expect(inst.SrcA()).To(Equal(uint8(0)))
			Expect(inst.Dst() >> 3 & 7).To(Equal(uint8(0)))
			Expect(inst.Dst() & 7).To(Equal(uint8(insts.PredTrue)))
			Expect(inst.SrcB().Value).To(Equal(uint32(0x28)))
		})

		It("should read a register second source when bit 63 is set", func() {
			word, err := decoder.Encode(insts.OpIADD, 1<<63|5<<23|3<<10|2<<2)
			Expect(err).NotTo(HaveOccurred())

			inst := decoder.Decode(word, 0x8)
			Expect(inst.Dst()).To(Equal(uint8(2)))
			Expect(inst.SrcA()).To(Equal(uint8(3)))
			Expect(inst.SrcB()).To(Equal(insts.Operand{
				Kind:  insts.OperandRegister,
				Value: 5,
			}))
		})

		It("should sign-fill 20-bit immediates from bit 59", func() {
			word, err := decoder.Encode(insts.OpIADDImm, 1<<59|0x7ffff<<23)
			Expect(err).NotTo(HaveOccurred())

			inst := decoder.Decode(word, 0x8)
			Expect(inst.SrcB()).To(Equal(insts.Operand{
				Kind:  insts.OperandImmediate,
				Value: 0xffffffff,
			}))
		})

		It("should read the third source register", func() {
			word, err := decoder.Encode(insts.OpFFMA, 9<<42)
			Expect(err).NotTo(HaveOccurred())

			Expect(decoder.Decode(word, 0x8).SrcC()).To(Equal(uint8(9)))
		})

		// S2R R0, SR_TID.X
		It("should expose the special register selector", func() {
			inst := decoder.Decode(0x86400000109c0002, 0x8)
			Expect(inst.Field(30, 23)).To(Equal(uint32(33)))
			Expect(inst.SrcB().Kind).To(Equal(insts.OperandNone))
		})
	})

	Describe("Imm32", func() {
		It("should read the 32-bit immediate", func() {
			inst := decoder.Decode(0x74000000009fc002, 0x8)

			Expect(inst.Info.Format).To(Equal(insts.FormatImm32))
			Expect(inst.Imm32()).To(Equal(uint32(1)))
			Expect(inst.SrcB()).To(Equal(insts.Operand{
				Kind:  insts.OperandImmediate,
				Value: 1,
			}))
		})
	})

	Describe("General1", func() {
		It("should sign-extend backward offsets", func() {
			// BRA to itself
			inst := decoder.Decode(0x12007ffffc1c003c, 0x48)

			Expect(inst.Info.Format).To(Equal(insts.FormatGeneral1))
			Expect(inst.Offset()).To(Equal(int32(-8)))
			Expect(inst.Backward()).To(BeTrue())
			Expect(inst.Target()).To(Equal(uint32(0x48)))
		})

		It("should compute forward targets relative to the next instruction", func() {
			word, err := decoder.Encode(insts.OpBRA, 0x20<<23|insts.PredTrue<<18)
			Expect(err).NotTo(HaveOccurred())

			inst := decoder.Decode(word, 0x10)
			Expect(inst.Offset()).To(Equal(int32(0x20)))
			Expect(inst.Backward()).To(BeFalse())
			Expect(inst.Target()).To(Equal(uint32(0x38)))
		})

		It("should expose the constant-mode and no-increment bits", func() {
			word, err := decoder.Encode(insts.OpCAL, 1<<7|1<<8)
			Expect(err).NotTo(HaveOccurred())

			inst := decoder.Decode(word, 0x8)
			Expect(inst.ConstantMode()).To(BeTrue())
			Expect(inst.NoInc()).To(BeTrue())
		})
	})

	Describe("General2", func() {
		It("should read the condition-code selector", func() {
			inst := decoder.Decode(0x18000000001c003c, 0x8)

			Expect(inst.Info.Format).To(Equal(insts.FormatGeneral2))
			Expect(inst.CC()).To(Equal(uint8(0xf)))
			Expect(inst.Pred()).To(Equal(uint8(insts.PredTrue)))
		})
	})

	Describe("SignExtend", func() {
		It("should extend negative values", func() {
			Expect(insts.SignExtend(0x800000, 24)).To(Equal(uint32(0xff800000)))
			Expect(insts.SignExtend(0x80000, 20)).To(Equal(uint32(0xfff80000)))
		})

		It("should leave positive values unchanged", func() {
			Expect(insts.SignExtend(0x7fffff, 24)).To(Equal(uint32(0x7fffff)))
		})

		It("should mask bits above the field", func() {
			Expect(insts.SignExtend(0xf0000001, 4)).To(Equal(uint32(1)))
		})
	})
})
