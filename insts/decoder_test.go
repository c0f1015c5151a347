package insts_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/kplsim/insts"
)

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("sm_35 words", func() {
		DescribeTable("should decode words emitted by cuobjdump",
			func(word uint64, op insts.Op, name string) {
				inst := decoder.Decode(word, 0x8)

				Expect(inst.Op).To(Equal(op))
				Expect(inst.String()).To(Equal(name))
				Expect(inst.Word).To(Equal(word))
				Expect(inst.Addr).To(Equal(uint32(0x8)))
			},
			Entry("EXIT", uint64(0x18000000001c003c), insts.OpEXIT, "EXIT"),
			Entry("BRA", uint64(0x12007ffffc1c003c), insts.OpBRA, "BRA"),
			Entry("RET", uint64(0x19000000001c003c), insts.OpRET, "RET"),
			Entry("CAL", uint64(0x13000000001c0000), insts.OpCAL, "CAL"),
			Entry("SSY", uint64(0x14800000001c0000), insts.OpSSY, "SSY"),
			Entry("PBK", uint64(0x15000000001c0000), insts.OpPBK, "PBK"),
			Entry("BRK", uint64(0x1a000000001c003c), insts.OpBRK, "BRK"),
			Entry("CONT", uint64(0x1a800000001c003c), insts.OpCONT, "CONT"),
			Entry("MOV R1, c[0x0][0x44]", uint64(0x64c03c00089c0006), insts.OpMOV, "MOV"),
			Entry("S2R R0, SR_TID.X", uint64(0x86400000109c0002), insts.OpS2R, "S2R"),
			Entry("MOV32I", uint64(0x74000000009fc002), insts.OpMOV32I, "MOV32I"),
			Entry("IADD", uint64(0xe0800000001c0002), insts.OpIADD, "IADD"),
			Entry("IADD immediate", uint64(0xc0800000001c0001), insts.OpIADDImm, "IADD"),
			Entry("ISETP", uint64(0x5b681c00051c001e), insts.OpISETP, "ISETP"),
			Entry("ISETP immediate", uint64(0xb3681c00009c0c1d), insts.OpISETPImm, "ISETP"),
			Entry("IMAD", uint64(0x51080c00051c0002), insts.OpIMAD, "IMAD"),
			Entry("ISCADD", uint64(0x60c40800a01c000a), insts.OpISCADD, "ISCADD"),
			Entry("FFMA", uint64(0xcc000000001c0c02), insts.OpFFMA, "FFMA"),
			Entry("LD.E", uint64(0xc4800000001c0808), insts.OpLD, "LD"),
			Entry("ST.E", uint64(0xe4800000001c0800), insts.OpST, "ST"),
		)

		It("should report unknown words without failing", func() {
			inst := decoder.Decode(0x0, 0x10)

			Expect(inst.Op).To(Equal(insts.OpInvalid))
			Expect(inst.IsValid()).To(BeFalse())
			Expect(inst.String()).To(Equal("<unknown>"))
			Expect(inst.Info).NotTo(BeNil())
		})
	})

	Describe("Round trip", func() {
		It("should decode every encodable opcode back to itself", func() {
			r := rand.New(rand.NewSource(42))

			for op := insts.Op(1); op < insts.OpCount; op++ {
				for i := 0; i < 32; i++ {
					word, err := decoder.Encode(op, r.Uint64())
					Expect(err).NotTo(HaveOccurred(), op.String())

					Expect(decoder.Decode(word, 0x8).Op).To(Equal(op),
						"opcode %d (%s) word 0x%016x", op, op, word)
				}
			}
		})

		It("should refuse to encode the invalid opcode", func() {
			_, err := decoder.Encode(insts.OpInvalid, 0)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Table construction", func() {
		It("should leave every slot either internal or leaf", func() {
			Expect(decoder.Validate()).To(Succeed())
		})

		It("should reject a leaf colliding with another leaf", func() {
			err := insts.BuildWithExtra(insts.OpNOP, "DUP", 0, 0, 48)
			Expect(err).To(MatchError(ContainSubstring("collides with EXIT")))
		})

		It("should reject a leaf installed over a table", func() {
			err := insts.BuildWithExtra(insts.OpNOP, "DUP", 2, 1, 12)
			Expect(err).To(MatchError(ContainSubstring("holds table c_b_d")))
		})

		It("should reject a path running through a leaf", func() {
			err := insts.BuildWithExtra(insts.OpNOP, "DUP", 0, 6, 1)
			Expect(err).To(MatchError(ContainSubstring("crosses leaf LD")))
		})

		It("should reject a path into an unlinked slot", func() {
			err := insts.BuildWithExtra(insts.OpNOP, "DUP", 3, 0)
			Expect(err).To(MatchError(ContainSubstring("no table at root[3]")))
		})
	})

	Describe("Control words", func() {
		It("should flag every 64-byte boundary", func() {
			Expect(decoder.IsControlWord(0x0)).To(BeTrue())
			Expect(decoder.IsControlWord(0x40)).To(BeTrue())
			Expect(decoder.IsControlWord(0x80)).To(BeTrue())
			Expect(decoder.IsControlWord(0x8)).To(BeFalse())
			Expect(decoder.IsControlWord(0x38)).To(BeFalse())
			Expect(decoder.IsControlWord(0x48)).To(BeFalse())
		})
	})
})
