package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/kplsim/insts"
)

var _ = Describe("Insts Package", func() {
	It("should have an Instruction type", func() {
		var i insts.Instruction
		Expect(i).To(BeZero())
	})

	It("should have a Decoder type", func() {
		decoder := insts.NewDecoder()
		Expect(decoder).ToNot(BeNil())
	})

	It("should reserve opcode 0 for invalid encodings", func() {
		Expect(insts.OpInvalid).To(Equal(insts.Op(0)))
		Expect(insts.OpInvalid.String()).To(Equal("<unknown>"))
	})

	It("should give every opcode a name", func() {
		for op := insts.Op(1); op < insts.OpCount; op++ {
			Expect(op.Info().Op).To(Equal(op))
			Expect(op.String()).NotTo(Equal("<unknown>"))
		}
	})
})
