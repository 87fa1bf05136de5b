package vm_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/archsim/memhier/vm"
)

var _ = Describe("VirtualMemory", func() {
	It("clamps physical frames down to the virtual page count", func() {
		space := vm.MakeBuilder().WithVMSize(16).WithPMSize(64).WithPageSize(4).Build()
		Expect(space.NumVirtualPages()).To(Equal(4))
		Expect(space.NumPhysicalFrames()).To(Equal(4))
	})

	It("fails translation for an out-of-range address", func() {
		space := vm.MakeBuilder().WithVMSize(16).WithPMSize(8).WithPageSize(4).Build()
		_, err := space.TranslateAddress(16)
		Expect(err).To(MatchError(vm.ErrAddressOutOfRange))
	})

	Context("LRU paging (seed scenario 6)", func() {
		It("faults on first touch of pages 0,1,2 and evicts page 1", func() {
			space := vm.MakeBuilder().
				WithVMSize(16).WithPMSize(8).WithPageSize(4).
				WithReplacement(vm.LRU).Build()

			_, err := space.TranslateAddress(0) // page 0: fault
			Expect(err).NotTo(HaveOccurred())
			_, err = space.TranslateAddress(4) // page 1: fault
			Expect(err).NotTo(HaveOccurred())
			_, err = space.TranslateAddress(0) // page 0: hit
			Expect(err).NotTo(HaveOccurred())
			_, err = space.TranslateAddress(8) // page 2: fault, evicts page 1
			Expect(err).NotTo(HaveOccurred())

			Expect(space.PageHits()).To(Equal(1))
			Expect(space.PageFaults()).To(Equal(3))
			Expect(space.DiskReads()).To(Equal(3))
			Expect(space.DiskWrites()).To(Equal(0))

			Expect(space.PageResident(1)).To(BeFalse())
			Expect(space.PageResident(0)).To(BeTrue())
			Expect(space.PageResident(2)).To(BeTrue())
		})
	})

	It("charges exactly one disk write per dirty eviction", func() {
		space := vm.MakeBuilder().
			WithVMSize(12).WithPMSize(8).WithPageSize(4).
			WithReplacement(vm.FIFO).Build()

		space.TranslateAddress(0) // page 0 resident
		space.MarkDirty(0)
		space.TranslateAddress(4) // page 1 resident
		space.TranslateAddress(8) // page 2: evicts page 0 (dirty)

		Expect(space.DiskWrites()).To(Equal(1))
	})

	It("maintains the page/frame bijection across a fault", func() {
		space := vm.MakeBuilder().WithVMSize(8).WithPMSize(4).WithPageSize(4).Build()

		space.TranslateAddress(0)
		frame, resident := space.FrameOf(0)
		Expect(resident).To(BeTrue())

		space.TranslateAddress(4)
		Expect(space.PageResident(0)).To(BeFalse())
		newFrame, resident := space.FrameOf(1)
		Expect(resident).To(BeTrue())
		Expect(newFrame).To(Equal(frame))
	})
})
