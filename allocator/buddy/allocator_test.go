package buddy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/archsim/memhier/allocator/buddy"
)

var _ = Describe("Allocator", func() {
	It("substitutes documented defaults for non-power-of-two arguments", func() {
		a := buddy.New(1000, 16)
		Expect(a.TotalMemory()).To(Equal(buddy.DefaultTotalMemory))

		b := buddy.New(1024, 10)
		Expect(b.MinBlockSize()).To(Equal(buddy.DefaultMinBlockSize))
	})

	It("starts with a single free block at max order", func() {
		a := buddy.New(1024, 16)
		Expect(a.MaxOrder()).To(Equal(6))
		Expect(a.FreeListLen(6)).To(Equal(1))
		for order := 0; order < 6; order++ {
			Expect(a.FreeListLen(order)).To(Equal(0))
		}
	})

	It("fails on a zero-size or too-large request", func() {
		a := buddy.New(1024, 16)

		_, err := a.Allocate(0)
		Expect(err).To(MatchError(buddy.ErrZeroSize))

		_, err = a.Allocate(2048)
		Expect(err).To(MatchError(buddy.ErrTooLarge))

		Expect(a.Failures()).To(Equal(2))
	})

	Context("split tree (seed scenario 3)", func() {
		It("splits six times down to order 0 and lands on address 0", func() {
			a := buddy.New(1024, 16)

			id, err := a.Allocate(16)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Splits()).To(Equal(6))

			alloc, ok := a.Allocation(id)
			Expect(ok).To(BeTrue())
			Expect(alloc.Address).To(Equal(uint64(0)))
			Expect(alloc.Order).To(Equal(0))
			Expect(alloc.ActualSize).To(Equal(uint64(16)))
		})

		It("merges six times back to a single order-6 block on free", func() {
			a := buddy.New(1024, 16)
			id, _ := a.Allocate(16)

			Expect(a.Deallocate(id)).To(BeTrue())
			Expect(a.Merges()).To(Equal(6))
			Expect(a.FreeListLen(6)).To(Equal(1))
			Expect(a.FreeListAddresses(6)).To(Equal([]uint64{0}))
			for order := 0; order < 6; order++ {
				Expect(a.FreeListLen(order)).To(Equal(0))
			}
		})
	})

	It("tracks internal fragmentation across allocate and free", func() {
		a := buddy.New(1024, 16)
		id, err := a.Allocate(20)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.InternalFragmentation()).To(Equal(int64(32 - 20)))

		Expect(a.Deallocate(id)).To(BeTrue())
		Expect(a.InternalFragmentation()).To(Equal(int64(0)))
	})

	It("restores the initial free-list configuration after allocate;deallocate", func() {
		a := buddy.New(1024, 16)
		id, _ := a.Allocate(100)
		Expect(a.Deallocate(id)).To(BeTrue())

		Expect(a.FreeListLen(6)).To(Equal(1))
		Expect(a.FreeListAddresses(6)).To(Equal([]uint64{0}))
		for order := 0; order < 6; order++ {
			Expect(a.FreeListLen(order)).To(Equal(0))
		}
	})

	It("reports an unknown block id as a failed deallocation", func() {
		a := buddy.New(1024, 16)
		Expect(a.Deallocate(999)).To(BeFalse())
	})

	It("never leaves a buddy pair of the same parent simultaneously free", func() {
		a := buddy.New(256, 16)
		idA, _ := a.Allocate(16)
		idB, _ := a.Allocate(16)
		_ = idB

		Expect(a.Deallocate(idA)).To(BeTrue())

		for order := 0; order <= a.MaxOrder(); order++ {
			addrs := map[uint64]bool{}
			for _, addr := range a.FreeListAddresses(order) {
				addrs[addr] = true
			}
			size := a.MinBlockSize() << uint(order)
			for addr := range addrs {
				Expect(addrs[addr^size]).To(BeFalse())
			}
		}
	})
})
