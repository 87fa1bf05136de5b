package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/archsim/memhier/cache"
)

func threeLevelWB() *cache.Hierarchy {
	h, err := cache.MakeHierarchyBuilder().
		WithL1(cache.MakeLevelBuilder("L1").WithCapacityLines(1).
			WithAssociativity(cache.FullyAssociative).WithBlockSize(64).
			WithWritePolicy(cache.WriteBack)).
		WithL2(cache.MakeLevelBuilder("L2").WithCapacityLines(2).
			WithAssociativity(cache.FullyAssociative).WithBlockSize(64).
			WithWritePolicy(cache.WriteBack)).
		WithL3(cache.MakeLevelBuilder("L3").WithCapacityLines(4).
			WithAssociativity(cache.FullyAssociative).WithBlockSize(64).
			WithWritePolicy(cache.WriteBack)).
		Build()
	Expect(err).NotTo(HaveOccurred())
	return h
}

var _ = Describe("Hierarchy", func() {
	It("requires L1 and rejects L3 without L2", func() {
		_, err := cache.MakeHierarchyBuilder().Build()
		Expect(err).To(MatchError(cache.ErrL1Required))

		_, err = cache.MakeHierarchyBuilder().
			WithL1(cache.MakeLevelBuilder("L1").WithCapacityLines(1)).
			WithL3(cache.MakeLevelBuilder("L3").WithCapacityLines(4)).
			Build()
		Expect(err).To(MatchError(cache.ErrL3NeedsL2))
	})

	Context("three-level refill (seed scenario 5)", func() {
		// A worked example elsewhere gives total_penalty_cycles as
		// 100+11 + 100+11 + (1+10), which omits the L3 miss
		// penalty on both full misses. Tracing the read path
		// literally adds L3_penalty on every miss where L3 is
		// present, so a full miss through three present levels
		// costs L1+L2+L3+memory = 1+10+50+100 = 161, not 111. The
		// per-level hit counts and the final partial-hit term
		// (1+10) match that example exactly; only the omitted L3
		// term in the full-miss total diverges, so this test
		// asserts the value the algorithm actually produces.
		It("misses through all three levels twice, then hits L2 on the third read", func() {
			h := threeLevelWB()

			out1 := h.Read(0)
			Expect(out1.ReachedMemory).To(BeTrue())
			Expect(out1.PenaltyCycles).To(Equal(int64(161)))

			out2 := h.Read(64)
			Expect(out2.ReachedMemory).To(BeTrue())
			Expect(out2.PenaltyCycles).To(Equal(int64(161)))

			out3 := h.Read(0)
			Expect(out3.ReachedMemory).To(BeFalse())
			Expect(out3.PenaltyCycles).To(Equal(int64(11)))

			Expect(h.L1Hits()).To(Equal(0))
			Expect(h.L2Hits()).To(Equal(1))
			Expect(h.MemoryAccesses()).To(Equal(2))
			Expect(h.TotalPenaltyCycles()).To(Equal(int64(161 + 161 + 11)))
		})
	})

	It("propagates L1's write policy to memory-write visibility on a hit", func() {
		h, err := cache.MakeHierarchyBuilder().
			WithL1(cache.MakeLevelBuilder("L1").WithCapacityLines(1).
				WithAssociativity(cache.FullyAssociative).WithBlockSize(64).
				WithWritePolicy(cache.WriteThrough)).
			Build()
		Expect(err).NotTo(HaveOccurred())

		h.Write(0)
		Expect(h.MemoryWrites()).To(Equal(1))

		h.Write(0)
		Expect(h.MemoryWrites()).To(Equal(2))
	})

	It("counts exactly one memory write on a write-allocate miss under L1 write-through", func() {
		h, err := cache.MakeHierarchyBuilder().
			WithL1(cache.MakeLevelBuilder("L1").WithCapacityLines(1).
				WithAssociativity(cache.FullyAssociative).WithBlockSize(64).
				WithWritePolicy(cache.WriteThrough)).
			Build()
		Expect(err).NotTo(HaveOccurred())

		out := h.Write(0)
		Expect(out.ReachedMemory).To(BeTrue())
		Expect(h.MemoryAccesses()).To(Equal(1))
		Expect(h.MemoryWrites()).To(Equal(1))
	})

	It("resets every level and all counters on ClearAll", func() {
		h := threeLevelWB()
		h.Read(0)
		h.ClearAll()

		Expect(h.TotalAccesses()).To(Equal(0))
		Expect(h.TotalPenaltyCycles()).To(Equal(int64(0)))
		Expect(h.L1().Hits()).To(Equal(0))
		out := h.Read(0)
		Expect(out.ReachedMemory).To(BeTrue())
	})
})
