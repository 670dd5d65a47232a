package joiner_test

import (
	"math"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/solverlab/constraintstream/pkg/joiner"
)

func TestJoiner(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Joiner")
}

type shift struct {
	employee string
	start    int
	end      int
}

var (
	byEmployee joiner.Property = func(fact any) (any, error) { return fact.(*shift).employee, nil }
	byStart    joiner.Property = func(fact any) (any, error) { return fact.(*shift).start, nil }
	byEnd      joiner.Property = func(fact any) (any, error) { return fact.(*shift).end, nil }
)

var _ = Describe("Joiner construction", func() {
	It("should build an equal joiner from a shared property", func() {
		j := joiner.Equal(byEmployee)
		Expect(j.Err()).NotTo(HaveOccurred())
		Expect(j.Kinds()).To(Equal([]joiner.Kind{joiner.KindEqual}))

		c := j.Components()[0]
		l, err := c.Left(&shift{employee: "ann"})
		Expect(err).NotTo(HaveOccurred())
		r, err := c.Right(&shift{employee: "ann"})
		Expect(err).NotTo(HaveOccurred())
		Expect(l).To(Equal(r))
	})

	It("should build an ordering joiner from distinct properties", func() {
		j := joiner.LessThan(byStart, byEnd)
		Expect(j.Err()).NotTo(HaveOccurred())

		c := j.Components()[0]
		l, err := c.Left(&shift{start: 9})
		Expect(err).NotTo(HaveOccurred())
		Expect(l).To(Equal(9))
		r, err := c.Right(&shift{end: 17})
		Expect(err).NotTo(HaveOccurred())
		Expect(r).To(Equal(17))
	})

	It("should reject a joiner with too many properties", func() {
		j := joiner.GreaterThan(byStart, byEnd, byEmployee)
		Expect(j.Err()).To(HaveOccurred())
	})

	It("should build an overlapping joiner from shared interval properties", func() {
		j := joiner.Overlapping(byStart, byEnd)
		Expect(j.Err()).NotTo(HaveOccurred())
		Expect(j.Kinds()).To(Equal([]joiner.Kind{joiner.KindOverlap}))

		c := j.Components()[0]
		Expect(c.LeftEnd).NotTo(BeNil())
		Expect(c.RightEnd).NotTo(BeNil())
	})

	It("should reject an overlapping joiner with three properties", func() {
		j := joiner.Overlapping(byStart, byEnd, byEmployee)
		Expect(j.Err()).To(HaveOccurred())
	})
})

var _ = Describe("Merge", func() {
	It("should concatenate components in order", func() {
		j := joiner.Merge(joiner.Equal(byEmployee), joiner.LessThan(byStart), joiner.Overlapping(byStart, byEnd))
		Expect(j.Err()).NotTo(HaveOccurred())
		Expect(j.Kinds()).To(Equal([]joiner.Kind{joiner.KindEqual, joiner.KindLessThan, joiner.KindOverlap}))
	})

	It("should be associative", func() {
		a, b, c := joiner.Equal(byEmployee), joiner.LessThan(byStart), joiner.GreaterThanOrEqual(byEnd)
		left := joiner.Merge(joiner.Merge(a, b), c)
		right := joiner.Merge(a, joiner.Merge(b, c))
		Expect(left.Kinds()).To(Equal(right.Kinds()))
	})

	It("should propagate the first construction error", func() {
		bad := joiner.LessThan()
		j := joiner.Merge(joiner.Equal(byEmployee), bad)
		Expect(j.Err()).To(HaveOccurred())
	})

	It("should produce a cross joiner from no components", func() {
		j := joiner.Merge()
		Expect(j.Err()).NotTo(HaveOccurred())
		Expect(j.Components()).To(BeEmpty())
		Expect(j.String()).To(Equal("true"))
	})
})

var _ = Describe("On", func() {
	It("should retarget left properties to another tuple position", func() {
		j := joiner.Equal(byEmployee).On(1)
		for _, c := range j.Components() {
			Expect(c.LeftFact).To(Equal(1))
		}
	})

	It("should not mutate the original joiner", func() {
		j := joiner.Equal(byEmployee)
		_ = j.On(2)
		Expect(j.Components()[0].LeftFact).To(Equal(0))
	})
})

var _ = Describe("Compare", func() {
	It("should order integers across widths", func() {
		c, err := joiner.Compare(int32(7), int64(9))
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeNumerically("<", 0))

		c, err = joiner.Compare(int64(7), 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeZero())
	})

	It("should order mixed integer and float keys numerically", func() {
		c, err := joiner.Compare(2, 1.5)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeNumerically(">", 0))
	})

	It("should order strings, times and durations", func() {
		c, err := joiner.Compare("alpha", "beta")
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeNumerically("<", 0))

		now := time.Now()
		c, err = joiner.Compare(now.Add(time.Hour), now)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeNumerically(">", 0))

		c, err = joiner.Compare(time.Minute, time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeNumerically("<", 0))
	})

	It("should order pairs lexicographically with a tie break", func() {
		a := joiner.Pair{Primary: int64(5), Secondary: uint64(1)}
		b := joiner.Pair{Primary: int64(5), Secondary: uint64(2)}
		c, err := joiner.Compare(a, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeNumerically("<", 0))

		d := joiner.Pair{Primary: int64(4), Secondary: uint64(9)}
		c, err = joiner.Compare(a, d)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeNumerically(">", 0))
	})

	It("should keep integer order beyond float64 precision", func() {
		base := int64(1) << 53
		c, err := joiner.Compare(base+1, base+2)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeNumerically("<", 0))
	})

	It("should order uint64 keys beyond the int64 range", func() {
		c, err := joiner.Compare(uint64(math.MaxUint64-1), uint64(math.MaxUint64))
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeNumerically("<", 0))

		c, err = joiner.Compare(uint64(math.MaxUint64), int64(math.MaxInt64))
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeNumerically(">", 0))

		c, err = joiner.Compare(int64(-1), uint64(math.MaxUint64))
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(BeNumerically("<", 0))
	})

	It("should fail on incomparable key types", func() {
		_, err := joiner.Compare("nine", 9)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Equivalent", func() {
	It("should treat equal ordered keys as equivalent", func() {
		eq, err := joiner.Equivalent(int64(3), 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(eq).To(BeTrue())
	})

	It("should fall back to identity for unordered keys", func() {
		a, b := &shift{employee: "ann"}, &shift{employee: "ann"}
		eq, err := joiner.Equivalent(a, a)
		Expect(err).NotTo(HaveOccurred())
		Expect(eq).To(BeTrue())

		eq, err = joiner.Equivalent(a, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(eq).To(BeFalse())
	})
})
