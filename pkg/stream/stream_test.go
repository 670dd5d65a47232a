package stream

import (
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/solverlab/constraintstream/pkg/domain"
	"github.com/solverlab/constraintstream/pkg/joiner"
)

func TestStream(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Stream")
}

type employee struct{ name string }

type shift struct {
	id       int64
	employee *employee
	start    int
	end      int
}

var (
	byEmployee joiner.Property = func(fact any) (any, error) { return fact.(*shift).employee, nil }
	byStart    joiner.Property = func(fact any) (any, error) { return fact.(*shift).start, nil }
	byEnd      joiner.Property = func(fact any) (any, error) { return fact.(*shift).end, nil }
)

func newRegistry() *domain.Registry {
	GinkgoHelper()
	reg := domain.NewRegistry()
	_, err := reg.Register(&employee{}, domain.Class{Name: "Employee"})
	Expect(err).NotTo(HaveOccurred())
	_, err = reg.Register(&shift{}, domain.Class{
		Name:        "Shift",
		Entity:      true,
		Initialized: func(fact any) (bool, error) { return fact.(*shift).employee != nil, nil },
		PlanningID:  func(fact any) (any, error) { return fact.(*shift).id, nil },
	})
	Expect(err).NotTo(HaveOccurred())
	return reg
}

var _ = Describe("Stream factory", func() {
	var f *Factory

	BeforeEach(func() {
		f = NewFactory(newRegistry())
	})

	It("should compile a filter-join chain into a topological graph", func() {
		f.From("Shift").
			Filter(func(a any) (bool, error) { return a.(*shift).start >= 9, nil }).
			Join(f.From("Shift"), joiner.Equal(byEmployee)).
			AsConstraint("sameEmployee")

		g, err := f.Graph()
		Expect(err).NotTo(HaveOccurred())

		nodes := g.Nodes()
		Expect(nodes).To(HaveLen(4))
		for _, n := range nodes {
			if n.Left() != nil {
				Expect(n.Left().ID()).To(BeNumerically("<", n.ID()))
			}
			if n.Right() != nil {
				Expect(n.Right().ID()).To(BeNumerically("<", n.ID()))
			}
		}

		terminal := g.Constraints()["sameEmployee"]
		Expect(terminal).NotTo(BeNil())
		Expect(terminal.Kind()).To(Equal(KindJoin))
		Expect(terminal.Arity()).To(Equal(2))
	})

	It("should fold multiple joiners into one composite", func() {
		f.From("Shift").
			Join(f.From("Shift"), joiner.Equal(byEmployee), joiner.LessThan(byStart)).
			AsConstraint("ordered")

		g, err := f.Graph()
		Expect(err).NotTo(HaveOccurred())

		n := g.Constraints()["ordered"]
		Expect(n.Joiner().Kinds()).To(Equal([]joiner.Kind{joiner.KindEqual, joiner.KindLessThan}))
	})

	It("should build a triple join off a pair stream", func() {
		f.From("Shift").
			Join(f.From("Shift"), joiner.Equal(byEmployee)).
			Join(f.From("Shift"), joiner.LessThan(byEnd, byStart).On(1)).
			AsConstraint("chained")

		g, err := f.Graph()
		Expect(err).NotTo(HaveOccurred())

		n := g.Constraints()["chained"]
		Expect(n.Arity()).To(Equal(3))
		Expect(n.Joiner().Components()[0].LeftFact).To(Equal(1))
	})

	It("should mark unfiltered sources", func() {
		f.FromUnfiltered("Shift").AsConstraint("all")

		g, err := f.Graph()
		Expect(err).NotTo(HaveOccurred())
		Expect(g.Constraints()["all"].Unfiltered()).To(BeTrue())
	})

	It("should compile a unique-pair stream into a self join", func() {
		f.FromUniquePair("Shift", joiner.Equal(byEmployee)).AsConstraint("pairs")

		g, err := f.Graph()
		Expect(err).NotTo(HaveOccurred())

		n := g.Constraints()["pairs"]
		Expect(n.SelfJoin()).To(BeTrue())
		Expect(n.Left()).To(BeIdenticalTo(n.Right()))
		Expect(n.Joiner().Kinds()).To(Equal([]joiner.Kind{joiner.KindEqual}))
	})
})

var _ = Describe("Stream definition errors", func() {
	var f *Factory

	expectDefinitionError := func() {
		GinkgoHelper()
		_, err := f.Graph()
		Expect(err).To(HaveOccurred())
		var derr *InvalidStreamDefinitionError
		Expect(errors.As(err, &derr)).To(BeTrue())
	}

	BeforeEach(func() {
		f = NewFactory(newRegistry())
	})

	It("should reject an unregistered class", func() {
		f.From("Vehicle").AsConstraint("ghost")
		expectDefinitionError()
	})

	It("should reject a graph with no constraint outputs", func() {
		f.From("Shift")
		expectDefinitionError()
	})

	It("should reject an empty constraint name", func() {
		f.From("Shift").AsConstraint("")
		expectDefinitionError()
	})

	It("should reject a duplicate constraint name", func() {
		f.From("Shift").AsConstraint("dup")
		f.From("Employee").AsConstraint("dup")
		expectDefinitionError()
	})

	It("should reject a unique pair over a class without a planning id", func() {
		f.FromUniquePair("Employee").AsConstraint("pairs")
		expectDefinitionError()
	})

	It("should reject a malformed joiner", func() {
		f.From("Shift").
			Join(f.From("Shift"), joiner.LessThan()).
			AsConstraint("bad")
		expectDefinitionError()
	})

	It("should report the first error and keep later chaining safe", func() {
		s := f.From("Vehicle").Filter(func(any) (bool, error) { return true, nil })
		s.Join(f.From("Shift")).AsConstraint("downstream")

		_, err := f.Graph()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("Vehicle"))
	})
})
