package domain

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestDomain(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Domain")
}

type employee struct{ name string }

type shift struct {
	employee *employee
	id       int64
}

type nightShift struct {
	shift
	bonus int
}

func initialized(fact any) (bool, error) {
	switch f := fact.(type) {
	case *shift:
		return f.employee != nil, nil
	case *nightShift:
		return f.employee != nil, nil
	}
	return false, nil
}

var _ = Describe("Registry", func() {
	var reg *Registry

	BeforeEach(func() {
		reg = NewRegistry()
	})

	It("should register and look up classes", func() {
		c, err := reg.Register(&employee{}, Class{Name: "Employee"})
		Expect(err).NotTo(HaveOccurred())
		Expect(reg.Lookup("Employee")).To(BeIdenticalTo(c))
		Expect(reg.Lookup("Shift")).To(BeNil())
	})

	It("should resolve the class of an instance", func() {
		_, err := reg.Register(&employee{}, Class{Name: "Employee"})
		Expect(err).NotTo(HaveOccurred())

		c, err := reg.ClassOf(&employee{name: "ann"})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Name).To(Equal("Employee"))

		_, err = reg.ClassOf(&shift{})
		Expect(err).To(HaveOccurred())
	})

	It("should reject duplicate names and types", func() {
		_, err := reg.Register(&employee{}, Class{Name: "Employee"})
		Expect(err).NotTo(HaveOccurred())

		_, err = reg.Register(&shift{}, Class{Name: "Employee"})
		Expect(err).To(HaveOccurred())

		_, err = reg.Register(&employee{}, Class{Name: "Worker"})
		Expect(err).To(HaveOccurred())
	})

	It("should reject an entity without an initialization check", func() {
		_, err := reg.Register(&shift{}, Class{Name: "Shift", Entity: true})
		Expect(err).To(HaveOccurred())
	})

	It("should reject an unregistered parent", func() {
		_, err := reg.Register(&nightShift{}, Class{Name: "NightShift", Extends: "Shift"})
		Expect(err).To(HaveOccurred())
	})

	It("should walk the extends chain for assignability", func() {
		base, err := reg.Register(&shift{}, Class{Name: "Shift", Entity: true, Initialized: initialized})
		Expect(err).NotTo(HaveOccurred())
		sub, err := reg.Register(&nightShift{}, Class{
			Name: "NightShift", Extends: "Shift", Entity: true, Initialized: initialized,
		})
		Expect(err).NotTo(HaveOccurred())
		other, err := reg.Register(&employee{}, Class{Name: "Employee"})
		Expect(err).NotTo(HaveOccurred())

		Expect(reg.AssignableTo(sub, base)).To(BeTrue())
		Expect(reg.AssignableTo(base, base)).To(BeTrue())
		Expect(reg.AssignableTo(base, sub)).To(BeFalse())
		Expect(reg.AssignableTo(other, base)).To(BeFalse())
	})
})
