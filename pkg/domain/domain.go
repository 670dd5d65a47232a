// Package domain holds the explicit registration layer that tells the stream
// engine what it needs to know about application fact types: whether a class
// is a planning entity, how to decide that an entity is fully initialized,
// how to extract its planning id, and how classes relate polymorphically.
// There is no annotation scanning or ad hoc reflection: every capability is
// declared once, at startup, and handed to stream construction explicitly.
package domain

import (
	"fmt"
	"reflect"

	"github.com/solverlab/constraintstream/pkg/joiner"
)

// Class is the capability descriptor of one registered fact or entity type.
type Class struct {
	// Name identifies the class in stream definitions.
	Name string

	// Extends names an optional parent class. A source over the parent class
	// also matches instances of this class.
	Extends string

	// Entity marks the class as a planning entity. Entity sources built with
	// From are composed with the class's own initialization filter.
	Entity bool

	// Initialized reports whether every mandatory planning variable of the
	// instance is bound. Required for entities, ignored for problem facts.
	Initialized func(fact any) (bool, error)

	// PlanningID extracts the total-order key used to deduplicate unordered
	// pair generation. Required for classes used with FromUniquePair.
	PlanningID joiner.Property
}

// Registry maps Go types to registered classes.
type Registry struct {
	byName map[string]*Class
	byType map[reflect.Type]*Class
}

// NewRegistry creates an empty class registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Class),
		byType: make(map[reflect.Type]*Class),
	}
}

// Register binds the concrete type of prototype to the given class. The type
// is captured once here; later instance lookups are plain map hits. Parents
// must be registered before their children.
func (r *Registry) Register(prototype any, class Class) (*Class, error) {
	if class.Name == "" {
		return nil, fmt.Errorf("class registration without a name")
	}
	if _, ok := r.byName[class.Name]; ok {
		return nil, fmt.Errorf("class %q registered twice", class.Name)
	}
	if class.Extends != "" {
		if _, ok := r.byName[class.Extends]; !ok {
			return nil, fmt.Errorf("class %q extends unregistered class %q", class.Name, class.Extends)
		}
	}
	if class.Entity && class.Initialized == nil {
		return nil, fmt.Errorf("entity class %q has no initialization check", class.Name)
	}

	t := reflect.TypeOf(prototype)
	if t == nil {
		return nil, fmt.Errorf("class %q registered with a nil prototype", class.Name)
	}
	if _, ok := r.byType[t]; ok {
		return nil, fmt.Errorf("type %s registered twice", t)
	}

	c := class
	r.byName[c.Name] = &c
	r.byType[t] = &c
	return &c, nil
}

// Lookup returns the class registered under name, or nil.
func (r *Registry) Lookup(name string) *Class { return r.byName[name] }

// ClassOf returns the registered class of a fact instance.
func (r *Registry) ClassOf(fact any) (*Class, error) {
	c, ok := r.byType[reflect.TypeOf(fact)]
	if !ok {
		return nil, fmt.Errorf("no registered class for instance of type %T", fact)
	}
	return c, nil
}

// AssignableTo reports whether instances of class are matched by a source
// over target, walking the Extends chain upwards.
func (r *Registry) AssignableTo(class, target *Class) bool {
	for c := class; c != nil; c = r.byName[c.Extends] {
		if c == target {
			return true
		}
		if c.Extends == "" {
			return false
		}
	}
	return false
}
