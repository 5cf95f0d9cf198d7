package swapi

import (
	"github.com/snowmerak/agentbridge/lib/instrument"
	"github.com/snowmerak/agentbridge/lib/matcher"
)

// ClassMatch selects the classes a plugin enhances. It is a *NameMatch or
// an IndirectMatch.
type ClassMatch any

// NameMatch selects one class by its exact name.
type NameMatch struct {
	className string
}

// ByName returns a NameMatch for className.
func ByName(className string) *NameMatch {
	return &NameMatch{className: className}
}

// ClassName returns the matched class name.
func (m *NameMatch) ClassName() string {
	return m.className
}

// IndirectMatch selects classes by structure.
type IndirectMatch interface {
	BuildJunction() matcher.Junction
	IsMatch(td *instrument.TypeDescription) bool
}

type hierarchyMatch struct {
	parents []string
}

// ByHierarchyMatch selects classes assignable to every parent.
func ByHierarchyMatch(parents ...string) IndirectMatch {
	return hierarchyMatch{parents: parents}
}

func (m hierarchyMatch) BuildJunction() matcher.Junction {
	js := make([]matcher.Junction, 0, len(m.parents))
	for _, p := range m.parents {
		js = append(js, matcher.IsSubTypeOf(p))
	}
	return matcher.And(js...)
}

func (m hierarchyMatch) IsMatch(td *instrument.TypeDescription) bool {
	return m.BuildJunction().Matches(td)
}

type annotationMatch struct {
	annotations []string
}

// ByClassAnnotationMatch selects classes carrying every annotation.
func ByClassAnnotationMatch(annotations ...string) IndirectMatch {
	return annotationMatch{annotations: annotations}
}

func (m annotationMatch) BuildJunction() matcher.Junction {
	js := make([]matcher.Junction, 0, len(m.annotations))
	for _, a := range m.annotations {
		js = append(js, matcher.IsAnnotatedWith(a))
	}
	return matcher.And(js...)
}

func (m annotationMatch) IsMatch(td *instrument.TypeDescription) bool {
	return m.BuildJunction().Matches(td)
}
