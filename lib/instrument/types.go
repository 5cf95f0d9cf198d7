// Package instrument describes the live instrumentation capability of the
// process.
//
// This file contains the type and method descriptions that matchers and
// interceptors are evaluated against.
package instrument

import "slices"

// TypeDescription describes a class that is about to be loaded or
// transformed.
type TypeDescription struct {
	Name        string
	SuperName   string
	Interfaces  []string
	Annotations []string
}

// IsAssignableTo reports whether the described type is name, extends it
// directly, or implements it directly.
func (t *TypeDescription) IsAssignableTo(name string) bool {
	if t == nil {
		return false
	}
	return t.Name == name || t.SuperName == name || slices.Contains(t.Interfaces, name)
}

// IsAnnotatedWith reports whether the type carries the named annotation.
func (t *TypeDescription) IsAnnotatedWith(annotation string) bool {
	if t == nil {
		return false
	}
	return slices.Contains(t.Annotations, annotation)
}

// MethodDescription describes a method, constructor or static method of a
// type.
type MethodDescription struct {
	Owner       string
	Name        string
	Parameters  []string
	Static      bool
	Constructor bool
}

// ConstructorName is the name reported for constructors.
const ConstructorName = "<init>"

// LoaderRef is an opaque reference to the class loader a type is defined in.
// The bridge passes it through without inspecting it.
type LoaderRef any
