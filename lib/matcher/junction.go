// Package matcher decides which loaded classes and which of their methods
// need instrumentation.
//
// This file contains the class junction type and its combinators.
package matcher

import (
	"slices"
	"strings"

	"github.com/snowmerak/agentbridge/lib/instrument"
)

// Junction is a predicate over loaded classes.
type Junction interface {
	Matches(td *instrument.TypeDescription) bool
}

// JunctionFunc adapts a function to Junction.
type JunctionFunc func(td *instrument.TypeDescription) bool

// Matches implements Junction.
func (f JunctionFunc) Matches(td *instrument.TypeDescription) bool {
	return f(td)
}

type none struct{}

func (none) Matches(*instrument.TypeDescription) bool { return false }

type anyType struct{}

func (anyType) Matches(td *instrument.TypeDescription) bool { return td != nil }

// None matches nothing.
func None() Junction { return none{} }

// Any matches every class.
func Any() Junction { return anyType{} }

// IsNone reports whether j is the never-matching junction (or nil).
func IsNone(j Junction) bool {
	if j == nil {
		return true
	}
	_, ok := j.(none)
	return ok
}

type named struct{ name string }

func (n named) Matches(td *instrument.TypeDescription) bool {
	return td != nil && n.name != "" && td.Name == n.name
}

// Named matches the class whose fully qualified name equals name. An empty
// name matches nothing.
func Named(name string) Junction { return named{name: name} }

type namedOneOf struct{ names []string }

func (n namedOneOf) Matches(td *instrument.TypeDescription) bool {
	return td != nil && td.Name != "" && slices.Contains(n.names, td.Name)
}

// NamedOneOf matches any of the given names.
func NamedOneOf(names ...string) Junction {
	return namedOneOf{names: slices.Clone(names)}
}

// NameStartsWith matches classes whose name has the given prefix.
func NameStartsWith(prefix string) Junction {
	return JunctionFunc(func(td *instrument.TypeDescription) bool {
		return td != nil && strings.HasPrefix(td.Name, prefix)
	})
}

// IsSubTypeOf matches classes that are, extend, or implement name.
func IsSubTypeOf(name string) Junction {
	return JunctionFunc(func(td *instrument.TypeDescription) bool {
		return td.IsAssignableTo(name)
	})
}

// IsAnnotatedWith matches classes carrying the annotation.
func IsAnnotatedWith(annotation string) Junction {
	return JunctionFunc(func(td *instrument.TypeDescription) bool {
		return td.IsAnnotatedWith(annotation)
	})
}

type or struct{ parts []Junction }

func (o or) Matches(td *instrument.TypeDescription) bool {
	for _, p := range o.parts {
		if p.Matches(td) {
			return true
		}
	}
	return false
}

// Or matches when any of js matches. Nil and never-matching parts are
// dropped, nested disjunctions are flattened, and order is kept.
func Or(js ...Junction) Junction {
	parts := make([]Junction, 0, len(js))
	for _, j := range js {
		if IsNone(j) {
			continue
		}
		if nested, ok := j.(or); ok {
			parts = append(parts, nested.parts...)
			continue
		}
		parts = append(parts, j)
	}
	switch len(parts) {
	case 0:
		return None()
	case 1:
		return parts[0]
	}
	return or{parts: parts}
}

// Parts returns the operands of a disjunction built by Or, or j itself.
func Parts(j Junction) []Junction {
	if IsNone(j) {
		return nil
	}
	if o, ok := j.(or); ok {
		return slices.Clone(o.parts)
	}
	return []Junction{j}
}

type and struct{ parts []Junction }

func (a and) Matches(td *instrument.TypeDescription) bool {
	for _, p := range a.parts {
		if !p.Matches(td) {
			return false
		}
	}
	return true
}

// And matches when every one of js matches. A nil part never matches.
func And(js ...Junction) Junction {
	parts := make([]Junction, 0, len(js))
	for _, j := range js {
		if IsNone(j) {
			return None()
		}
		parts = append(parts, j)
	}
	if len(parts) == 0 {
		return None()
	}
	return and{parts: parts}
}

// Not negates j. Not(nil) matches every class.
func Not(j Junction) Junction {
	return JunctionFunc(func(td *instrument.TypeDescription) bool {
		if j == nil {
			return td != nil
		}
		return !j.Matches(td)
	})
}
