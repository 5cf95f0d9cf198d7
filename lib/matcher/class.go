package matcher

import "github.com/snowmerak/agentbridge/lib/instrument"

// ClassMatcher is the class predicate of a Definition. It is one of
// NameMatcher or NonNameMatcher.
type ClassMatcher interface {
	classMatcher()
}

// NameMatcher matches exactly one class by name. NameMatcher{} matches
// nothing and is the fallback for predicates that cannot be translated.
type NameMatcher struct {
	Name string
}

func (NameMatcher) classMatcher() {}

// NonNameMatcher matches by class structure rather than by name.
type NonNameMatcher interface {
	ClassMatcher
	BuildJunction() Junction
	IsMatch(td *instrument.TypeDescription) bool
}

// NonName is embedded by NonNameMatcher implementations outside this
// package.
type NonName struct{}

func (NonName) classMatcher() {}

type junctionMatcher struct {
	NonName
	j Junction
}

func (m junctionMatcher) BuildJunction() Junction { return m.j }

func (m junctionMatcher) IsMatch(td *instrument.TypeDescription) bool { return m.j.Matches(td) }

// ByJunction wraps a junction as a NonNameMatcher.
func ByJunction(j Junction) NonNameMatcher {
	if j == nil {
		j = None()
	}
	return junctionMatcher{j: j}
}

// ToJunction turns a class matcher into a junction. A nil matcher never
// matches.
func ToJunction(cm ClassMatcher) Junction {
	switch m := cm.(type) {
	case NameMatcher:
		return Named(m.Name)
	case NonNameMatcher:
		if j := m.BuildJunction(); j != nil {
			return j
		}
		return None()
	default:
		return None()
	}
}

// Match reports whether cm selects td.
func Match(cm ClassMatcher, td *instrument.TypeDescription) bool {
	switch m := cm.(type) {
	case NameMatcher:
		return m.Name != "" && td != nil && td.Name == m.Name
	case NonNameMatcher:
		return m.IsMatch(td)
	default:
		return false
	}
}
