package skywalking

import (
	"github.com/snowmerak/agentbridge/lib/instrument"
	"github.com/snowmerak/agentbridge/lib/matcher"
	"github.com/snowmerak/agentbridge/lib/skywalking/swapi"
)

type indirectMatcher struct {
	matcher.NonName
	m swapi.IndirectMatch
}

func (a indirectMatcher) BuildJunction() matcher.Junction {
	if j := a.m.BuildJunction(); j != nil {
		return j
	}
	return matcher.None()
}

func (a indirectMatcher) IsMatch(td *instrument.TypeDescription) bool {
	return a.m.IsMatch(td)
}

// AdaptClassMatch translates a foreign class predicate. Anything other than
// a name match or an indirect match becomes NameMatcher{}, which matches
// nothing.
func AdaptClassMatch(cm swapi.ClassMatch) matcher.ClassMatcher {
	switch m := cm.(type) {
	case *swapi.NameMatch:
		if m == nil {
			return matcher.NameMatcher{}
		}
		return matcher.NameMatcher{Name: m.ClassName()}
	case swapi.IndirectMatch:
		return indirectMatcher{m: m}
	default:
		return matcher.NameMatcher{}
	}
}
