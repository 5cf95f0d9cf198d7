package matcher

import "github.com/snowmerak/agentbridge/lib/instrument"

// MethodMatcher is a predicate over the methods of a matched class.
type MethodMatcher interface {
	Matches(md *instrument.MethodDescription) bool
}

// MethodFunc adapts a function to MethodMatcher.
type MethodFunc func(md *instrument.MethodDescription) bool

// Matches implements MethodMatcher.
func (f MethodFunc) Matches(md *instrument.MethodDescription) bool {
	return f(md)
}

// MethodNamed matches methods with the given name.
func MethodNamed(name string) MethodMatcher {
	return MethodFunc(func(md *instrument.MethodDescription) bool {
		return md != nil && md.Name == name
	})
}

// TakesArguments matches methods declaring exactly n parameters.
func TakesArguments(n int) MethodMatcher {
	return MethodFunc(func(md *instrument.MethodDescription) bool {
		return md != nil && len(md.Parameters) == n
	})
}

// AnyMethod matches every method.
func AnyMethod() MethodMatcher {
	return MethodFunc(func(md *instrument.MethodDescription) bool {
		return md != nil
	})
}

// AllOf matches when every matcher matches.
func AllOf(ms ...MethodMatcher) MethodMatcher {
	return MethodFunc(func(md *instrument.MethodDescription) bool {
		if md == nil {
			return false
		}
		for _, m := range ms {
			if m == nil || !m.Matches(md) {
				return false
			}
		}
		return true
	})
}
