package intercept

import (
	"github.com/snowmerak/agentbridge/lib/matcher"
)

// Kind is the kind of method an interception point targets.
type Kind uint8

const (
	KindStaticMethod Kind = iota + 1
	KindConstructor
	KindInstanceMethod
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindStaticMethod:
		return "static-method"
	case KindConstructor:
		return "constructor"
	case KindInstanceMethod:
		return "instance-method"
	default:
		return "unknown"
	}
}

// Point is one interception point: which methods of a matched class to
// intercept, and the name of the interceptor to run around them.
type Point struct {
	Kind        Kind
	Matcher     matcher.MethodMatcher
	Interceptor string

	// OverrideArgs lets the before hook replace the arguments in place.
	OverrideArgs bool
}

// StaticMethodPoint intercepts static methods selected by m.
func StaticMethodPoint(interceptor string, m matcher.MethodMatcher) Point {
	return Point{Kind: KindStaticMethod, Matcher: m, Interceptor: interceptor}
}

// ConstructorPoint intercepts constructors selected by m.
func ConstructorPoint(interceptor string, m matcher.MethodMatcher) Point {
	return Point{Kind: KindConstructor, Matcher: m, Interceptor: interceptor}
}

// InstanceMethodPoint intercepts instance methods selected by m.
func InstanceMethodPoint(interceptor string, m matcher.MethodMatcher) Point {
	return Point{Kind: KindInstanceMethod, Matcher: m, Interceptor: interceptor}
}

// Definition bundles a class predicate with the interception points to apply
// to classes it selects.
type Definition struct {
	Class  matcher.ClassMatcher
	Points []Point
}
