package swapi

import (
	"github.com/snowmerak/agentbridge/lib/matcher"
)

// ConstructorInterceptPoint selects constructors and names their
// interceptor.
type ConstructorInterceptPoint interface {
	ConstructorMatcher() matcher.MethodMatcher
	ConstructorInterceptor() string
}

// InstanceMethodsInterceptPoint selects instance methods and names their
// interceptor.
type InstanceMethodsInterceptPoint interface {
	MethodsMatcher() matcher.MethodMatcher
	MethodsInterceptor() string
	IsOverrideArgs() bool
}

// StaticMethodsInterceptPoint selects static methods and names their
// interceptor.
type StaticMethodsInterceptPoint interface {
	MethodsMatcher() matcher.MethodMatcher
	MethodsInterceptor() string
	IsOverrideArgs() bool
}

// ClassEnhancePluginDefine is what every plugin provides.
type ClassEnhancePluginDefine interface {
	EnhanceClass() ClassMatch
	ConstructorsInterceptPoints() []ConstructorInterceptPoint
	InstanceMethodsInterceptPoints() []InstanceMethodsInterceptPoint
	StaticMethodsInterceptPoints() []StaticMethodsInterceptPoint
}

// ConstructorPoint is a plain ConstructorInterceptPoint.
type ConstructorPoint struct {
	Matcher     matcher.MethodMatcher
	Interceptor string
}

func (p ConstructorPoint) ConstructorMatcher() matcher.MethodMatcher { return p.Matcher }
func (p ConstructorPoint) ConstructorInterceptor() string            { return p.Interceptor }

// MethodsPoint is a plain instance or static methods intercept point.
type MethodsPoint struct {
	Matcher      matcher.MethodMatcher
	Interceptor  string
	OverrideArgs bool
}

func (p MethodsPoint) MethodsMatcher() matcher.MethodMatcher { return p.Matcher }
func (p MethodsPoint) MethodsInterceptor() string            { return p.Interceptor }
func (p MethodsPoint) IsOverrideArgs() bool                  { return p.OverrideArgs }

// PluginDefine is a ClassEnhancePluginDefine built from plain values.
type PluginDefine struct {
	Class        ClassMatch
	Constructors []ConstructorInterceptPoint
	Instance     []InstanceMethodsInterceptPoint
	Static       []StaticMethodsInterceptPoint
}

func (d *PluginDefine) EnhanceClass() ClassMatch { return d.Class }

func (d *PluginDefine) ConstructorsInterceptPoints() []ConstructorInterceptPoint {
	return d.Constructors
}

func (d *PluginDefine) InstanceMethodsInterceptPoints() []InstanceMethodsInterceptPoint {
	return d.Instance
}

func (d *PluginDefine) StaticMethodsInterceptPoints() []StaticMethodsInterceptPoint {
	return d.Static
}
