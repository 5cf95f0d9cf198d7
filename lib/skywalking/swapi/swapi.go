// Package swapi is the plugin API of the SkyWalking agent, as seen from Go.
//
// Foreign agent modules are built against these types. The bridge in the
// parent package only ever touches a foreign agent through this surface and
// the symbols it exports.
package swapi

import (
	"github.com/snowmerak/agentbridge/lib/instrument"
)

// Symbols a SkyWalking agent module exports.
const (
	// PremainSymbol is a PremainFunc.
	PremainSymbol = "Premain"
	// InterceptorLoaderSymbol is a LoadInterceptorFunc.
	InterceptorLoaderSymbol = "LoadInterceptor"
)

// PremainFunc bootstraps the agent: it loads the plugins, builds a
// PluginFinder and installs it globally.
type PremainFunc func(args string, inst instrument.Instrumentation) error

// LoadInterceptorFunc instantiates a plugin interceptor by name.
type LoadInterceptorFunc func(name string) (any, error)

// PluginFinderBuildMatch is the join point PluginFinder.BuildMatch enters.
var PluginFinderBuildMatch = instrument.JoinPoint{
	Type:   "org.apache.skywalking.apm.agent.core.plugin.PluginFinder",
	Method: "BuildMatch",
}

const (
	// EnhancedFieldName is the field enhanced types carry for interceptor
	// state.
	EnhancedFieldName = "_$EnhancedClassField_ws"
	// EnhancedFieldType is the declared type of EnhancedFieldName.
	EnhancedFieldType = "java.lang.Object"
	// EnhancedInstanceType is the interface enhanced types implement.
	EnhancedInstanceType = "org.apache.skywalking.apm.agent.core.plugin.interceptor.enhance.EnhancedInstance"
)

// EnhancedInstance exposes the dynamic field of an enhanced object.
type EnhancedInstance interface {
	GetSkyWalkingDynamicField() any
	SetSkyWalkingDynamicField(v any)
}
