package extagent

import (
	"context"
	"log/slog"

	"github.com/snowmerak/agentbridge/lib/instrument"
	"github.com/snowmerak/agentbridge/lib/intercept"
	"github.com/snowmerak/agentbridge/lib/matcher"
)

// Provider bridges one foreign framework into the agent.
type Provider interface {
	// Identity is the framework this provider bridges.
	Identity() Identity
	// Init loads the foreign framework's plugin registry. Expected failures
	// are logged and reported as false.
	Init(ctx context.Context, args string, inst instrument.Instrumentation) bool
	// BuildMatch returns the union of the foreign plugins' class predicates.
	// A nil Junction matches nothing.
	BuildMatch() matcher.Junction
	// Transform returns the definitions for td and the builder carrying any
	// structural edits the foreign runtime needs. b may already have been
	// edited by an earlier provider.
	Transform(b *instrument.Builder, td *instrument.TypeDescription, loader instrument.LoaderRef) TransResp
	// NewInterceptor resolves a foreign interceptor by name.
	NewInterceptor(name string) (intercept.Interceptor, bool)
}

// TransResp is the result of Provider.Transform.
type TransResp struct {
	Definitions []intercept.Definition
	Builder     *instrument.Builder
}

// EmptyTransResp returns a response with no definitions that leaves b as is.
func EmptyTransResp(b *instrument.Builder) TransResp {
	return TransResp{Builder: b}
}

// IsEmpty reports whether r carries no definitions.
func (r TransResp) IsEmpty() bool {
	return len(r.Definitions) == 0
}

// ClassLoader attaches foreign modules and resolves their symbols.
// classpath.Classpath implements it.
type ClassLoader interface {
	AddModule(path string) error
	Lookup(symbol string) (any, error)
}

// Scope is what a Factory gets to build a Provider with.
type Scope struct {
	Loader ClassLoader
	Logger *slog.Logger
}

// Factory creates a Provider.
type Factory func(Scope) Provider
