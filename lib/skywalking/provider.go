// Package skywalking bridges the plugins of a SkyWalking agent module into
// the agent.
//
// Loader.Init runs the module's Premain with a handshake armed on
// PluginFinder.BuildMatch. The handshake captures the plugin finder the
// module just built and aborts the bootstrap before the module installs
// itself. The captured finder then backs BuildMatch and Transform, and the
// module's interceptors are adapted on demand.
package skywalking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/snowmerak/agentbridge/lib/extagent"
	"github.com/snowmerak/agentbridge/lib/handshake"
	"github.com/snowmerak/agentbridge/lib/instrument"
	"github.com/snowmerak/agentbridge/lib/intercept"
	"github.com/snowmerak/agentbridge/lib/matcher"
	"github.com/snowmerak/agentbridge/lib/skywalking/swapi"
)

const (
	methodBuildMatch = "BuildMatch"
	methodFind       = "Find"
)

func init() {
	extagent.Register(func(scope extagent.Scope) extagent.Provider {
		return New(scope)
	})
}

// Loader is the extagent.Provider for SkyWalking.
type Loader struct {
	loader extagent.ClassLoader
	logger *slog.Logger

	// finder is set by a successful Init and read-only afterwards.
	finder *handshake.Handshake
}

var _ extagent.Provider = (*Loader)(nil)

// New creates a Loader resolving symbols through scope.Loader.
func New(scope extagent.Scope) *Loader {
	logger := scope.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		loader: scope.Loader,
		logger: logger.With("identity", extagent.SkyWalking.String()),
	}
}

// Identity implements extagent.Provider.
func (l *Loader) Identity() extagent.Identity {
	return extagent.SkyWalking
}

// Init implements extagent.Provider.
func (l *Loader) Init(ctx context.Context, args string, inst instrument.Instrumentation) bool {
	if l.loader == nil || inst == nil {
		l.logger.ErrorContext(ctx, "SkyWalking agent needs a class loader and instrumentation")
		return false
	}

	premain, err := l.premain()
	if err != nil {
		l.logger.ErrorContext(ctx, "Cannot resolve SkyWalking agent premain", "error", err)
		return false
	}

	hs, err := handshake.New(swapi.PluginFinderBuildMatch, methodBuildMatch, methodFind)
	if err != nil {
		l.logger.ErrorContext(ctx, "Cannot prepare SkyWalking handshake", "error", err)
		return false
	}
	if err := hs.Arm(inst); err != nil {
		l.logger.ErrorContext(ctx, "Cannot arm SkyWalking handshake", "error", err)
		return false
	}
	defer hs.Disarm()

	err = hs.Run(func() error {
		return premain(args, inst)
	})
	switch {
	case err == nil:
		l.finder = hs
		return true
	case errors.Is(err, handshake.ErrResolve):
		l.logger.WarnContext(ctx, "SkyWalking plugin finder has an unexpected shape", "error", err)
	default:
		l.logger.ErrorContext(ctx, "SkyWalking agent was not intercepted", "status", hs.Status().String(), "error", err)
	}
	return false
}

func (l *Loader) premain() (swapi.PremainFunc, error) {
	sym, err := l.loader.Lookup(swapi.PremainSymbol)
	if err != nil {
		return nil, err
	}
	switch fn := sym.(type) {
	case swapi.PremainFunc:
		return fn, nil
	case func(string, instrument.Instrumentation) error:
		return fn, nil
	case *func(string, instrument.Instrumentation) error:
		if fn != nil && *fn != nil {
			return *fn, nil
		}
	}
	return nil, fmt.Errorf("skywalking: %s is %T", swapi.PremainSymbol, sym)
}

func (l *Loader) interceptorLoader() (swapi.LoadInterceptorFunc, error) {
	sym, err := l.loader.Lookup(swapi.InterceptorLoaderSymbol)
	if err != nil {
		return nil, err
	}
	switch fn := sym.(type) {
	case swapi.LoadInterceptorFunc:
		return fn, nil
	case func(string) (any, error):
		return fn, nil
	case *func(string) (any, error):
		if fn != nil && *fn != nil {
			return *fn, nil
		}
	}
	return nil, fmt.Errorf("skywalking: %s is %T", swapi.InterceptorLoaderSymbol, sym)
}

// BuildMatch implements extagent.Provider.
func (l *Loader) BuildMatch() matcher.Junction {
	if l.finder == nil {
		return nil
	}

	out, err := l.finder.Call(methodBuildMatch)
	if err != nil {
		l.logger.Warn("Cannot build SkyWalking match", "error", err)
		return nil
	}
	if len(out) > 1 {
		if err, _ := out[len(out)-1].(error); err != nil {
			l.logger.Warn("Cannot build SkyWalking match", "error", err)
			return nil
		}
	}
	if len(out) == 0 || out[0] == nil {
		return nil
	}
	j, ok := out[0].(matcher.Junction)
	if !ok {
		l.logger.Warn("SkyWalking match is not a junction", "type", fmt.Sprintf("%T", out[0]))
		return nil
	}
	return j
}

// Transform implements extagent.Provider.
func (l *Loader) Transform(b *instrument.Builder, td *instrument.TypeDescription, _ instrument.LoaderRef) extagent.TransResp {
	if l.finder == nil {
		return extagent.EmptyTransResp(b)
	}

	out, err := l.finder.Call(methodFind, td)
	if err != nil {
		l.logger.Warn("Cannot find SkyWalking plugins", "type", typeName(td), "error", err)
		return extagent.EmptyTransResp(b)
	}
	if len(out) == 0 {
		return extagent.EmptyTransResp(b)
	}

	found := reflect.ValueOf(out[0])
	if found.Kind() != reflect.Slice || found.Len() == 0 {
		return extagent.EmptyTransResp(b)
	}

	defs := make([]intercept.Definition, 0, found.Len())
	for i := range found.Len() {
		defs = append(defs, AdaptDefinition(found.Index(i).Interface(), l.logger))
	}

	if b == nil {
		b = instrument.NewBuilder(td)
	}
	if !b.HasField(swapi.EnhancedFieldName) {
		b = b.DefineField(swapi.EnhancedFieldName, swapi.EnhancedFieldType, instrument.ModifierPrivate|instrument.ModifierVolatile)
	}
	if !b.Implements(swapi.EnhancedInstanceType) {
		b = b.Implement(swapi.EnhancedInstanceType)
	}
	return extagent.TransResp{Definitions: defs, Builder: b}
}

// NewInterceptor implements extagent.Provider.
func (l *Loader) NewInterceptor(name string) (intercept.Interceptor, bool) {
	if l.loader == nil {
		return nil, false
	}

	load, err := l.interceptorLoader()
	if err != nil {
		l.logger.Debug("SkyWalking interceptor loader unavailable", "error", err)
		return nil, false
	}

	v, err := loadInterceptor(load, name)
	if err != nil {
		l.logger.Debug("SkyWalking interceptor not loaded", "interceptor", name, "error", err)
		return nil, false
	}

	switch i := v.(type) {
	case swapi.StaticMethodsAroundInterceptor:
		return AdaptStaticInterceptor(name, i), true
	case swapi.InstanceConstructorInterceptor:
		return AdaptConstructorInterceptor(name, i), true
	case swapi.InstanceMethodsAroundInterceptor:
		return AdaptInstanceInterceptor(name, i), true
	}
	return nil, false
}

func loadInterceptor(load swapi.LoadInterceptorFunc, name string) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("skywalking: load interceptor %s panicked: %v", name, r)
		}
	}()
	return load(name)
}

func typeName(td *instrument.TypeDescription) string {
	if td == nil {
		return ""
	}
	return td.Name
}
