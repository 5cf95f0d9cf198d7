package skywalking

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowmerak/agentbridge/lib/classpath"
	"github.com/snowmerak/agentbridge/lib/extagent"
	"github.com/snowmerak/agentbridge/lib/instrument"
	"github.com/snowmerak/agentbridge/lib/intercept"
	"github.com/snowmerak/agentbridge/lib/matcher"
	"github.com/snowmerak/agentbridge/lib/skywalking/swapi"
)

const targetInterceptor = "com.example.plugin.TargetInterceptor"

// fakeAgent is a SkyWalking agent module with one plugin enhancing
// com.example.Target.
type fakeAgent struct {
	installed int
	premains  int
}

func (a *fakeAgent) defines() []swapi.ClassEnhancePluginDefine {
	return []swapi.ClassEnhancePluginDefine{
		&swapi.PluginDefine{
			Class: swapi.ByName("com.example.Target"),
			Instance: []swapi.InstanceMethodsInterceptPoint{
				swapi.MethodsPoint{Matcher: matcher.MethodNamed("call"), Interceptor: targetInterceptor},
			},
		},
	}
}

func (a *fakeAgent) premain(_ string, inst instrument.Instrumentation) error {
	a.premains++
	return swapi.Boot(inst, a.defines(), func(matcher.Junction) error {
		a.installed++
		return nil
	})
}

func (a *fakeAgent) loadInterceptor(name string) (any, error) {
	switch name {
	case targetInterceptor:
		return &instanceHooks{}, nil
	case "com.example.plugin.StaticInterceptor":
		return &staticHooks{}, nil
	case "com.example.plugin.CtorInterceptor":
		return &ctorHooks{}, nil
	case "com.example.plugin.NotAnInterceptor":
		return struct{}{}, nil
	case "com.example.plugin.Panics":
		panic("class init failed")
	}
	return nil, errors.New("class not found: " + name)
}

func (a *fakeAgent) module() classpath.Symbols {
	return classpath.Symbols{
		swapi.PremainSymbol:           swapi.PremainFunc(a.premain),
		swapi.InterceptorLoaderSymbol: swapi.LoadInterceptorFunc(a.loadInterceptor),
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLoader(t *testing.T, module classpath.Module) (*Loader, *instrument.AdviceTable) {
	t.Helper()
	cp := classpath.New(classpath.WithOpener(classpath.StaticOpener(map[string]classpath.Module{"agent.so": module})))
	require.NoError(t, cp.AddModule("agent.so"))
	return New(extagent.Scope{Loader: cp, Logger: discard()}), instrument.NewAdviceTable()
}

func TestLoader_EndToEnd(t *testing.T) {
	agent := &fakeAgent{}
	dir := t.TempDir()
	jar := filepath.Join(dir, "ext", "f.jar")
	require.NoError(t, os.MkdirAll(filepath.Dir(jar), 0o755))
	require.NoError(t, os.WriteFile(jar, []byte("agent"), 0o600))

	cp := classpath.New(classpath.WithOpener(classpath.StaticOpener(map[string]classpath.Module{jar: agent.module()})))
	catalog := extagent.NewCatalog()
	catalog.Register(extagent.ServiceName, func(s extagent.Scope) extagent.Provider { return New(s) })

	m := extagent.NewManager(
		extagent.WithCatalog(catalog),
		extagent.WithClassLoader(cp),
		extagent.WithExtAgentDir(dir),
		extagent.WithLogger(discard()),
	)
	inst := instrument.NewAdviceTable()
	cfg := extagent.Config{Enabled: true, Paths: map[extagent.Identity]string{extagent.SkyWalking: "ext/f.jar"}}

	require.Equal(t, extagent.StateReady, m.Init(context.Background(), cfg, inst))
	assert.Equal(t, []extagent.Identity{extagent.SkyWalking}, m.Providers())
	assert.Equal(t, []string{jar}, cp.Paths())
	assert.Equal(t, 1, agent.premains)
	assert.Zero(t, agent.installed, "foreign agent must not install itself")
	assert.False(t, inst.Advised(swapi.PluginFinderBuildMatch))

	j := m.BuildMatch()
	assert.True(t, j.Matches(&instrument.TypeDescription{Name: "com.example.Target"}))
	assert.False(t, j.Matches(&instrument.TypeDescription{Name: "com.example.Other"}))

	td := &instrument.TypeDescription{Name: "com.example.Target"}
	resp := m.Transform(instrument.NewBuilder(td), td, nil)
	require.Len(t, resp.Definitions, 1)
	def := resp.Definitions[0]
	assert.Equal(t, matcher.NameMatcher{Name: "com.example.Target"}, def.Class)
	require.Len(t, def.Points, 1)
	assert.Equal(t, intercept.KindInstanceMethod, def.Points[0].Kind)
	assert.Equal(t, targetInterceptor, def.Points[0].Interceptor)

	field, ok := resp.Builder.Field(swapi.EnhancedFieldName)
	require.True(t, ok)
	assert.True(t, field.Modifiers.Has(instrument.ModifierPrivate|instrument.ModifierVolatile))
	assert.True(t, resp.Builder.Implements(swapi.EnhancedInstanceType))

	other := &instrument.TypeDescription{Name: "com.example.Other"}
	b := instrument.NewBuilder(other)
	resp = m.Transform(b, other, nil)
	assert.True(t, resp.IsEmpty())
	assert.Same(t, b, resp.Builder)

	i, ok := m.NewInterceptor(targetInterceptor)
	require.True(t, ok)
	im, ok := i.(intercept.InstanceMethodInterceptor)
	require.True(t, ok)

	obj := &target{}
	var result intercept.BeforeResult
	require.NoError(t, im.Before(obj, &instrument.MethodDescription{Name: "call"}, nil, &result))
	assert.False(t, result.Skipped())

	// A second, natural run of the foreign bootstrap is not intercepted.
	require.NoError(t, agent.premain("", inst))
	assert.Equal(t, 1, agent.installed)
}

func TestLoader_Identity(t *testing.T) {
	l := New(extagent.Scope{})
	assert.Equal(t, extagent.SkyWalking, l.Identity())
}

func TestLoader_RegisteredInDefaultCatalog(t *testing.T) {
	found := false
	for _, f := range extagent.DefaultCatalog.Discover(extagent.ServiceName) {
		if p := f(extagent.Scope{Logger: discard()}); p != nil && p.Identity() == extagent.SkyWalking {
			found = true
		}
	}
	assert.True(t, found)
}

func TestLoader_InitFailures(t *testing.T) {
	tests := []struct {
		name   string
		module classpath.Module
		log    string
	}{
		{
			name:   "missing premain",
			module: classpath.Symbols{},
			log:    "Cannot resolve SkyWalking agent premain",
		},
		{
			name:   "premain of the wrong type",
			module: classpath.Symbols{swapi.PremainSymbol: "premain"},
			log:    "Cannot resolve SkyWalking agent premain",
		},
		{
			name: "premain never reaches the finder",
			module: classpath.Symbols{swapi.PremainSymbol: swapi.PremainFunc(func(string, instrument.Instrumentation) error {
				return nil
			})},
			log: "SkyWalking agent was not intercepted",
		},
		{
			name: "premain fails on its own",
			module: classpath.Symbols{swapi.PremainSymbol: swapi.PremainFunc(func(string, instrument.Instrumentation) error {
				return errors.New("config missing")
			})},
			log: "SkyWalking agent was not intercepted",
		},
		{
			name: "finder without Find",
			module: classpath.Symbols{swapi.PremainSymbol: swapi.PremainFunc(func(_ string, inst instrument.Instrumentation) error {
				return inst.Enter(swapi.PluginFinderBuildMatch, struct{}{})
			})},
			log: "SkyWalking plugin finder has an unexpected shape",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			cp := classpath.New(classpath.WithOpener(classpath.StaticOpener(map[string]classpath.Module{"agent.so": tt.module})))
			require.NoError(t, cp.AddModule("agent.so"))
			l := New(extagent.Scope{Loader: cp, Logger: slog.New(slog.NewTextHandler(&logs, nil))})

			assert.False(t, l.Init(context.Background(), "", instrument.NewAdviceTable()))
			assert.Contains(t, logs.String(), tt.log)
			assert.Nil(t, l.BuildMatch())
			b := instrument.NewBuilder(targetType)
			assert.Same(t, b, l.Transform(b, targetType, nil).Builder)
		})
	}

	l := New(extagent.Scope{Logger: discard()})
	assert.False(t, l.Init(context.Background(), "", instrument.NewAdviceTable()))
	_, ok := l.NewInterceptor(targetInterceptor)
	assert.False(t, ok)
}

func TestLoader_PluginPremainSymbol(t *testing.T) {
	agent := &fakeAgent{}
	fn := agent.premain
	plain := func(args string, inst instrument.Instrumentation) error { return fn(args, inst) }
	l, inst := newLoader(t, classpath.Symbols{swapi.PremainSymbol: &plain})

	require.True(t, l.Init(context.Background(), "", inst))
	assert.Zero(t, agent.installed)
}

func TestLoader_TransformKeepsExistingEnhancement(t *testing.T) {
	agent := &fakeAgent{}
	l, inst := newLoader(t, agent.module())
	require.True(t, l.Init(context.Background(), "", inst))

	td := &instrument.TypeDescription{Name: "com.example.Target"}
	b := instrument.NewBuilder(td).
		DefineField(swapi.EnhancedFieldName, swapi.EnhancedFieldType, instrument.ModifierPrivate|instrument.ModifierVolatile).
		Implement(swapi.EnhancedInstanceType)

	resp := l.Transform(b, td, nil)
	require.Len(t, resp.Definitions, 1)
	assert.Len(t, resp.Builder.Fields(), 1)
	assert.Equal(t, []string{swapi.EnhancedInstanceType}, resp.Builder.Interfaces())

	resp = l.Transform(nil, td, nil)
	require.NotNil(t, resp.Builder)
	assert.True(t, resp.Builder.HasField(swapi.EnhancedFieldName))
}

func TestLoader_NewInterceptor(t *testing.T) {
	agent := &fakeAgent{}
	l, _ := newLoader(t, agent.module())

	tests := []struct {
		name string
		kind intercept.Kind
		ok   bool
	}{
		{name: targetInterceptor, kind: intercept.KindInstanceMethod, ok: true},
		{name: "com.example.plugin.StaticInterceptor", kind: intercept.KindStaticMethod, ok: true},
		{name: "com.example.plugin.CtorInterceptor", kind: intercept.KindConstructor, ok: true},
		{name: "com.example.plugin.NotAnInterceptor"},
		{name: "com.example.plugin.Panics"},
		{name: "com.example.plugin.Missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, ok := l.NewInterceptor(tt.name)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				assert.Nil(t, i)
				return
			}
			kind, ok := intercept.KindOf(i)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}

	noLoader, _ := newLoader(t, classpath.Symbols{})
	_, ok := noLoader.NewInterceptor(targetInterceptor)
	assert.False(t, ok)
}
