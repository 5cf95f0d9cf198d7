package extagent

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/snowmerak/agentbridge/lib/instrument"
	"github.com/snowmerak/agentbridge/lib/intercept"
	"github.com/snowmerak/agentbridge/lib/matcher"
)

const tracerName = "github.com/snowmerak/agentbridge/lib/extagent"

// State is the lifecycle state of a Manager.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateDisabled
	StateFailed
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDisabled:
		return "disabled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s can no longer change.
func (s State) Terminal() bool {
	return s == StateReady || s == StateDisabled || s == StateFailed
}

// Registration records what happened to one configured identity.
type Registration struct {
	Identity Identity
	JarPath  string
	// Loaded is true once the module was attached to the class loader.
	Loaded bool
	// Active is true once the provider initialized.
	Active bool
}

// snapshot is immutable once published.
type snapshot struct {
	state         State
	providers     []Provider
	registrations []Registration
}

// Manager is the registry of active providers. Init runs once; afterwards
// every method reads an immutable snapshot without locking.
type Manager struct {
	catalog *Catalog
	loader  ClassLoader
	dir     string
	args    string
	logger  *slog.Logger
	tracer  trace.Tracer

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// Option configures a Manager.
type Option func(*Manager)

// WithCatalog replaces DefaultCatalog as the source of providers.
func WithCatalog(c *Catalog) Option {
	return func(m *Manager) {
		if c != nil {
			m.catalog = c
		}
	}
}

// WithClassLoader sets the loader foreign modules are attached to. Without
// one, Init fails.
func WithClassLoader(l ClassLoader) Option {
	return func(m *Manager) {
		m.loader = l
	}
}

// WithExtAgentDir sets the directory relative module paths resolve against.
func WithExtAgentDir(dir string) Option {
	return func(m *Manager) {
		m.dir = dir
	}
}

// WithAgentArgs sets the argument string passed to Provider.Init.
func WithAgentArgs(args string) Option {
	return func(m *Manager) {
		m.args = args
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTracerProvider sets where Init spans go. The default is the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) {
		if tp != nil {
			m.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewManager creates an uninitialized Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		catalog: DefaultCatalog,
		logger:  slog.Default(),
		tracer:  otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.snap.Store(&snapshot{state: StateUninitialized})
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	return m.snap.Load().state
}

// Providers returns the identities of the active providers in discovery
// order.
func (m *Manager) Providers() []Identity {
	s := m.snap.Load()
	ids := make([]Identity, 0, len(s.providers))
	for _, p := range s.providers {
		ids = append(ids, p.Identity())
	}
	return ids
}

// Registrations returns one entry per configured identity.
func (m *Manager) Registrations() []Registration {
	return slices.Clone(m.snap.Load().registrations)
}

// Init discovers, attaches and initializes providers. Only the first call
// does any work; later and concurrent calls return the published state.
func (m *Manager) Init(ctx context.Context, cfg Config, inst instrument.Instrumentation) State {
	if s := m.snap.Load(); s.state.Terminal() {
		return s.state
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.snap.Load(); s.state.Terminal() {
		return s.state
	}
	m.snap.Store(&snapshot{state: StateInitializing})

	ctx, span := m.tracer.Start(ctx, "extagent.Init")
	defer span.End()

	next := m.initialize(ctx, cfg, inst)
	span.SetAttributes(
		attribute.String("extagent.state", next.state.String()),
		attribute.Int("extagent.providers", len(next.providers)),
	)
	if next.state == StateFailed {
		span.SetStatus(codes.Error, "no class loader")
	}

	m.snap.Store(next)
	return next.state
}

func (m *Manager) initialize(ctx context.Context, cfg Config, inst instrument.Instrumentation) *snapshot {
	if !cfg.Enabled {
		m.logger.Debug("Ext agent loading is disabled")
		return &snapshot{state: StateDisabled}
	}
	if m.loader == nil {
		m.logger.Error("Ext agent loading needs a class loader that accepts modules")
		return &snapshot{state: StateFailed}
	}

	scope := Scope{Loader: m.loader, Logger: m.logger}
	next := &snapshot{state: StateReady}
	seen := make(map[Identity]bool)

	for _, factory := range m.catalog.Discover(ServiceName) {
		p := factory(scope)
		if p == nil {
			continue
		}
		id := p.Identity()
		seen[id] = true

		reg, configured := m.attach(ctx, p, cfg, inst)
		if !configured {
			continue
		}
		next.registrations = append(next.registrations, reg)
		if reg.Active {
			next.providers = append(next.providers, p)
		}
	}

	for _, id := range slices.Sorted(maps.Keys(cfg.Paths)) {
		if seen[id] {
			continue
		}
		path, _ := cfg.Path(id)
		next.registrations = append(next.registrations, Registration{Identity: id, JarPath: ResolvePath(m.dir, path)})
		if _, err := ParseIdentity(string(id)); err != nil {
			m.logger.Warn("Unknown ext agent identity in configuration", "identity", string(id))
		} else {
			m.logger.Warn("No provider discovered for ext agent", "identity", string(id))
		}
	}

	return next
}

// attach loads the module of p and initializes it. configured is false when
// cfg has no path for p.
func (m *Manager) attach(ctx context.Context, p Provider, cfg Config, inst instrument.Instrumentation) (reg Registration, configured bool) {
	id := p.Identity()
	logger := m.logger.With("identity", string(id))

	rel, ok := cfg.Path(id)
	if !ok {
		logger.Warn("Missing ext agent module path")
		return Registration{Identity: id}, false
	}
	path := ResolvePath(m.dir, rel)
	reg = Registration{Identity: id, JarPath: path}

	ctx, span := m.tracer.Start(ctx, "extagent.Attach", trace.WithAttributes(
		attribute.String("extagent.identity", string(id)),
		attribute.String("extagent.path", path),
	))
	defer span.End()

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		logger.Warn("Cannot find ext agent module", "path", path)
		span.SetStatus(codes.Error, "module not found")
		return reg, true
	}

	if err := m.loader.AddModule(path); err != nil {
		logger.Warn("Add ext agent module failed", "path", path, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "add module failed")
		return reg, true
	}
	reg.Loaded = true

	if err := m.initProvider(ctx, p, inst); err != nil {
		logger.Warn("Ext agent did not initialize", "path", path, "error", err)
		span.SetStatus(codes.Error, err.Error())
		return reg, true
	}
	reg.Active = true

	logger.Info("Ext agent loaded", "path", path)
	return reg, true
}

func (m *Manager) initProvider(ctx context.Context, p Provider, inst instrument.Instrumentation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extagent: init panicked: %v", r)
		}
	}()
	if !p.Init(ctx, m.args, inst) {
		return fmt.Errorf("extagent: init returned false")
	}
	return nil
}

// ready returns the snapshot when the Manager is ready and logs otherwise.
func (m *Manager) ready(op string) (*snapshot, bool) {
	s := m.snap.Load()
	switch s.state {
	case StateReady:
		return s, true
	case StateDisabled:
		m.logger.Debug("Ext agent manager is disabled", "op", op)
	default:
		m.logger.Warn("Ext agent manager is not ready", "op", op, "state", s.state.String())
	}
	return nil, false
}

// BuildMatch returns the union of every active provider's predicate. It
// matches nothing until the Manager is ready.
func (m *Manager) BuildMatch() matcher.Junction {
	s, ok := m.ready("build match")
	if !ok {
		return matcher.None()
	}

	j := matcher.None()
	for _, p := range s.providers {
		j = matcher.Or(j, m.buildMatch(p))
	}
	return j
}

// Transform threads b through every active provider and concatenates their
// definitions in discovery order.
func (m *Manager) Transform(b *instrument.Builder, td *instrument.TypeDescription, loader instrument.LoaderRef) TransResp {
	s, ok := m.ready("transform")
	if !ok {
		return EmptyTransResp(b)
	}

	resp := EmptyTransResp(b)
	for _, p := range s.providers {
		r := m.transform(p, resp.Builder, td, loader)
		if r.Builder != nil {
			resp.Builder = r.Builder
		}
		resp.Definitions = append(resp.Definitions, r.Definitions...)
	}
	return resp
}

// NewInterceptor returns the interceptor of the first active provider that
// resolves name.
func (m *Manager) NewInterceptor(name string) (intercept.Interceptor, bool) {
	s, ok := m.ready("new interceptor")
	if !ok {
		return nil, false
	}

	for _, p := range s.providers {
		if i, ok := m.newInterceptor(p, name); ok && i != nil {
			return i, true
		}
	}
	m.logger.Warn("No ext agent resolves interceptor", "interceptor", name)
	return nil, false
}

// The wrappers below keep a panicking provider from reaching the host. The
// panic is logged and that provider's result counts as empty.

func (m *Manager) providerPanicked(p Provider, op string, r any) {
	m.logger.Warn("Ext agent provider panicked", "identity", p.Identity().String(), "op", op, "panic", r)
}

func (m *Manager) buildMatch(p Provider) (j matcher.Junction) {
	defer func() {
		if r := recover(); r != nil {
			m.providerPanicked(p, "build match", r)
			j = matcher.None()
		}
	}()
	return p.BuildMatch()
}

func (m *Manager) transform(p Provider, b *instrument.Builder, td *instrument.TypeDescription, loader instrument.LoaderRef) (resp TransResp) {
	defer func() {
		if r := recover(); r != nil {
			m.providerPanicked(p, "transform", r)
			resp = EmptyTransResp(b)
		}
	}()
	return p.Transform(b, td, loader)
}

func (m *Manager) newInterceptor(p Provider, name string) (i intercept.Interceptor, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.providerPanicked(p, "new interceptor", r)
			i, ok = nil, false
		}
	}()
	return p.NewInterceptor(name)
}
