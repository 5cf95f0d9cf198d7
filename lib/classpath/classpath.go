// Package classpath is the process-wide, append-only set of modules that
// foreign symbols are resolved from.
//
// A module is attached once by path and never removed. Symbol lookups walk
// the modules in attachment order, the way a class loader walks its search
// path.
package classpath

import (
	"errors"
	"fmt"
	"plugin"
	"slices"
	"sync"
)

var (
	// ErrSymbolNotFound is returned by Lookup when no attached module
	// exports the symbol.
	ErrSymbolNotFound = errors.New("classpath: symbol not found")
	// ErrModuleNotFound is returned by an Opener that has no module for a
	// path.
	ErrModuleNotFound = errors.New("classpath: module not found")
)

// Module exports named symbols.
type Module interface {
	Lookup(symbol string) (any, error)
}

// Opener opens the module stored at path.
type Opener func(path string) (Module, error)

// Symbols is an in-memory Module.
type Symbols map[string]any

// Lookup implements Module.
func (s Symbols) Lookup(symbol string) (any, error) {
	v, ok := s[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	return v, nil
}

type pluginModule struct {
	p *plugin.Plugin
}

func (m pluginModule) Lookup(symbol string) (any, error) {
	s, err := m.p.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSymbolNotFound, symbol, err)
	}
	return s, nil
}

// OpenPlugin opens a Go plugin shared object.
func OpenPlugin(path string) (Module, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("classpath: open plugin %s: %w", path, err)
	}
	return pluginModule{p: p}, nil
}

// StaticOpener serves modules linked into the binary, keyed by path.
func StaticOpener(modules map[string]Module) Opener {
	return func(path string) (Module, error) {
		m, ok := modules[path]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, path)
		}
		return m, nil
	}
}

type entry struct {
	path   string
	module Module
}

// Classpath is safe for concurrent use.
type Classpath struct {
	opener Opener

	mu      sync.RWMutex
	entries []entry
}

// Option configures a Classpath.
type Option func(*Classpath)

// WithOpener replaces the default Go plugin opener.
func WithOpener(o Opener) Option {
	return func(c *Classpath) {
		if o != nil {
			c.opener = o
		}
	}
}

// New creates an empty Classpath.
func New(opts ...Option) *Classpath {
	c := &Classpath{opener: OpenPlugin}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddModule opens the module at path and appends it. Adding the same path
// again is a no-op.
func (c *Classpath) AddModule(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.path == path {
			return nil
		}
	}

	m, err := c.opener(path)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, path)
	}
	c.entries = append(c.entries, entry{path: path, module: m})
	return nil
}

// Lookup resolves symbol from the first attached module that exports it.
func (c *Classpath) Lookup(symbol string) (any, error) {
	c.mu.RLock()
	entries := c.entries
	c.mu.RUnlock()

	for _, e := range entries {
		if v, err := e.module.Lookup(symbol); err == nil {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
}

// Paths returns the attached module paths in attachment order.
func (c *Classpath) Paths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	paths := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		paths = append(paths, e.path)
	}
	return slices.Clip(paths)
}
