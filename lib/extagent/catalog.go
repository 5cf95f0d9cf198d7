package extagent

import (
	"slices"
	"sync"
)

// ServiceName is the catalog key providers register under.
const ServiceName = "extagent.Provider"

// Catalog maps service names to the factories registered for them, in
// registration order.
type Catalog struct {
	mu       sync.RWMutex
	services map[string][]Factory
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{services: make(map[string][]Factory)}
}

// Register appends f to service.
func (c *Catalog) Register(service string, f Factory) {
	if f == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[service] = append(c.services[service], f)
}

// Discover returns the factories of service in registration order.
func (c *Catalog) Discover(service string) []Factory {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.services[service])
}

// DefaultCatalog is where built-in providers register from init.
var DefaultCatalog = NewCatalog()

// Register adds f to DefaultCatalog under ServiceName.
func Register(f Factory) {
	DefaultCatalog.Register(ServiceName, f)
}
