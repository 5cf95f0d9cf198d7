package instrument

import "sync"

// FieldHolder is implemented by instances of types whose Builder defined
// fields. It is how interceptors reach those fields at run time.
type FieldHolder interface {
	LoadField(name string) (any, bool)
	StoreField(name string, v any)
}

// DynamicFields is an embeddable FieldHolder. It must not be copied after
// first use.
type DynamicFields struct {
	m sync.Map
}

// LoadField implements FieldHolder.
func (f *DynamicFields) LoadField(name string) (any, bool) {
	return f.m.Load(name)
}

// StoreField implements FieldHolder.
func (f *DynamicFields) StoreField(name string, v any) {
	f.m.Store(name, v)
}
