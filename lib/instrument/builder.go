package instrument

import "slices"

// Modifier is a bit set of field modifiers.
type Modifier uint16

const (
	ModifierPublic Modifier = 1 << iota
	ModifierPrivate
	ModifierProtected
	ModifierStatic
	ModifierFinal
	ModifierVolatile
)

// Has reports whether all bits of o are set in m.
func (m Modifier) Has(o Modifier) bool {
	return m&o == o
}

// Field is a field added to a type by a transformer.
type Field struct {
	Name      string
	Type      string
	Modifiers Modifier
}

// Builder is the class-builder handle transformers edit.
//
// Every edit returns a new Builder and leaves the receiver untouched, so a
// handle can be threaded through a chain of transformers and each one sees
// the structural edits of the ones before it.
type Builder struct {
	typeName   string
	fields     []Field
	interfaces []string
}

// NewBuilder starts an empty edit chain for td.
func NewBuilder(td *TypeDescription) *Builder {
	b := &Builder{}
	if td != nil {
		b.typeName = td.Name
	}
	return b
}

// TypeName returns the name of the type being built.
func (b *Builder) TypeName() string {
	return b.typeName
}

// DefineField returns a builder that additionally defines the named field.
func (b *Builder) DefineField(name, typ string, mods Modifier) *Builder {
	nb := b.clone()
	nb.fields = append(nb.fields, Field{Name: name, Type: typ, Modifiers: mods})
	return nb
}

// Implement returns a builder whose type additionally implements ifaces.
// Interfaces already implemented are not repeated.
func (b *Builder) Implement(ifaces ...string) *Builder {
	nb := b.clone()
	for _, iface := range ifaces {
		if !slices.Contains(nb.interfaces, iface) {
			nb.interfaces = append(nb.interfaces, iface)
		}
	}
	return nb
}

// Field returns the defined field with the given name.
func (b *Builder) Field(name string) (Field, bool) {
	for _, f := range b.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasField reports whether a field with the given name was defined.
func (b *Builder) HasField(name string) bool {
	_, ok := b.Field(name)
	return ok
}

// Implements reports whether iface was added through Implement.
func (b *Builder) Implements(iface string) bool {
	return slices.Contains(b.interfaces, iface)
}

// Fields returns the defined fields in definition order.
func (b *Builder) Fields() []Field {
	return slices.Clone(b.fields)
}

// Interfaces returns the added interfaces in order.
func (b *Builder) Interfaces() []string {
	return slices.Clone(b.interfaces)
}

func (b *Builder) clone() *Builder {
	return &Builder{
		typeName:   b.typeName,
		fields:     slices.Clone(b.fields),
		interfaces: slices.Clone(b.interfaces),
	}
}
