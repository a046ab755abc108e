// Package attr declares the typed fields of helpdesk resources and keeps the
// per-instance attribute values, their coercion from raw wire values and the
// set of attributes changed since the last load.
package attr

import (
	"fmt"
)

// Type is the declared type of an attribute.
type Type int

const (
	Any Type = iota
	String
	Integer
	Boolean
	Time
	Array
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Integer:
		return "integer"
	case Boolean:
		return "boolean"
	case Time:
		return "time"
	case Array:
		return "array"
	default:
		return "any"
	}
}

// Field describes one attribute of a resource kind.
type Field struct {
	Name     string
	Type     Type
	ReadOnly bool
	Required bool
	Identity bool
}

// Option tweaks a Field while it is being declared.
type Option func(*Field)

// ReadOnly marks the field as assigned by the service only.
func ReadOnly() Option {
	return func(f *Field) {
		f.ReadOnly = true
	}
}

// Required marks the field as mandatory when the resource is created.
func Required() Option {
	return func(f *Field) {
		f.Required = true
	}
}

// Attribute declares a regular field.
func Attribute(name string, t Type, opts ...Option) Field {
	f := Field{Name: name, Type: t}
	for _, opt := range opts {
		opt(&f)
	}

	return f
}

// Identity declares the primary key of a resource kind.
func Identity(name string, t Type) Field {
	return Field{Name: name, Type: t, ReadOnly: true, Identity: true}
}

// Schema is the ordered list of fields of one resource kind. It is built once
// and shared by every instance of that kind.
type Schema struct {
	fields   []Field
	index    map[string]int
	identity int
}

// NewSchema builds a schema from the given fields. Declaring the same name
// twice or more than one identity is a programming error and panics.
func NewSchema(fields ...Field) *Schema {
	s := &Schema{
		fields:   make([]Field, 0, len(fields)),
		index:    make(map[string]int, len(fields)),
		identity: -1,
	}

	for _, f := range fields {
		if _, dup := s.index[f.Name]; dup {
			panic(fmt.Sprintf("attr: field %q declared twice", f.Name))
		}

		if f.Identity {
			if s.identity >= 0 {
				panic(fmt.Sprintf("attr: second identity %q", f.Name))
			}

			s.identity = len(s.fields)
		}

		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}

	return s
}

// Fields returns the declared fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)

	return out
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}

	return s.fields[i], true
}

// IdentityField returns the identity descriptor, if the schema has one.
func (s *Schema) IdentityField() (Field, bool) {
	if s.identity < 0 {
		return Field{}, false
	}

	return s.fields[s.identity], true
}

// RequiredFields returns the names of the fields required on create.
func (s *Schema) RequiredFields() []string {
	var names []string

	for _, f := range s.fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}

	return names
}
