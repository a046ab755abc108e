package attr

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/openkcm/helpdesk-plugins/pkg/utils/errs"
)

var ErrIdentityImmutable = errors.New("identity cannot change once assigned")

// Record is the loosely typed bag of values exchanged with the service.
type Record = map[string]any

// Attributes holds the coerced values of one resource instance together with
// the names assigned by the caller since the last load.
type Attributes struct {
	schema  *Schema
	values  map[string]any
	extras  map[string]any
	changed map[string]struct{}
}

// New returns an empty attribute set for the schema.
func New(schema *Schema) *Attributes {
	return &Attributes{
		schema:  schema,
		values:  make(map[string]any),
		extras:  make(map[string]any),
		changed: make(map[string]struct{}),
	}
}

// Schema returns the schema the attributes were built from.
func (a *Attributes) Schema() *Schema {
	return a.schema
}

// Get returns the coerced value of a declared attribute, or a raw value
// assigned under an undeclared name.
func (a *Attributes) Get(name string) (any, bool) {
	if v, ok := a.values[name]; ok {
		return v, true
	}

	v, ok := a.extras[name]

	return v, ok
}

// Has reports whether a value is present under name.
func (a *Attributes) Has(name string) bool {
	_, ok := a.Get(name)
	return ok
}

// Set assigns a value on behalf of the caller and marks it changed. Declared
// attributes are coerced; undeclared names are kept raw and sent as-is.
// Assigning nil makes the attribute absent.
func (a *Attributes) Set(name string, raw any) error {
	f, declared := a.schema.Field(name)
	if !declared {
		if raw == nil {
			delete(a.extras, name)
		} else {
			a.extras[name] = raw
		}

		a.changed[name] = struct{}{}

		return nil
	}

	v, err := coerceField(f, raw)
	if err != nil {
		return err
	}

	if f.Identity {
		if cur, ok := a.values[name]; ok && !sameValue(cur, v) {
			return errs.Wrapf(ErrIdentityImmutable, "%s is %v", name, cur)
		}
	}

	a.store(name, v)
	a.changed[name] = struct{}{}

	return nil
}

// Unset removes an attribute value. The identity cannot be unset.
func (a *Attributes) Unset(name string) error {
	if f, ok := a.schema.IdentityField(); ok && f.Name == name && a.Has(name) {
		return ErrIdentityImmutable
	}

	delete(a.values, name)
	delete(a.extras, name)
	a.changed[name] = struct{}{}

	return nil
}

// Merge loads a record received from the service. Only attributes present as
// keys in the record are overwritten; a key holding nil clears the attribute.
// The identity is taken from the record only while it is still unset.
// Undeclared keys are ignored.
func (a *Attributes) Merge(record Record) error {
	staged := make(map[string]any, len(record))

	for name, raw := range record {
		f, ok := a.schema.Field(name)
		if !ok {
			continue
		}

		v, err := coerceField(f, raw)
		if err != nil {
			return err
		}

		if f.Identity && a.Has(name) {
			continue
		}

		staged[name] = v
	}

	for name, v := range staged {
		a.store(name, v)
		delete(a.changed, name)
	}

	return nil
}

// Identity returns the identity value, if the schema declares one and it is set.
func (a *Attributes) Identity() (any, bool) {
	f, ok := a.schema.IdentityField()
	if !ok {
		return nil, false
	}

	return a.Get(f.Name)
}

// Changed returns the sorted names assigned since the last load.
func (a *Attributes) Changed() []string {
	names := make([]string, 0, len(a.changed))
	for name := range a.changed {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// ClearChanges forgets the dirty set, typically after a successful save.
// Values held under undeclared names are sent once and dropped with it.
func (a *Attributes) ClearChanges() {
	a.changed = make(map[string]struct{})
	a.extras = make(map[string]any)
}

// Missing returns the required attributes that are absent or blank.
func (a *Attributes) Missing() []string {
	var missing []string

	for _, name := range a.schema.RequiredFields() {
		v, ok := a.Get(name)
		if !ok || blank(v) {
			missing = append(missing, name)
		}
	}

	return missing
}

// Record renders every present value, declared or not, in wire form.
func (a *Attributes) Record() Record {
	out := make(Record, len(a.values)+len(a.extras))
	for name, v := range a.values {
		out[name] = Wire(v)
	}

	for name, v := range a.extras {
		out[name] = v
	}

	return out
}

// Writable renders the values the caller may send: read-only attributes are
// dropped except the identity.
func (a *Attributes) Writable() Record {
	out := a.Record()

	for _, f := range a.schema.fields {
		if f.ReadOnly && !f.Identity {
			delete(out, f.Name)
		}
	}

	return out
}

func (a *Attributes) store(name string, v any) {
	if v == nil {
		delete(a.values, name)
		return
	}

	a.values[name] = v
}

func coerceField(f Field, raw any) (any, error) {
	v, err := Coerce(f.Type, raw)
	if err != nil {
		var tce *TypeCoercionError
		if errors.As(err, &tce) {
			tce.Field = f.Name
		}

		return nil, err
	}

	return v, nil
}

func blank(v any) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(tv) == ""
	default:
		return false
	}
}

func sameValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}
