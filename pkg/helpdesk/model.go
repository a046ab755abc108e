package helpdesk

import (
	"context"
	"time"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/attr"
	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/mockstore"
	"github.com/openkcm/helpdesk-plugins/pkg/utils/errs"
)

// Kind describes one resource type: its schema, the body keys it travels
// under and the requests that manage it.
type Kind struct {
	// Name is the plural collection key, e.g. "tickets".
	Name string
	// Root is the singular body key, e.g. "ticket".
	Root   string
	Schema *attr.Schema

	Create  *Request
	Get     *Request
	Update  *Request
	Destroy *Request
	// List picks the listing request for a collection scope.
	List func(scope Params) (*Request, error)

	// SoftDelete kinds are marked deleted instead of removed.
	SoftDelete bool
}

// Resource is implemented by every model type through its embedded *Model.
type Resource interface {
	base() *Model
	Save(ctx context.Context) error
}

// Model is the state shared by every resource instance: its attributes and
// the client it was loaded through.
type Model struct {
	kind      *Kind
	client    *Client
	attrs     *attr.Attributes
	destroyed bool
}

func newModel(c *Client, k *Kind) *Model {
	return &Model{
		kind:   k,
		client: c,
		attrs:  attr.New(k.Schema),
	}
}

func (m *Model) base() *Model {
	return m
}

func (m *Model) Kind() *Kind {
	return m.kind
}

// ID returns the identity once the resource is persisted.
func (m *Model) ID() (int64, bool) {
	v, ok := m.attrs.Identity()
	if !ok {
		return 0, false
	}

	return mockstore.ToID(v)
}

func (m *Model) IsNew() bool {
	_, ok := m.attrs.Identity()
	return !ok
}

func (m *Model) Destroyed() bool {
	return m.destroyed
}

func (m *Model) Get(name string) any {
	v, _ := m.attrs.Get(name)
	return v
}

func (m *Model) Has(name string) bool {
	return m.attrs.Has(name)
}

// Set assigns an attribute locally. Nothing is validated or sent until Save.
func (m *Model) Set(name string, value any) error {
	return m.attrs.Set(name, value)
}

func (m *Model) Unset(name string) error {
	return m.attrs.Unset(name)
}

// Changed lists the attributes assigned since the last load or save.
func (m *Model) Changed() []string {
	return m.attrs.Changed()
}

// Attributes renders every present attribute in wire form.
func (m *Model) Attributes() attr.Record {
	return m.attrs.Record()
}

func (m *Model) String(name string) string {
	s, _ := m.Get(name).(string)
	return s
}

func (m *Model) Int(name string) (int64, bool) {
	n, ok := m.Get(name).(int64)
	return n, ok
}

func (m *Model) Bool(name string) bool {
	b, _ := m.Get(name).(bool)
	return b
}

func (m *Model) Time(name string) time.Time {
	t, _ := m.Get(name).(time.Time)
	return t
}

func (m *Model) Array(name string) []any {
	a, _ := m.Get(name).([]any)
	return a
}

// Merge loads a record received from the service.
func (m *Model) Merge(record attr.Record) error {
	return m.attrs.Merge(record)
}

// Save creates the resource when it has no identity yet and updates it
// otherwise. Required attributes are checked before anything is sent.
func (m *Model) Save(ctx context.Context) error {
	return m.save(ctx, nil)
}

// save sends the writable attributes plus extra under the kind root.
func (m *Model) save(ctx context.Context, extra attr.Record) error {
	if m.destroyed {
		return ErrDestroyed
	}

	record := m.attrs.Writable()
	for k, v := range extra {
		record[k] = v
	}

	p := Params{m.kind.Root: record}

	req := m.kind.Update

	if id, ok := m.ID(); ok {
		p["id"] = id
	} else {
		missing := m.attrs.Missing()
		if len(missing) > 0 {
			return &RequiredAttributeError{Kind: m.kind.Root, Attributes: missing}
		}

		req = m.kind.Create
	}

	resp, err := m.client.Execute(ctx, req, p)
	if err != nil {
		return err
	}

	return m.load(resp)
}

// Destroy deletes the resource. Soft deleted kinds keep their record,
// flagged deleted. Either way the instance cannot be saved again.
func (m *Model) Destroy(ctx context.Context) error {
	id, ok := m.ID()
	if !ok {
		return &MissingIdentityError{Kind: m.kind.Root}
	}

	if m.destroyed {
		return ErrDestroyed
	}

	_, err := m.client.Execute(ctx, m.kind.Destroy, Params{
		"id":        id,
		m.kind.Root: attr.Record{"id": id},
	})
	if err != nil {
		return err
	}

	if m.kind.SoftDelete {
		err = m.attrs.Merge(attr.Record{"deleted": true})
		if err != nil {
			return err
		}
	}

	m.destroyed = true

	return nil
}

// Reload replaces the attributes with the current server state.
func (m *Model) Reload(ctx context.Context) error {
	id, ok := m.ID()
	if !ok {
		return &MissingIdentityError{Kind: m.kind.Root}
	}

	resp, err := m.client.Execute(ctx, m.kind.Get, Params{"id": id})
	if err != nil {
		return err
	}

	return m.load(resp)
}

func (m *Model) load(resp *Response) error {
	rec, ok := resp.Body[m.kind.Root].(map[string]any)
	if !ok {
		return errs.Wrapf(ErrUnexpectedBody, "no %q in response", m.kind.Root)
	}

	err := m.attrs.Merge(rec)
	if err != nil {
		return err
	}

	m.attrs.ClearChanges()

	return nil
}

// newFromRecord builds a persisted model from a record.
func newFromRecord(c *Client, k *Kind, rec map[string]any) (*Model, error) {
	m := newModel(c, k)

	err := m.attrs.Merge(rec)
	if err != nil {
		return nil, err
	}

	return m, nil
}
