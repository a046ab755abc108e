package helpdesk

import (
	"context"
	"iter"
	"net/url"
	"sort"

	"github.com/openkcm/common-sdk/pkg/pointers"

	"github.com/openkcm/helpdesk-plugins/pkg/helpdesk/attr"
	"github.com/openkcm/helpdesk-plugins/pkg/utils/errs"
)

// Cursor is the paging state reported by the last loaded page.
type Cursor struct {
	Count        int
	NextPage     *string
	PreviousPage *string
}

// Collection lists resources of one kind within a fixed scope, such as the
// tickets of one organization. Pages are appended as they are fetched and
// never reordered.
type Collection[T Resource] struct {
	client *Client
	kind   *Kind
	scope  Params
	build  func(*Model) T

	params Params
	items  []T
	cursor Cursor
	loaded bool
}

func newCollection[T Resource](c *Client, k *Kind, build func(*Model) T, scope Params) *Collection[T] {
	if scope == nil {
		scope = Params{}
	}

	return &Collection[T]{
		client: c,
		kind:   k,
		scope:  scope,
		build:  build,
	}
}

// Scope returns a copy of the scope parameters.
func (c *Collection[T]) Scope() Params {
	return mergeParams(nil, c.scope)
}

// All loads the first page for params merged with the scope; the scope wins
// on conflicting keys. A missing parent yields an empty collection.
func (c *Collection[T]) All(ctx context.Context, params Params) (*Collection[T], error) {
	merged := mergeParams(params, c.scope)

	if _, ok := merged[PerPageParam]; !ok && c.client.perPage > 0 {
		merged[PerPageParam] = c.client.perPage
	}

	c.params = merged
	c.items = nil
	c.cursor = Cursor{}
	c.loaded = true

	err := c.fetch(ctx, merged)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}

	return c, nil
}

// Iter yields every element, replaying the loaded ones and then fetching the
// following pages until next_page is null. It loads the first page itself
// when All was not called. Iterating again restarts from the first element
// without refetching what is already loaded.
func (c *Collection[T]) Iter(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		if !c.loaded {
			_, err := c.All(ctx, nil)
			if err != nil {
				yield(zero, err)
				return
			}
		}

		i := 0

		for {
			for ; i < len(c.items); i++ {
				if !yield(c.items[i], nil) {
					return
				}
			}

			if c.cursor.NextPage == nil {
				return
			}

			before := len(c.items)

			err := c.fetchNext(ctx)
			if err != nil {
				yield(zero, err)
				return
			}

			if len(c.items) == before && c.cursor.NextPage != nil {
				// a non-empty cursor on an empty page would never end
				return
			}
		}
	}
}

// Collect drains Iter into a slice.
func (c *Collection[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T

	for item, err := range c.Iter(ctx) {
		if err != nil {
			return nil, err
		}

		out = append(out, item)
	}

	return out, nil
}

// Get looks a resource up by identity. A missing resource is not an error:
// the zero T is returned.
func (c *Collection[T]) Get(ctx context.Context, id any) (T, error) {
	var zero T

	if id == nil {
		return zero, nil
	}

	resp, err := c.client.Execute(ctx, c.kind.Get, mergeParams(c.scope, Params{"id": id}))
	if err != nil {
		if IsNotFound(err) {
			return zero, nil
		}

		return zero, err
	}

	rec, ok := resp.Body[c.kind.Root].(map[string]any)
	if !ok {
		return zero, errs.Wrapf(ErrUnexpectedBody, "no %q in response", c.kind.Root)
	}

	return c.fromRecord(rec)
}

// New builds an unsaved resource. Declared scope attributes, such as the
// user_id of a user's memberships, are assigned first.
func (c *Collection[T]) New(attrs attr.Record) (T, error) {
	var zero T

	m := newModel(c.client, c.kind)
	item := c.build(m)

	for _, name := range sortedKeys(c.scope) {
		if _, declared := c.kind.Schema.Field(name); declared {
			err := m.Set(name, c.scope[name])
			if err != nil {
				return zero, err
			}
		}
	}

	for _, name := range sortedKeys(attrs) {
		err := assign(item, name, attrs[name])
		if err != nil {
			return zero, err
		}
	}

	return item, nil
}

// Create builds, assigns and saves a resource.
func (c *Collection[T]) Create(ctx context.Context, attrs attr.Record) (T, error) {
	item, err := c.New(attrs)
	if err != nil {
		return item, err
	}

	err = item.Save(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	return item, nil
}

// Len is the number of loaded elements.
func (c *Collection[T]) Len() int {
	return len(c.items)
}

// Loaded returns the elements fetched so far.
func (c *Collection[T]) Loaded() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)

	return out
}

func (c *Collection[T]) Cursor() Cursor {
	return c.cursor
}

func (c *Collection[T]) fetchNext(ctx context.Context) error {
	next, err := url.Parse(*c.cursor.NextPage)
	if err != nil {
		return errs.Wrap(ErrUnexpectedBody, err)
	}

	p := mergeParams(c.params, nil)

	q := next.Query()
	for _, name := range []string{PageParam, PerPageParam} {
		if v := q.Get(name); v != "" {
			p[name] = v
		}
	}

	return c.fetch(ctx, p)
}

func (c *Collection[T]) fetch(ctx context.Context, p Params) error {
	req, err := c.kind.List(p)
	if err != nil {
		return err
	}

	resp, err := c.client.Execute(ctx, req, p)
	if err != nil {
		return err
	}

	switch records := resp.Body[c.kind.Name].(type) {
	case []any:
		for _, raw := range records {
			rec, ok := raw.(map[string]any)
			if !ok {
				return errs.Wrapf(ErrUnexpectedBody, "%s element is %T", c.kind.Name, raw)
			}

			item, err := c.fromRecord(rec)
			if err != nil {
				return err
			}

			c.items = append(c.items, item)
		}
	case nil:
		// single lookups answer with the singular root
		if rec, ok := resp.Body[c.kind.Root].(map[string]any); ok {
			item, err := c.fromRecord(rec)
			if err != nil {
				return err
			}

			c.items = append(c.items, item)
		}
	default:
		return errs.Wrapf(ErrUnexpectedBody, "%s is %T", c.kind.Name, records)
	}

	c.cursor = Cursor{
		Count:        countOf(resp.Body["count"], len(c.items)),
		NextPage:     stringPtr(resp.Body["next_page"]),
		PreviousPage: stringPtr(resp.Body["previous_page"]),
	}

	return nil
}

func (c *Collection[T]) fromRecord(rec map[string]any) (T, error) {
	m, err := newFromRecord(c.client, c.kind, rec)
	if err != nil {
		var zero T
		return zero, err
	}

	return c.build(m), nil
}

// assigner is implemented by resources that give some attributes a richer
// meaning than a plain value, like a ticket requester given as a user.
type assigner interface {
	assign(name string, value any) (bool, error)
}

func assign(item Resource, name string, value any) error {
	if a, ok := item.(assigner); ok {
		handled, err := a.assign(name, value)
		if handled || err != nil {
			return err
		}
	}

	return item.base().Set(name, value)
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func countOf(v any, fallback int) int {
	if n, ok := intParam(Params{"n": v}, "n"); ok {
		return n
	}

	return fallback
}

func stringPtr(v any) *string {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}

	return pointers.To(s)
}
