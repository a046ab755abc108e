package helpdesk

import (
	"context"
)

// Association points from a resource to another one through an id field,
// such as a ticket's requester_id. It is resolved on demand and never
// cached: every Resolve is a fresh lookup.
type Association[T Resource] struct {
	owner      *Model
	field      string
	collection func() *Collection[T]
}

func newAssociation[T Resource](owner *Model, field string, collection func() *Collection[T]) *Association[T] {
	return &Association[T]{
		owner:      owner,
		field:      field,
		collection: collection,
	}
}

// ID returns the raw identity held by the owner, or nil.
func (a *Association[T]) ID() any {
	return a.owner.Get(a.field)
}

// Resolve fetches the associated resource. A missing id or a dangling
// reference yields the zero T and no error.
func (a *Association[T]) Resolve(ctx context.Context) (T, error) {
	id := a.ID()
	if id == nil {
		var zero T
		return zero, nil
	}

	return a.collection().Get(ctx, id)
}
