package mockstore

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrConflict      = errors.New("record already exists")
	ErrInvalidRecord = errors.New("record is not representable as JSON")
	ErrInvalidFilter = errors.New("invalid filter expression")
)

// NotFoundError is returned when no record of Kind carries ID.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConflictError is returned when an identity is inserted twice.
type ConflictError struct {
	Kind string
	ID   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %d already exists", e.Kind, e.ID)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
