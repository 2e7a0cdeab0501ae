package rbac

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/estatehub/estatehub/internal/platform/httpx"
)

var (
	// ErrValidation matches every ValidationError.
	ErrValidation = fmt.Errorf("rbac: %w", httpx.ErrValidation)
	// ErrNotFound matches every NotFoundError. Stores return it bare.
	ErrNotFound = fmt.Errorf("rbac: permission %w", httpx.ErrNotFound)
	// ErrStoreUnavailable matches every StoreUnavailableError.
	ErrStoreUnavailable = fmt.Errorf("rbac: store %w", httpx.ErrUnavailable)
	// ErrDuplicateName is returned by stores when a permission name is taken.
	ErrDuplicateName = errors.New("rbac: permission name already exists")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rbac: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports a permission id with no matching row.
type NotFoundError struct {
	PermissionID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("rbac: permission %s not found", e.PermissionID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StoreUnavailableError wraps any failure of the backing store.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("rbac: %s: store unavailable: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

func unavailable(op string, err error) error {
	return &StoreUnavailableError{Op: op, Err: err}
}
