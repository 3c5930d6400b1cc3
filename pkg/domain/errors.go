package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrWiring reports an adapter composition that cannot work, such as an
	// adapter claiming more than one label or two adapters claiming the same
	// type. It is raised while wiring, never while serving requests.
	ErrWiring = errors.New("adapter wiring error")
	// ErrStructuralMismatch reports an entity whose shape does not fit the
	// hierarchy it is saved through.
	ErrStructuralMismatch = errors.New("structural mismatch")
	// ErrDuplicateKey reports a violated unique constraint.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrUnsupported reports an operation an adapter refuses to perform on
	// its own, for example writing a hierarchy root without its subtype.
	ErrUnsupported = errors.New("unsupported operation")
	// ErrIdentityConflict reports an attempt to repoint a one-to-one identity
	// edge at an entity with a different uuid.
	ErrIdentityConflict = errors.New("identity conflict")
	// ErrLockContention reports a write lock that could not be acquired in time.
	ErrLockContention = errors.New("lock contention")
	// ErrNotFound reports a lookup that matched nothing.
	ErrNotFound = errors.New("not found")
	// ErrInvalid reports an entity that fails validation before mapping.
	ErrInvalid = errors.New("invalid entity")
)

// WiringError details an ErrWiring.
type WiringError struct {
	Adapter string
	Reason  string
}

func (e *WiringError) Error() string {
	if e.Adapter == "" {
		return fmt.Sprintf("adapter wiring error: %s", e.Reason)
	}
	return fmt.Sprintf("adapter wiring error: %s: %s", e.Adapter, e.Reason)
}

// Unwrap exposes ErrWiring to errors.Is.
func (e *WiringError) Unwrap() error { return ErrWiring }

// Wiringf builds a WiringError for the named adapter.
func Wiringf(adapter, format string, args ...any) error {
	return &WiringError{Adapter: adapter, Reason: fmt.Sprintf(format, args...)}
}

// DuplicateKeyError details an ErrDuplicateKey.
type DuplicateKeyError struct {
	Constraint string
	Label      string
	Keys       []string
	Values     []any
}

func (e *DuplicateKeyError) Error() string {
	parts := make([]string, len(e.Keys))
	for i, key := range e.Keys {
		var v any
		if i < len(e.Values) {
			v = e.Values[i]
		}
		parts[i] = fmt.Sprintf("%s=%v", key, v)
	}
	return fmt.Sprintf("duplicate key: %s %s(%s)", e.Constraint, e.Label, strings.Join(parts, ", "))
}

// Unwrap exposes ErrDuplicateKey to errors.Is.
func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// NotFoundError reports a missing entity by type and id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Unwrap exposes ErrNotFound to errors.Is.
func (e NotFoundError) Unwrap() error { return ErrNotFound }

// StructuralMismatchf builds an ErrStructuralMismatch naming the offending type.
func StructuralMismatchf(entity any, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrStructuralMismatch, typeName(entity), fmt.Sprintf(format, args...))
}

func typeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
