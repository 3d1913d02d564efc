package world

import (
	"errors"
	"fmt"

	"github.com/volundmush/moonsilver/internal/core/models"
)

// World store errors
var (
	ErrNotInTickContext   = errors.New("world mutation outside exclusive context")
	ErrDuplicateComponent = errors.New("component kind already attached")
	ErrComponentNotFound  = errors.New("component not found")
	ErrNoSuchEntity       = errors.New("no such entity")
	ErrUnknownKind        = errors.New("component kind not registered")
	ErrKindRegistered     = errors.New("component kind already registered")
	ErrKindMismatch       = errors.New("component does not match storage type")
	ErrInvariantViolation = errors.New("world invariant violated")
)

// InvariantViolation is returned when a mutation would break a structural rule
// such as unique room keys or acyclic containment. The store is unchanged.
type InvariantViolation struct {
	Rule   string
	Entity models.EntityID
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant %s violated on entity %d: %s", e.Rule, e.Entity, e.Detail)
}

func (e *InvariantViolation) Unwrap() error { return ErrInvariantViolation }

// Violation builds an *InvariantViolation.
func Violation(rule string, id models.EntityID, format string, args ...any) error {
	return &InvariantViolation{Rule: rule, Entity: id, Detail: fmt.Sprintf(format, args...)}
}
