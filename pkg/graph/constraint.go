package graph

import "context"

// Action describes a mutation applied to a vertex within a transaction.
type Action string

const (
	// ActionCreate indicates a vertex was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates a property of an existing vertex changed.
	ActionUpdate Action = "update"
	// ActionDelete indicates a vertex was dropped.
	ActionDelete Action = "delete"
)

// Change records one vertex mutation observed during a transaction.
type Change struct {
	Vertex ID
	Label  string
	Action Action
}

// Constraint is evaluated against the pending state before a transaction
// commits. A non-nil error aborts the transaction and is returned to the
// caller unchanged.
type Constraint interface {
	Name() string
	Evaluate(ctx context.Context, view Reader, changes []Change) error
}

// Constraints evaluates a fixed list of constraints in registration order.
type Constraints struct {
	list []Constraint
}

// NewConstraints constructs an evaluator for the supplied constraints.
func NewConstraints(list ...Constraint) *Constraints {
	return &Constraints{list: append([]Constraint(nil), list...)}
}

// Register appends a constraint.
func (c *Constraints) Register(constraint Constraint) {
	c.list = append(c.list, constraint)
}

// Evaluate stops at the first violated constraint.
func (c *Constraints) Evaluate(ctx context.Context, view Reader, changes []Change) error {
	if c == nil {
		return nil
	}
	for _, constraint := range c.list {
		if err := constraint.Evaluate(ctx, view, changes); err != nil {
			return err
		}
	}
	return nil
}
