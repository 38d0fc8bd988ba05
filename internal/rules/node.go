// internal/rules/node.go
package rules

import (
	"time"

	"github.com/solatis/rulematch/internal/types"
)

// Node is a validated condition: exactly one of *Single or *Nested.
// The unexported method seals the set; switches over Node handle both cases.
type Node interface {
	node()
	// Condition converts the node back to its wire form.
	Condition() types.Condition
}

// Single is a validated leaf predicate.
type Single struct {
	field    string
	path     []types.PathSegment
	operator Operator
	value    types.ScalarOrList
	spec     operatorSpec
	operand  operand
}

func (*Single) node() {}

// Field returns the authored field path.
func (s *Single) Field() string { return s.field }

// Operator returns the operator id.
func (s *Single) Operator() Operator { return s.operator }

// Value returns the authored value.
func (s *Single) Value() types.ScalarOrList { return s.value }

// Condition implements Node.
func (s *Single) Condition() types.Condition {
	return types.Single(s.field, string(s.operator), s.value)
}

// Nested is a validated conjunction over at least one child.
type Nested struct {
	conjunction types.Conjunction
	children    []Node
}

func (*Nested) node() {}

// Conjunction returns AND or OR.
func (n *Nested) Conjunction() types.Conjunction { return n.conjunction }

// Children returns a copy of the child list.
func (n *Nested) Children() []Node {
	out := make([]Node, len(n.children))
	copy(out, n.children)
	return out
}

// Condition implements Node.
func (n *Nested) Condition() types.Condition {
	children := make([]types.Condition, len(n.children))
	for i, child := range n.children {
		children[i] = child.Condition()
	}
	return types.Nested(n.conjunction, children...)
}

// ValidatedCondition is a condition tree that passed Validate.
// Only Validate constructs one; the evaluator accepts nothing else.
// Immutable and safe to share across goroutines.
type ValidatedCondition struct {
	root Node
	cost int
}

// Root returns the top node of the tree.
func (vc *ValidatedCondition) Root() Node { return vc.root }

// Cost returns the tree cost computed at validation.
func (vc *ValidatedCondition) Cost() int { return vc.cost }

// Condition converts the tree back to its wire form.
func (vc *ValidatedCondition) Condition() types.Condition { return vc.root.Condition() }

// ValidatedRule is a rule whose metadata and tree passed ValidateRule.
type ValidatedRule struct {
	ID        types.RuleID
	Name      string
	Status    types.RuleStatus
	CreatedAt time.Time
	UpdatedAt time.Time
	Condition *ValidatedCondition
}

// Rule converts back to the stored form.
func (r *ValidatedRule) Rule() *types.Rule {
	return &types.Rule{
		ID:        r.ID,
		Name:      r.Name,
		Condition: r.Condition.Condition(),
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
