// internal/rules/operators.go
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/solatis/rulematch/internal/types"
)

/*
 * Operator registry.
 *
 * A closed, static table: every operator id, its required value shape and its
 * comparison function. The validator consults it for arity, the evaluator for
 * behavior. Nothing registers operators at runtime.
 *
 * Negated operators (notEquals, notContains, notIn) are the negation of their
 * positive counterpart over the resolved values. Field absence is decided by
 * the evaluator before any comparison runs, so a negated operator on a missing
 * field is still false.
 *
 * Comparison functions receive one resolved record value at a time; wildcard
 * paths call them once per value and stop at the first true (ANY semantics).
 */

// Operator is a named comparison used by a single condition.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "notEquals"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "notContains"
	OpStartsWith         Operator = "startsWith"
	OpEndsWith           Operator = "endsWith"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "notIn"
	OpGreaterThan        Operator = "greaterThan"
	OpGreaterThanOrEqual Operator = "greaterThanOrEqual"
	OpLessThan           Operator = "lessThan"
	OpLessThanOrEqual    Operator = "lessThanOrEqual"
	OpBetween            Operator = "between"
	OpExists             Operator = "exists"
	OpNotExists          Operator = "notExists"
)

// ValueShape is the arity an operator requires of its condition value.
type ValueShape int

const (
	ShapeNone   ValueShape = iota // value ignored
	ShapeScalar                   // single string
	ShapeList                     // non-empty list
	ShapePair                     // list of exactly two
)

func (s ValueShape) String() string {
	switch s {
	case ShapeNone:
		return "none"
	case ShapeScalar:
		return "scalar"
	case ShapeList:
		return "list"
	case ShapePair:
		return "pair"
	default:
		return fmt.Sprintf("ValueShape(%d)", int(s))
	}
}

// compareFunc tests one resolved record value against a prepared operand.
type compareFunc func(value any, op *operand) (bool, error)

// operatorSpec is one registry entry.
type operatorSpec struct {
	shape    ValueShape
	cost     int
	ordering bool        // operand parsed into ordered values at validation
	negate   bool        // result of compare is inverted after ANY reduction
	presence presenceOp  // exists/notExists: decided from resolution alone
	compare  compareFunc // nil for presence operators
}

type presenceOp int

const (
	presenceNone presenceOp = iota
	presenceExists
	presenceAbsent
)

// registry is the process-wide operator table. Read-only after init.
var registry = map[Operator]operatorSpec{
	OpEquals:             {shape: ShapeScalar, cost: CostEquals, compare: compareEquals},
	OpNotEquals:          {shape: ShapeScalar, cost: CostEquals, compare: compareEquals, negate: true},
	OpContains:           {shape: ShapeScalar, cost: CostContains, compare: compareContains},
	OpNotContains:        {shape: ShapeScalar, cost: CostContains, compare: compareContains, negate: true},
	OpStartsWith:         {shape: ShapeScalar, cost: CostAffix, compare: compareStartsWith},
	OpEndsWith:           {shape: ShapeScalar, cost: CostAffix, compare: compareEndsWith},
	OpIn:                 {shape: ShapeList, cost: CostIn, compare: compareIn},
	OpNotIn:              {shape: ShapeList, cost: CostIn, compare: compareIn, negate: true},
	OpGreaterThan:        {shape: ShapeScalar, cost: CostOrdering, ordering: true, compare: orderingCompare(func(c int) bool { return c > 0 })},
	OpGreaterThanOrEqual: {shape: ShapeScalar, cost: CostOrdering, ordering: true, compare: orderingCompare(func(c int) bool { return c >= 0 })},
	OpLessThan:           {shape: ShapeScalar, cost: CostOrdering, ordering: true, compare: orderingCompare(func(c int) bool { return c < 0 })},
	OpLessThanOrEqual:    {shape: ShapeScalar, cost: CostOrdering, ordering: true, compare: orderingCompare(func(c int) bool { return c <= 0 })},
	OpBetween:            {shape: ShapePair, cost: CostOrdering * 2, ordering: true, compare: compareBetween},
	OpExists:             {shape: ShapeNone, cost: CostExists, presence: presenceExists},
	OpNotExists:          {shape: ShapeNone, cost: CostExists, presence: presenceAbsent},
}

// OperatorInfo describes a registry entry to callers outside the package.
type OperatorInfo struct {
	ID    Operator
	Shape ValueShape
}

// LookupOperator returns the registry entry for id.
func LookupOperator(id string) (OperatorInfo, bool) {
	spec, ok := registry[Operator(id)]
	if !ok {
		return OperatorInfo{}, false
	}
	return OperatorInfo{ID: Operator(id), Shape: spec.shape}, true
}

// Operators lists every registered operator, sorted by id.
func Operators() []OperatorInfo {
	out := make([]OperatorInfo, 0, len(registry))
	for id, spec := range registry {
		out = append(out, OperatorInfo{ID: id, Shape: spec.shape})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// operand is a condition value prepared at validation time.
type operand struct {
	scalar string
	list   []string
	bounds []ordered // ordering operators: one entry, or two for between
	err    error     // deferred parse failure, surfaced at evaluation
}

// prepareOperand builds the operand for a shape-checked value.
// Ordering parse failures are recorded, not returned: they are evaluation errors.
func prepareOperand(spec operatorSpec, value types.ScalarOrList) operand {
	op := operand{scalar: value.Scalar, list: value.List}
	if !spec.ordering {
		return op
	}

	raw := []string{value.Scalar}
	if spec.shape == ShapePair {
		raw = value.List
	}
	for _, s := range raw {
		o, err := parseOrdered(s)
		if err != nil {
			op.err = err
			return op
		}
		op.bounds = append(op.bounds, o)
	}
	if len(op.bounds) == 2 && op.bounds[0].kind != op.bounds[1].kind {
		op.err = fmt.Errorf("%w: between bounds mix %s and %s", types.ErrCoercionFailed, op.bounds[0].kind, op.bounds[1].kind)
	}
	return op
}

// compareEquals checks equality after coercing the operand to the value's type.
func compareEquals(value any, op *operand) (bool, error) {
	return equalScalar(value, op.scalar), nil
}

// compareContains checks substring for strings, element equality for lists.
// Other value types never contain anything.
func compareContains(value any, op *operand) (bool, error) {
	if s, ok := value.(string); ok {
		return strings.Contains(s, op.scalar), nil
	}
	if arr, ok := asList(value); ok {
		for _, elem := range arr {
			if equalScalar(elem, op.scalar) {
				return true, nil
			}
		}
	}
	return false, nil
}

// compareStartsWith checks string prefix. Returns false for non-string types.
func compareStartsWith(value any, op *operand) (bool, error) {
	s, ok := value.(string)
	return ok && strings.HasPrefix(s, op.scalar), nil
}

// compareEndsWith checks string suffix. Returns false for non-string types.
func compareEndsWith(value any, op *operand) (bool, error) {
	s, ok := value.(string)
	return ok && strings.HasSuffix(s, op.scalar), nil
}

// compareIn checks membership using equality semantics.
// A list-valued field is a member if any of its elements is.
func compareIn(value any, op *operand) (bool, error) {
	if arr, ok := asList(value); ok {
		for _, elem := range arr {
			if memberOf(elem, op.list) {
				return true, nil
			}
		}
		return false, nil
	}
	return memberOf(value, op.list), nil
}

func memberOf(value any, set []string) bool {
	for _, s := range set {
		if equalScalar(value, s) {
			return true
		}
	}
	return false
}

// orderingCompare adapts a three-way result test into a compareFunc.
func orderingCompare(accept func(int) bool) compareFunc {
	return func(value any, op *operand) (bool, error) {
		if op.err != nil {
			return false, op.err
		}
		v, err := coerceOrdered(value, op.bounds[0].kind)
		if err != nil {
			return false, err
		}
		return accept(compareOrdered(v, op.bounds[0])), nil
	}
}

// compareBetween checks low <= value <= high. Validation rejects low > high.
func compareBetween(value any, op *operand) (bool, error) {
	if op.err != nil {
		return false, op.err
	}
	v, err := coerceOrdered(value, op.bounds[0].kind)
	if err != nil {
		return false, err
	}
	return compareOrdered(v, op.bounds[0]) >= 0 && compareOrdered(v, op.bounds[1]) <= 0, nil
}
