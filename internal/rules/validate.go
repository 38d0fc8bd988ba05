// internal/rules/validate.go
package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/rulematch/internal/types"
)

/*
 * Condition tree validation.
 *
 * Validate walks an authored types.Condition and produces a ValidatedCondition:
 * the sealed Single/Nested tree with parsed field paths, resolved operator
 * specs and prepared operands. The evaluator only accepts ValidatedCondition,
 * so an unchecked tree cannot reach evaluation.
 *
 * Validation workflow:
 *   1. Discriminate the variant; reject nodes mixing single and nested fields
 *   2. Nested: conjunction is AND/OR, children non-empty, depth bounded
 *   3. Single: field path parses within depth/wildcard limits, operator is
 *      registered, value is present and matches the operator's arity,
 *      between bounds are not inverted
 *   4. Sum leaf costs and enforce MaxRuleCost
 *
 * Every error carries the index chain of the offending node. Validate stops at
 * the first error; ValidateAll keeps walking and reports all of them.
 *
 * Ordering operands that do not parse are not validation errors. They are
 * recorded on the node and raised when the node is evaluated.
 */

// ValidationError reports a malformed node and where it sits in the tree.
type ValidationError struct {
	Path   []int // child indices from the root; empty for the root itself
	Err    error // sentinel from internal/types
	Detail string
}

// Error implements error.
func (e *ValidationError) Error() string {
	msg := FormatNodePath(e.Path) + ": " + e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the sentinel error.
func (e *ValidationError) Unwrap() error { return e.Err }

// ValidationErrors is every error found by ValidateAll, in tree order.
type ValidationErrors []*ValidationError

// Error implements error.
func (errs ValidationErrors) Error() string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes each error to errors.Is/As.
func (errs ValidationErrors) Unwrap() []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}

// FormatNodePath renders an index chain as $.conditions[i].conditions[j].
func FormatNodePath(path []int) string {
	var b strings.Builder
	b.WriteString("$")
	for _, idx := range path {
		b.WriteString(".conditions[")
		b.WriteString(strconv.Itoa(idx))
		b.WriteString("]")
	}
	return b.String()
}

// Validate checks tree and returns the evaluable form, or the first error found.
// The error is always a *ValidationError.
func Validate(tree types.Condition) (*ValidatedCondition, error) {
	v := &validator{firstOnly: true}
	vc := v.validate(tree)
	if len(v.errs) > 0 {
		return nil, v.errs[0]
	}
	return vc, nil
}

// ValidateAll checks tree and reports every error found.
func ValidateAll(tree types.Condition) (*ValidatedCondition, ValidationErrors) {
	v := &validator{}
	vc := v.validate(tree)
	if len(v.errs) > 0 {
		return nil, v.errs
	}
	return vc, nil
}

// ValidateRule checks rule metadata and its whole condition tree.
func ValidateRule(rule *types.Rule) (*ValidatedRule, error) {
	if rule == nil {
		return nil, errors.New("rule cannot be nil")
	}
	if strings.TrimSpace(rule.Name) == "" {
		return nil, types.ErrEmptyRuleName
	}
	status, err := types.ParseRuleStatus(string(rule.Status))
	if err != nil {
		return nil, err
	}
	vc, err := Validate(rule.Condition)
	if err != nil {
		return nil, err
	}
	return &ValidatedRule{
		ID:        rule.ID,
		Name:      rule.Name,
		Status:    status,
		CreatedAt: rule.CreatedAt,
		UpdatedAt: rule.UpdatedAt,
		Condition: vc,
	}, nil
}

// validator accumulates errors during a single walk.
type validator struct {
	firstOnly bool
	errs      ValidationErrors
}

func (v *validator) validate(tree types.Condition) *ValidatedCondition {
	root := v.node(tree, nil)
	if len(v.errs) > 0 {
		return nil
	}
	cost := Cost(root)
	if cost > types.MaxRuleCost {
		v.fail(nil, types.ErrRuleTooExpensive, fmt.Sprintf("cost %d > %d", cost, types.MaxRuleCost))
		return nil
	}
	return &ValidatedCondition{root: root, cost: cost}
}

// fail records an error at path. Path is copied; callers reuse their slices.
func (v *validator) fail(path []int, err error, detail string) {
	v.errs = append(v.errs, &ValidationError{
		Path:   append([]int(nil), path...),
		Err:    err,
		Detail: detail,
	})
}

func (v *validator) done() bool {
	return v.firstOnly && len(v.errs) > 0
}

// node validates one condition. Returns nil when the node (or a descendant) is invalid.
func (v *validator) node(c types.Condition, path []int) Node {
	switch c.Type {
	case types.ConditionSingle:
		return v.single(c, path)
	case types.ConditionNested:
		return v.nested(c, path)
	default:
		v.fail(path, types.ErrUnknownConditionType, fmt.Sprintf("%q", c.Type))
		return nil
	}
}

func (v *validator) nested(c types.Condition, path []int) Node {
	if c.Field != "" || c.Operator != "" || !c.Value.IsZero() {
		v.fail(path, types.ErrMixedVariant, "nested condition has field/operator/value")
		return nil
	}
	if len(path) >= types.MaxTreeDepth {
		v.fail(path, types.ErrTreeTooDeep, fmt.Sprintf("depth %d", len(path)+1))
		return nil
	}

	ok := true
	if c.Conjunction != types.ConjunctionAnd && c.Conjunction != types.ConjunctionOr {
		v.fail(path, types.ErrInvalidConjunction, fmt.Sprintf("%q", c.Conjunction))
		if v.done() {
			return nil
		}
		ok = false
	}
	if len(c.Conditions) == 0 {
		v.fail(path, types.ErrEmptyConditions, "")
		return nil
	}

	children := make([]Node, 0, len(c.Conditions))
	for i, child := range c.Conditions {
		n := v.node(child, append(path, i))
		if v.done() {
			return nil
		}
		if n == nil {
			ok = false
			continue
		}
		children = append(children, n)
	}
	if !ok {
		return nil
	}

	return &Nested{conjunction: c.Conjunction, children: children}
}

func (v *validator) single(c types.Condition, path []int) Node {
	if c.Conjunction != "" || len(c.Conditions) > 0 {
		v.fail(path, types.ErrMixedVariant, "single condition has conjunction/conditions")
		return nil
	}

	fieldPath, err := ParseFieldPath(c.Field)
	if err != nil {
		sentinel := unwrapSentinel(err)
		v.fail(path, sentinel, detailOf(err, sentinel))
		return nil
	}
	if len(fieldPath) > types.MaxPathDepth {
		v.fail(path, types.ErrPathTooDeep, fmt.Sprintf("field %q has %d segments", c.Field, len(fieldPath)))
		return nil
	}
	if n := countWildcards(fieldPath); n > types.MaxNestedWildcards {
		v.fail(path, types.ErrTooManyWildcards, fmt.Sprintf("field %q has %d wildcards", c.Field, n))
		return nil
	}

	op := Operator(c.Operator)
	spec, ok := registry[op]
	if !ok {
		v.fail(path, types.ErrUnknownOperator, fmt.Sprintf("%q", c.Operator))
		return nil
	}
	if err := checkShape(spec.shape, c.Value); err != nil {
		sentinel := unwrapSentinel(err)
		v.fail(path, sentinel, fmt.Sprintf("operator %s: %s", op, detailOf(err, sentinel)))
		return nil
	}

	prepared := prepareOperand(spec, c.Value)
	if spec.shape == ShapePair && prepared.err == nil && compareOrdered(prepared.bounds[0], prepared.bounds[1]) > 0 {
		v.fail(path, types.ErrValueShape, fmt.Sprintf("operator %s: low %s above high %s", op, c.Value.List[0], c.Value.List[1]))
		return nil
	}

	return &Single{
		field:    c.Field,
		path:     fieldPath,
		operator: op,
		value:    c.Value,
		spec:     spec,
		operand:  prepared,
	}
}

// checkShape verifies the value matches the operator's declared arity.
func checkShape(shape ValueShape, value types.ScalarOrList) error {
	switch shape {
	case ShapeNone:
		return nil
	}
	if !value.Present {
		return fmt.Errorf("%w: value is missing", types.ErrValueShape)
	}
	switch shape {
	case ShapeScalar:
		if value.IsList {
			return fmt.Errorf("%w: want scalar, got list", types.ErrValueShape)
		}
		return nil
	case ShapeList:
		if !value.IsList {
			return fmt.Errorf("%w: want list, got scalar", types.ErrValueShape)
		}
		if len(value.List) == 0 {
			return fmt.Errorf("%w: list is empty", types.ErrValueShape)
		}
		if len(value.List) > types.MaxListValues {
			return fmt.Errorf("%w: %d > %d", types.ErrTooManyListValues, len(value.List), types.MaxListValues)
		}
		return nil
	case ShapePair:
		if !value.IsList || len(value.List) != 2 {
			return fmt.Errorf("%w: want [low, high]", types.ErrValueShape)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown shape %s", types.ErrValueShape, shape)
	}
}

// detailOf strips the sentinel's own text from a wrapped error message.
func detailOf(err, sentinel error) string {
	if err == sentinel {
		return ""
	}
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}

// unwrapSentinel returns the innermost wrapped error so ValidationError.Err
// is always a sentinel comparable with ==.
func unwrapSentinel(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
