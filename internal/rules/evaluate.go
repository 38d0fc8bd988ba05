// internal/rules/evaluate.go
package rules

import (
	"errors"
	"fmt"

	"github.com/solatis/rulematch/internal/types"
)

/*
 * Condition evaluation.
 *
 * Evaluate is a pure recursive function over a ValidatedCondition and one
 * record. No clock, randomness or I/O: the same (tree, record) pair always
 * yields the same result. Trees are shared read-only across workers.
 *
 * Evaluation flow:
 *   1. Nested AND: children left to right, stop at the first false
 *   2. Nested OR: children left to right, stop at the first true
 *   3. Single: resolve path -> presence check -> compare each resolved value
 *      (ANY semantics) -> negate for notEquals/notContains/notIn
 *
 * Unresolved fields (missing, or null) make a single node false, except
 * notExists which is true. Negated operators are false on missing fields too:
 * an absent attribute satisfies nothing but notExists.
 *
 * Coercion failures stop evaluation of the record and surface as an
 * *EvaluationError naming the node; the caller decides whether that record is
 * a non-match or a failure.
 */

// EvaluationError reports a node that could not be evaluated against a record.
type EvaluationError struct {
	Path     []int // index chain of the failing single node
	Field    string
	Operator Operator
	Err      error
}

// Error implements error.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", FormatNodePath(e.Path), e.Field, e.Operator, e.Err)
}

// Unwrap returns the underlying cause (usually ErrCoercionFailed).
func (e *EvaluationError) Unwrap() error { return e.Err }

// Evaluate reports whether rec satisfies vc.
func Evaluate(vc *ValidatedCondition, rec types.Record) (bool, error) {
	return evaluator{}.evaluate(vc, rec)
}

// evaluator walks a tree. The visit hook observes each single node before it
// is evaluated; tests use it to count evaluations.
type evaluator struct {
	visit func(s *Single)
}

func (e evaluator) evaluate(vc *ValidatedCondition, rec types.Record) (bool, error) {
	if vc == nil || vc.root == nil {
		return false, errors.New("condition is not validated")
	}
	return e.eval(vc.root, rec.Attributes, nil)
}

func (e evaluator) eval(n Node, attrs map[string]any, path []int) (bool, error) {
	switch n := n.(type) {
	case *Single:
		return e.evalSingle(n, attrs, path)
	case *Nested:
		return e.evalNested(n, attrs, path)
	default:
		return false, fmt.Errorf("unknown node type %T", n)
	}
}

// evalNested applies the conjunction with short-circuit.
// Children are non-empty by construction, so there is no vacuous case.
func (e evaluator) evalNested(n *Nested, attrs map[string]any, path []int) (bool, error) {
	// AND stops on the first false, OR on the first true
	stopOn := n.conjunction == types.ConjunctionOr

	for i, child := range n.children {
		matched, err := e.eval(child, attrs, append(path, i))
		if err != nil {
			return false, err
		}
		if matched == stopOn {
			return stopOn, nil
		}
	}
	return !stopOn, nil
}

// evalSingle resolves the field and applies the operator.
func (e evaluator) evalSingle(s *Single, attrs map[string]any, path []int) (bool, error) {
	if e.visit != nil {
		e.visit(s)
	}

	// Ordering operands are record-independent; report them before resolution
	if s.operand.err != nil {
		return false, s.evalError(path, s.operand.err)
	}

	values, err := Resolve(s.path, attrs)
	if err != nil {
		if err == types.ErrFieldNotFound {
			return s.spec.presence == presenceAbsent, nil
		}
		return false, s.evalError(path, err)
	}

	switch s.spec.presence {
	case presenceExists:
		return true, nil
	case presenceAbsent:
		return false, nil
	}

	matched := false
	for _, v := range values {
		ok, err := s.spec.compare(v, &s.operand)
		if err != nil {
			return false, s.evalError(path, err)
		}
		if ok {
			matched = true
			break
		}
	}

	if s.spec.negate {
		return !matched, nil
	}
	return matched, nil
}

func (s *Single) evalError(path []int, err error) *EvaluationError {
	return &EvaluationError{
		Path:     append([]int(nil), path...),
		Field:    s.field,
		Operator: s.operator,
		Err:      err,
	}
}
