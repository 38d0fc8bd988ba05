package types

import "errors"

// Sentinel errors for rulematch operations.
var (
	// ErrUnknownConditionType indicates a condition whose type is neither "single" nor "nested".
	ErrUnknownConditionType = errors.New("unknown condition type")

	// ErrMixedVariant indicates a condition carrying fields of the other variant.
	ErrMixedVariant = errors.New("condition mixes single and nested fields")

	// ErrEmptyConditions indicates a nested condition with no children.
	ErrEmptyConditions = errors.New("nested condition has no children")

	// ErrInvalidConjunction indicates a nested conjunction other than AND or OR.
	ErrInvalidConjunction = errors.New("conjunction must be AND or OR")

	// ErrUnknownOperator indicates an operator id missing from the operator registry.
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrValueShape indicates the condition value does not match the operator's arity.
	ErrValueShape = errors.New("value shape does not match operator")

	// ErrEmptyField indicates a single condition without a field path.
	ErrEmptyField = errors.New("field path is empty")

	// ErrInvalidFieldPath indicates a field path that cannot be parsed.
	ErrInvalidFieldPath = errors.New("invalid field path")

	// ErrPathTooDeep indicates a field path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("field path exceeds maximum depth")

	// ErrTooManyWildcards indicates a field path exceeds MaxNestedWildcards.
	ErrTooManyWildcards = errors.New("field path has too many wildcards")

	// ErrTooManyListValues indicates a list value exceeds MaxListValues.
	ErrTooManyListValues = errors.New("value list has too many entries")

	// ErrTreeTooDeep indicates nesting beyond MaxTreeDepth.
	ErrTreeTooDeep = errors.New("condition tree exceeds maximum depth")

	// ErrRuleTooExpensive indicates a tree whose cost exceeds MaxRuleCost.
	ErrRuleTooExpensive = errors.New("condition tree exceeds maximum cost")

	// ErrEmptyRuleName indicates a rule without a name.
	ErrEmptyRuleName = errors.New("rule name is empty")

	// ErrInvalidRuleStatus indicates a rule status outside draft/active/disabled.
	ErrInvalidRuleStatus = errors.New("invalid rule status")

	// ErrCoercionFailed indicates type coercion failed during evaluation.
	ErrCoercionFailed = errors.New("type coercion failed")

	// ErrFieldNotFound indicates a field path could not be resolved.
	ErrFieldNotFound = errors.New("field not found")

	// ErrRuleNotFound indicates a rule id that is not in the store.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrDuplicateRuleID indicates two rules in one rule file share an id.
	ErrDuplicateRuleID = errors.New("duplicate rule id")
)
