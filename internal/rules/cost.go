// internal/rules/cost.go
package rules

/*
 * Cost model for condition trees.
 *
 * cost(leaf) = lookup_cost + operator_cost * list_multiplier * 8^wildcards
 * cost(nested) = sum of children
 *
 * The cost bounds what a rule may ask of the evaluator per record; the
 * validator rejects trees above MaxRuleCost. It is reported alongside stored
 * rules but never used to reorder children: evaluation order is the authored
 * order, which keeps short-circuit behavior predictable for rule authors.
 *
 * Wildcard execution multiplier: 8^n reflects worst-case fanout per wildcard.
 * With MaxNestedWildcards=2, ceiling is 64x cost.
 */

const (
	// Operator base costs
	CostExists   = 1
	CostEquals   = 5
	CostOrdering = 7
	CostIn       = 8
	CostAffix    = 10
	CostContains = 12

	// Field lookup cost per path segment
	CostLookupPerSegment = 16
)

// Cost returns the summed cost of every leaf under n.
func Cost(n Node) int {
	switch n := n.(type) {
	case *Single:
		return leafCost(n)
	case *Nested:
		total := 0
		for _, child := range n.children {
			total += Cost(child)
		}
		return total
	default:
		return 0
	}
}

// leafCost computes cost for a single condition.
func leafCost(s *Single) int {
	lookupCost := CostLookupPerSegment * len(s.path)

	// List operands scale with membership scans
	listMult := 1
	if s.spec.shape == ShapeList && len(s.value.List) > 1 {
		listMult = len(s.value.List)
	}

	execMult := 1
	for i := 0; i < countWildcards(s.path); i++ {
		execMult *= 8
	}

	return lookupCost + s.spec.cost*listMult*execMult
}
