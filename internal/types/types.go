// Package types provides domain models shared across rulematch components.
//
// The wire form of a condition tree lives here so that the rule store, the
// rule-file loader and the gRPC layer can decode rules without importing the
// engine. Only internal/rules turns a Condition into something evaluable.
package types

import (
	"fmt"
	"time"
)

// RuleID represents a UUID rule identifier.
// String alias enables type safety while maintaining JSON string serialization.
type RuleID string

// RecordID identifies a candidate record. Supplied by the caller, never generated.
type RecordID string

// Record is a caller-supplied, fully materialized candidate.
// Attributes is read-only for the engine; nested values are map[string]any and []any
// as produced by encoding/json, yaml.v3 or structpb.
type Record struct {
	ID         RecordID       `json:"id" yaml:"id"`
	Attributes map[string]any `json:"attributes" yaml:"attributes"`
}

// RuleStatus is the lifecycle state of a stored rule.
type RuleStatus string

const (
	RuleStatusDraft    RuleStatus = "draft"
	RuleStatusActive   RuleStatus = "active"
	RuleStatusDisabled RuleStatus = "disabled"
)

// ParseRuleStatus converts a string to RuleStatus. Empty input means draft.
func ParseRuleStatus(s string) (RuleStatus, error) {
	switch RuleStatus(s) {
	case "", RuleStatusDraft:
		return RuleStatusDraft, nil
	case RuleStatusActive, RuleStatusDisabled:
		return RuleStatus(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRuleStatus, s)
	}
}

// Rule is a named condition tree as authored and stored.
type Rule struct {
	ID        RuleID     `json:"id,omitempty" yaml:"id,omitempty"`
	Name      string     `json:"name" yaml:"name"`
	Condition Condition  `json:"condition" yaml:"condition"`
	Status    RuleStatus `json:"status,omitempty" yaml:"status,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitzero" yaml:"created_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitzero" yaml:"updated_at,omitempty"`
}

// Resource limits enforced by the validator to bound evaluation cost.
const (
	// MaxPathDepth prevents unbounded recursion during path resolution.
	// 16 levels covers profile.stats.platforms[0].followers style paths with room to spare.
	MaxPathDepth = 16

	// MaxNestedWildcards limits wildcard expansion to prevent combinatorial explosion.
	// 2 wildcards allow accounts[*].tags[*] without exponential fan-out.
	MaxNestedWildcards = 2

	// MaxListValues limits in/notIn list size.
	// 256 values covers audience whitelists without degrading to quadratic matching.
	MaxListValues = 256

	// MaxTreeDepth limits nesting of Nested conditions.
	MaxTreeDepth = 32

	// MaxRuleCost caps the summed cost of all leaves (see rules.Cost).
	MaxRuleCost = 1 << 20
)
