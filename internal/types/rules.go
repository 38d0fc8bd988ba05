// internal/types/rules.go
package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

/*
 * Wire form of a condition tree.
 *
 * Condition is the JSON/YAML object exchanged with rule authors and the rule
 * store. The "type" discriminant selects the variant:
 *
 *   single: { type: "single", field, operator, value: string | string[] }
 *   nested: { type: "nested", conjunction: "AND" | "OR", conditions: [...] }
 *
 * The struct carries the fields of both variants; internal/rules.Validate
 * rejects any node that mixes them and produces the sealed in-memory tree.
 * Nothing in this file interprets operators or values.
 *
 * ScalarOrList keeps authored values as strings. Numeric and date operators
 * parse them later, so "1000" and ["youtube", "tiktok"] round-trip exactly.
 */

// ConditionType discriminates the two Condition variants.
type ConditionType string

const (
	ConditionSingle ConditionType = "single"
	ConditionNested ConditionType = "nested"
)

// Conjunction combines the children of a nested condition.
type Conjunction string

const (
	ConjunctionAnd Conjunction = "AND"
	ConjunctionOr  Conjunction = "OR"
)

// Condition is one node of an authored rule tree.
type Condition struct {
	Type ConditionType `json:"type" yaml:"type"`

	// single
	Field    string       `json:"field,omitempty" yaml:"field,omitempty"`
	Operator string       `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    ScalarOrList `json:"value,omitzero" yaml:"value,omitempty"`

	// nested
	Conjunction Conjunction `json:"conjunction,omitempty" yaml:"conjunction,omitempty"`
	Conditions  []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Single builds a leaf condition.
func Single(field, operator string, value ScalarOrList) Condition {
	return Condition{Type: ConditionSingle, Field: field, Operator: operator, Value: value}
}

// Nested builds a conjunction over children.
func Nested(conj Conjunction, children ...Condition) Condition {
	return Condition{Type: ConditionNested, Conjunction: conj, Conditions: children}
}

// All is shorthand for Nested(ConjunctionAnd, ...).
func All(children ...Condition) Condition { return Nested(ConjunctionAnd, children...) }

// Any is shorthand for Nested(ConjunctionOr, ...).
func Any(children ...Condition) Condition { return Nested(ConjunctionOr, children...) }

// ScalarOrList is a condition value: one string, or an ordered list of strings.
// Present is false when the value was omitted or null.
type ScalarOrList struct {
	Scalar  string
	List    []string
	IsList  bool
	Present bool
}

// Scalar wraps a single value.
func Scalar(s string) ScalarOrList {
	return ScalarOrList{Scalar: s, Present: true}
}

// List wraps an ordered list of values. A nil list is kept as an empty list.
func List(values ...string) ScalarOrList {
	if values == nil {
		values = []string{}
	}
	return ScalarOrList{List: values, IsList: true, Present: true}
}

// IsZero reports whether the value is absent. Used by omitzero/omitempty.
func (v ScalarOrList) IsZero() bool {
	return !v.Present
}

// String renders the value for error messages.
func (v ScalarOrList) String() string {
	if v.IsList {
		return "[" + strings.Join(v.List, ", ") + "]"
	}
	return v.Scalar
}

// MarshalJSON implements json.Marshaler.
func (v ScalarOrList) MarshalJSON() ([]byte, error) {
	if v.IsList {
		list := v.List
		if list == nil {
			list = []string{}
		}
		return json.Marshal(list)
	}
	return json.Marshal(v.Scalar)
}

// UnmarshalJSON implements json.Unmarshaler.
// Accepts a string, an array of strings, or null (absent). JSON numbers and
// booleans are kept in their literal text form so authors may write 1000 or "1000".
func (v *ScalarOrList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*v = ScalarOrList{}
		return nil
	case strings.HasPrefix(trimmed, "["):
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		list := make([]string, 0, len(raw))
		for i, elem := range raw {
			s, err := scalarText(elem)
			if err != nil {
				return fmt.Errorf("value[%d]: %w", i, err)
			}
			list = append(list, s)
		}
		*v = ScalarOrList{List: list, IsList: true, Present: true}
		return nil
	default:
		s, err := scalarText(data)
		if err != nil {
			return err
		}
		*v = ScalarOrList{Scalar: s, Present: true}
		return nil
	}
}

// scalarText converts a JSON string/number/bool literal to its string form.
func scalarText(data json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String(), nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			return "true", nil
		}
		return "false", nil
	}
	return "", fmt.Errorf("value must be a string or list of strings, got %s", string(data))
}

// MarshalYAML implements yaml.Marshaler.
func (v ScalarOrList) MarshalYAML() (any, error) {
	if v.IsList {
		list := v.List
		if list == nil {
			list = []string{}
		}
		return list, nil
	}
	return v.Scalar, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *ScalarOrList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*v = ScalarOrList{}
			return nil
		}
		*v = ScalarOrList{Scalar: node.Value, Present: true}
		return nil
	case yaml.SequenceNode:
		list := make([]string, 0, len(node.Content))
		for i, elem := range node.Content {
			if elem.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: value[%d] must be a scalar", elem.Line, i)
			}
			list = append(list, elem.Value)
		}
		*v = ScalarOrList{List: list, IsList: true, Present: true}
		return nil
	default:
		return fmt.Errorf("line %d: value must be a string or list of strings", node.Line)
	}
}

// PathSegment represents one component of a field path.
// String for object keys, int for array indices, wildcard for array/object expansion.
type PathSegment struct {
	Key      string // object key (mutually exclusive with Index/Wildcard)
	Index    int    // array index (mutually exclusive with Key/Wildcard)
	IsIndex  bool   // disambiguates Index=0 from unset
	Wildcard bool   // true = wildcard segment
}
