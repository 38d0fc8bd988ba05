// internal/rules/coercion.go
package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/rulematch/internal/types"
)

/*
 * Type coercion for rule evaluation.
 *
 * Condition values are authored as strings. Two coercion paths exist:
 *
 *   - Equality (equals, in, contains on lists): the authored string is coerced
 *     to the type of the record value. A string that does not parse as that
 *     type is simply unequal; equality never raises a coercion error.
 *   - Ordering (greaterThan, lessThan, between, ...): the authored string is
 *     parsed once at validation into a number, or failing that a timestamp.
 *     Record values are coerced to the same kind at evaluation. Either side
 *     failing is ErrCoercionFailed for that node, never a silent false.
 *
 * Numeric parsing trims whitespace; whitespace-only strings are not numbers.
 * Booleans never coerce to numbers (avoids "true" vs 1 ambiguity).
 */

// orderedKind is the comparison domain of an ordering operand.
type orderedKind int

const (
	kindNumber orderedKind = iota + 1
	kindTime
)

func (k orderedKind) String() string {
	switch k {
	case kindNumber:
		return "number"
	case kindTime:
		return "timestamp"
	default:
		return "unknown"
	}
}

// ordered is a parsed ordering operand or coerced record value.
type ordered struct {
	kind orderedKind
	num  float64
	at   time.Time
}

// timeLayouts are tried in order when parsing timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseOrdered parses an authored operand as a number, then as a timestamp.
func parseOrdered(s string) (ordered, error) {
	if f, ok := parseNumber(s); ok {
		return ordered{kind: kindNumber, num: f}, nil
	}
	if t, ok := parseTime(s); ok {
		return ordered{kind: kindTime, at: t}, nil
	}
	return ordered{}, fmt.Errorf("%w: %q is neither a number nor a timestamp", types.ErrCoercionFailed, s)
}

// coerceOrdered converts a record value into the operand's kind.
func coerceOrdered(v any, kind orderedKind) (ordered, error) {
	switch kind {
	case kindNumber:
		if f, ok := toFloat64(v); ok {
			return ordered{kind: kindNumber, num: f}, nil
		}
		if s, ok := v.(string); ok {
			if f, ok := parseNumber(s); ok {
				return ordered{kind: kindNumber, num: f}, nil
			}
		}
	case kindTime:
		switch t := v.(type) {
		case time.Time:
			return ordered{kind: kindTime, at: t}, nil
		case string:
			if at, ok := parseTime(t); ok {
				return ordered{kind: kindTime, at: at}, nil
			}
		}
	}
	return ordered{}, fmt.Errorf("%w: record value %v (%T) is not a %s", types.ErrCoercionFailed, v, v, kind)
}

// compareOrdered performs three-way comparison (-1/0/1). Both sides share a kind.
func compareOrdered(a, b ordered) int {
	if a.kind == kindTime {
		return a.at.Compare(b.at)
	}
	switch {
	case a.num < b.num:
		return -1
	case a.num > b.num:
		return 1
	default:
		return 0
	}
}

// parseNumber parses a finite float from trimmed text.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseTime parses trimmed text with the supported layouts.
func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// toFloat64 converts value to float64 if it's a numeric type.
// Handles every Go numeric width plus json.Number from UseNumber decoders.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// equalScalar reports whether a record value equals an authored string once the
// string is coerced to the record value's type.
func equalScalar(v any, s string) bool {
	switch fv := v.(type) {
	case string:
		return fv == s
	case bool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		return err == nil && b == fv
	case time.Time:
		t, ok := parseTime(s)
		return ok && t.Equal(fv)
	}
	if f, ok := toFloat64(v); ok {
		n, ok := parseNumber(s)
		return ok && n == f
	}
	// Objects and lists never equal a scalar
	return false
}
