// internal/rules/fieldpath.go
package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/solatis/rulematch/internal/types"
)

/*
 * Field path parsing and resolution against record attributes.
 *
 * Syntax: dot-separated keys, each optionally followed by [n] indices or [*]
 * wildcards. A bare * segment is a wildcard over object values.
 *
 *   platform
 *   profile.followerCount
 *   accounts[0].platform
 *   accounts[*].tags[*]
 *   groups.*.joinedAt
 *
 * Wildcards expand to every candidate value (ANY semantics). Expansion order
 * is deterministic: array index order, sorted keys for objects. Null values
 * are treated as absent and never appear in a resolution.
 *
 * Depth and wildcard limits are enforced by the validator and again here so
 * Resolve is safe to call on hand-built paths.
 */

// ParseFieldPath parses a field path string into segments.
func ParseFieldPath(field string) ([]types.PathSegment, error) {
	if strings.TrimSpace(field) == "" {
		return nil, types.ErrEmptyField
	}

	var path []types.PathSegment
	for _, part := range strings.Split(field, ".") {
		key, brackets := part, ""
		if i := strings.IndexByte(part, '['); i >= 0 {
			key, brackets = part[:i], part[i:]
		}
		if key == "" || strings.ContainsRune(key, ']') {
			return nil, fmt.Errorf("%w: bad segment %q in %q", types.ErrInvalidFieldPath, part, field)
		}
		if key == "*" {
			path = append(path, types.PathSegment{Wildcard: true})
		} else {
			path = append(path, types.PathSegment{Key: key})
		}

		for brackets != "" {
			end := strings.IndexByte(brackets, ']')
			if brackets[0] != '[' || end < 0 {
				return nil, fmt.Errorf("%w: unbalanced brackets in %q", types.ErrInvalidFieldPath, field)
			}
			inner := brackets[1:end]
			brackets = brackets[end+1:]

			if inner == "*" {
				path = append(path, types.PathSegment{Wildcard: true})
				continue
			}
			idx, err := strconv.Atoi(inner)
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("%w: bad index %q in %q", types.ErrInvalidFieldPath, inner, field)
			}
			path = append(path, types.PathSegment{Index: idx, IsIndex: true})
		}
	}

	return path, nil
}

// FormatFieldPath renders segments back into path syntax.
func FormatFieldPath(path []types.PathSegment) string {
	var b strings.Builder
	for i, seg := range path {
		switch {
		case seg.IsIndex:
			fmt.Fprintf(&b, "[%d]", seg.Index)
		case seg.Wildcard && i > 0 && !path[i-1].Wildcard && !path[i-1].IsIndex:
			b.WriteString("[*]")
		case seg.Wildcard:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteByte('*')
		default:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(seg.Key)
		}
	}
	return b.String()
}

// countWildcards returns the number of wildcard segments in path.
func countWildcards(path []types.PathSegment) int {
	n := 0
	for _, seg := range path {
		if seg.Wildcard {
			n++
		}
	}
	return n
}

// Resolve returns every non-null value reachable from root by path.
// Returns ErrPathTooDeep if path exceeds MaxPathDepth.
// Returns ErrTooManyWildcards if path contains > MaxNestedWildcards wildcards.
// Returns ErrFieldNotFound if nothing resolves.
func Resolve(path []types.PathSegment, root any) ([]any, error) {
	if len(path) > types.MaxPathDepth {
		return nil, types.ErrPathTooDeep
	}
	if countWildcards(path) > types.MaxNestedWildcards {
		return nil, types.ErrTooManyWildcards
	}

	values := collect(path, root, nil)
	if len(values) == 0 {
		return nil, types.ErrFieldNotFound
	}
	return values, nil
}

// collect traverses nested attributes following path segments, appending
// every terminal non-null value to out.
func collect(path []types.PathSegment, current any, out []any) []any {
	if current == nil {
		// Null at any position is absence
		return out
	}
	if len(path) == 0 {
		return append(out, current)
	}

	seg := path[0]
	remaining := path[1:]

	if obj, ok := asObject(current); ok {
		if seg.Wildcard {
			// Sorted keys keep expansion order stable across evaluations
			keys := make([]string, 0, len(obj))
			for k := range obj {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				out = collect(remaining, obj[k], out)
			}
			return out
		}
		if seg.IsIndex {
			// Cannot index into object with integer
			return out
		}
		val, ok := obj[seg.Key]
		if !ok {
			return out
		}
		return collect(remaining, val, out)
	}

	if arr, ok := asList(current); ok {
		if seg.Wildcard {
			for _, elem := range arr {
				out = collect(remaining, elem, out)
			}
			return out
		}
		if !seg.IsIndex || seg.Index >= len(arr) {
			// String key on array or index out of range
			return out
		}
		return collect(remaining, arr[seg.Index], out)
	}

	// Scalar value but path continues
	return out
}

// asObject views v as a string-keyed object.
func asObject(v any) (map[string]any, bool) {
	switch o := v.(type) {
	case map[string]any:
		return o, true
	case map[string]string:
		m := make(map[string]any, len(o))
		for k, s := range o {
			m[k] = s
		}
		return m, true
	default:
		return nil, false
	}
}

// asList views v as an ordered list.
// Covers decoder output ([]any) plus the slice types Go callers commonly build.
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	case []float64:
		out := make([]any, len(l))
		for i, f := range l {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}
