// internal/records/jsonl.go
package records

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/solatis/rulematch/internal/types"
)

/*
 * JSON Lines record source.
 *
 * One record per line. Two line shapes are accepted:
 *
 *   {"id": "acct-1", "attributes": {"platform": "youtube", "fansCount": 5000}}
 *   {"id": "acct-1", "platform": "youtube", "fansCount": 5000}
 *
 * The first is the Record wire shape. Any line without an "attributes" object
 * is treated as a flat attribute bag whose id is taken from IDField. Lines
 * without an id get their 1-based line number as id. Blank lines are skipped.
 */

// MaxLineSize bounds a single JSONL line.
const MaxLineSize = 4 << 20

// JSONLSource reads records lazily from a JSON Lines stream.
type JSONLSource struct {
	scanner *bufio.Scanner
	idField string
	line    int
}

// JSONLOption configures a JSONLSource.
type JSONLOption func(*JSONLSource)

// WithIDField sets the attribute holding the record id for flat lines.
func WithIDField(field string) JSONLOption {
	return func(s *JSONLSource) {
		if field != "" {
			s.idField = field
		}
	}
}

// NewJSONLSource reads from r. The caller owns r.
func NewJSONLSource(r io.Reader, opts ...JSONLOption) *JSONLSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	s := &JSONLSource{scanner: scanner, idField: "id"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next implements rules.RecordSource.
func (s *JSONLSource) Next(ctx context.Context) (types.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return types.Record{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return types.Record{}, fmt.Errorf("line %d: %w", s.line+1, err)
			}
			return types.Record{}, io.EOF
		}
		s.line++

		data := bytes.TrimSpace(s.scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		rec, err := s.decode(data)
		if err != nil {
			return types.Record{}, fmt.Errorf("line %d: %w", s.line, err)
		}
		return rec, nil
	}
}

func (s *JSONLSource) decode(data []byte) (types.Record, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return types.Record{}, err
	}
	if obj == nil {
		return types.Record{}, fmt.Errorf("expected a JSON object")
	}

	return FromObject(obj, s.idField, s.line), nil
}

// FromObject converts a decoded JSON object in either line shape to a
// Record. fallback is used as the id when the object carries none.
func FromObject(obj map[string]any, idField string, fallback int) types.Record {
	var rec types.Record
	if attrs, ok := obj["attributes"].(map[string]any); ok {
		rec.ID = idOf(obj["id"])
		rec.Attributes = attrs
	} else {
		rec.ID = idOf(obj[idField])
		rec.Attributes = obj
	}
	if rec.ID == "" {
		rec.ID = types.RecordID(strconv.Itoa(fallback))
	}
	return rec
}

// idOf renders an id attribute. Numeric ids keep their integer form.
func idOf(v any) types.RecordID {
	switch id := v.(type) {
	case string:
		return types.RecordID(id)
	case float64:
		return types.RecordID(strconv.FormatFloat(id, 'f', -1, 64))
	default:
		return ""
	}
}

// ReadAll drains src into memory. Used where a bounded batch is required.
func ReadAll(ctx context.Context, src *JSONLSource) ([]types.Record, error) {
	var out []types.Record
	for {
		rec, err := src.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
