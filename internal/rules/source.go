// internal/rules/source.go
package rules

import (
	"context"
	"io"

	"github.com/solatis/rulematch/internal/types"
)

// RecordSource yields records one at a time. Next returns io.EOF once the
// source is exhausted. Sources own their own timeouts; the engine only stops
// calling Next when it no longer needs records.
type RecordSource interface {
	Next(ctx context.Context) (types.Record, error)
}

// SliceSource serves records from memory in order.
type SliceSource struct {
	records []types.Record
	pos     int
}

// NewSliceSource wraps records. The slice is not copied.
func NewSliceSource(records []types.Record) *SliceSource {
	return &SliceSource{records: records}
}

// Next implements RecordSource.
func (s *SliceSource) Next(ctx context.Context) (types.Record, error) {
	if err := ctx.Err(); err != nil {
		return types.Record{}, err
	}
	if s.pos >= len(s.records) {
		return types.Record{}, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}

// FuncSource adapts a function to RecordSource.
type FuncSource func(ctx context.Context) (types.Record, error)

// Next implements RecordSource.
func (f FuncSource) Next(ctx context.Context) (types.Record, error) {
	return f(ctx)
}
