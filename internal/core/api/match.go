package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/rulematch/internal/rules"
	"github.com/solatis/rulematch/internal/types"
)

// Evaluate checks one record against a stored rule or an inline condition.
// An evaluation error (an ordering operand that cannot be coerced) is
// returned as INVALID_ARGUMENT.
//
//	request:  {rule_id | condition, record: {id?, attributes} | {...flat}}
//	response: {matched: bool}
func (s *MatchAPIService) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		RuleID    string           `json:"rule_id"`
		Condition *types.Condition `json:"condition"`
	}
	if err := decodeStruct(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var vc *rules.ValidatedCondition
	switch {
	case in.RuleID != "" && in.Condition != nil:
		return nil, status.Error(codes.InvalidArgument, "rule_id and condition are mutually exclusive")
	case in.Condition != nil:
		c, err := rules.Validate(*in.Condition)
		if err != nil {
			return nil, toStatus(err)
		}
		vc = c
	case in.RuleID != "":
		vr, err := s.loadRule(ctx, in.RuleID)
		if err != nil {
			return nil, err
		}
		vc = vr.Condition
	default:
		return nil, status.Error(codes.InvalidArgument, "rule_id or condition required")
	}

	field, ok := req.GetFields()["record"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "record required")
	}
	rec, err := recordFromValue(field, 1)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	matched, err := rules.Evaluate(vc, rec)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"matched": matched})
}

// Match runs a stored rule over inline records. At most MaxBatchSize
// records are accepted per call; use MatchStream for larger inputs.
//
//	request:  {rule_id, records: [...], limit?}
//	response: {rule_id, matched: [ids], errors: [{index, record_id, message}], evaluated, truncated}
func (s *MatchAPIService) Match(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		RuleID string `json:"rule_id"`
		Limit  int    `json:"limit"`
	}
	if err := decodeStruct(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	// Reject batches exceeding max size
	values := req.GetFields()["records"].GetListValue().GetValues()
	if len(values) > s.cfg.MaxBatchSize {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("batch size exceeds maximum of %d records", s.cfg.MaxBatchSize))
	}

	vr, err := s.loadRule(ctx, in.RuleID)
	if err != nil {
		return nil, err
	}

	recs := make([]types.Record, 0, len(values))
	for i, v := range values {
		rec, err := recordFromValue(v, i+1)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("records[%d]: %v", i, err))
		}
		recs = append(recs, rec)
	}

	result, err := s.engine.Match(ctx, vr, rules.NewSliceSource(recs), rules.WithLimit(in.Limit))
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(matchResponseOf(result))
}

// MatchStream runs a stored rule over a client stream of records.
// The first message is the header {rule_id, limit?}; each following message
// is {record: {...}}. The result is sent once the client closes the stream,
// or as soon as the limit is reached.
func (s *MatchAPIService) MatchStream(stream MatchStreamServer) error {
	ctx := stream.Context()

	header, err := stream.Recv()
	if err == io.EOF {
		return status.Error(codes.InvalidArgument, "stream closed before header")
	}
	if err != nil {
		return err
	}
	var in struct {
		RuleID string `json:"rule_id"`
		Limit  int    `json:"limit"`
	}
	if err := decodeStruct(header, &in); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	vr, err := s.loadRule(ctx, in.RuleID)
	if err != nil {
		return err
	}

	src := &streamSource{stream: stream}
	result, err := s.engine.Match(ctx, vr, src, rules.WithLimit(in.Limit))
	if err != nil {
		var bad *badMessageError
		if errors.As(err, &bad) {
			return status.Error(codes.InvalidArgument, err.Error())
		}
		return toStatus(err)
	}

	s.logger.Debug("match stream complete", "rule_id", vr.ID, "received", src.received, "matched", len(result.Matched))
	resp, err := encodeStruct(matchResponseOf(result))
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.SendAndClose(resp)
}

// loadRule resolves a rule_id for matching. Disabled rules are refused.
func (s *MatchAPIService) loadRule(ctx context.Context, raw string) (*rules.ValidatedRule, error) {
	if raw == "" {
		return nil, status.Error(codes.InvalidArgument, "rule_id required")
	}
	id, err := types.ParseRuleID(raw)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("invalid rule_id: %v", err))
	}
	vr, err := s.store.LoadValidated(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	if vr.Status == types.RuleStatusDisabled {
		return nil, status.Error(codes.FailedPrecondition, fmt.Sprintf("rule %s is disabled", id))
	}
	return vr, nil
}

// badMessageError marks a malformed stream message, as opposed to a
// transport failure.
type badMessageError struct {
	index int
	err   error
}

func (e *badMessageError) Error() string {
	return fmt.Sprintf("message %d: %v", e.index, e.err)
}

func (e *badMessageError) Unwrap() error { return e.err }

// streamSource adapts a client stream to rules.RecordSource.
// Only the engine's producer goroutine calls Next. Recv runs in its own
// goroutine so Next returns when ctx ends even if the client is idle.
type streamSource struct {
	stream   MatchStreamServer
	received int
	pending  chan recvResult
}

type recvResult struct {
	msg *structpb.Struct
	err error
}

func (s *streamSource) Next(ctx context.Context) (types.Record, error) {
	if err := ctx.Err(); err != nil {
		return types.Record{}, err
	}
	if s.pending == nil {
		// Buffered so an abandoned Recv exits once the RPC ends
		ch := make(chan recvResult, 1)
		go func() {
			msg, err := s.stream.Recv()
			ch <- recvResult{msg: msg, err: err}
		}()
		s.pending = ch
	}

	var r recvResult
	select {
	case r = <-s.pending:
		s.pending = nil
	case <-ctx.Done():
		return types.Record{}, ctx.Err()
	}
	if r.err != nil {
		// io.EOF passes through as end of input
		return types.Record{}, r.err
	}
	s.received++

	field, ok := r.msg.GetFields()["record"]
	if !ok {
		return types.Record{}, &badMessageError{index: s.received, err: errors.New("record required")}
	}
	rec, err := recordFromValue(field, s.received)
	if err != nil {
		return types.Record{}, &badMessageError{index: s.received, err: err}
	}
	return rec, nil
}
