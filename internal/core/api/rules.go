package api

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/rulematch/internal/core/metrics"
	"github.com/solatis/rulematch/internal/rules"
	"github.com/solatis/rulematch/internal/types"
)

// ValidateRule checks a condition tree without storing it and reports every
// problem found.
//
//	request:  {condition: {...}}
//	response: {valid: bool, cost: number, errors: [{path, message}]}
func (s *MatchAPIService) ValidateRule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		Condition *types.Condition `json:"condition"`
	}
	if err := decodeStruct(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if in.Condition == nil {
		return nil, status.Error(codes.InvalidArgument, "condition required")
	}

	resp := struct {
		Valid  bool              `json:"valid"`
		Cost   int               `json:"cost"`
		Errors []validationIssue `json:"errors"`
	}{Errors: []validationIssue{}}

	vc, errs := rules.ValidateAll(*in.Condition)
	if len(errs) > 0 {
		metrics.RulesRejected.WithLabelValues("api").Inc()
		for _, e := range errs {
			path := rules.FormatNodePath(e.Path)
			resp.Errors = append(resp.Errors, validationIssue{
				Path:    path,
				Message: strings.TrimPrefix(e.Error(), path+": "),
			})
		}
	} else {
		resp.Valid = true
		resp.Cost = vc.Cost()
	}
	return encodeStruct(resp)
}

// PutRule stores a rule. Without an id a new one is assigned; with an id the
// stored rule is replaced.
//
//	request:  {rule: {id?, name, status?, condition}}
//	response: {rule: {...}}
func (s *MatchAPIService) PutRule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		Rule *types.Rule `json:"rule"`
	}
	if err := decodeStruct(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if in.Rule == nil {
		return nil, status.Error(codes.InvalidArgument, "rule required")
	}

	rule := in.Rule
	var (
		vr  *rules.ValidatedRule
		err error
	)
	if rule.ID == "" {
		vr, err = s.store.Create(ctx, rule)
	} else {
		id, perr := types.ParseRuleID(string(rule.ID))
		if perr != nil {
			return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("invalid rule_id: %v", perr))
		}
		rule.ID = id
		vr, err = s.store.Upsert(ctx, rule)
	}
	if err != nil {
		return nil, toStatus(err)
	}

	return encodeStruct(struct {
		Rule ruleMessage `json:"rule"`
	}{validatedMessageOf(vr)})
}

// GetRule returns a stored rule.
//
//	request:  {rule_id}
//	response: {rule: {...}}
func (s *MatchAPIService) GetRule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := ruleIDOf(req)
	if err != nil {
		return nil, err
	}
	vr, err := s.store.LoadValidated(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(struct {
		Rule ruleMessage `json:"rule"`
	}{validatedMessageOf(vr)})
}

// ListRules returns stored rules, optionally filtered by status.
// The etag is content-addressable: the same rules always produce the same
// etag. A request whose if_none_match equals it gets not_modified and no rules.
//
//	request:  {status?, if_none_match?}
//	response: {rules: [...], etag, not_modified}
func (s *MatchAPIService) ListRules(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		Status      string `json:"status"`
		IfNoneMatch string `json:"if_none_match"`
	}
	if err := decodeStruct(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var filter types.RuleStatus
	if in.Status != "" {
		st, err := types.ParseRuleStatus(in.Status)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		filter = st
	}

	stored, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, toStatus(err)
	}

	resp := struct {
		Rules       []ruleMessage `json:"rules"`
		ETag        string        `json:"etag"`
		NotModified bool          `json:"not_modified"`
	}{Rules: []ruleMessage{}, ETag: computeETag(stored)}

	if in.IfNoneMatch != "" && in.IfNoneMatch == resp.ETag {
		resp.NotModified = true
		return encodeStruct(resp)
	}

	for _, r := range stored {
		vc, err := rules.Validate(r.Condition)
		if err != nil {
			// Skip rules that no longer validate; continue with the others
			s.logger.Warn("skipping stored rule that fails validation", "rule_id", r.ID, "error", err)
			continue
		}
		resp.Rules = append(resp.Rules, ruleMessageOf(r, vc.Cost()))
	}
	return encodeStruct(resp)
}

// DeleteRule removes a stored rule.
//
//	request:  {rule_id}
//	response: {}
func (s *MatchAPIService) DeleteRule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := ruleIDOf(req)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

// computeETag hashes sorted rule ids with their update timestamps.
func computeETag(stored []*types.Rule) string {
	keys := make([]string, 0, len(stored))
	for _, r := range stored {
		keys = append(keys, string(r.ID)+":"+formatTime(r.UpdatedAt))
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ruleIDOf reads and validates the rule_id field of a request.
func ruleIDOf(req *structpb.Struct) (types.RuleID, error) {
	var in ruleIDRequest
	if err := decodeStruct(req, &in); err != nil {
		return "", status.Error(codes.InvalidArgument, err.Error())
	}
	if in.RuleID == "" {
		return "", status.Error(codes.InvalidArgument, "rule_id required")
	}
	id, err := types.ParseRuleID(in.RuleID)
	if err != nil {
		return "", status.Error(codes.InvalidArgument, fmt.Sprintf("invalid rule_id: %v", err))
	}
	return id, nil
}
