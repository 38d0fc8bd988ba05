package api

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/rulematch/internal/records"
	"github.com/solatis/rulematch/internal/rules"
	"github.com/solatis/rulematch/internal/types"
)

// Request and response messages travel as google.protobuf.Struct. Rules and
// condition trees use the same JSON shape as the store and rule files, so the
// codec goes through encoding/json in both directions.

// decodeStruct unmarshals a Struct into a Go message.
func decodeStruct(in *structpb.Struct, dst any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// encodeStruct marshals a Go message into a Struct.
func encodeStruct(src any) (*structpb.Struct, error) {
	data, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

// recordFromValue reads a record in either JSONL shape from a Struct field.
// Numbers arrive as float64, the same as JSON-decoded records.
func recordFromValue(v *structpb.Value, fallback int) (types.Record, error) {
	obj := v.GetStructValue()
	if obj == nil {
		return types.Record{}, fmt.Errorf("record must be an object")
	}
	return records.FromObject(obj.AsMap(), "id", fallback), nil
}

type ruleIDRequest struct {
	RuleID string `json:"rule_id"`
}

type ruleMessage struct {
	ID        types.RuleID     `json:"id,omitempty"`
	Name      string           `json:"name"`
	Status    types.RuleStatus `json:"status"`
	Condition types.Condition  `json:"condition"`
	Cost      int              `json:"cost"`
	CreatedAt string           `json:"created_at,omitempty"`
	UpdatedAt string           `json:"updated_at,omitempty"`
}

func ruleMessageOf(rule *types.Rule, cost int) ruleMessage {
	return ruleMessage{
		ID:        rule.ID,
		Name:      rule.Name,
		Status:    rule.Status,
		Condition: rule.Condition,
		Cost:      cost,
		CreatedAt: formatTime(rule.CreatedAt),
		UpdatedAt: formatTime(rule.UpdatedAt),
	}
}

func validatedMessageOf(vr *rules.ValidatedRule) ruleMessage {
	return ruleMessageOf(vr.Rule(), vr.Condition.Cost())
}

type validationIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type recordIssue struct {
	Index    int            `json:"index"`
	RecordID types.RecordID `json:"record_id"`
	Message  string         `json:"message"`
}

type matchResponse struct {
	RuleID    types.RuleID     `json:"rule_id"`
	Matched   []types.RecordID `json:"matched"`
	Errors    []recordIssue    `json:"errors"`
	Evaluated int              `json:"evaluated"`
	Truncated bool             `json:"truncated"`
}

func matchResponseOf(result *rules.MatchResult) matchResponse {
	resp := matchResponse{
		RuleID:    result.RuleID,
		Matched:   result.Matched,
		Errors:    make([]recordIssue, 0, len(result.Errors)),
		Evaluated: result.Evaluated,
		Truncated: result.Truncated,
	}
	if resp.Matched == nil {
		resp.Matched = []types.RecordID{}
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, recordIssue{Index: e.Index, RecordID: e.RecordID, Message: e.Err.Error()})
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
