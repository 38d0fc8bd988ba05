package api

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/rulematch/internal/core/config"
	"github.com/solatis/rulematch/internal/core/db"
	"github.com/solatis/rulematch/internal/core/store"
	"github.com/solatis/rulematch/internal/rules"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient serves a MatchAPIService over bufconn backed by an
// in-memory sqlite store.
func newTestClient(t *testing.T, mutate func(*config.MatchAPIConfig)) *MatchAPIClient {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()

	conn, err := db.Open(ctx, "sqlite://:memory:")
	if err != nil {
		t.Fatalf("db.Open() error = %v, want nil", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.MigrateUp(ctx, conn, logger); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}
	q, err := db.LoadQueries(conn)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v, want nil", err)
	}
	rs, err := store.NewRuleStore(q, logger)
	if err != nil {
		t.Fatalf("NewRuleStore() error = %v, want nil", err)
	}

	cfg := config.DefaultMatchAPIConfig()
	if mutate != nil {
		mutate(cfg)
	}
	svc, err := NewMatchAPIService(rs, rules.NewEngine(rules.WithWorkers(4), rules.WithLogger(logger)), cfg, logger)
	if err != nil {
		t.Fatalf("NewMatchAPIService() error = %v, want nil", err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterMatchAPIServer(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v, want nil", err)
	}
	t.Cleanup(func() { cc.Close() })
	return NewMatchAPIClient(cc)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("structpb.NewStruct() error = %v, want nil", err)
	}
	return s
}

func creatorCondition() map[string]any {
	return map[string]any{
		"type":        "nested",
		"conjunction": "AND",
		"conditions": []any{
			map[string]any{"type": "single", "field": "role", "operator": "equals", "value": "creator"},
			map[string]any{"type": "single", "field": "fans", "operator": "greaterThan", "value": "1000"},
		},
	}
}

func putCreatorRule(t *testing.T, c *MatchAPIClient, status string) string {
	t.Helper()
	resp, err := c.PutRule(context.Background(), mustStruct(t, map[string]any{
		"rule": map[string]any{"name": "popular creators", "status": status, "condition": creatorCondition()},
	}))
	if err != nil {
		t.Fatalf("PutRule() error = %v, want nil", err)
	}
	return resp.Fields["rule"].GetStructValue().Fields["id"].GetStringValue()
}

func wantCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	if got := status.Code(err); got != want {
		t.Errorf("error code = %v (%v), want %v", got, err, want)
	}
}

func TestValidateRule(t *testing.T) {
	c := newTestClient(t, nil)
	ctx := context.Background()

	resp, err := c.ValidateRule(ctx, mustStruct(t, map[string]any{"condition": creatorCondition()}))
	if err != nil {
		t.Fatalf("ValidateRule() error = %v, want nil", err)
	}
	if !resp.Fields["valid"].GetBoolValue() {
		t.Errorf("ValidateRule() valid = false, want true: %v", resp)
	}
	if resp.Fields["cost"].GetNumberValue() <= 0 {
		t.Errorf("ValidateRule() cost = %v, want positive", resp.Fields["cost"])
	}

	bad := map[string]any{
		"type":        "nested",
		"conjunction": "AND",
		"conditions": []any{
			map[string]any{"type": "single", "field": "a", "operator": "matches", "value": "x"},
			map[string]any{"type": "nested", "conjunction": "OR", "conditions": []any{}},
		},
	}
	resp, err = c.ValidateRule(ctx, mustStruct(t, map[string]any{"condition": bad}))
	if err != nil {
		t.Fatalf("ValidateRule(invalid) error = %v, want nil", err)
	}
	if resp.Fields["valid"].GetBoolValue() {
		t.Errorf("ValidateRule(invalid) valid = true, want false")
	}
	var paths []string
	for _, v := range resp.Fields["errors"].GetListValue().GetValues() {
		paths = append(paths, v.GetStructValue().Fields["path"].GetStringValue())
	}
	if diff := cmp.Diff([]string{"$.conditions[0]", "$.conditions[1]"}, paths); diff != "" {
		t.Errorf("ValidateRule() error paths mismatch (-want +got):\n%s", diff)
	}

	_, err = c.ValidateRule(ctx, mustStruct(t, map[string]any{}))
	wantCode(t, err, codes.InvalidArgument)
}

func TestRuleLifecycle(t *testing.T) {
	c := newTestClient(t, nil)
	ctx := context.Background()

	id := putCreatorRule(t, c, "active")
	if id == "" {
		t.Fatal("PutRule() returned no id")
	}

	got, err := c.GetRule(ctx, mustStruct(t, map[string]any{"rule_id": id}))
	if err != nil {
		t.Fatalf("GetRule() error = %v, want nil", err)
	}
	rule := got.Fields["rule"].GetStructValue().AsMap()
	if rule["name"] != "popular creators" || rule["status"] != "active" {
		t.Errorf("GetRule() = %v, want popular creators/active", rule)
	}
	if diff := cmp.Diff(creatorCondition(), rule["condition"]); diff != "" {
		t.Errorf("GetRule() condition mismatch (-want +got):\n%s", diff)
	}

	// Replace by id
	_, err = c.PutRule(ctx, mustStruct(t, map[string]any{
		"rule": map[string]any{"id": id, "name": "renamed", "status": "active", "condition": creatorCondition()},
	}))
	if err != nil {
		t.Fatalf("PutRule(replace) error = %v, want nil", err)
	}
	got, err = c.GetRule(ctx, mustStruct(t, map[string]any{"rule_id": id}))
	if err != nil {
		t.Fatalf("GetRule() error = %v, want nil", err)
	}
	if name := got.Fields["rule"].GetStructValue().Fields["name"].GetStringValue(); name != "renamed" {
		t.Errorf("GetRule() name = %q, want renamed", name)
	}

	if _, err := c.DeleteRule(ctx, mustStruct(t, map[string]any{"rule_id": id})); err != nil {
		t.Fatalf("DeleteRule() error = %v, want nil", err)
	}
	_, err = c.GetRule(ctx, mustStruct(t, map[string]any{"rule_id": id}))
	wantCode(t, err, codes.NotFound)
	_, err = c.DeleteRule(ctx, mustStruct(t, map[string]any{"rule_id": id}))
	wantCode(t, err, codes.NotFound)
}

func TestPutRule_Invalid(t *testing.T) {
	c := newTestClient(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  map[string]any
	}{
		{name: "missing rule", req: map[string]any{}},
		{name: "empty name", req: map[string]any{"rule": map[string]any{"condition": creatorCondition()}}},
		{name: "bad status", req: map[string]any{"rule": map[string]any{"name": "x", "status": "paused", "condition": creatorCondition()}}},
		{name: "empty nested", req: map[string]any{"rule": map[string]any{"name": "x", "condition": map[string]any{"type": "nested", "conjunction": "AND", "conditions": []any{}}}}},
		{name: "bad id", req: map[string]any{"rule": map[string]any{"id": "nope", "name": "x", "condition": creatorCondition()}}},
		{name: "object value", req: map[string]any{"rule": map[string]any{"name": "x", "condition": map[string]any{"type": "single", "field": "a", "operator": "equals", "value": map[string]any{"k": "v"}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.PutRule(ctx, mustStruct(t, tt.req))
			wantCode(t, err, codes.InvalidArgument)
		})
	}
}

func TestListRules_ETag(t *testing.T) {
	c := newTestClient(t, nil)
	ctx := context.Background()

	putCreatorRule(t, c, "active")
	putCreatorRule(t, c, "draft")

	resp, err := c.ListRules(ctx, mustStruct(t, map[string]any{}))
	if err != nil {
		t.Fatalf("ListRules() error = %v, want nil", err)
	}
	if n := len(resp.Fields["rules"].GetListValue().GetValues()); n != 2 {
		t.Errorf("ListRules() = %d rules, want 2", n)
	}
	etag := resp.Fields["etag"].GetStringValue()

	active, err := c.ListRules(ctx, mustStruct(t, map[string]any{"status": "active"}))
	if err != nil {
		t.Fatalf("ListRules(active) error = %v, want nil", err)
	}
	if n := len(active.Fields["rules"].GetListValue().GetValues()); n != 1 {
		t.Errorf("ListRules(active) = %d rules, want 1", n)
	}

	cached, err := c.ListRules(ctx, mustStruct(t, map[string]any{"if_none_match": etag}))
	if err != nil {
		t.Fatalf("ListRules(if_none_match) error = %v, want nil", err)
	}
	if !cached.Fields["not_modified"].GetBoolValue() {
		t.Errorf("ListRules(if_none_match) not_modified = false, want true")
	}
	if n := len(cached.Fields["rules"].GetListValue().GetValues()); n != 0 {
		t.Errorf("ListRules(if_none_match) = %d rules, want 0", n)
	}

	putCreatorRule(t, c, "active")
	changed, err := c.ListRules(ctx, mustStruct(t, map[string]any{"if_none_match": etag}))
	if err != nil {
		t.Fatalf("ListRules() error = %v, want nil", err)
	}
	if changed.Fields["not_modified"].GetBoolValue() || changed.Fields["etag"].GetStringValue() == etag {
		t.Errorf("ListRules() after insert kept etag %s", etag)
	}

	_, err = c.ListRules(ctx, mustStruct(t, map[string]any{"status": "paused"}))
	wantCode(t, err, codes.InvalidArgument)
}

func TestEvaluate(t *testing.T) {
	c := newTestClient(t, nil)
	ctx := context.Background()
	id := putCreatorRule(t, c, "active")

	tests := []struct {
		name   string
		record map[string]any
		want   bool
	}{
		{name: "match", record: map[string]any{"id": "a", "attributes": map[string]any{"role": "creator", "fans": 5000}}, want: true},
		{name: "too few fans", record: map[string]any{"id": "b", "attributes": map[string]any{"role": "creator", "fans": 10}}, want: false},
		{name: "flat record", record: map[string]any{"id": "c", "role": "creator", "fans": 2000}, want: true},
		{name: "missing field", record: map[string]any{"id": "d", "attributes": map[string]any{"role": "creator"}}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := c.Evaluate(ctx, mustStruct(t, map[string]any{"rule_id": id, "record": tt.record}))
			if err != nil {
				t.Fatalf("Evaluate() error = %v, want nil", err)
			}
			if got := resp.Fields["matched"].GetBoolValue(); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}

	// Inline condition with an operand that only fails at evaluation
	inline := map[string]any{"type": "single", "field": "fans", "operator": "greaterThan", "value": "many"}
	_, err := c.Evaluate(ctx, mustStruct(t, map[string]any{
		"condition": inline,
		"record":    map[string]any{"attributes": map[string]any{"fans": 1}},
	}))
	wantCode(t, err, codes.InvalidArgument)

	_, err = c.Evaluate(ctx, mustStruct(t, map[string]any{"rule_id": id}))
	wantCode(t, err, codes.InvalidArgument)

	_, err = c.Evaluate(ctx, mustStruct(t, map[string]any{
		"rule_id": "0190f3a4-7b1c-7d2e-9f00-0123456789ab",
		"record":  map[string]any{"attributes": map[string]any{}},
	}))
	wantCode(t, err, codes.NotFound)
}

func creatorBatch(n int) []any {
	recs := make([]any, n)
	for i := range recs {
		fans := 10
		if i%2 == 0 {
			fans = 5000
		}
		recs[i] = map[string]any{"id": string(rune('a' + i)), "attributes": map[string]any{"role": "creator", "fans": fans}}
	}
	return recs
}

func TestMatch(t *testing.T) {
	c := newTestClient(t, func(cfg *config.MatchAPIConfig) { cfg.MaxBatchSize = 8 })
	ctx := context.Background()
	id := putCreatorRule(t, c, "active")

	resp, err := c.Match(ctx, mustStruct(t, map[string]any{"rule_id": id, "records": creatorBatch(6)}))
	if err != nil {
		t.Fatalf("Match() error = %v, want nil", err)
	}
	got := resp.AsMap()
	if diff := cmp.Diff([]any{"a", "c", "e"}, got["matched"]); diff != "" {
		t.Errorf("Match() matched mismatch (-want +got):\n%s", diff)
	}
	if got["evaluated"] != float64(6) || got["truncated"] != false {
		t.Errorf("Match() evaluated/truncated = %v/%v, want 6/false", got["evaluated"], got["truncated"])
	}

	limited, err := c.Match(ctx, mustStruct(t, map[string]any{"rule_id": id, "records": creatorBatch(6), "limit": 2}))
	if err != nil {
		t.Fatalf("Match(limit) error = %v, want nil", err)
	}
	if diff := cmp.Diff([]any{"a", "c"}, limited.AsMap()["matched"]); diff != "" {
		t.Errorf("Match(limit) matched mismatch (-want +got):\n%s", diff)
	}
	if limited.AsMap()["truncated"] != true {
		t.Errorf("Match(limit) truncated = false, want true")
	}

	_, err = c.Match(ctx, mustStruct(t, map[string]any{"rule_id": id, "records": creatorBatch(9)}))
	wantCode(t, err, codes.InvalidArgument)
}

func TestMatch_RecordErrors(t *testing.T) {
	c := newTestClient(t, nil)
	ctx := context.Background()

	resp, err := c.PutRule(ctx, mustStruct(t, map[string]any{
		"rule": map[string]any{"name": "bad operand", "condition": map[string]any{
			"type": "single", "field": "fans", "operator": "greaterThan", "value": "many",
		}},
	}))
	if err != nil {
		t.Fatalf("PutRule() error = %v, want nil", err)
	}
	id := resp.Fields["rule"].GetStructValue().Fields["id"].GetStringValue()

	result, err := c.Match(ctx, mustStruct(t, map[string]any{"rule_id": id, "records": creatorBatch(3)}))
	if err != nil {
		t.Fatalf("Match() error = %v, want nil", err)
	}
	if n := len(result.Fields["errors"].GetListValue().GetValues()); n != 3 {
		t.Errorf("Match() errors = %d, want 3", n)
	}
	if n := len(result.Fields["matched"].GetListValue().GetValues()); n != 0 {
		t.Errorf("Match() matched = %d, want 0", n)
	}
}

func TestMatch_DisabledRule(t *testing.T) {
	c := newTestClient(t, nil)
	id := putCreatorRule(t, c, "disabled")

	_, err := c.Match(context.Background(), mustStruct(t, map[string]any{"rule_id": id, "records": creatorBatch(2)}))
	wantCode(t, err, codes.FailedPrecondition)
}

func TestMatchStream(t *testing.T) {
	c := newTestClient(t, func(cfg *config.MatchAPIConfig) { cfg.MaxBatchSize = 1 })
	ctx := context.Background()
	id := putCreatorRule(t, c, "active")

	stream, err := c.MatchStream(ctx)
	if err != nil {
		t.Fatalf("MatchStream() error = %v, want nil", err)
	}
	if err := stream.Send(mustStruct(t, map[string]any{"rule_id": id})); err != nil {
		t.Fatalf("Send(header) error = %v, want nil", err)
	}
	// The stream is not bound by MaxBatchSize
	for _, rec := range creatorBatch(10) {
		if err := stream.Send(mustStruct(t, map[string]any{"record": rec})); err != nil {
			t.Fatalf("Send(record) error = %v, want nil", err)
		}
	}
	resp, err := stream.CloseAndRecv()
	if err != nil {
		t.Fatalf("CloseAndRecv() error = %v, want nil", err)
	}
	got := resp.AsMap()
	if diff := cmp.Diff([]any{"a", "c", "e", "g", "i"}, got["matched"]); diff != "" {
		t.Errorf("MatchStream() matched mismatch (-want +got):\n%s", diff)
	}
	if got["evaluated"] != float64(10) {
		t.Errorf("MatchStream() evaluated = %v, want 10", got["evaluated"])
	}
}

func TestMatchStream_LimitAnswersOpenStream(t *testing.T) {
	c := newTestClient(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id := putCreatorRule(t, c, "active")

	stream, err := c.MatchStream(ctx)
	if err != nil {
		t.Fatalf("MatchStream() error = %v, want nil", err)
	}
	if err := stream.Send(mustStruct(t, map[string]any{"rule_id": id, "limit": 1})); err != nil {
		t.Fatalf("Send(header) error = %v, want nil", err)
	}
	if err := stream.Send(mustStruct(t, map[string]any{"record": creatorBatch(1)[0]})); err != nil {
		t.Fatalf("Send(record) error = %v, want nil", err)
	}

	// The send side stays open: the limit alone must produce the answer
	resp := new(structpb.Struct)
	if err := stream.RecvMsg(resp); err != nil {
		t.Fatalf("RecvMsg() error = %v, want nil", err)
	}
	got := resp.AsMap()
	if diff := cmp.Diff([]any{"a"}, got["matched"]); diff != "" {
		t.Errorf("MatchStream() matched mismatch (-want +got):\n%s", diff)
	}
	if got["truncated"] != true {
		t.Errorf("MatchStream() truncated = %v, want true", got["truncated"])
	}
}

func TestMatchStream_BadMessage(t *testing.T) {
	c := newTestClient(t, nil)
	ctx := context.Background()
	id := putCreatorRule(t, c, "active")

	stream, err := c.MatchStream(ctx)
	if err != nil {
		t.Fatalf("MatchStream() error = %v, want nil", err)
	}
	if err := stream.Send(mustStruct(t, map[string]any{"rule_id": id})); err != nil {
		t.Fatalf("Send(header) error = %v, want nil", err)
	}
	_ = stream.Send(mustStruct(t, map[string]any{"not_a_record": true}))
	_, err = stream.CloseAndRecv()
	wantCode(t, err, codes.InvalidArgument)
}

func TestMatchStream_NoHeader(t *testing.T) {
	c := newTestClient(t, nil)

	stream, err := c.MatchStream(context.Background())
	if err != nil {
		t.Fatalf("MatchStream() error = %v, want nil", err)
	}
	_, err = stream.CloseAndRecv()
	wantCode(t, err, codes.InvalidArgument)
}
