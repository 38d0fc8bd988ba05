// Package store persists validated rules.
//
// Every write validates the full condition tree first; a tree that fails
// validation never reaches the table. Condition trees are stored in their
// JSON wire form, timestamps as RFC3339 text.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/solatis/rulematch/internal/core/db"
	"github.com/solatis/rulematch/internal/core/metrics"
	"github.com/solatis/rulematch/internal/rules"
	"github.com/solatis/rulematch/internal/types"
)

// RuleStore is the rule table behind named queries.
type RuleStore struct {
	q      *db.Queries
	logger *slog.Logger
	now    func() time.Time
}

// NewRuleStore creates a store over q.
func NewRuleStore(q *db.Queries, logger *slog.Logger) (*RuleStore, error) {
	if q == nil {
		return nil, fmt.Errorf("queries cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &RuleStore{q: q, logger: logger, now: func() time.Time { return time.Now().UTC() }}, nil
}

type ruleRow struct {
	RuleID    string `db:"rule_id"`
	Name      string `db:"name"`
	Status    string `db:"status"`
	Condition string `db:"condition"`
	Cost      int    `db:"cost"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

// Create validates and inserts rule. An empty ID is assigned a new UUIDv7.
func (s *RuleStore) Create(ctx context.Context, rule *types.Rule) (*rules.ValidatedRule, error) {
	vr, err := s.validate(rule)
	if err != nil {
		return nil, err
	}
	if vr.ID == "" {
		vr.ID = types.NewRuleID()
	}
	now := s.now()
	vr.CreatedAt, vr.UpdatedAt = now, now

	condition, err := encodeCondition(vr)
	if err != nil {
		return nil, err
	}
	_, err = s.q.ExecContext(ctx, "create-rule",
		string(vr.ID), vr.Name, string(vr.Status), condition, vr.Condition.Cost(),
		formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to insert rule %s: %w", vr.ID, err)
	}

	s.logger.Info("rule created", "rule_id", vr.ID, "name", vr.Name, "cost", vr.Condition.Cost())
	return vr, nil
}

// Update replaces an existing rule's name, status and whole tree.
// Returns ErrRuleNotFound if the rule does not exist.
func (s *RuleStore) Update(ctx context.Context, rule *types.Rule) (*rules.ValidatedRule, error) {
	if rule == nil || rule.ID == "" {
		return nil, fmt.Errorf("update requires a rule id")
	}
	vr, err := s.validate(rule)
	if err != nil {
		return nil, err
	}

	condition, err := encodeCondition(vr)
	if err != nil {
		return nil, err
	}
	now := s.now()
	res, err := s.q.ExecContext(ctx, "update-rule",
		vr.Name, string(vr.Status), condition, vr.Condition.Cost(), formatTime(now), string(vr.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to update rule %s: %w", vr.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrRuleNotFound, vr.ID)
	}

	s.logger.Info("rule updated", "rule_id", vr.ID, "cost", vr.Condition.Cost())
	return s.LoadValidated(ctx, vr.ID)
}

// Upsert inserts rule or replaces the stored rule with the same ID.
// CreatedAt is kept on replace.
func (s *RuleStore) Upsert(ctx context.Context, rule *types.Rule) (*rules.ValidatedRule, error) {
	if rule == nil || rule.ID == "" {
		return nil, fmt.Errorf("upsert requires a rule id")
	}
	vr, err := s.validate(rule)
	if err != nil {
		return nil, err
	}

	condition, err := encodeCondition(vr)
	if err != nil {
		return nil, err
	}
	now := s.now()
	_, err = s.q.ExecContext(ctx, "upsert-rule",
		string(vr.ID), vr.Name, string(vr.Status), condition, vr.Condition.Cost(),
		formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert rule %s: %w", vr.ID, err)
	}

	s.logger.Debug("rule upserted", "rule_id", vr.ID, "name", vr.Name)
	return s.LoadValidated(ctx, vr.ID)
}

// Get returns the stored rule.
func (s *RuleStore) Get(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	var row ruleRow
	err := s.q.GetContext(ctx, "get-rule", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rule %s: %w", id, err)
	}
	return row.rule()
}

// List returns stored rules ordered by name. An empty status lists all.
func (s *RuleStore) List(ctx context.Context, status types.RuleStatus) ([]*types.Rule, error) {
	var rows []ruleRow
	var err error
	if status == "" {
		err = s.q.SelectContext(ctx, "list-rules", &rows)
	} else {
		err = s.q.SelectContext(ctx, "list-rules-by-status", &rows, string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	out := make([]*types.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.rule()
		if err != nil {
			// A corrupt row should not hide the rest of the table
			s.logger.Warn("skipping unreadable rule", "rule_id", row.RuleID, "error", err)
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

// Delete removes a rule. Returns ErrRuleNotFound if nothing was deleted.
func (s *RuleStore) Delete(ctx context.Context, id types.RuleID) error {
	res, err := s.q.ExecContext(ctx, "delete-rule", string(id))
	if err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
	}
	s.logger.Info("rule deleted", "rule_id", id)
	return nil
}

// LoadValidated returns the stored rule in evaluable form.
// Stored trees passed validation on write; they are validated again here
// because limits may have tightened since.
func (s *RuleStore) LoadValidated(ctx context.Context, id types.RuleID) (*rules.ValidatedRule, error) {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	vr, err := rules.ValidateRule(rule)
	if err != nil {
		return nil, fmt.Errorf("stored rule %s no longer validates: %w", id, err)
	}
	return vr, nil
}

func (s *RuleStore) validate(rule *types.Rule) (*rules.ValidatedRule, error) {
	vr, err := rules.ValidateRule(rule)
	if err != nil {
		metrics.RulesRejected.WithLabelValues("store").Inc()
		return nil, err
	}
	return vr, nil
}

func encodeCondition(vr *rules.ValidatedRule) (string, error) {
	data, err := json.Marshal(vr.Condition.Condition())
	if err != nil {
		return "", fmt.Errorf("failed to encode condition: %w", err)
	}
	return string(data), nil
}

func (r ruleRow) rule() (*types.Rule, error) {
	var cond types.Condition
	if err := json.Unmarshal([]byte(r.Condition), &cond); err != nil {
		return nil, fmt.Errorf("rule %s: decode condition: %w", r.RuleID, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("rule %s: created_at: %w", r.RuleID, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("rule %s: updated_at: %w", r.RuleID, err)
	}
	return &types.Rule{
		ID:        types.RuleID(r.RuleID),
		Name:      r.Name,
		Condition: cond,
		Status:    types.RuleStatus(r.Status),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
