// Package api provides the gRPC match API for rulematch.
package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/solatis/rulematch/internal/core/config"
	"github.com/solatis/rulematch/internal/rules"
	"github.com/solatis/rulematch/internal/types"
)

// RuleStore is the persistence the service needs. *store.RuleStore satisfies it.
type RuleStore interface {
	Create(ctx context.Context, rule *types.Rule) (*rules.ValidatedRule, error)
	Upsert(ctx context.Context, rule *types.Rule) (*rules.ValidatedRule, error)
	Get(ctx context.Context, id types.RuleID) (*types.Rule, error)
	List(ctx context.Context, status types.RuleStatus) ([]*types.Rule, error)
	Delete(ctx context.Context, id types.RuleID) error
	LoadValidated(ctx context.Context, id types.RuleID) (*rules.ValidatedRule, error)
}

// MatchAPIService implements MatchAPIServer.
// Thin orchestration layer delegating to the store and the rules engine.
type MatchAPIService struct {
	store  RuleStore
	engine *rules.Engine
	cfg    *config.MatchAPIConfig
	logger *slog.Logger
}

var _ MatchAPIServer = (*MatchAPIService)(nil)

// NewMatchAPIService creates service instance with dependencies.
func NewMatchAPIService(store RuleStore, engine *rules.Engine, cfg *config.MatchAPIConfig, logger *slog.Logger) (*MatchAPIService, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &MatchAPIService{
		store:  store,
		engine: engine,
		cfg:    cfg,
		logger: logger,
	}, nil
}
