// internal/rules/engine.go
package rules

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/solatis/rulematch/internal/core/metrics"
	"github.com/solatis/rulematch/internal/types"
)

/*
 * Matching service.
 *
 * Engine applies one validated rule to a stream of records pulled from a
 * RecordSource and returns the identifiers of the records that match.
 *
 * Match workflow:
 *   1. Pull a record, tag it with its input position, submit to the pool
 *   2. Workers evaluate against the shared, read-only condition tree
 *   3. A collector gathers outcomes and raises a stop flag once the limit
 *      is reached, cancelling the context passed to the source
 *   4. Pulling stops on EOF, source error, cancellation or the stop flag;
 *      already-submitted records are drained
 *   5. Outcomes are sorted by input position and cut at the limit
 *
 * Because every record before the last submitted one has been evaluated by
 * the time the pool drains, the first N matches by input position are exact
 * even though workers finish out of order.
 *
 * Per-record evaluation errors are collected and never abort the pass.
 */

const (
	// DefaultQueueDepth bounds records pulled ahead of evaluation.
	DefaultQueueDepth = 256
)

// Engine runs match passes. Safe for concurrent use; each Match call owns its
// own worker pool.
type Engine struct {
	workers    int
	queueDepth int
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets evaluation parallelism. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.workers = n
	}
}

// WithQueueDepth sets how many records may be pulled ahead of evaluation.
func WithQueueDepth(n int) Option {
	return func(e *Engine) {
		if n < 0 {
			n = 0
		}
		e.queueDepth = n
	}
}

// WithLogger sets the logger for pass summaries.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine. Defaults to GOMAXPROCS workers.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		workers:    runtime.GOMAXPROCS(0),
		queueDepth: DefaultQueueDepth,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MatchOption configures a single pass.
type MatchOption func(*matchOptions)

type matchOptions struct {
	limit int
}

// WithLimit stops the pass once n records have matched. The result holds the
// first n matches in input order. Zero means no limit.
func WithLimit(n int) MatchOption {
	return func(o *matchOptions) {
		if n < 0 {
			n = 0
		}
		o.limit = n
	}
}

// RecordError is a record whose evaluation failed.
type RecordError struct {
	Index    int // position in the source, from 0
	RecordID types.RecordID
	Err      error
}

// Error implements error.
func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d (%s): %v", e.Index, e.RecordID, e.Err)
}

// Unwrap returns the evaluation error.
func (e *RecordError) Unwrap() error { return e.Err }

// MatchResult is the outcome of one pass. Matched and Errors are in input order.
type MatchResult struct {
	RuleID    types.RuleID
	Matched   []types.RecordID
	Errors    []*RecordError
	Evaluated int
	// Truncated reports that the limit ended the pass early: records were
	// left unread, or evaluated but dropped past the last reported match.
	Truncated bool
}

type matchJob struct {
	seq int
	rec types.Record
}

type matchOutcome struct {
	seq     int
	id      types.RecordID
	matched bool
	err     error
}

// MatchRule validates rule and matches it against src.
func (e *Engine) MatchRule(ctx context.Context, rule *types.Rule, src RecordSource, opts ...MatchOption) (*MatchResult, error) {
	vr, err := ValidateRule(rule)
	if err != nil {
		return nil, err
	}
	return e.Match(ctx, vr, src, opts...)
}

// Match evaluates rule against every record from src.
//
// On a source error or cancellation the partial result gathered so far is
// returned together with the error.
func (e *Engine) Match(ctx context.Context, rule *ValidatedRule, src RecordSource, opts ...MatchOption) (*MatchResult, error) {
	if rule == nil || rule.Condition == nil {
		return nil, errors.New("rule is not validated")
	}
	if src == nil {
		return nil, errors.New("record source cannot be nil")
	}

	var mo matchOptions
	for _, opt := range opts {
		opt(&mo)
	}

	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cond := rule.Condition
	pool := newWorkerPool(ctx, e.workers, e.queueDepth, func(j matchJob) matchOutcome {
		matched, err := Evaluate(cond, j.rec)
		return matchOutcome{seq: j.seq, id: j.rec.ID, matched: matched, err: err}
	})

	// pullCtx ends the producer once the limit is reached, including a
	// source blocked in Next; workers keep ctx and finish submitted records.
	pullCtx, stopPull := context.WithCancel(ctx)
	defer stopPull()

	var stop atomic.Bool
	collected := make(chan []matchOutcome, 1)
	go func() {
		var outcomes []matchOutcome
		matches := 0
		for o := range pool.Results() {
			outcomes = append(outcomes, o)
			if o.matched {
				matches++
				if mo.limit > 0 && matches >= mo.limit && !stop.Load() {
					stop.Store(true)
					stopPull()
				}
			}
		}
		collected <- outcomes
	}()

	seq := 0
	truncated := false
	var passErr error
	for {
		if stop.Load() {
			truncated = true
			break
		}
		rec, err := src.Next(pullCtx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if stop.Load() && ctx.Err() == nil {
				truncated = true
				break
			}
			passErr = fmt.Errorf("read record %d: %w", seq, err)
			break
		}
		if !pool.Submit(pullCtx, matchJob{seq: seq, rec: rec}) {
			if stop.Load() && ctx.Err() == nil {
				truncated = true
				break
			}
			passErr = ctx.Err()
			break
		}
		seq++
	}

	pool.Drain()
	outcomes := <-collected

	result := buildResult(rule.ID, outcomes, mo.limit)
	// Records evaluated past the last reported match were cut by the limit too
	result.Truncated = truncated || result.Evaluated < len(outcomes)

	elapsed := time.Since(start)
	metrics.RecordsEvaluated.Add(float64(result.Evaluated))
	metrics.RecordsMatched.Add(float64(len(result.Matched)))
	metrics.EvaluationErrors.Add(float64(len(result.Errors)))
	metrics.MatchDuration.Observe(float64(elapsed.Milliseconds()))

	e.logger.Debug("match pass finished",
		"rule_id", rule.ID,
		"evaluated", result.Evaluated,
		"matched", len(result.Matched),
		"errors", len(result.Errors),
		"truncated", result.Truncated,
		"duration", elapsed)

	return result, passErr
}

// buildResult orders outcomes by input position and applies the limit.
func buildResult(id types.RuleID, outcomes []matchOutcome, limit int) *MatchResult {
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].seq < outcomes[j].seq })

	result := &MatchResult{RuleID: id, Matched: []types.RecordID{}}
	for _, o := range outcomes {
		result.Evaluated++
		if o.err != nil {
			result.Errors = append(result.Errors, &RecordError{Index: o.seq, RecordID: o.id, Err: o.err})
			continue
		}
		if o.matched {
			result.Matched = append(result.Matched, o.id)
			if limit > 0 && len(result.Matched) == limit {
				break
			}
		}
	}
	return result
}
