package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/solatis/segmentkeeper/internal/types"
)

// Evaluator dispatches rule instances to their variant by rule key.
// Stateless apart from the registry; safe for concurrent use.
type Evaluator struct {
	registry *Registry
	metrics  *Metrics
	logger   *slog.Logger
}

// NewEvaluator creates an evaluator over registry.
func NewEvaluator(registry *Registry, metrics *Metrics, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{registry: registry, metrics: metrics, logger: logger}
}

// Evaluate reports whether user complies with inst.
// Returns types.ErrRuleNotRegistered when no active variant claims inst.RuleKey.
func (e *Evaluator) Evaluate(ctx context.Context, inst *types.RuleInstance, user *types.AnonymousUser) (bool, error) {
	if inst == nil {
		return false, fmt.Errorf("rule instance cannot be nil")
	}
	if user == nil {
		return false, fmt.Errorf("anonymous user cannot be nil")
	}

	rule, err := e.registry.Lookup(inst.RuleKey)
	if err != nil {
		return false, err
	}

	start := time.Now()
	matched, err := rule.Evaluate(ctx, inst, user)
	e.metrics.recordEvaluation(inst.RuleKey, matched, err, time.Since(start))
	if err != nil {
		e.logger.Warn("rule evaluation failed",
			"rule_key", inst.RuleKey,
			"rule_instance_id", inst.RuleInstanceID,
			"anonymous_user_id", user.AnonymousUserID,
			"error", err)
		return false, fmt.Errorf("evaluate %s instance %d: %w", inst.RuleKey, inst.RuleInstanceID, err)
	}
	return matched, nil
}

// MatchesAll reports whether user complies with every instance.
// Short-circuits on the first non-match; an empty list matches nothing.
func (e *Evaluator) MatchesAll(ctx context.Context, instances []*types.RuleInstance, user *types.AnonymousUser) (bool, error) {
	if len(instances) == 0 {
		return false, nil
	}
	for _, inst := range instances {
		matched, err := e.Evaluate(ctx, inst, user)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}
