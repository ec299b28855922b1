package rules

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/solatis/segmentkeeper/internal/types"
)

// Registry tracks the active rule variants, keyed by rule key.
//
// Register activates a variant before publishing it, under the write lock, so
// readers never observe a partially registered variant. Lifecycle calls are
// serialized; lookups take the read lock and may run concurrently.
type Registry struct {
	mu      sync.RWMutex
	rules   map[string]Rule
	order   []string // registration order, for reverse teardown
	logger  *slog.Logger
	metrics *Metrics
}

// NewRegistry creates an empty registry. A nil logger uses slog.Default();
// nil metrics record nothing.
func NewRegistry(logger *slog.Logger, metrics *Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		rules:   make(map[string]Rule),
		logger:  logger,
		metrics: metrics,
	}
}

// Register activates rule and makes it resolvable by its key.
// Claiming a key that is already active fails with types.ErrDuplicateRuleKey
// and leaves both variants untouched.
func (r *Registry) Register(rule Rule) error {
	key := rule.RuleKey()
	if key == "" {
		return fmt.Errorf("rule %T has empty rule key", rule)
	}
	if len(key) > types.MaxRuleKeyLength {
		return fmt.Errorf("rule key %q exceeds %d characters", key, types.MaxRuleKeyLength)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.rules[key]; ok {
		return fmt.Errorf("%w: %s (claimed by %T)", types.ErrDuplicateRuleKey, key, existing)
	}

	rule.Activate()
	r.rules[key] = rule
	r.order = append(r.order, key)
	r.metrics.setActive(len(r.rules))

	r.logger.Info("rule registered", "rule_key", key, "category", rule.RuleCategoryKey())
	return nil
}

// RegisterAll registers rules in order, stopping at the first failure.
// Rules registered before the failure stay registered.
func (r *Registry) RegisterAll(rules ...Rule) error {
	for _, rule := range rules {
		if err := r.Register(rule); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes the variant claiming key and deactivates it.
func (r *Registry) Unregister(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[key]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrRuleNotRegistered, key)
	}

	delete(r.rules, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.metrics.setActive(len(r.rules))

	rule.DeActivate()
	r.logger.Info("rule unregistered", "rule_key", key)
	return nil
}

// Close unregisters every variant in reverse registration order.
func (r *Registry) Close() {
	r.mu.RLock()
	keys := append([]string(nil), r.order...)
	r.mu.RUnlock()

	for i := len(keys) - 1; i >= 0; i-- {
		// Concurrent Unregister may have won the race; nothing left to do then.
		_ = r.Unregister(keys[i])
	}
}

// Get returns the variant claiming key.
func (r *Registry) Get(key string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[key]
	return rule, ok
}

// Lookup is Get returning types.ErrRuleNotRegistered for unknown keys.
func (r *Registry) Lookup(key string) (Rule, error) {
	rule, ok := r.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrRuleNotRegistered, key)
	}
	return rule, nil
}

// Keys returns the registered rule keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.rules))
	for k := range r.rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Rules returns the registered variants sorted by key.
func (r *Registry) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].RuleKey() < rules[j].RuleKey()
	})
	return rules
}

// ByCategory returns the variants in category, sorted by key.
func (r *Registry) ByCategory(category string) []Rule {
	var out []Rule
	for _, rule := range r.Rules() {
		if rule.RuleCategoryKey() == category {
			out = append(out, rule)
		}
	}
	return out
}
