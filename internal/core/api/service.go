// Package api provides the gRPC evaluation service for SegmentKeeper.
//
// Messages are google.protobuf.Struct values so that callers need no
// generated stubs; field names are snake_case and ids may be sent as numbers
// or decimal strings.
package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/solatis/segmentkeeper/internal/rules"
	"github.com/solatis/segmentkeeper/internal/types"
	"golang.org/x/text/language"
)

// InstanceReader is the read side of the rule instance store.
type InstanceReader interface {
	Get(ctx context.Context, id int64) (*types.RuleInstance, error)
	ListBySegment(ctx context.Context, userSegmentID int64) ([]*types.RuleInstance, error)
}

// RuleService implements RuleServiceServer.
// Thin orchestration layer delegating to the instance store and the rules
// evaluator.
type RuleService struct {
	instances     InstanceReader
	evaluator     *rules.Evaluator
	registry      *rules.Registry
	defaultLocale language.Tag
	logger        *slog.Logger
}

// NewRuleService creates the service. A nil logger uses slog.Default().
func NewRuleService(instances InstanceReader, evaluator *rules.Evaluator, registry *rules.Registry, defaultLocale language.Tag, logger *slog.Logger) (*RuleService, error) {
	if instances == nil {
		return nil, fmt.Errorf("instances cannot be nil")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleService{
		instances:     instances,
		evaluator:     evaluator,
		registry:      registry,
		defaultLocale: defaultLocale,
		logger:        logger,
	}, nil
}

var _ RuleServiceServer = (*RuleService)(nil)
