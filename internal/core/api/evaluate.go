package api

import (
	"context"
	"fmt"

	"github.com/solatis/segmentkeeper/internal/core/auth"
	"github.com/solatis/segmentkeeper/internal/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Evaluate reports whether an anonymous user matches one rule instance of the
// caller's company. Instances of other companies are reported as not found.
func (s *RuleService) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	companyID, ok := auth.CompanyIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Internal, "missing company_id in context")
	}

	instanceID, err := int64Field(req, "rule_instance_id")
	if err != nil {
		return nil, toStatus(err)
	}
	anonymousUserID, err := int64Field(req, "anonymous_user_id")
	if err != nil {
		return nil, toStatus(err)
	}

	inst, err := s.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, toStatus(err)
	}
	if inst.CompanyID != companyID {
		return nil, toStatus(fmt.Errorf("%w: %d", types.ErrRuleInstanceNotFound, instanceID))
	}

	user := &types.AnonymousUser{AnonymousUserID: anonymousUserID, CompanyID: companyID}
	matched, err := s.evaluator.Evaluate(ctx, inst, user)
	if err != nil {
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"matched":          matched,
		"rule_key":         inst.RuleKey,
		"rule_instance_id": fmt.Sprintf("%d", inst.RuleInstanceID),
	})
}

// EvaluateSegment reports whether an anonymous user matches every rule
// instance bound to a user segment. A segment without instances never matches.
func (s *RuleService) EvaluateSegment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	companyID, ok := auth.CompanyIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Internal, "missing company_id in context")
	}

	segmentID, err := int64Field(req, "user_segment_id")
	if err != nil {
		return nil, toStatus(err)
	}
	anonymousUserID, err := int64Field(req, "anonymous_user_id")
	if err != nil {
		return nil, toStatus(err)
	}

	all, err := s.instances.ListBySegment(ctx, segmentID)
	if err != nil {
		return nil, toStatus(err)
	}
	var owned []*types.RuleInstance
	for _, inst := range all {
		if inst.CompanyID == companyID {
			owned = append(owned, inst)
		}
	}

	user := &types.AnonymousUser{AnonymousUserID: anonymousUserID, CompanyID: companyID}
	matched, err := s.evaluator.MatchesAll(ctx, owned, user)
	if err != nil {
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"matched":    matched,
		"rule_count": len(owned),
	})
}
