package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/solatis/segmentkeeper/internal/core/auth"
	"github.com/solatis/segmentkeeper/internal/i18n"
	"github.com/solatis/segmentkeeper/internal/rules"
	"github.com/solatis/segmentkeeper/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// flagRule matches when TypeSettings is "yes"; "down" simulates a failing
// event history.
type flagRule struct {
	rules.BaseRule
}

func newFlagRule() *flagRule {
	return &flagRule{BaseRule: rules.NewBaseRule(rules.BaseConfig{
		Key:      "flag",
		Category: rules.CategoryMisc,
		Icon:     "icon-flag",
		Name: i18n.Text{
			{Tag: language.English, Text: "Flag"},
			{Tag: language.Spanish, Text: "Bandera"},
		},
		Description: i18n.Text{{Tag: language.English, Text: "Matches flagged instances."}},
	})}
}

func (r *flagRule) Evaluate(_ context.Context, inst *types.RuleInstance, _ *types.AnonymousUser) (bool, error) {
	if inst.TypeSettings == "down" {
		return false, types.Unavailable("count", errors.New("connection refused"))
	}
	return inst.TypeSettings == "yes", nil
}

type memInstances struct {
	byID map[int64]*types.RuleInstance
	err  error
}

func (m *memInstances) Get(_ context.Context, id int64) (*types.RuleInstance, error) {
	if m.err != nil {
		return nil, m.err
	}
	inst, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", types.ErrRuleInstanceNotFound, id)
	}
	return inst, nil
}

func (m *memInstances) ListBySegment(_ context.Context, segmentID int64) ([]*types.RuleInstance, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*types.RuleInstance
	for id := int64(1); id <= int64(len(m.byID))+10; id++ {
		if inst, ok := m.byID[id]; ok && inst.UserSegmentID == segmentID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func newTestService(t *testing.T) (*RuleService, *memInstances) {
	t.Helper()
	reg := rules.NewRegistry(nil, nil)
	require.NoError(t, reg.Register(newFlagRule()))
	t.Cleanup(reg.Close)

	store := &memInstances{byID: map[int64]*types.RuleInstance{
		1: {RuleInstanceID: 1, CompanyID: 10, RuleKey: "flag", UserSegmentID: 100, TypeSettings: "yes"},
		2: {RuleInstanceID: 2, CompanyID: 10, RuleKey: "flag", UserSegmentID: 100, TypeSettings: "no"},
		3: {RuleInstanceID: 3, CompanyID: 10, RuleKey: "gone", UserSegmentID: 200},
		4: {RuleInstanceID: 4, CompanyID: 10, RuleKey: "flag", UserSegmentID: 300, TypeSettings: "down"},
		5: {RuleInstanceID: 5, CompanyID: 11, RuleKey: "flag", UserSegmentID: 100, TypeSettings: "yes"},
		6: {RuleInstanceID: 6, CompanyID: 10, RuleKey: "flag", UserSegmentID: 400, TypeSettings: "yes"},
	}}

	svc, err := NewRuleService(store, rules.NewEvaluator(reg, nil, nil), reg, language.AmericanEnglish, nil)
	require.NoError(t, err)
	return svc, store
}

func request(t *testing.T, fields map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func TestNewRuleService_NilDependencies(t *testing.T) {
	reg := rules.NewRegistry(nil, nil)
	ev := rules.NewEvaluator(reg, nil, nil)

	_, err := NewRuleService(nil, ev, reg, language.English, nil)
	assert.Error(t, err)
	_, err = NewRuleService(&memInstances{}, nil, reg, language.English, nil)
	assert.Error(t, err)
	_, err = NewRuleService(&memInstances{}, ev, nil, language.English, nil)
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := auth.WithCompanyID(context.Background(), 10)

	tests := []struct {
		name        string
		fields      map[string]interface{}
		wantCode    codes.Code
		wantMatched bool
	}{
		{name: "match", fields: map[string]interface{}{"rule_instance_id": 1, "anonymous_user_id": 7}, wantMatched: true},
		{name: "no match", fields: map[string]interface{}{"rule_instance_id": 2, "anonymous_user_id": 7}},
		{name: "string ids", fields: map[string]interface{}{"rule_instance_id": "1", "anonymous_user_id": "7"}, wantMatched: true},
		{name: "missing user", fields: map[string]interface{}{"rule_instance_id": 1}, wantCode: codes.InvalidArgument},
		{name: "fractional id", fields: map[string]interface{}{"rule_instance_id": 1.5, "anonymous_user_id": 7}, wantCode: codes.InvalidArgument},
		{name: "negative id", fields: map[string]interface{}{"rule_instance_id": -1, "anonymous_user_id": 7}, wantCode: codes.InvalidArgument},
		{name: "bool id", fields: map[string]interface{}{"rule_instance_id": true, "anonymous_user_id": 7}, wantCode: codes.InvalidArgument},
		{name: "unknown instance", fields: map[string]interface{}{"rule_instance_id": 99, "anonymous_user_id": 7}, wantCode: codes.NotFound},
		{name: "other company", fields: map[string]interface{}{"rule_instance_id": 5, "anonymous_user_id": 7}, wantCode: codes.NotFound},
		{name: "unregistered rule", fields: map[string]interface{}{"rule_instance_id": 3, "anonymous_user_id": 7}, wantCode: codes.FailedPrecondition},
		{name: "event history down", fields: map[string]interface{}{"rule_instance_id": 4, "anonymous_user_id": 7}, wantCode: codes.Unavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.Evaluate(ctx, request(t, tt.fields))
			if tt.wantCode != codes.OK {
				assert.Equal(t, tt.wantCode, status.Code(err), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMatched, resp.GetFields()["matched"].GetBoolValue())
			assert.Equal(t, "flag", resp.GetFields()["rule_key"].GetStringValue())
		})
	}
}

func TestEvaluate_NoCompany(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Evaluate(context.Background(), request(t, map[string]interface{}{"rule_instance_id": 1, "anonymous_user_id": 7}))
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestEvaluate_StoreUnavailable(t *testing.T) {
	svc, store := newTestService(t)
	store.err = types.Unavailable("get rule instance 1", errors.New("database is locked"))

	_, err := svc.Evaluate(auth.WithCompanyID(context.Background(), 10),
		request(t, map[string]interface{}{"rule_instance_id": 1, "anonymous_user_id": 7}))
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestEvaluateSegment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := auth.WithCompanyID(context.Background(), 10)

	tests := []struct {
		name        string
		segmentID   int64
		wantCode    codes.Code
		wantMatched bool
		wantCount   float64
	}{
		{name: "one instance fails", segmentID: 100, wantCount: 2},
		{name: "all match", segmentID: 400, wantMatched: true, wantCount: 1},
		{name: "empty segment", segmentID: 500, wantCount: 0},
		{name: "unregistered rule", segmentID: 200, wantCode: codes.FailedPrecondition},
		{name: "event history down", segmentID: 300, wantCode: codes.Unavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.EvaluateSegment(ctx, request(t, map[string]interface{}{
				"user_segment_id":   tt.segmentID,
				"anonymous_user_id": 7,
			}))
			if tt.wantCode != codes.OK {
				assert.Equal(t, tt.wantCode, status.Code(err), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMatched, resp.GetFields()["matched"].GetBoolValue())
			assert.Equal(t, tt.wantCount, resp.GetFields()["rule_count"].GetNumberValue())
		})
	}
}

func TestListRules(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.ListRules(context.Background(), request(t, map[string]interface{}{"locale": "es-ES"}))
	require.NoError(t, err)

	list := resp.GetFields()["rules"].GetListValue().GetValues()
	require.Len(t, list, 1)
	rule := list[0].GetStructValue().GetFields()
	assert.Equal(t, "flag", rule["rule_key"].GetStringValue())
	assert.Equal(t, "Bandera", rule["name"].GetStringValue())
	assert.Equal(t, "Matches flagged instances.", rule["short_description"].GetStringValue())
	assert.False(t, rule["instantiable"].GetBoolValue())

	resp, err = svc.ListRules(context.Background(), &structpb.Struct{})
	require.NoError(t, err)
	assert.Equal(t, "en-US", resp.GetFields()["locale"].GetStringValue())
}

func TestToStatus(t *testing.T) {
	assert.NoError(t, toStatus(nil))
	assert.Equal(t, codes.DeadlineExceeded, status.Code(toStatus(fmt.Errorf("count: %w", context.DeadlineExceeded))))
	assert.Equal(t, codes.Internal, status.Code(toStatus(errors.New("boom"))))

	already := status.Error(codes.PermissionDenied, "no")
	assert.Equal(t, already, toStatus(already))
}

// The hand-written service descriptor works over a real connection.
func TestRuleService_OverGRPC(t *testing.T) {
	svc, _ := newTestService(t)

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
			return handler(auth.WithCompanyID(ctx, 10), req)
		},
	))
	RegisterRuleServiceServer(server, svc)
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client := NewRuleServiceClient(conn)
	ctx := context.Background()

	resp, err := client.Evaluate(ctx, request(t, map[string]interface{}{"rule_instance_id": 1, "anonymous_user_id": 7}))
	require.NoError(t, err)
	assert.True(t, resp.GetFields()["matched"].GetBoolValue())

	_, err = client.Evaluate(ctx, request(t, map[string]interface{}{"rule_instance_id": 99, "anonymous_user_id": 7}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	resp, err = client.ListRules(ctx, &structpb.Struct{})
	require.NoError(t, err)
	assert.Len(t, resp.GetFields()["rules"].GetListValue().GetValues(), 1)
}
