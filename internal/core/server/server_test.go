package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/solatis/segmentkeeper/internal/core/api"
	"github.com/solatis/segmentkeeper/internal/core/auth"
	"github.com/solatis/segmentkeeper/internal/core/config"
	"github.com/solatis/segmentkeeper/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// echoService answers with the authenticated company id.
type echoService struct{}

func (echoService) Evaluate(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	companyID, _ := auth.CompanyIDFromContext(ctx)
	_, hasDeadline := ctx.Deadline()
	return structpb.NewStruct(map[string]interface{}{"company_id": companyID, "deadline": hasDeadline})
}

func (echoService) EvaluateSegment(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return &structpb.Struct{}, nil
}

func (echoService) ListRules(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return &structpb.Struct{}, nil
}

func TestNewGRPCServer_NilDependencies(t *testing.T) {
	_, err := NewGRPCServer(config.Default().API, nil, &auth.Authenticator{}, nil)
	assert.Error(t, err)
	_, err = NewGRPCServer(config.Default().API, echoService{}, nil, nil)
	assert.Error(t, err)
}

func TestGRPCServer(t *testing.T) {
	authenticator := auth.NewAuthenticator(map[string][]byte{
		"0123456789abcdef0123456789abcdef": []byte("testsecret1234567890abcdefghijklmnop"),
	}, testutil.OpenQueries(t), nil)
	issued, err := authenticator.IssueAPIKey(context.Background(), 10, "test")
	require.NoError(t, err)

	srv, err := NewGRPCServer(config.Default().API, echoService{}, authenticator, nil)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()

	t.Run("health needs no key", func(t *testing.T) {
		resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
		require.NoError(t, err)
		assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
	})

	client := api.NewRuleServiceClient(conn)

	t.Run("missing key", func(t *testing.T) {
		_, err := client.Evaluate(ctx, &structpb.Struct{})
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("authenticated with deadline", func(t *testing.T) {
		authed := metadata.AppendToOutgoingContext(ctx, "x-api-key", issued.Key)
		resp, err := client.Evaluate(authed, &structpb.Struct{})
		require.NoError(t, err)
		assert.Equal(t, float64(10), resp.GetFields()["company_id"].GetNumberValue())
		assert.True(t, resp.GetFields()["deadline"].GetBoolValue())
	})

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(shutdownCtx))
	assert.NoError(t, <-done)
}

func TestTimeoutInterceptor(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: api.MethodEvaluate}
	remaining := func(ctx context.Context, _ interface{}) (interface{}, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			return time.Duration(0), nil
		}
		return time.Until(deadline), nil
	}

	got, err := timeoutInterceptor(time.Second)(context.Background(), nil, info, remaining)
	require.NoError(t, err)
	assert.InDelta(t, float64(time.Second), float64(got.(time.Duration)), float64(100*time.Millisecond))

	// a shorter caller deadline is kept
	short, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	got, err = timeoutInterceptor(time.Minute)(short, nil, info, remaining)
	require.NoError(t, err)
	assert.LessOrEqual(t, got.(time.Duration), 100*time.Millisecond)

	got, err = timeoutInterceptor(0)(context.Background(), nil, info, remaining)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), got)
}

func TestMetricsServer(t *testing.T) {
	reg := NewMetricsRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "segmentkeeper_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	m := NewMetricsServer(lis.Addr().String(), reg, nil)
	done := make(chan error, 1)
	go func() { done <- m.Serve(lis) }()

	resp, err := http.Get("http://" + lis.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "segmentkeeper_test_total 1")
	assert.Contains(t, string(body), "go_goroutines")

	require.NoError(t, m.Shutdown(context.Background()))
	assert.NoError(t, <-done)
}
