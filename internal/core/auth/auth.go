// Package auth provides HMAC-based API key authentication for gRPC services.
//
// An API key belongs to one company; authenticated requests carry that
// company id in their context.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/solatis/segmentkeeper/internal/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// companyIDKey is the context key for the authenticated company id.
const companyIDKey = contextKey("company_id")

// lastUsedThrottle bounds how often last_used_at is written per key.
const lastUsedThrottle = time.Minute

// Queries defines the database operations needed for authentication.
// Implemented by *db.Queries.
type Queries interface {
	Get(ctx context.Context, name string, dest interface{}, args ...interface{}) error
	Exec(ctx context.Context, name string, args ...interface{}) (sql.Result, error)
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
// Holds in-memory secret map for O(1) lookup and queries for key verification.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	logger  *slog.Logger
	now     func() time.Time
}

// NewAuthenticator creates an authenticator with HMAC secrets and query
// interface. A nil logger uses slog.Default().
func NewAuthenticator(secrets map[string][]byte, queries Queries, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		secrets: secrets,
		queries: queries,
		logger:  logger,
		now:     time.Now,
	}
}

type apiKeyRow struct {
	APIKeyID   string         `db:"api_key_id"`
	CompanyID  int64          `db:"company_id"`
	RevokedAt  sql.NullString `db:"revoked_at"`
	LastUsedAt sql.NullString `db:"last_used_at"`
}

// Authenticate validates an API key and returns its company id.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (int64, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return 0, err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return 0, ErrUnknownKey
	}

	// key_hash is unique, so at most one row matches
	var row apiKeyRow
	err = a.queries.Get(ctx, "get-api-key-by-hash", &row, ComputeHMAC(secret, apiKey))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInvalidKey
	}
	if err != nil {
		return 0, types.Unavailable("authenticate", err)
	}

	if row.RevokedAt.Valid {
		return 0, ErrKeyRevoked
	}

	now := a.now().UTC()
	if shouldUpdateLastUsed(row.LastUsedAt, now) {
		if _, err := a.queries.Exec(ctx, "update-last-used", now.Format(time.RFC3339), row.APIKeyID); err != nil {
			a.logger.Warn("failed to record api key use", "api_key_id", row.APIKeyID, "error", err)
		}
	}

	return row.CompanyID, nil
}

// shouldUpdateLastUsed throttles last_used_at writes to reduce write amplification.
func shouldUpdateLastUsed(lastUsed sql.NullString, now time.Time) bool {
	if !lastUsed.Valid {
		return true
	}
	t, err := time.Parse(time.RFC3339, lastUsed.String)
	if err != nil {
		return true
	}
	return now.Sub(t) > lastUsedThrottle
}

// IssuedKey is a newly created API key. Key is only available at creation.
type IssuedKey struct {
	APIKeyID  string
	CompanyID int64
	Name      string
	Key       string
}

// IssueAPIKey creates and stores a key for companyID signed with the
// newest configured secret (highest secret id, UUIDv7 ids sort by time).
func (a *Authenticator) IssueAPIKey(ctx context.Context, companyID int64, name string) (*IssuedKey, error) {
	if len(a.secrets) == 0 {
		return nil, fmt.Errorf("no HMAC secrets configured")
	}
	ids := make([]string, 0, len(a.secrets))
	for id := range a.secrets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	secretID := ids[len(ids)-1]

	key, err := GenerateAPIKey(secretID)
	if err != nil {
		return nil, err
	}

	issued := &IssuedKey{
		APIKeyID:  types.NewUUID(),
		CompanyID: companyID,
		Name:      name,
		Key:       key,
	}
	_, err = a.queries.Exec(ctx, "add-api-key",
		issued.APIKeyID, companyID, name, ComputeHMAC(a.secrets[secretID], key),
		a.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store api key: %w", err)
	}
	return issued, nil
}

// RevokeAPIKey blocks a key. Revoking an already revoked key is a no-op.
func (a *Authenticator) RevokeAPIKey(ctx context.Context, apiKeyID string) error {
	if _, err := a.queries.Exec(ctx, "revoke-api-key", a.now().UTC().Format(time.RFC3339), apiKeyID); err != nil {
		return fmt.Errorf("failed to revoke api key %s: %w", apiKeyID, err)
	}
	return nil
}

// UnaryInterceptor returns gRPC interceptor that authenticates requests.
// Health checks pass through unauthenticated.
func (a *Authenticator) UnaryInterceptor(skipMethods ...string) grpc.UnaryServerInterceptor {
	skip := make(map[string]bool, len(skipMethods))
	for _, m := range skipMethods {
		skip[m] = true
	}

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if skip[info.FullMethod] {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		apiKeys := md.Get("x-api-key")
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		companyID, err := a.Authenticate(ctx, apiKeys[0])
		if err != nil {
			switch {
			case errors.Is(err, ErrKeyRevoked):
				return nil, status.Error(codes.PermissionDenied, err.Error())
			case errors.Is(err, types.ErrResourceUnavailable):
				a.logger.Error("authentication backend failed", "method", info.FullMethod, "error", err)
				return nil, status.Error(codes.Unavailable, "authentication unavailable")
			default:
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
		}

		return handler(WithCompanyID(ctx, companyID), req)
	}
}

// WithCompanyID returns ctx carrying an authenticated company id.
func WithCompanyID(ctx context.Context, companyID int64) context.Context {
	return context.WithValue(ctx, companyIDKey, companyID)
}

// CompanyIDFromContext extracts the authenticated company id.
func CompanyIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(companyIDKey).(int64)
	return id, ok
}
