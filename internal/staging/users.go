package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/solatis/segmentkeeper/internal/core/db"
	"github.com/solatis/segmentkeeper/internal/types"
)

// UserResolver maps a portable user id to a local user id in a company.
type UserResolver interface {
	// UserID returns the local id, or ok=false when no such user exists.
	UserID(ctx context.Context, uuid string, companyID int64) (id int64, ok bool, err error)
}

// User is a local user account.
type User struct {
	UserID     int64  `db:"user_id"`
	UUID       string `db:"uuid"`
	CompanyID  int64  `db:"company_id"`
	ScreenName string `db:"screen_name"`
}

// DBUserResolver resolves users from the users table.
type DBUserResolver struct {
	q *db.Queries
}

// NewDBUserResolver creates a resolver over q.
func NewDBUserResolver(q *db.Queries) *DBUserResolver {
	return &DBUserResolver{q: q}
}

func (r *DBUserResolver) UserID(ctx context.Context, uuid string, companyID int64) (int64, bool, error) {
	if uuid == "" {
		return 0, false, nil
	}
	var u User
	err := r.q.Get(ctx, "get-user-by-uuid-and-company", &u, uuid, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, types.Unavailable("resolve user", err)
	}
	return u.UserID, true, nil
}

// AddUser inserts a user and returns it with its assigned id. A missing UUID
// is generated.
func (r *DBUserResolver) AddUser(ctx context.Context, u User) (*User, error) {
	if u.UUID == "" {
		u.UUID = types.NewUUID()
	}
	if err := r.q.Get(ctx, "add-user", &u.UserID, u.UUID, u.CompanyID, u.ScreenName); err != nil {
		return nil, fmt.Errorf("failed to add user: %w", err)
	}
	return &u, nil
}
