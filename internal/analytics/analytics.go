// Package analytics provides read access to the visitor event history.
//
// Recording is owned by the tracking platform; Store.AddEvent exists for
// fixtures and backfills only.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/solatis/segmentkeeper/internal/core/db"
	"github.com/solatis/segmentkeeper/internal/types"
)

// Event target class names and event types.
const (
	ClassNameLayout = "layout"
	EventView       = "view"
)

// Counter counts recorded events for a visitor and target.
// Zero matches is a valid answer, not an error.
type Counter interface {
	Count(ctx context.Context, anonymousUserID int64, className string, classPK int64, eventType string) (int, error)
}

// Event is one recorded visitor interaction.
type Event struct {
	CompanyID       int64
	AnonymousUserID int64
	ClassName       string
	ClassPK         int64
	EventType       string
	CreateDate      time.Time
}

// Store implements Counter over the analytics_events table.
type Store struct {
	q *db.Queries
}

// NewStore creates an event store.
func NewStore(q *db.Queries) *Store {
	return &Store{q: q}
}

// Count returns the number of matching events.
func (s *Store) Count(ctx context.Context, anonymousUserID int64, className string, classPK int64, eventType string) (int, error) {
	var count int
	if err := s.q.Get(ctx, "count-analytics-events", &count, anonymousUserID, className, classPK, eventType); err != nil {
		return 0, types.Unavailable("count analytics events", err)
	}
	return count, nil
}

// AddEvent records an event. CreateDate defaults to now.
func (s *Store) AddEvent(ctx context.Context, e Event) error {
	if e.CreateDate.IsZero() {
		e.CreateDate = time.Now()
	}
	_, err := s.q.Exec(ctx, "add-analytics-event",
		e.CompanyID, e.AnonymousUserID, e.ClassName, e.ClassPK, e.EventType,
		e.CreateDate.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to add analytics event: %w", err)
	}
	return nil
}
