package analytics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/solatis/segmentkeeper/internal/analytics"
	"github.com/solatis/segmentkeeper/internal/testutil"
	"github.com/solatis/segmentkeeper/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Count(t *testing.T) {
	ctx := context.Background()
	q := testutil.OpenQueries(t)
	store := analytics.NewStore(q)

	count, err := store.Count(ctx, 7, analytics.ClassNameLayout, 42, analytics.EventView)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "zero matches is a valid answer")

	for i := 0; i < 3; i++ {
		require.NoError(t, store.AddEvent(ctx, analytics.Event{
			CompanyID:       10,
			AnonymousUserID: 7,
			ClassName:       analytics.ClassNameLayout,
			ClassPK:         42,
			EventType:       analytics.EventView,
		}))
	}
	// noise: other visitor, other page, other event type
	require.NoError(t, store.AddEvent(ctx, analytics.Event{AnonymousUserID: 8, ClassName: analytics.ClassNameLayout, ClassPK: 42, EventType: analytics.EventView}))
	require.NoError(t, store.AddEvent(ctx, analytics.Event{AnonymousUserID: 7, ClassName: analytics.ClassNameLayout, ClassPK: 43, EventType: analytics.EventView}))
	require.NoError(t, store.AddEvent(ctx, analytics.Event{AnonymousUserID: 7, ClassName: analytics.ClassNameLayout, ClassPK: 42, EventType: "click"}))

	count, err = store.Count(ctx, 7, analytics.ClassNameLayout, 42, analytics.EventView)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestStore_CountUnavailable(t *testing.T) {
	q := testutil.OpenQueries(t)
	store := analytics.NewStore(q)
	require.NoError(t, q.DB().Close())

	_, err := store.Count(context.Background(), 7, analytics.ClassNameLayout, 42, analytics.EventView)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrResourceUnavailable))
}

func TestCountKey(t *testing.T) {
	assert.Equal(t, "sk:events:7:layout:42:view", analytics.CountKey(7, "layout", 42, "view"))
}

type fixedCounter struct {
	count int
	err   error
	calls int
}

func (f *fixedCounter) Count(context.Context, int64, string, int64, string) (int, error) {
	f.calls++
	return f.count, f.err
}

// An unreachable cache must never change the answer.
func TestCachedCounter_RedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	backing := &fixedCounter{count: 4}
	cached := analytics.NewCachedCounter(backing, client, 0, nil)

	n, err := cached.Count(context.Background(), 7, analytics.ClassNameLayout, 42, analytics.EventView)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, backing.calls)

	backing.err = types.Unavailable("count", errors.New("db down"))
	_, err = cached.Count(context.Background(), 7, analytics.ClassNameLayout, 42, analytics.EventView)
	assert.ErrorIs(t, err, types.ErrResourceUnavailable)
}
