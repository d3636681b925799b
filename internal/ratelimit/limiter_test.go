package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imghost/internal/config"
	"imghost/internal/model"
	"imghost/internal/repository/memory"
)

var fixedNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestLimiter(cfg config.RateLimiterConfig) (*Limiter, *memory.Store) {
	store := memory.NewStore()
	store.SetClock(func() time.Time { return fixedNow })
	l := NewLimiter(store, cfg)
	l.SetClock(func() time.Time { return fixedNow })
	return l, store
}

func seedOps(t *testing.T, store *memory.Store, class model.OperationClass, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, store.InsertOperation(context.Background(), &model.R2Operation{
			OperationClass: class,
			OperationType:  "PutObject",
			CreatedAt:      at,
		}))
	}
}

type failingStore struct{}

func (failingStore) InsertOperation(context.Context, *model.R2Operation) error {
	return errors.New("connection refused")
}

func (failingStore) CountOperations(context.Context, model.OperationClass, time.Time) (int64, error) {
	return 0, errors.New("connection refused")
}

func (failingStore) RecentOperations(context.Context, int) ([]model.R2Operation, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) DeleteOperationsBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestCanPerformUnderLimits(t *testing.T) {
	l, _ := newTestLimiter(config.DefaultRateLimiterConfig())
	assert.True(t, l.CanPerformClassA(context.Background()))
	assert.True(t, l.CanPerformClassB(context.Background()))
}

func TestCanPerformDailyCeiling(t *testing.T) {
	cfg := config.RateLimiterConfig{ClassADaily: 3, ClassBDaily: 5, ClassAMonthly: 100, ClassBMonthly: 100}
	l, store := newTestLimiter(cfg)
	ctx := context.Background()

	seedOps(t, store, model.ClassA, 2, fixedNow.Add(-time.Hour))
	assert.True(t, l.CanPerformClassA(ctx))

	seedOps(t, store, model.ClassA, 1, fixedNow.Add(-time.Minute))
	assert.False(t, l.CanPerformClassA(ctx), "count equal to the daily ceiling must deny")

	// Class B is tracked independently.
	assert.True(t, l.CanPerformClassB(ctx))
}

func TestCanPerformIgnoresPreviousDay(t *testing.T) {
	cfg := config.RateLimiterConfig{ClassADaily: 2, ClassBDaily: 2, ClassAMonthly: 100, ClassBMonthly: 100}
	l, store := newTestLimiter(cfg)

	yesterday := time.Date(2025, 3, 14, 23, 59, 59, 0, time.UTC)
	seedOps(t, store, model.ClassA, 5, yesterday)

	assert.True(t, l.CanPerformClassA(context.Background()))
}

func TestCanPerformMonthlyCeiling(t *testing.T) {
	cfg := config.RateLimiterConfig{ClassADaily: 100, ClassBDaily: 100, ClassAMonthly: 4, ClassBMonthly: 4}
	l, store := newTestLimiter(cfg)
	ctx := context.Background()

	seedOps(t, store, model.ClassB, 4, time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC))
	assert.False(t, l.CanPerformClassB(ctx))

	// Rows from the previous month do not count.
	seedOps(t, store, model.ClassA, 10, time.Date(2025, 2, 28, 8, 0, 0, 0, time.UTC))
	assert.True(t, l.CanPerformClassA(ctx))
}

func TestCanPerformFailsOpen(t *testing.T) {
	l := NewLimiter(failingStore{}, config.RateLimiterConfig{})
	assert.True(t, l.CanPerformClassA(context.Background()))
	assert.True(t, l.CanPerformClassB(context.Background()))
}

func TestRecordSwallowsErrors(t *testing.T) {
	l := NewLimiter(failingStore{}, config.DefaultRateLimiterConfig())
	assert.NotPanics(t, func() {
		l.RecordClassA(context.Background(), "PutObject", "images/thumb/a.jpg", 100)
		l.RecordClassB(context.Background(), "GetObject", "images/thumb/a.jpg")
	})
}

func TestRecordAndUsageStats(t *testing.T) {
	cfg := config.RateLimiterConfig{ClassADaily: 10, ClassBDaily: 200, ClassAMonthly: 100, ClassBMonthly: 1000}
	l, store := newTestLimiter(cfg)
	ctx := context.Background()

	l.RecordClassA(ctx, "PutObject", "images/thumb/a.jpg", 2048)
	l.RecordClassA(ctx, "PutObject", "images/medium/a.jpg", 4096)
	l.RecordClassB(ctx, "GetObject", "images/thumb/a.jpg")
	seedOps(t, store, model.ClassA, 3, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	stats, err := l.GetUsageStats(ctx)
	require.NoError(t, err)

	assert.Equal(t, model.UsageFigure{Used: 2, Limit: 10, Percentage: 20}, stats.Daily.A)
	assert.Equal(t, model.UsageFigure{Used: 1, Limit: 200, Percentage: 0.5}, stats.Daily.B)
	assert.Equal(t, model.UsageFigure{Used: 5, Limit: 100, Percentage: 5}, stats.Monthly.A)
	assert.Equal(t, model.UsageFigure{Used: 1, Limit: 1000, Percentage: 0.1}, stats.Monthly.B)
}

func TestGetUsageStatsPropagatesErrors(t *testing.T) {
	l := NewLimiter(failingStore{}, config.DefaultRateLimiterConfig())
	_, err := l.GetUsageStats(context.Background())
	assert.Error(t, err)
}

func TestCleanupRetention(t *testing.T) {
	l, store := newTestLimiter(config.DefaultRateLimiterConfig())
	ctx := context.Background()

	seedOps(t, store, model.ClassA, 3, fixedNow.Add(-61*24*time.Hour))
	seedOps(t, store, model.ClassB, 2, fixedNow.Add(-59*24*time.Hour))

	removed, err := l.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	remaining, err := store.CountOperations(ctx, model.ClassB, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), remaining)
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		used, limit int64
		want        float64
	}{
		{0, 100, 0},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{150, 100, 150},
		{5, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percentage(tt.used, tt.limit), "used=%d limit=%d", tt.used, tt.limit)
	}
}

func TestPeriodStarts(t *testing.T) {
	local := time.FixedZone("UTC+9", 9*60*60)
	day, month := periodStarts(time.Date(2025, 4, 1, 3, 0, 0, 0, local))

	// 03:00 on April 1st at UTC+9 is still March 31st in UTC.
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), day)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), month)
}

func TestRecentOperations(t *testing.T) {
	l, store := newTestLimiter(config.DefaultRateLimiterConfig())
	ctx := context.Background()

	seedOps(t, store, model.ClassA, 3, fixedNow.Add(-2*time.Hour))
	seedOps(t, store, model.ClassB, 1, fixedNow.Add(-time.Minute))

	ops, err := l.RecentOperations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, model.ClassB, ops[0].OperationClass, "newest first")

	ops, err = l.RecentOperations(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, ops, 4)

	_, err = NewLimiter(failingStore{}, config.RateLimiterConfig{}).RecentOperations(ctx, 5)
	assert.Error(t, err)
}
