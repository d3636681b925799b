package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imghost/internal/config"
	"imghost/internal/firewall"
	"imghost/internal/model"
	"imghost/internal/ratelimit"
	"imghost/internal/repository/memory"
)

type countingFirewall struct {
	calls atomic.Int32
	err   error
}

func (f *countingFirewall) Cleanup(context.Context) (*model.FirewallCleanupResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &model.FirewallCleanupResult{}, nil
}

type countingOperations struct {
	calls atomic.Int32
}

func (o *countingOperations) Cleanup(context.Context) (int64, error) {
	o.calls.Add(1)
	return 0, nil
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s := NewCleanupScheduler(&countingFirewall{}, &countingOperations{}, config.SchedulerConfig{
		FirewallCleanup:  "every now and then",
		OperationCleanup: config.DefaultOperationCleanupSchedule,
	})
	assert.Error(t, s.Start())

	s = NewCleanupScheduler(&countingFirewall{}, &countingOperations{}, config.SchedulerConfig{
		FirewallCleanup:  config.DefaultFirewallCleanupSchedule,
		OperationCleanup: "61 * * * *",
	})
	assert.Error(t, s.Start())
}

func TestStartAndStop(t *testing.T) {
	s := NewCleanupScheduler(&countingFirewall{}, &countingOperations{}, config.SchedulerConfig{
		FirewallCleanup:  config.DefaultFirewallCleanupSchedule,
		OperationCleanup: config.DefaultOperationCleanupSchedule,
	})
	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "second start is a no-op")
	assert.Len(t, s.cron.Entries(), 2)
	s.Stop()
	s.Stop()
}

func TestScheduledJobsRun(t *testing.T) {
	fw := &countingFirewall{}
	ops := &countingOperations{}
	s := NewCleanupScheduler(fw, ops, config.SchedulerConfig{
		FirewallCleanup:  "@every 1s",
		OperationCleanup: "@every 1s",
	})
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return fw.calls.Load() > 0 && ops.calls.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestRunNowSurvivesFailure(t *testing.T) {
	fw := &countingFirewall{err: errors.New("db down")}
	ops := &countingOperations{}
	s := NewCleanupScheduler(fw, ops, config.SchedulerConfig{})

	s.RunNow()
	assert.Equal(t, int32(1), fw.calls.Load())
	assert.Equal(t, int32(1), ops.calls.Load(), "operation cleanup still runs")
}

func TestRunNowPurgesStores(t *testing.T) {
	store := memory.NewStore()
	now := time.Now().UTC()
	ctx := context.Background()

	require.NoError(t, store.InsertRequest(ctx, &model.IPRequest{IPAddress: "192.0.2.1", RequestPath: "/a", CreatedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, store.InsertRequest(ctx, &model.IPRequest{IPAddress: "192.0.2.1", RequestPath: "/b", CreatedAt: now}))
	require.NoError(t, store.InsertOperation(ctx, &model.R2Operation{OperationClass: model.ClassA, OperationType: "PutObject", CreatedAt: now.Add(-61 * 24 * time.Hour)}))

	fw := firewall.New(store, config.DefaultFirewallConfig())
	limiter := ratelimit.NewLimiter(store, config.DefaultRateLimiterConfig())
	NewCleanupScheduler(fw, limiter, config.SchedulerConfig{}).RunNow()

	n, err := store.CountRequests(ctx, "192.0.2.1", "", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.CountOperations(ctx, model.ClassA, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}
