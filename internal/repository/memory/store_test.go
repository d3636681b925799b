package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imghost/internal/model"
)

func TestBlockExpiryAtReadTime(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	require.NoError(t, s.UpsertBlock(ctx, &model.BlockedIP{IPAddress: "10.0.0.1", BlockedUntil: &past}))
	require.NoError(t, s.UpsertBlock(ctx, &model.BlockedIP{IPAddress: "10.0.0.2", BlockedUntil: &future}))
	require.NoError(t, s.UpsertBlock(ctx, &model.BlockedIP{IPAddress: "10.0.0.3"}))

	for ip, want := range map[string]bool{"10.0.0.1": false, "10.0.0.2": true, "10.0.0.3": true, "10.0.0.4": false} {
		got, err := s.IsBlocked(ctx, ip, now)
		require.NoError(t, err)
		assert.Equal(t, want, got, ip)
	}

	active, err := s.CountActiveBlocks(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), active)

	removed, err := s.DeleteExpiredBlocks(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestUsageRoundTripFloorsAtZero(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.TrackUsage(ctx, model.ProviderR2, 500, 2))
	require.NoError(t, s.TrackUsage(ctx, model.ProviderR2, 1000, 1))
	require.NoError(t, s.ReduceUsage(ctx, model.ProviderR2, 1000, 1))

	st, err := s.GetStats(ctx, model.ProviderR2)
	require.NoError(t, err)
	assert.Equal(t, int64(500), st.TotalBytes)
	assert.Equal(t, int64(2), st.FileCount)

	require.NoError(t, s.ReduceUsage(ctx, model.ProviderR2, 5000, 10))
	st, err = s.GetStats(ctx, model.ProviderR2)
	require.NoError(t, err)
	assert.Zero(t, st.TotalBytes)
	assert.Zero(t, st.FileCount)
}

func TestCountRequestsPathFilter(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now()

	for _, p := range []string{"/api/v1/images/upload", "/gallery", "/upload/avatar"} {
		require.NoError(t, s.InsertRequest(ctx, &model.IPRequest{IPAddress: "1.2.3.4", RequestPath: p, CreatedAt: now}))
	}
	require.NoError(t, s.InsertRequest(ctx, &model.IPRequest{IPAddress: "5.6.7.8", RequestPath: "/upload", CreatedAt: now}))

	all, err := s.CountRequests(ctx, "1.2.3.4", "", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), all)

	uploads, err := s.CountRequests(ctx, "1.2.3.4", "upload", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), uploads)
}

func TestRecentEventsNewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertEvent(ctx, &model.SecurityEvent{
			IPAddress: "1.1.1.1",
			EventType: model.EventTypeBadBot,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	events, err := s.RecentEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, base.Add(4*time.Minute), events[0].CreatedAt)
	assert.Equal(t, base.Add(3*time.Minute), events[1].CreatedAt)
}
