package firewall

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"imghost/internal/config"
	"imghost/internal/logger"
	"imghost/internal/model"
)

const DefaultBlockReason = "Manually blocked"

// BlockIP adds or replaces the block-list entry for ip. A nil hours blocks
// permanently.
func (f *Firewall) BlockIP(ctx context.Context, ip, reason string, hours *int) (*model.BlockedIP, error) {
	if net.ParseIP(ip) == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	if hours != nil && *hours <= 0 {
		return nil, ErrInvalidDuration
	}
	if reason == "" {
		reason = DefaultBlockReason
	}

	now := f.now().UTC()
	b := &model.BlockedIP{
		IPAddress: ip,
		Reason:    reason,
		CreatedAt: now,
	}
	if hours != nil {
		until := now.Add(time.Duration(*hours) * time.Hour)
		b.BlockedUntil = &until
	}

	if err := f.store.UpsertBlock(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to block %s: %w", ip, err)
	}

	if f.cache != nil {
		f.cacheBlock(ctx, b, now)
	}

	event := &model.SecurityEvent{
		ID:        uuid.New().String(),
		IPAddress: ip,
		EventType: model.EventTypeIPBlocked,
		Details:   reason,
		CreatedAt: now,
	}
	if err := f.store.InsertEvent(ctx, event); err != nil {
		logger.Firewall.Warn().Err(err).Str("ip", ip).Msg("failed to log block event")
	}

	logger.Firewall.Info().Str("ip", ip).Str("reason", reason).Bool("permanent", b.IsPermanent()).Msg("ip blocked")
	return b, nil
}

// UnblockIP removes ip from the block list and reports whether a row existed.
func (f *Firewall) UnblockIP(ctx context.Context, ip string) (bool, error) {
	removed, err := f.store.DeleteBlock(ctx, ip)
	if err != nil {
		return false, fmt.Errorf("failed to unblock %s: %w", ip, err)
	}

	if f.cache != nil {
		if err := f.cache.RemoveBlockedIP(ctx, ip); err != nil {
			logger.Firewall.Warn().Err(err).Str("ip", ip).Msg("failed to evict blocked ip from cache")
		}
	}

	if removed {
		logger.Firewall.Info().Str("ip", ip).Msg("ip unblocked")
	}
	return removed, nil
}

// GetBlockedIPs lists active entries, newest first.
func (f *Firewall) GetBlockedIPs(ctx context.Context) ([]model.BlockedIP, error) {
	return f.store.ListBlocked(ctx, f.now().UTC())
}

// GetRecentEvents returns the newest events. limit is clamped to
// [1, MaxEventLimit] and defaults to DefaultEventLimit.
func (f *Firewall) GetRecentEvents(ctx context.Context, limit int) ([]model.SecurityEvent, error) {
	if limit <= 0 {
		limit = config.DefaultEventLimit
	}
	if limit > config.MaxEventLimit {
		limit = config.MaxEventLimit
	}
	return f.store.RecentEvents(ctx, limit)
}

// GetStats returns the active block count, today's event count and the
// seven-day event-type histogram.
func (f *Firewall) GetStats(ctx context.Context) (*model.FirewallStats, error) {
	now := f.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	stats := &model.FirewallStats{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := f.store.CountActiveBlocks(gctx, now)
		stats.ActiveBlocks = n
		return err
	})
	g.Go(func() error {
		n, err := f.store.CountEventsSince(gctx, today)
		stats.EventsToday = n
		return err
	})
	g.Go(func() error {
		hist, err := f.store.EventHistogram(gctx, now.Add(-7*24*time.Hour))
		stats.EventsByType = hist
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if stats.EventsByType == nil {
		stats.EventsByType = map[model.EventType]int64{}
	}
	return stats, nil
}

// Cleanup purges request rows older than an hour, events older than thirty
// days and expired blocks.
func (f *Firewall) Cleanup(ctx context.Context) (*model.FirewallCleanupResult, error) {
	now := f.now().UTC()
	result := &model.FirewallCleanupResult{}

	var err error
	if result.IPRequests, err = f.store.DeleteRequestsBefore(ctx, now.Add(-config.IPRequestRetention)); err != nil {
		return nil, fmt.Errorf("failed to purge request log: %w", err)
	}
	if result.SecurityEvents, err = f.store.DeleteEventsBefore(ctx, now.Add(-config.SecurityEventRetention)); err != nil {
		return nil, fmt.Errorf("failed to purge security events: %w", err)
	}
	if result.BlockedIPs, err = f.store.DeleteExpiredBlocks(ctx, now); err != nil {
		return nil, fmt.Errorf("failed to purge expired blocks: %w", err)
	}

	logger.Firewall.Info().
		Int64("ip_requests", result.IPRequests).
		Int64("security_events", result.SecurityEvents).
		Int64("blocked_ips", result.BlockedIPs).
		Msg("firewall cleanup completed")
	return result, nil
}
