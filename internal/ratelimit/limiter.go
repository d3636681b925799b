// Package ratelimit tracks class A (write/list) and class B (read) operations
// against the capacity-limited object store and answers whether another one
// fits under the configured daily and monthly ceilings.
package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"imghost/internal/config"
	"imghost/internal/logger"
	"imghost/internal/metrics"
	"imghost/internal/model"
)

// Store persists the operation log.
type Store interface {
	InsertOperation(ctx context.Context, op *model.R2Operation) error
	CountOperations(ctx context.Context, class model.OperationClass, since time.Time) (int64, error)
	RecentOperations(ctx context.Context, limit int) ([]model.R2Operation, error)
	DeleteOperationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Limiter struct {
	store Store
	cfg   config.RateLimiterConfig
	now   func() time.Time
}

func NewLimiter(store Store, cfg config.RateLimiterConfig) *Limiter {
	return &Limiter{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// SetClock replaces the time source.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Limiter) CanPerformClassA(ctx context.Context) bool {
	return l.canPerform(ctx, model.ClassA, l.cfg.ClassADaily, l.cfg.ClassAMonthly)
}

func (l *Limiter) CanPerformClassB(ctx context.Context) bool {
	return l.canPerform(ctx, model.ClassB, l.cfg.ClassBDaily, l.cfg.ClassBMonthly)
}

// canPerform fails open: a store error admits the operation.
func (l *Limiter) canPerform(ctx context.Context, class model.OperationClass, dailyLimit, monthlyLimit int64) bool {
	dayStart, monthStart := periodStarts(l.now())

	daily, err := l.store.CountOperations(ctx, class, dayStart)
	if err != nil {
		l.logFailOpen(class, err)
		return true
	}
	if daily >= dailyLimit {
		logger.RateLimit.Warn().Str("class", string(class)).Int64("used", daily).Int64("limit", dailyLimit).
			Msg("daily operation ceiling reached")
		return false
	}

	monthly, err := l.store.CountOperations(ctx, class, monthStart)
	if err != nil {
		l.logFailOpen(class, err)
		return true
	}
	if monthly >= monthlyLimit {
		logger.RateLimit.Warn().Str("class", string(class)).Int64("used", monthly).Int64("limit", monthlyLimit).
			Msg("monthly operation ceiling reached")
		return false
	}

	return true
}

func (l *Limiter) logFailOpen(class model.OperationClass, err error) {
	metrics.FailOpen.WithLabelValues("ratelimit").Inc()
	logger.RateLimit.Warn().Err(err).Str("class", string(class)).Msg("operation count unavailable, allowing")
}

func (l *Limiter) RecordClassA(ctx context.Context, opType, key string, size int64) {
	l.record(ctx, model.ClassA, opType, key, size)
}

func (l *Limiter) RecordClassB(ctx context.Context, opType, key string) {
	l.record(ctx, model.ClassB, opType, key, 0)
}

// record is telemetry: failures are logged and dropped.
func (l *Limiter) record(ctx context.Context, class model.OperationClass, opType, key string, size int64) {
	op := &model.R2Operation{
		ID:             uuid.New().String(),
		OperationClass: class,
		OperationType:  opType,
		FileKey:        key,
		FileSize:       size,
		CreatedAt:      l.now().UTC(),
	}
	if err := l.store.InsertOperation(ctx, op); err != nil {
		logger.RateLimit.Warn().Err(err).Str("class", string(class)).Str("type", opType).
			Msg("failed to record operation")
	}
}

// GetUsageStats returns daily and monthly usage for both classes.
func (l *Limiter) GetUsageStats(ctx context.Context) (*model.OperationUsage, error) {
	dayStart, monthStart := periodStarts(l.now())

	var dailyA, dailyB, monthlyA, monthlyB int64
	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int64, class model.OperationClass, since time.Time) {
		g.Go(func() error {
			n, err := l.store.CountOperations(gctx, class, since)
			*dst = n
			return err
		})
	}
	count(&dailyA, model.ClassA, dayStart)
	count(&dailyB, model.ClassB, dayStart)
	count(&monthlyA, model.ClassA, monthStart)
	count(&monthlyB, model.ClassB, monthStart)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &model.OperationUsage{
		Daily: model.ClassUsage{
			A: usageFigure(dailyA, l.cfg.ClassADaily),
			B: usageFigure(dailyB, l.cfg.ClassBDaily),
		},
		Monthly: model.ClassUsage{
			A: usageFigure(monthlyA, l.cfg.ClassAMonthly),
			B: usageFigure(monthlyB, l.cfg.ClassBMonthly),
		},
	}, nil
}

// RecentOperations returns the newest logged operations. limit is clamped the
// same way as the security event listing.
func (l *Limiter) RecentOperations(ctx context.Context, limit int) ([]model.R2Operation, error) {
	if limit <= 0 {
		limit = config.DefaultEventLimit
	}
	return l.store.RecentOperations(ctx, min(limit, config.MaxEventLimit))
}

// Cleanup removes operation rows past the retention window.
func (l *Limiter) Cleanup(ctx context.Context) (int64, error) {
	cutoff := l.now().UTC().Add(-config.OperationRetention)
	removed, err := l.store.DeleteOperationsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logger.RateLimit.Info().Int64("removed", removed).Msg("cleaned up old operations")
	}
	return removed, nil
}

// periodStarts returns the start of the current UTC day and month.
func periodStarts(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return day, month
}

func usageFigure(used, limit int64) model.UsageFigure {
	return model.UsageFigure{
		Used:       used,
		Limit:      limit,
		Percentage: Percentage(used, limit),
	}
}

// Percentage returns used/limit as a percentage rounded to two decimals.
func Percentage(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return math.Round(float64(used)/float64(limit)*10000) / 100
}
