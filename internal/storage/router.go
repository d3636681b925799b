// Package storage routes image variants between a capacity-limited R2 bucket
// and an unlimited S3-compatible bucket and keeps per-provider usage counters.
package storage

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"imghost/internal/config"
	"imghost/internal/logger"
	"imghost/internal/metrics"
	"imghost/internal/model"
	"imghost/internal/ratelimit"
)

const opPutObject = "PutObject"

// UsageStore keeps the running per-provider byte and file counters.
type UsageStore interface {
	GetStats(ctx context.Context, provider model.Provider) (*model.StorageStats, error)
	ListStats(ctx context.Context) ([]model.StorageStats, error)
	TrackUsage(ctx context.Context, provider model.Provider, bytes, files int64) error
	ReduceUsage(ctx context.Context, provider model.Provider, bytes, files int64) error
}

// OperationLimiter gates and records class A operations against R2.
type OperationLimiter interface {
	CanPerformClassA(ctx context.Context) bool
	RecordClassA(ctx context.Context, opType, key string, size int64)
	GetUsageStats(ctx context.Context) (*model.OperationUsage, error)
}

type Router struct {
	r2      Backend
	s3      Backend
	usage   UsageStore
	limiter OperationLimiter
	cfg     config.StorageConfig
}

func NewRouter(r2, s3 Backend, usage UsageStore, limiter OperationLimiter, cfg config.StorageConfig) *Router {
	return &Router{
		r2:      r2,
		s3:      s3,
		usage:   usage,
		limiter: limiter,
		cfg:     cfg,
	}
}

// DetermineStorage picks the backend for a variant. Large and original
// variants always go to S3; thumb and medium go to R2 when it has room and
// operation budget.
func (r *Router) DetermineStorage(ctx context.Context, sizeType model.SizeType, fileSize int64) model.Provider {
	switch sizeType {
	case model.SizeOriginal, model.SizeLarge:
		return model.ProviderS3
	case model.SizeThumb, model.SizeMedium:
		if r.CanUploadToR2(ctx, fileSize) {
			return model.ProviderR2
		}
	}
	return model.ProviderS3
}

// CanUploadToR2 requires R2 to be enabled and configured, tracked usage plus
// fileSize to stay strictly under the hard limit, and the class A check to pass.
func (r *Router) CanUploadToR2(ctx context.Context, fileSize int64) bool {
	if !r.cfg.R2Enabled || r.r2 == nil || !r.r2.Configured() {
		return false
	}

	stats, err := r.usage.GetStats(ctx, model.ProviderR2)
	if err != nil {
		logger.Storage.Warn().Err(err).Msg("r2 usage unavailable, routing to s3")
		return false
	}
	if stats.TotalBytes+fileSize >= r.cfg.R2HardLimitBytes {
		logger.Storage.Debug().Int64("used", stats.TotalBytes).Int64("size", fileSize).Msg("r2 hard limit reached")
		return false
	}

	return r.limiter == nil || r.limiter.CanPerformClassA(ctx)
}

// Upload reads filePath and stores it under key.
func (r *Router) Upload(ctx context.Context, filePath, key, contentType string, sizeType model.SizeType) (*model.UploadResult, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	return r.UploadBytes(ctx, key, data, contentType, sizeType)
}

// UploadBytes stores data on the routed backend. A failed R2 attempt falls
// through to S3 once; an S3 failure is returned wrapped in ErrUploadFailed.
func (r *Router) UploadBytes(ctx context.Context, key string, data []byte, contentType string, sizeType model.SizeType) (*model.UploadResult, error) {
	size := int64(len(data))
	fellBack := false

	if r.DetermineStorage(ctx, sizeType, size) == model.ProviderR2 {
		err := r.r2.Put(ctx, key, data, contentType)
		if err == nil {
			metrics.StorageUploads.WithLabelValues(string(model.ProviderR2), "success").Inc()
			r.trackUploaded(ctx, model.ProviderR2, size)
			if r.limiter != nil {
				r.limiter.RecordClassA(ctx, opPutObject, key, size)
			}
			return &model.UploadResult{
				Provider: model.ProviderR2,
				URL:      r.r2.PublicURL(key),
				Key:      key,
				Size:     size,
			}, nil
		}

		metrics.StorageUploads.WithLabelValues(string(model.ProviderR2), "error").Inc()
		metrics.StorageFallbacks.Inc()
		logger.Storage.Warn().Err(err).Str("key", key).Msg("r2 upload failed, falling back to s3")
		fellBack = true
	}

	if r.s3 == nil || !r.s3.Configured() {
		return nil, fmt.Errorf("%w: %s: %w", ErrUploadFailed, model.ProviderS3, ErrBackendNotConfigured)
	}

	if err := r.s3.Put(ctx, key, data, contentType); err != nil {
		metrics.StorageUploads.WithLabelValues(string(model.ProviderS3), "error").Inc()
		logger.Storage.Error().Err(err).Str("key", key).Msg("s3 upload failed")
		return nil, fmt.Errorf("%w: %s: %w", ErrUploadFailed, model.ProviderS3, err)
	}

	metrics.StorageUploads.WithLabelValues(string(model.ProviderS3), "success").Inc()
	r.trackUploaded(ctx, model.ProviderS3, size)
	return &model.UploadResult{
		Provider: model.ProviderS3,
		URL:      r.s3.PublicURL(key),
		Key:      key,
		Size:     size,
		FellBack: fellBack,
	}, nil
}

// trackUploaded records a completed upload. The object is already stored, so
// a counter failure is logged rather than returned.
func (r *Router) trackUploaded(ctx context.Context, provider model.Provider, size int64) {
	if err := r.usage.TrackUsage(ctx, provider, size, 1); err != nil {
		logger.Storage.Error().Err(err).Str("provider", string(provider)).Int64("size", size).
			Msg("failed to track usage, counter is now behind")
	}
}

func (r *Router) TrackUsage(ctx context.Context, provider model.Provider, bytes, files int64) error {
	if !provider.Valid() {
		return fmt.Errorf("unknown provider %q", provider)
	}
	return r.usage.TrackUsage(ctx, provider, bytes, files)
}

// ReduceUsage subtracts from the provider counters, flooring at zero.
func (r *Router) ReduceUsage(ctx context.Context, provider model.Provider, bytes, files int64) error {
	if !provider.Valid() {
		return fmt.Errorf("unknown provider %q", provider)
	}
	return r.usage.ReduceUsage(ctx, provider, bytes, files)
}

func (r *Router) GetR2Usage(ctx context.Context) (*model.R2Usage, error) {
	stats, err := r.usage.GetStats(ctx, model.ProviderR2)
	if err != nil {
		return nil, err
	}

	limit := r.cfg.R2HardLimitBytes
	return &model.R2Usage{
		Used:       stats.TotalBytes,
		Limit:      limit,
		Available:  max(limit-stats.TotalBytes, 0),
		Percentage: ratelimit.Percentage(stats.TotalBytes, limit),
		FileCount:  stats.FileCount,
		IsWarning:  stats.TotalBytes >= r.cfg.R2WarningBytes,
		IsFull:     stats.TotalBytes >= limit,
	}, nil
}

// GetStorageStatus aggregates usage for both providers, the operation budget
// and the routing each size variant would get right now.
func (r *Router) GetStorageStatus(ctx context.Context) (*model.StorageStatus, error) {
	status := &model.StorageStatus{
		R2Enabled:    r.cfg.R2Enabled,
		R2Configured: r.r2 != nil && r.r2.Configured(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		usage, err := r.GetR2Usage(gctx)
		status.R2 = usage
		return err
	})
	g.Go(func() error {
		stats, err := r.usage.GetStats(gctx, model.ProviderS3)
		if stats != nil {
			status.S3 = *stats
		}
		return err
	})
	if r.limiter != nil {
		g.Go(func() error {
			ops, err := r.limiter.GetUsageStats(gctx)
			status.Operations = ops
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	status.Routing = make(map[model.SizeType]model.Provider, len(model.SizeTypes))
	for _, sizeType := range model.SizeTypes {
		status.Routing[sizeType] = r.DetermineStorage(ctx, sizeType, 0)
	}
	return status, nil
}

func (r *Router) DeleteFromR2(ctx context.Context, key string) error {
	return r.deleteFrom(ctx, r.r2, key)
}

func (r *Router) DeleteFromS3(ctx context.Context, key string) error {
	return r.deleteFrom(ctx, r.s3, key)
}

// Delete removes key from the named provider.
func (r *Router) Delete(ctx context.Context, provider model.Provider, key string) error {
	switch provider {
	case model.ProviderR2:
		return r.DeleteFromR2(ctx, key)
	case model.ProviderS3:
		return r.DeleteFromS3(ctx, key)
	}
	return fmt.Errorf("unknown provider %q", provider)
}

func (r *Router) deleteFrom(ctx context.Context, b Backend, key string) error {
	if b == nil || !b.Configured() {
		return ErrBackendNotConfigured
	}
	if err := b.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete %s from %s: %w", key, b.Provider(), err)
	}
	logger.Storage.Info().Str("provider", string(b.Provider())).Str("key", key).Msg("object deleted")
	return nil
}
