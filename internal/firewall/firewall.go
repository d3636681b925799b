// Package firewall classifies inbound requests as allowed or denied using the
// block list, user-agent and URI heuristics, and per-IP request windows.
//
// Gating checks fail open: when the store is unreachable the request is
// admitted and the failure logged. Admin mutations return their errors.
package firewall

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"imghost/internal/config"
	"imghost/internal/logger"
	"imghost/internal/metrics"
	"imghost/internal/model"
)

var (
	ErrInvalidIP       = errors.New("invalid IP address")
	ErrInvalidDuration = errors.New("block duration must be a positive number of hours")
)

// Deny reasons returned to clients.
const (
	MsgBlocked     = "IP address is blocked."
	MsgBadBot      = "Access denied."
	MsgSuspicious  = "Suspicious request detected."
	MsgRateLimited = "Too many requests"
	MsgUploadLimit = "Too many uploads"

	AutoBlockReason = "Auto-blocked: too many suspicious requests"
)

// Store persists the block list, event log and request log.
type Store interface {
	IsBlocked(ctx context.Context, ip string, now time.Time) (bool, error)
	GetBlock(ctx context.Context, ip string) (*model.BlockedIP, error)
	UpsertBlock(ctx context.Context, b *model.BlockedIP) error
	DeleteBlock(ctx context.Context, ip string) (bool, error)
	ListBlocked(ctx context.Context, now time.Time) ([]model.BlockedIP, error)
	CountActiveBlocks(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredBlocks(ctx context.Context, now time.Time) (int64, error)

	InsertEvent(ctx context.Context, e *model.SecurityEvent) error
	CountEvents(ctx context.Context, ip string, types []model.EventType, since time.Time) (int64, error)
	CountEventsSince(ctx context.Context, since time.Time) (int64, error)
	RecentEvents(ctx context.Context, limit int) ([]model.SecurityEvent, error)
	EventHistogram(ctx context.Context, since time.Time) (map[model.EventType]int64, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	InsertRequest(ctx context.Context, r *model.IPRequest) error
	CountRequests(ctx context.Context, ip, pathContains string, since time.Time) (int64, error)
	DeleteRequestsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BlockCache is an optional fast path for positive block-list lookups.
// The store remains the source of truth; a ttl of zero means no expiry.
type BlockCache interface {
	IsBlockedIP(ctx context.Context, ip string) (bool, error)
	AddBlockedIP(ctx context.Context, ip string, ttl time.Duration) error
	RemoveBlockedIP(ctx context.Context, ip string) error
}

type Firewall struct {
	store Store
	cache BlockCache
	cfg   config.FirewallConfig
	now   func() time.Time
}

func New(store Store, cfg config.FirewallConfig) *Firewall {
	return &Firewall{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// SetCache enables the block-list cache.
func (f *Firewall) SetCache(c BlockCache) {
	f.cache = c
}

// SetClock replaces the time source.
func (f *Firewall) SetClock(now func() time.Time) {
	f.now = now
}

func (f *Firewall) Config() config.FirewallConfig {
	return f.cfg
}

// Check runs the block list, bad-bot, suspicious-pattern and rate-limit
// checks in order and stops at the first denial. Allowed requests are
// appended to the request log.
func (f *Firewall) Check(ctx context.Context, req *Request) model.Decision {
	if !f.cfg.Enabled {
		return allow()
	}

	if d, denied := f.evaluate(ctx, req); denied {
		return d
	}

	f.trackRequest(ctx, req)
	metrics.FirewallDecisions.WithLabelValues("allow", "").Inc()
	return allow()
}

// CheckUpload runs Check and then applies the hourly upload ceiling. The
// current request is already in the request log when the uploads are counted,
// so the ceiling includes it.
func (f *Firewall) CheckUpload(ctx context.Context, req *Request) model.Decision {
	if !f.cfg.Enabled {
		return allow()
	}

	if d, denied := f.evaluate(ctx, req); denied {
		return d
	}
	f.trackRequest(ctx, req)

	since := f.now().UTC().Add(-f.cfg.UploadWindow)
	count, err := f.store.CountRequests(ctx, req.IP, "upload", since)
	if err != nil {
		f.failOpen("upload rate limit", req.IP, err)
	} else if count >= int64(f.cfg.UploadsPerHour) {
		f.logEvent(ctx, req, model.EventTypeUploadRateLimited,
			fmt.Sprintf("%d uploads in %s", count, f.cfg.UploadWindow))
		return deny(http.StatusTooManyRequests, MsgUploadLimit, metrics.ReasonUploadLimit)
	}

	metrics.FirewallDecisions.WithLabelValues("allow", "").Inc()
	return allow()
}

func (f *Firewall) evaluate(ctx context.Context, req *Request) (model.Decision, bool) {
	if f.IsIPBlocked(ctx, req.IP) {
		return deny(http.StatusForbidden, MsgBlocked, metrics.ReasonBlocked), true
	}

	if f.cfg.BlockBadBots {
		if m, ok := MatchUserAgent(req.UserAgent); ok {
			f.logEvent(ctx, req, model.EventTypeBadBot, matchDetails(m.Category, m.Pattern))
			return deny(http.StatusForbidden, MsgBadBot, metrics.ReasonBadBot), true
		}
	}

	if f.cfg.BlockSuspicious {
		if details, ok := suspiciousDetails(req); ok {
			f.logEvent(ctx, req, model.EventTypeSuspiciousPattern, details)
			f.evaluateAutoBlock(ctx, req.IP)
			return deny(http.StatusForbidden, MsgSuspicious, metrics.ReasonSuspicious), true
		}
	}

	if f.cfg.RateLimitEnabled {
		since := f.now().UTC().Add(-f.cfg.RateWindow)
		count, err := f.store.CountRequests(ctx, req.IP, "", since)
		if err != nil {
			f.failOpen("rate limit", req.IP, err)
		} else if count >= int64(f.cfg.RequestsPerMinute) {
			f.logEvent(ctx, req, model.EventTypeRateLimited,
				fmt.Sprintf("%d requests in %s", count, f.cfg.RateWindow))
			return deny(http.StatusTooManyRequests, MsgRateLimited, metrics.ReasonRateLimited), true
		}
	}

	return model.Decision{}, false
}

// IsIPBlocked reports whether ip has an active block. Expired rows never
// match. Store errors admit the address.
func (f *Firewall) IsIPBlocked(ctx context.Context, ip string) bool {
	if f.cache != nil {
		if hit, err := f.cache.IsBlockedIP(ctx, ip); err == nil && hit {
			return true
		} else if err != nil {
			logger.Firewall.Debug().Err(err).Str("ip", ip).Msg("block cache lookup failed")
		}
	}

	now := f.now().UTC()
	blocked, err := f.store.IsBlocked(ctx, ip, now)
	if err != nil {
		f.failOpen("block list", ip, err)
		return false
	}
	if blocked && f.cache != nil {
		f.warmCache(ctx, ip, now)
	}
	return blocked
}

func (f *Firewall) warmCache(ctx context.Context, ip string, now time.Time) {
	b, err := f.store.GetBlock(ctx, ip)
	if err != nil || b == nil || !b.IsActive(now) {
		return
	}
	f.cacheBlock(ctx, b, now)
}

// cacheBlock caches a positive lookup for at most BlockCacheTTL, so unblocks
// and shortened blocks written by other processes reach this one in bounded
// time.
func (f *Firewall) cacheBlock(ctx context.Context, b *model.BlockedIP, now time.Time) {
	ttl := config.BlockCacheTTL
	if b.BlockedUntil != nil {
		remaining := b.BlockedUntil.Sub(now)
		if remaining <= 0 {
			return
		}
		ttl = min(ttl, remaining)
	}
	if err := f.cache.AddBlockedIP(ctx, b.IPAddress, ttl); err != nil {
		logger.Firewall.Warn().Err(err).Str("ip", b.IPAddress).Msg("failed to cache blocked ip")
	}
}

// evaluateAutoBlock blocks ip once it has accumulated enough auto-block
// events inside the window.
func (f *Firewall) evaluateAutoBlock(ctx context.Context, ip string) {
	since := f.now().UTC().Add(-f.cfg.AutoBlockWindow)
	count, err := f.store.CountEvents(ctx, ip, model.AutoBlockEventTypes, since)
	if err != nil {
		logger.Firewall.Warn().Err(err).Str("ip", ip).Msg("auto-block evaluation skipped")
		return
	}
	if count < int64(f.cfg.AutoBlockThreshold) {
		return
	}

	hours := f.cfg.AutoBlockHours
	if _, err := f.BlockIP(ctx, ip, AutoBlockReason, &hours); err != nil {
		logger.Firewall.Error().Err(err).Str("ip", ip).Msg("auto-block failed")
		return
	}
	logger.Firewall.Warn().Str("ip", ip).Int64("events", count).Int("hours", hours).Msg("ip auto-blocked")
}

// logEvent appends to the security event log. Failures are logged and dropped.
func (f *Firewall) logEvent(ctx context.Context, req *Request, eventType model.EventType, details string) {
	e := &model.SecurityEvent{
		ID:         uuid.New().String(),
		IPAddress:  req.IP,
		EventType:  eventType,
		Details:    details,
		UserAgent:  req.UserAgent,
		RequestURI: req.URI(),
		CreatedAt:  f.now().UTC(),
	}
	if err := f.store.InsertEvent(ctx, e); err != nil {
		logger.Firewall.Warn().Err(err).Str("ip", req.IP).Str("type", string(eventType)).
			Msg("failed to log security event")
	}
	logger.Firewall.Info().Str("ip", req.IP).Str("type", string(eventType)).Str("uri", e.RequestURI).
		Msg("security event")
}

// trackRequest appends to the request log. Failures are logged and dropped.
func (f *Firewall) trackRequest(ctx context.Context, req *Request) {
	r := &model.IPRequest{
		ID:          uuid.New().String(),
		IPAddress:   req.IP,
		RequestPath: req.Path,
		CreatedAt:   f.now().UTC(),
	}
	if err := f.store.InsertRequest(ctx, r); err != nil {
		logger.Firewall.Warn().Err(err).Str("ip", req.IP).Msg("failed to track request")
	}
}

func (f *Firewall) failOpen(check, ip string, err error) {
	metrics.FailOpen.WithLabelValues("firewall").Inc()
	logger.Firewall.Warn().Err(err).Str("check", check).Str("ip", ip).Msg("store unavailable, allowing request")
}

func suspiciousDetails(req *Request) (string, bool) {
	if m, ok := MatchURI(req.URI()); ok {
		return matchDetails(m.Category, m.Pattern), true
	}
	if req.Method == http.MethodPost {
		if m, ok := MatchBody(req.Body); ok {
			return matchDetails(m.Category, m.Pattern.String()), true
		}
	}
	return "", false
}

func matchDetails(category, pattern string) string {
	if pattern == "" {
		return category
	}
	return category + ": " + pattern
}

func allow() model.Decision {
	return model.Decision{Allowed: true}
}

func deny(code int, reason, label string) model.Decision {
	metrics.FirewallDecisions.WithLabelValues("deny", label).Inc()
	return model.Decision{Allowed: false, Reason: reason, Code: code}
}
