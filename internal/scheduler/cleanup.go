package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"imghost/internal/config"
	"imghost/internal/logger"
	"imghost/internal/model"
)

// FirewallCleaner purges the firewall tables.
type FirewallCleaner interface {
	Cleanup(ctx context.Context) (*model.FirewallCleanupResult, error)
}

// OperationCleaner purges the R2 operation log.
type OperationCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// CleanupScheduler runs the periodic retention jobs on cron schedules.
type CleanupScheduler struct {
	firewall   FirewallCleaner
	operations OperationCleaner
	cfg        config.SchedulerConfig
	cron       *cron.Cron
	timeout    time.Duration

	mu      sync.Mutex
	running bool
}

func NewCleanupScheduler(fw FirewallCleaner, ops OperationCleaner, cfg config.SchedulerConfig) *CleanupScheduler {
	return &CleanupScheduler{
		firewall:   fw,
		operations: ops,
		cfg:        cfg,
		cron:       cron.New(),
		timeout:    config.ContextTimeout,
	}
}

// Start registers both jobs and starts the cron runner. An invalid schedule
// is returned and nothing is started.
func (s *CleanupScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.FirewallCleanup, s.runFirewallCleanup); err != nil {
		return fmt.Errorf("invalid firewall cleanup schedule %q: %w", s.cfg.FirewallCleanup, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.OperationCleanup, s.runOperationCleanup); err != nil {
		return fmt.Errorf("invalid operation cleanup schedule %q: %w", s.cfg.OperationCleanup, err)
	}

	s.cron.Start()
	s.running = true

	for _, entry := range s.cron.Entries() {
		logger.Scheduler.Info().Time("next_run", entry.Next).Msg("cleanup job scheduled")
	}
	return nil
}

// Stop halts the runner and waits for in-flight jobs.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	logger.Scheduler.Info().Msg("cleanup scheduler stopped")
}

// RunNow runs both jobs synchronously.
func (s *CleanupScheduler) RunNow() {
	s.runFirewallCleanup()
	s.runOperationCleanup()
}

func (s *CleanupScheduler) runFirewallCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.firewall.Cleanup(ctx)
	if err != nil {
		logger.Scheduler.Error().Err(err).Msg("firewall cleanup failed")
		return
	}
	logger.Scheduler.Info().
		Int64("ip_requests", result.IPRequests).
		Int64("security_events", result.SecurityEvents).
		Int64("blocked_ips", result.BlockedIPs).
		Msg("firewall cleanup finished")
}

func (s *CleanupScheduler) runOperationCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	removed, err := s.operations.Cleanup(ctx)
	if err != nil {
		logger.Scheduler.Error().Err(err).Msg("operation cleanup failed")
		return
	}
	logger.Scheduler.Info().Int64("r2_operations", removed).Msg("operation cleanup finished")
}
