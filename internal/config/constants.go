package config

import "time"

// Application version
const AppVersion = "1.0.0"

// Health status constants
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusHealthy    = "healthy"
	StatusUnhealthy  = "unhealthy"
	StatusDisabled   = "disabled"
	StatusConnecting = "connecting"
)

// File permission constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// Timeout constants
const (
	ContextTimeout       = 30 * time.Second
	HealthCheckTimeout   = 5 * time.Second
	UploadConnectTimeout = 30 * time.Second
	UploadTotalTimeout   = 120 * time.Second
	ShutdownTimeout      = 10 * time.Second
)

// HTTP surface defaults
const (
	DefaultAPIRateLimitRPS        = 100.0
	DefaultAdminRequestsPerMinute = 100
	DefaultMaxUploadBytes         = 50 << 20
)

// Firewall defaults
const (
	DefaultRequestsPerMinute  = 100
	DefaultUploadsPerHour     = 300
	DefaultAutoBlockThreshold = 10
	DefaultAutoBlockHours     = 24
	DefaultAutoBlockWindow    = time.Hour
	DefaultRateWindow         = time.Minute
	DefaultUploadWindow       = time.Hour
	DefaultMaxBodyBytes       = 1 << 20 // 1 MiB inspected per POST body
)

// Firewall retention
const (
	IPRequestRetention     = time.Hour
	SecurityEventRetention = 30 * 24 * time.Hour
)

// Rate limiter defaults (R2 free tier: 1M class A, 10M class B per month)
const (
	DefaultClassADailyLimit   = 30000
	DefaultClassBDailyLimit   = 300000
	DefaultClassAMonthlyLimit = 900000  // 90% of 1,000,000
	DefaultClassBMonthlyLimit = 9000000 // 90% of 10,000,000
	OperationRetention        = 60 * 24 * time.Hour
)

// Storage defaults
const (
	GiB                     = int64(1 << 30)
	DefaultR2HardLimitBytes = GiB*9 + GiB/2 // 9.5 GiB
	DefaultR2WarningBytes   = 8 * GiB
	DefaultR2Region         = "auto"
	DefaultS3Region         = "us-east-1"
)

// Scheduler defaults
const (
	DefaultFirewallCleanupSchedule  = "@every 1h"
	DefaultOperationCleanupSchedule = "0 3 * * *"
)

// Pagination defaults
const (
	DefaultEventLimit = 50
	MaxEventLimit     = 1000
)

// Redis/cache constants
const (
	RedisMaxRetries     = 5
	RedisDialTimeout    = 3 * time.Second
	RedisCommandTimeout = 500 * time.Millisecond

	// BlockCacheTTL bounds how long a cached block outlives a store change
	// made by another process.
	BlockCacheTTL = 5 * time.Minute
)
