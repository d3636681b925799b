package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"imghost/internal/config"
	"imghost/pkg/cache"
)

// Pinger is satisfied by *database.DB.
type Pinger interface {
	Health() error
}

// HostResources is a point-in-time view of the machine the service runs on.
type HostResources struct {
	MemoryUsage   float64 `json:"memory_usage"`
	MemoryTotal   uint64  `json:"memory_total"`
	MemoryUsed    uint64  `json:"memory_used"`
	DiskUsage     float64 `json:"disk_usage"`
	DiskTotal     uint64  `json:"disk_total"`
	DiskFree      uint64  `json:"disk_free"`
	DiskPath      string  `json:"disk_path"`
	UptimeSeconds uint64  `json:"uptime_seconds"`
}

type SystemHealthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Database  string        `json:"database"`
	Cache     string        `json:"cache"`
	Uptime    string        `json:"uptime"`
	Host      HostResources `json:"host"`
	Timestamp string        `json:"timestamp"`
}

// HealthHandler holds dependencies for health checks
type HealthHandler struct {
	db        Pinger
	redis     *cache.RedisClient
	tmpDir    string
	startTime time.Time
}

// NewHealthHandler creates a health handler. db may be nil when the service
// runs on the in-memory store.
func NewHealthHandler(db Pinger, redis *cache.RedisClient, tmpDir string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		redis:     redis,
		tmpDir:    tmpDir,
		startTime: time.Now(),
	}
}

// Health is the liveness probe. It fails only when the database is down.
func (h *HealthHandler) Health(c echo.Context) error {
	dbStatus := h.checkDatabase()
	status, httpStatus := overall(dbStatus)

	return c.JSON(httpStatus, map[string]interface{}{
		"status":    status,
		"version":   config.AppVersion,
		"database":  dbStatus,
		"cache":     h.checkCache(),
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// SystemHealth adds memory and upload temp-dir disk figures to the liveness
// fields.
func (h *HealthHandler) SystemHealth(c echo.Context) error {
	dbStatus := h.checkDatabase()
	status, httpStatus := overall(dbStatus)

	return c.JSON(httpStatus, SystemHealthResponse{
		Status:    status,
		Version:   config.AppVersion,
		Database:  dbStatus,
		Cache:     h.checkCache(),
		Uptime:    time.Since(h.startTime).String(),
		Host:      h.hostResources(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) checkDatabase() string {
	if h.db == nil {
		return config.StatusDisabled
	}
	if err := h.db.Health(); err != nil {
		return config.StatusError
	}
	return config.StatusOK
}

func (h *HealthHandler) checkCache() string {
	if h.redis == nil {
		return config.StatusDisabled
	}
	if h.redis.IsReady() {
		return config.StatusOK
	}
	return config.StatusConnecting
}

func (h *HealthHandler) hostResources() HostResources {
	resources := HostResources{DiskPath: h.tmpDir}

	if memStats, err := mem.VirtualMemory(); err == nil {
		resources.MemoryUsage = memStats.UsedPercent
		resources.MemoryTotal = memStats.Total
		resources.MemoryUsed = memStats.Used
	}

	// Disk stats for the upload spool directory
	if diskStats, err := disk.Usage(h.tmpDir); err == nil {
		resources.DiskUsage = diskStats.UsedPercent
		resources.DiskTotal = diskStats.Total
		resources.DiskFree = diskStats.Free
	}

	if uptime, err := host.Uptime(); err == nil {
		resources.UptimeSeconds = uptime
	}

	return resources
}

func overall(dbStatus string) (string, int) {
	if dbStatus == config.StatusError {
		return config.StatusUnhealthy, http.StatusServiceUnavailable
	}
	return config.StatusHealthy, http.StatusOK
}
