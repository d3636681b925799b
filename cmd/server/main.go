package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"imghost/internal/config"
	"imghost/internal/database"
	"imghost/internal/firewall"
	"imghost/internal/handler"
	"imghost/internal/logger"
	gate "imghost/internal/middleware"
	"imghost/internal/model"
	"imghost/internal/ratelimit"
	"imghost/internal/repository"
	"imghost/internal/repository/memory"
	"imghost/internal/scheduler"
	"imghost/internal/storage"
	"imghost/pkg/cache"
)

// stores groups the persistence ports so either driver can back them.
type stores struct {
	security   firewall.Store
	operations ratelimit.Store
	usage      storage.UsageStore
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.Log)
	log := logger.Log

	var (
		db     *database.DB
		pinger handler.Pinger
		st     stores
	)
	switch cfg.DatabaseDriver {
	case "memory":
		mem := memory.NewStore()
		st = stores{security: mem, operations: mem, usage: mem}
		log.Warn().Msg("using in-memory store, state is lost on restart")
	default:
		var err error
		db, err = database.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("connected to database")

		if err := db.RunMigrations(); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}

		pinger = db
		st = stores{
			security:   repository.NewSecurityRepository(db.DB),
			operations: repository.NewOperationRepository(db.DB),
			usage:      repository.NewStorageStatsRepository(db.DB),
		}
	}

	// Initialize Redis cache
	redisCache, err := cache.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis cache disabled")
		// Continue without cache - graceful degradation
	} else {
		defer redisCache.Close()
		log.Info().Msg("redis cache client initialized")
	}

	fw := firewall.New(st.security, cfg.Firewall)
	if redisCache != nil {
		fw.SetCache(redisCache)
	}

	limiter := ratelimit.NewLimiter(st.operations, cfg.RateLimiter)

	r2, err := storage.NewS3Backend(model.ProviderR2, cfg.Storage.R2)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid r2 configuration")
	}
	s3, err := storage.NewS3Backend(model.ProviderS3, cfg.Storage.S3)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid s3 configuration")
	}
	if !s3.Configured() {
		log.Warn().Msg("s3 backend not configured, uploads fail when r2 cannot take them")
	}
	router := storage.NewRouter(r2, s3, st.usage, limiter, cfg.Storage)

	cleanup := scheduler.NewCleanupScheduler(fw, limiter, cfg.Scheduler)
	if err := cleanup.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start cleanup scheduler")
	}

	healthHandler := handler.NewHealthHandler(pinger, redisCache, cfg.UploadTmpDir)
	firewallHandler := handler.NewFirewallHandler(fw)
	storageHandler := handler.NewStorageHandler(router, limiter, cfg.UploadTmpDir, cfg.API.MaxUploadBytes)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.New().String() },
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.HTTP.Info()
			if v.Error != nil {
				ev = logger.HTTP.Error().Err(v.Error)
			}
			ev.Str("id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("ip", firewall.ClientIP(c.Request())).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())

	allowedOrigins := cfg.API.CORSOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// Security headers middleware
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	// Burst limiter in front of the firewall (per IP, in memory)
	if cfg.API.RateLimitEnabled {
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.API.RateLimitRPS)),
			IdentifierExtractor: func(c echo.Context) (string, error) {
				return firewall.ClientIP(c.Request()), nil
			},
		}))
	}

	e.Use(gate.Firewall(fw, gate.DefaultFirewallConfig(cfg.Firewall.MaxBodyBytes)))

	e.GET("/health", healthHandler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")
	v1.Use(gate.APIRateLimit(redisCache, gate.DefaultAPIRateLimitConfig(cfg.API.AdminPerMinute)))
	v1.Use(gate.AdminAuth(cfg.AdminTokenHash))
	{
		v1.GET("/system/health", healthHandler.SystemHealth)

		fwGroup := v1.Group("/firewall")
		fwGroup.GET("/blocked", firewallHandler.ListBlocked)
		fwGroup.POST("/blocked", firewallHandler.BlockIP)
		fwGroup.DELETE("/blocked/:ip", firewallHandler.UnblockIP)
		fwGroup.GET("/events", firewallHandler.ListEvents)
		fwGroup.GET("/stats", firewallHandler.Stats)
		fwGroup.POST("/cleanup", firewallHandler.Cleanup)
		fwGroup.GET("/matchers", firewallHandler.Matchers)

		storageGroup := v1.Group("/storage")
		storageGroup.GET("/r2/usage", storageHandler.R2Usage)
		storageGroup.GET("/status", storageHandler.Status)
		storageGroup.GET("/operations", storageHandler.Operations)
		storageGroup.GET("/operations/recent", storageHandler.RecentOperations)
		storageGroup.POST("/operations/cleanup", storageHandler.CleanupOperations)
		storageGroup.DELETE("/:provider/*", storageHandler.Delete)

		v1.POST("/images/upload", storageHandler.Upload)
	}

	// Setup graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down")
		cleanup.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
			e.Close()
		}
	}()

	log.Info().Str("port", cfg.Port).Str("version", config.AppVersion).Msg("starting server")
	start := time.Now()
	if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Dur("uptime", time.Since(start)).Msg("server stopped")
}
