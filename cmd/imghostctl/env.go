package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/urfave/cli/v3"

	"imghost/internal/config"
	"imghost/internal/database"
	"imghost/internal/firewall"
	"imghost/internal/logger"
	"imghost/internal/model"
	"imghost/internal/ratelimit"
	"imghost/internal/repository"
	"imghost/internal/repository/memory"
	"imghost/internal/storage"
	"imghost/pkg/cache"
)

// environment holds the components a command operates on.
type environment struct {
	db      *database.DB
	cache   *cache.RedisClient
	fw      *firewall.Firewall
	limiter *ratelimit.Limiter
	router  *storage.Router
}

func openEnvironment(cfg *config.Config) (*environment, error) {
	env := &environment{}

	var (
		security firewall.Store
		ops      ratelimit.Store
		usage    storage.UsageStore
	)
	if cfg.DatabaseDriver == "memory" {
		mem := memory.NewStore()
		security, ops, usage = mem, mem, mem
	} else {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(); err != nil {
			db.Close()
			return nil, err
		}
		env.db = db
		security = repository.NewSecurityRepository(db.DB)
		ops = repository.NewOperationRepository(db.DB)
		usage = repository.NewStorageStatsRepository(db.DB)
	}

	r2, err := storage.NewS3Backend(model.ProviderR2, cfg.Storage.R2)
	if err != nil {
		env.close()
		return nil, err
	}
	s3, err := storage.NewS3Backend(model.ProviderS3, cfg.Storage.S3)
	if err != nil {
		env.close()
		return nil, err
	}

	env.fw = firewall.New(security, cfg.Firewall)

	// Block-list changes must drop the server's cached entries.
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Cache.Warn().Err(err).Msg("redis cache disabled, server block cache may lag")
		} else {
			env.cache = rc
			env.fw.SetCache(rc)
		}
	}

	env.limiter = ratelimit.NewLimiter(ops, cfg.RateLimiter)
	env.router = storage.NewRouter(r2, s3, usage, env.limiter, cfg.Storage)
	return env, nil
}

func (e *environment) close() {
	if e.cache != nil {
		e.cache.Close()
		e.cache = nil
	}
	if e.db != nil {
		e.db.Close()
		e.db = nil
	}
}

// controller opens the environment on first use so that commands which need
// no database, like hash-token, run without one.
type controller struct {
	open func(ctx context.Context) (*environment, error)

	once sync.Once
	env  *environment
	err  error
}

func (c *controller) environment(ctx context.Context) (*environment, error) {
	c.once.Do(func() {
		c.env, c.err = c.open(ctx)
	})
	if c.err != nil {
		return nil, fmt.Errorf("failed to open environment: %w", c.err)
	}
	return c.env, nil
}

func (c *controller) close() {
	if c.env != nil {
		c.env.close()
	}
}

// action adapts a command body that needs the environment.
func (c *controller) action(fn func(ctx context.Context, cmd *cli.Command, env *environment) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		env, err := c.environment(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, cmd, env)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
