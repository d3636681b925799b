package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"imghost/internal/firewall"
	"imghost/internal/logger"
	"imghost/internal/model"
)

// RequestChecker is the part of the firewall the gate needs.
type RequestChecker interface {
	Check(ctx context.Context, req *firewall.Request) model.Decision
	CheckUpload(ctx context.Context, req *firewall.Request) model.Decision
}

// FirewallConfig controls which requests pass through the gate.
type FirewallConfig struct {
	// MaxBodyBytes caps how much of a POST body is inspected.
	MaxBodyBytes int64
	// Skipper bypasses the gate for matching requests.
	Skipper func(c echo.Context) bool
}

// DefaultFirewallConfig skips the health and metrics endpoints.
func DefaultFirewallConfig(maxBody int64) FirewallConfig {
	return FirewallConfig{
		MaxBodyBytes: maxBody,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/metrics"
		},
	}
}

// Firewall runs every request through the firewall before routing. Requests
// whose path mentions "upload" get the stricter upload check.
func Firewall(fw RequestChecker, config FirewallConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Skipper != nil && config.Skipper(c) {
				return next(c)
			}

			req, err := firewall.RequestFromHTTP(c.Request(), config.MaxBodyBytes)
			if err != nil {
				logger.HTTP.Warn().Err(err).Msg("failed to read request for inspection")
				return next(c)
			}

			var d model.Decision
			if strings.Contains(strings.ToLower(req.Path), "upload") {
				d = fw.CheckUpload(c.Request().Context(), req)
			} else {
				d = fw.Check(c.Request().Context(), req)
			}

			if !d.Allowed {
				return c.JSON(d.Code, map[string]string{"error": d.Reason})
			}
			return next(c)
		}
	}
}
