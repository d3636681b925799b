package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"imghost/internal/firewall"
	"imghost/internal/logger"
)

// AdminAuth guards the admin API with a bearer token compared against a
// bcrypt hash. An empty hash locks the admin API entirely.
func AdminAuth(tokenHash string) echo.MiddlewareFunc {
	hash := []byte(tokenHash)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(hash) == 0 {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "admin API is not configured"})
			}

			authHeader := c.Request().Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Authentication required"})
			}

			if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
				logger.HTTP.Warn().Str("ip", firewall.ClientIP(c.Request())).Str("path", c.Path()).
					Msg("rejected admin token")
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid admin token"})
			}

			c.Set("is_admin", true)
			return next(c)
		}
	}
}
