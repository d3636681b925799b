package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"imghost/internal/firewall"
	"imghost/internal/model"
)

type FirewallHandler struct {
	fw *firewall.Firewall
}

func NewFirewallHandler(fw *firewall.Firewall) *FirewallHandler {
	return &FirewallHandler{fw: fw}
}

func (h *FirewallHandler) ListBlocked(c echo.Context) error {
	blocked, err := h.fw.GetBlockedIPs(c.Request().Context())
	if err != nil {
		return databaseError(c, "list blocked ips", err)
	}
	if blocked == nil {
		blocked = []model.BlockedIP{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  blocked,
		"total": len(blocked),
	})
}

func (h *FirewallHandler) BlockIP(c echo.Context) error {
	var req model.BlockIPRequest
	if err := c.Bind(&req); err != nil {
		return badRequestError(c, "Invalid request body")
	}

	req.IPAddress = strings.TrimSpace(req.IPAddress)
	if !ValidateIPAddress(req.IPAddress) {
		return validationError(c, "ip", "must be a valid IPv4 or IPv6 address")
	}
	if req.Hours != nil && *req.Hours <= 0 {
		return validationError(c, "hours", "must be a positive number")
	}

	blocked, err := h.fw.BlockIP(c.Request().Context(), req.IPAddress, SanitizeString(req.Reason, MaxReasonLength), req.Hours)
	if err != nil {
		if errors.Is(err, firewall.ErrInvalidIP) || errors.Is(err, firewall.ErrInvalidDuration) {
			return badRequestError(c, err.Error())
		}
		return databaseError(c, "block ip", err)
	}

	return createdResponse(c, blocked)
}

func (h *FirewallHandler) UnblockIP(c echo.Context) error {
	ip := c.Param("ip")
	if !ValidateIPAddress(ip) {
		return validationError(c, "ip", "must be a valid IPv4 or IPv6 address")
	}

	removed, err := h.fw.UnblockIP(c.Request().Context(), ip)
	if err != nil {
		return databaseError(c, "unblock ip", err)
	}
	if !removed {
		return notFoundError(c, "Blocked IP")
	}
	return successMessage(c, "IP unblocked")
}

// ListEvents returns the newest security events. The limit query parameter is
// clamped by the firewall.
func (h *FirewallHandler) ListEvents(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	events, err := h.fw.GetRecentEvents(c.Request().Context(), limit)
	if err != nil {
		return databaseError(c, "list security events", err)
	}
	if events == nil {
		events = []model.SecurityEvent{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  events,
		"total": len(events),
	})
}

func (h *FirewallHandler) Stats(c echo.Context) error {
	stats, err := h.fw.GetStats(c.Request().Context())
	if err != nil {
		return databaseError(c, "firewall stats", err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *FirewallHandler) Cleanup(c echo.Context) error {
	result, err := h.fw.Cleanup(c.Request().Context())
	if err != nil {
		return databaseError(c, "firewall cleanup", err)
	}
	return c.JSON(http.StatusOK, result)
}

// Matchers lists the user-agent, URI and body pattern tables with their
// categories.
func (h *FirewallHandler) Matchers(c echo.Context) error {
	body := make([]firewall.Matcher, 0, len(firewall.BodyMatchers))
	for _, m := range firewall.BodyMatchers {
		body = append(body, firewall.Matcher{Pattern: m.Pattern.String(), Category: m.Category})
	}
	return c.JSON(http.StatusOK, map[string][]firewall.Matcher{
		"bad_bots": firewall.BadBotMatchers,
		"paths":    firewall.PathMatchers,
		"body":     body,
	})
}
