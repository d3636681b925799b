package handler

import (
	"net"
	"path"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// Validation constants
const (
	MaxReasonLength = 1000
	MaxIPLength     = 45   // IPv6 max length
	MaxKeyLength    = 1024 // S3 object key limit
)

// ValidationError represents a validation error for a specific field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Message
}

// ValidateStringLength checks if a string is within the maximum length
func ValidateStringLength(value string, maxLength int, fieldName string) error {
	if len(value) > maxLength {
		return &ValidationError{
			Field:   fieldName,
			Message: "exceeds maximum length of " + strconv.Itoa(maxLength),
		}
	}
	return nil
}

// ValidateIPAddress validates a single IPv4 or IPv6 address
func ValidateIPAddress(ip string) bool {
	ip = strings.TrimSpace(ip)
	return len(ip) <= MaxIPLength && net.ParseIP(ip) != nil
}

// ValidateObjectKey rejects keys that are empty, too long, or that would
// escape the bucket prefix once cleaned.
func ValidateObjectKey(key string) error {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return &ValidationError{Field: "key", Message: "is required"}
	}
	if err := ValidateStringLength(key, MaxKeyLength, "key"); err != nil {
		return err
	}
	if path.Clean("/"+key) != "/"+key || strings.Contains(key, "\\") {
		return &ValidationError{Field: "key", Message: "must be a clean relative path"}
	}
	return nil
}

// SanitizeString trims whitespace and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

// queryInt64 reads a non-negative integer query parameter. A missing value
// yields fallback.
func queryInt64(c echo.Context, name string, fallback int64) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, &ValidationError{Field: name, Message: "must be a non-negative integer"}
	}
	return n, nil
}
