package model

import "time"

type EventType string

const (
	EventTypeBadBot            EventType = "bad_bot"
	EventTypeSuspiciousPattern EventType = "suspicious_pattern"
	EventTypeRateLimited       EventType = "rate_limited"
	EventTypeUploadRateLimited EventType = "upload_rate_limited"
	EventTypeIPBlocked         EventType = "ip_blocked"
)

// AutoBlockEventTypes are the event types counted towards an automatic block.
var AutoBlockEventTypes = []EventType{
	EventTypeSuspiciousPattern,
	EventTypeBadBot,
	EventTypeRateLimited,
}

// BlockedIP is a block list entry. A nil BlockedUntil means the block is permanent.
type BlockedIP struct {
	IPAddress    string     `json:"ip_address"`
	Reason       string     `json:"reason"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsActive reports whether the entry still blocks at the given time.
func (b *BlockedIP) IsActive(now time.Time) bool {
	return b.BlockedUntil == nil || b.BlockedUntil.After(now)
}

func (b *BlockedIP) IsPermanent() bool {
	return b.BlockedUntil == nil
}

type SecurityEvent struct {
	ID         string    `json:"id"`
	IPAddress  string    `json:"ip_address"`
	EventType  EventType `json:"event_type"`
	Details    string    `json:"details,omitempty"`
	UserAgent  string    `json:"user_agent"`
	RequestURI string    `json:"request_uri"`
	CreatedAt  time.Time `json:"created_at"`
}

type IPRequest struct {
	ID          string    `json:"id"`
	IPAddress   string    `json:"ip_address"`
	RequestPath string    `json:"request_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// Decision is the firewall verdict for a single request.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Code    int    `json:"code,omitempty"`
}

type FirewallStats struct {
	ActiveBlocks int64               `json:"active_blocks"`
	EventsToday  int64               `json:"events_today"`
	EventsByType map[EventType]int64 `json:"events_by_type"`
}

type FirewallCleanupResult struct {
	IPRequests     int64 `json:"ip_requests"`
	SecurityEvents int64 `json:"security_events"`
	BlockedIPs     int64 `json:"blocked_ips"`
}

type BlockIPRequest struct {
	IPAddress string `json:"ip"`
	Reason    string `json:"reason,omitempty"`
	Hours     *int   `json:"hours,omitempty"`
}
