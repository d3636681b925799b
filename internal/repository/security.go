package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"imghost/internal/model"
)

// SecurityRepository stores the block list, the security event log and the
// per-IP request log.
type SecurityRepository struct {
	db *sql.DB
}

func NewSecurityRepository(db *sql.DB) *SecurityRepository {
	return &SecurityRepository{db: db}
}

// Blocked IPs

// IsBlocked applies expiry at read time, so a lapsed row never blocks even
// before cleanup removes it.
func (r *SecurityRepository) IsBlocked(ctx context.Context, ip string, now time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blocked_ips
			WHERE ip_address = $1 AND (blocked_until IS NULL OR blocked_until > $2)
		)
	`, ip, now).Scan(&exists)
	return exists, err
}

func (r *SecurityRepository) GetBlock(ctx context.Context, ip string) (*model.BlockedIP, error) {
	var b model.BlockedIP
	var until sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT ip_address, reason, blocked_until, created_at FROM blocked_ips WHERE ip_address = $1`, ip,
	).Scan(&b.IPAddress, &b.Reason, &until, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if until.Valid {
		b.BlockedUntil = &until.Time
	}
	return &b, nil
}

func (r *SecurityRepository) UpsertBlock(ctx context.Context, b *model.BlockedIP) error {
	query := `
		INSERT INTO blocked_ips (ip_address, reason, blocked_until, created_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
		ON CONFLICT (ip_address) DO UPDATE SET
			reason = EXCLUDED.reason,
			blocked_until = EXCLUDED.blocked_until,
			created_at = EXCLUDED.created_at
	`
	_, err := r.db.ExecContext(ctx, query, b.IPAddress, b.Reason, nullTime(b.BlockedUntil), nullTimeValue(b.CreatedAt))
	return err
}

func (r *SecurityRepository) DeleteBlock(ctx context.Context, ip string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM blocked_ips WHERE ip_address = $1", ip)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func (r *SecurityRepository) ListBlocked(ctx context.Context, now time.Time) ([]model.BlockedIP, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ip_address, reason, blocked_until, created_at
		FROM blocked_ips
		WHERE blocked_until IS NULL OR blocked_until > $1
		ORDER BY created_at DESC
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.BlockedIP
	for rows.Next() {
		var b model.BlockedIP
		var until sql.NullTime
		if err := rows.Scan(&b.IPAddress, &b.Reason, &until, &b.CreatedAt); err != nil {
			return nil, err
		}
		if until.Valid {
			t := until.Time
			b.BlockedUntil = &t
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func (r *SecurityRepository) CountActiveBlocks(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blocked_ips WHERE blocked_until IS NULL OR blocked_until > $1`, now,
	).Scan(&count)
	return count, err
}

func (r *SecurityRepository) DeleteExpiredBlocks(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM blocked_ips WHERE blocked_until IS NOT NULL AND blocked_until <= $1", now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Security events

func (r *SecurityRepository) InsertEvent(ctx context.Context, e *model.SecurityEvent) error {
	query := `
		INSERT INTO security_events (id, ip_address, event_type, details, user_agent, request_uri, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.IPAddress, string(e.EventType),
		sql.NullString{String: e.Details, Valid: e.Details != ""},
		e.UserAgent, e.RequestURI, e.CreatedAt,
	)
	return err
}

func (r *SecurityRepository) CountEvents(ctx context.Context, ip string, types []model.EventType, since time.Time) (int64, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM security_events
		WHERE ip_address = $1 AND event_type = ANY($2) AND created_at >= $3
	`, ip, pq.Array(names), since).Scan(&count)
	return count, err
}

func (r *SecurityRepository) CountEventsSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM security_events WHERE created_at >= $1`, since,
	).Scan(&count)
	return count, err
}

func (r *SecurityRepository) RecentEvents(ctx context.Context, limit int) ([]model.SecurityEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ip_address, event_type, details, user_agent, request_uri, created_at
		FROM security_events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.SecurityEvent
	for rows.Next() {
		var e model.SecurityEvent
		var eventType string
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.IPAddress, &eventType, &details, &e.UserAgent, &e.RequestURI, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EventType = model.EventType(eventType)
		e.Details = details.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SecurityRepository) EventHistogram(ctx context.Context, since time.Time) (map[model.EventType]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*)
		FROM security_events
		WHERE created_at >= $1
		GROUP BY event_type
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hist := make(map[model.EventType]int64)
	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		hist[model.EventType(eventType)] = count
	}
	return hist, rows.Err()
}

func (r *SecurityRepository) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM security_events WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Request log

func (r *SecurityRepository) InsertRequest(ctx context.Context, req *model.IPRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ip_requests (id, ip_address, request_path, created_at) VALUES ($1, $2, $3, $4)`,
		req.ID, req.IPAddress, req.RequestPath, req.CreatedAt,
	)
	return err
}

// CountRequests counts request rows for ip since the given time. An empty
// pathContains matches every path.
func (r *SecurityRepository) CountRequests(ctx context.Context, ip, pathContains string, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM ip_requests WHERE ip_address = $1 AND created_at >= $2`
	args := []interface{}{ip, since}
	if pathContains != "" {
		query += ` AND strpos(request_path, $3) > 0`
		args = append(args, pathContains)
	}

	var count int64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func (r *SecurityRepository) DeleteRequestsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM ip_requests WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeValue(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
