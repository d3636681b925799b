// Package memory is an in-process implementation of the persistence ports.
// It backs the component tests and the DATABASE_DRIVER=memory development mode.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"imghost/internal/model"
)

type Store struct {
	mu         sync.Mutex
	blocked    map[string]model.BlockedIP
	events     []model.SecurityEvent
	requests   []model.IPRequest
	operations []model.R2Operation
	stats      map[model.Provider]model.StorageStats
	now        func() time.Time
}

func NewStore() *Store {
	return &Store{
		blocked: make(map[string]model.BlockedIP),
		stats:   make(map[model.Provider]model.StorageStats),
		now:     time.Now,
	}
}

// SetClock replaces the time source used for created_at/updated_at defaults.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Block list

func (s *Store) IsBlocked(_ context.Context, ip string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocked[ip]
	return ok && b.IsActive(now), nil
}

func (s *Store) GetBlock(_ context.Context, ip string) (*model.BlockedIP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocked[ip]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s *Store) UpsertBlock(_ context.Context, b *model.BlockedIP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := *b
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	s.blocked[row.IPAddress] = row
	return nil
}

func (s *Store) DeleteBlock(_ context.Context, ip string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocked[ip]; !ok {
		return false, nil
	}
	delete(s.blocked, ip)
	return true, nil
}

func (s *Store) ListBlocked(_ context.Context, now time.Time) ([]model.BlockedIP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.BlockedIP
	for _, b := range s.blocked {
		if b.IsActive(now) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CountActiveBlocks(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, b := range s.blocked {
		if b.IsActive(now) {
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteExpiredBlocks(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for ip, b := range s.blocked {
		if !b.IsActive(now) {
			delete(s.blocked, ip)
			n++
		}
	}
	return n, nil
}

// Security events

func (s *Store) InsertEvent(_ context.Context, e *model.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := *e
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	s.events = append(s.events, row)
	return nil
}

func (s *Store) CountEvents(_ context.Context, ip string, types []model.EventType, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.events {
		if e.IPAddress == ip && !e.CreatedAt.Before(since) && containsType(types, e.EventType) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountEventsSince(_ context.Context, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.events {
		if !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) RecentEvents(_ context.Context, limit int) ([]model.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.SecurityEvent, len(s.events))
	copy(out, s.events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) EventHistogram(_ context.Context, since time.Time) (map[model.EventType]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hist := make(map[model.EventType]int64)
	for _, e := range s.events {
		if !e.CreatedAt.Before(since) {
			hist[e.EventType]++
		}
	}
	return hist, nil
}

func (s *Store) DeleteEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var n int64
	for _, e := range s.events {
		if e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return n, nil
}

// Request log

func (s *Store) InsertRequest(_ context.Context, r *model.IPRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := *r
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	s.requests = append(s.requests, row)
	return nil
}

// CountRequests counts rows for ip since the given time. An empty
// pathContains matches every path.
func (s *Store) CountRequests(_ context.Context, ip, pathContains string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.requests {
		if r.IPAddress != ip || r.CreatedAt.Before(since) {
			continue
		}
		if pathContains != "" && !strings.Contains(r.RequestPath, pathContains) {
			continue
		}
		n++
	}
	return n, nil
}

func (s *Store) DeleteRequestsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.requests[:0]
	var n int64
	for _, r := range s.requests {
		if r.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.requests = kept
	return n, nil
}

// Operation log

func (s *Store) InsertOperation(_ context.Context, op *model.R2Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := *op
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	s.operations = append(s.operations, row)
	return nil
}

func (s *Store) CountOperations(_ context.Context, class model.OperationClass, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, op := range s.operations {
		if op.OperationClass == class && !op.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// RecentOperations returns the newest operations first.
func (s *Store) RecentOperations(_ context.Context, limit int) ([]model.R2Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.R2Operation, len(s.operations))
	copy(out, s.operations)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteOperationsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.operations[:0]
	var n int64
	for _, op := range s.operations {
		if op.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, op)
	}
	s.operations = kept
	return n, nil
}

// Storage usage counters

func (s *Store) GetStats(_ context.Context, provider model.Provider) (*model.StorageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[provider]
	if !ok {
		return &model.StorageStats{Provider: provider}, nil
	}
	return &st, nil
}

func (s *Store) ListStats(_ context.Context) ([]model.StorageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.StorageStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (s *Store) TrackUsage(_ context.Context, provider model.Provider, bytes, files int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[provider]
	st.Provider = provider
	st.TotalBytes += bytes
	st.FileCount += files
	st.UpdatedAt = s.now()
	s.stats[provider] = st
	return nil
}

func (s *Store) ReduceUsage(_ context.Context, provider model.Provider, bytes, files int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[provider]
	st.Provider = provider
	st.TotalBytes = max(st.TotalBytes-bytes, 0)
	st.FileCount = max(st.FileCount-files, 0)
	st.UpdatedAt = s.now()
	s.stats[provider] = st
	return nil
}

func containsType(types []model.EventType, t model.EventType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
