package repository

import (
	"context"
	"database/sql"

	"imghost/internal/model"
)

// StorageStatsRepository keeps the per-provider running usage counters.
// Increments and decrements are single atomic upserts so concurrent uploads
// never lose an update.
type StorageStatsRepository struct {
	db *sql.DB
}

func NewStorageStatsRepository(db *sql.DB) *StorageStatsRepository {
	return &StorageStatsRepository{db: db}
}

func (r *StorageStatsRepository) GetStats(ctx context.Context, provider model.Provider) (*model.StorageStats, error) {
	st := model.StorageStats{Provider: provider}
	err := r.db.QueryRowContext(ctx,
		`SELECT total_bytes, file_count, updated_at FROM storage_stats WHERE provider = $1`, string(provider),
	).Scan(&st.TotalBytes, &st.FileCount, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return &st, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *StorageStatsRepository) ListStats(ctx context.Context) ([]model.StorageStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT provider, total_bytes, file_count, updated_at FROM storage_stats ORDER BY provider`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.StorageStats
	for rows.Next() {
		var st model.StorageStats
		var provider string
		if err := rows.Scan(&provider, &st.TotalBytes, &st.FileCount, &st.UpdatedAt); err != nil {
			return nil, err
		}
		st.Provider = model.Provider(provider)
		list = append(list, st)
	}
	return list, rows.Err()
}

func (r *StorageStatsRepository) TrackUsage(ctx context.Context, provider model.Provider, bytes, files int64) error {
	query := `
		INSERT INTO storage_stats (provider, total_bytes, file_count, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (provider) DO UPDATE SET
			total_bytes = storage_stats.total_bytes + EXCLUDED.total_bytes,
			file_count = storage_stats.file_count + EXCLUDED.file_count,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, string(provider), bytes, files)
	return err
}

func (r *StorageStatsRepository) ReduceUsage(ctx context.Context, provider model.Provider, bytes, files int64) error {
	query := `
		INSERT INTO storage_stats (provider, total_bytes, file_count, updated_at)
		VALUES ($1, 0, 0, NOW())
		ON CONFLICT (provider) DO UPDATE SET
			total_bytes = GREATEST(0, storage_stats.total_bytes - $2),
			file_count = GREATEST(0, storage_stats.file_count - $3),
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, string(provider), bytes, files)
	return err
}
