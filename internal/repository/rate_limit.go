package repository

import (
	"context"
	"database/sql"
	"time"

	"imghost/internal/model"
)

// OperationRepository stores the object-store operation log counted by the
// rate limiter.
type OperationRepository struct {
	db *sql.DB
}

func NewOperationRepository(db *sql.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

func (r *OperationRepository) InsertOperation(ctx context.Context, op *model.R2Operation) error {
	query := `
		INSERT INTO r2_operations (id, operation_class, operation_type, file_key, file_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		op.ID, string(op.OperationClass), op.OperationType,
		sql.NullString{String: op.FileKey, Valid: op.FileKey != ""},
		op.FileSize, op.CreatedAt,
	)
	return err
}

func (r *OperationRepository) CountOperations(ctx context.Context, class model.OperationClass, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM r2_operations WHERE operation_class = $1 AND created_at >= $2`,
		string(class), since,
	).Scan(&count)
	return count, err
}

func (r *OperationRepository) DeleteOperationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM r2_operations WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RecentOperations lists the newest operations.
func (r *OperationRepository) RecentOperations(ctx context.Context, limit int) ([]model.R2Operation, error) {
	query := `
		SELECT id, operation_class, operation_type, file_key, file_size, created_at
		FROM r2_operations
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []model.R2Operation
	for rows.Next() {
		var op model.R2Operation
		var class string
		var fileKey sql.NullString
		if err := rows.Scan(&op.ID, &class, &op.OperationType, &fileKey, &op.FileSize, &op.CreatedAt); err != nil {
			return nil, err
		}
		op.OperationClass = model.OperationClass(class)
		op.FileKey = fileKey.String
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
