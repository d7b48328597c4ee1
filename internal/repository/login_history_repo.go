package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"krishilok/internal/domain"
)

// LoginHistoryRepository es append-only: no hay update ni delete.
type LoginHistoryRepository interface {
	Append(ctx context.Context, entry domain.LoginHistoryEntry) error
}

var _ LoginHistoryRepository = (*PgLoginHistoryRepository)(nil)

type PgLoginHistoryRepository struct {
	pool *pgxpool.Pool
}

func NewPgLoginHistoryRepository(pool *pgxpool.Pool) *PgLoginHistoryRepository {
	return &PgLoginHistoryRepository{pool: pool}
}

func (r *PgLoginHistoryRepository) Append(ctx context.Context, entry domain.LoginHistoryEntry) error {
	const query = `
		INSERT INTO login_history (id, identifier, user_id, ip, device, method, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var userID interface{}
	if entry.UserID != "" {
		userID = entry.UserID
	}

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.Identifier,
		userID,
		entry.IP,
		entry.Device,
		entry.Method,
		entry.Success,
		entry.CreatedAt,
	)
	return err
}
