package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"krishilok/internal/domain"
)

type OTPRepository interface {
	Replace(ctx context.Context, entry domain.OTPEntry) error
	Latest(ctx context.Context, email string) (domain.OTPEntry, error)
	Consume(ctx context.Context, entry domain.OTPEntry) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

var _ OTPRepository = (*PgOTPRepository)(nil)

type PgOTPRepository struct {
	pool *pgxpool.Pool
}

func NewPgOTPRepository(pool *pgxpool.Pool) *PgOTPRepository {
	return &PgOTPRepository{pool: pool}
}

// Replace borra todos los OTP del email e inserta el nuevo en la misma
// transaccion, de modo que nunca hay dos entradas vivas para un email.
func (r *PgOTPRepository) Replace(ctx context.Context, entry domain.OTPEntry) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockEmail(ctx, tx, entry.Email); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM otp_verifications WHERE email = $1`, entry.Email); err != nil {
			return err
		}
		const insert = `
			INSERT INTO otp_verifications (id, email, code_hash, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		_, err := tx.Exec(ctx, insert, entry.ID, entry.Email, entry.CodeHash, entry.ExpiresAt, entry.CreatedAt)
		return mapError(err)
	})
}

func (r *PgOTPRepository) Latest(ctx context.Context, email string) (domain.OTPEntry, error) {
	const query = `
		SELECT id, email, code_hash, expires_at, created_at
		FROM otp_verifications
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var e domain.OTPEntry
	err := r.pool.QueryRow(ctx, query, email).Scan(&e.ID, &e.Email, &e.CodeHash, &e.ExpiresAt, &e.CreatedAt)
	if err != nil {
		return domain.OTPEntry{}, mapError(err)
	}
	return e, nil
}

// Consume elimina la entrada verificada y cualquier otra del mismo email.
// Devuelve ErrNotFound si otra peticion ya la consumio o la reemplazo.
func (r *PgOTPRepository) Consume(ctx context.Context, entry domain.OTPEntry) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockEmail(ctx, tx, entry.Email); err != nil {
			return err
		}
		return consumeOTP(ctx, tx, entry)
	})
}

func (r *PgOTPRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM otp_verifications WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func consumeOTP(ctx context.Context, q querier, entry domain.OTPEntry) error {
	tag, err := q.Exec(ctx, `DELETE FROM otp_verifications WHERE id = $1`, entry.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	_, err = q.Exec(ctx, `DELETE FROM otp_verifications WHERE email = $1`, entry.Email)
	return err
}
