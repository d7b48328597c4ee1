package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"krishilok/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	FindByIdentifier(ctx context.Context, id domain.Identifier) (domain.User, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
}

var _ UserRepository = (*PgUserRepository)(nil)

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `id, display_id, first_name, last_name, mobile, aadhaar, email,
	password_hash, roles, state, district, verified, created_at`

// FindByIdentifier hace un OR sobre los campos poblados del identificador. Los
// campos vacios se excluyen para no coincidir con filas que los tengan vacios.
func (r *PgUserRepository) FindByIdentifier(ctx context.Context, id domain.Identifier) (domain.User, error) {
	if id.Empty() {
		return domain.User{}, ErrNotFound
	}
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE ($1 <> '' AND email = $1)
		   OR ($2 <> '' AND mobile = $2)
		   OR ($3 <> '' AND aadhaar = $3)
		LIMIT 1
	`
	return scanUser(r.pool.QueryRow(ctx, query, id.Email, id.Mobile, id.Aadhaar))
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// insertUser espera un usuario ya validado; el hash de password lo calcula el caller.
func insertUser(ctx context.Context, q querier, user domain.User) error {
	const query = `
		INSERT INTO users (id, display_id, first_name, last_name, mobile, aadhaar, email,
			password_hash, roles, state, district, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := q.Exec(ctx, query,
		user.ID,
		user.DisplayID,
		user.FirstName,
		user.LastName,
		user.Mobile,
		user.Aadhaar,
		user.Email,
		user.PasswordHash,
		user.Roles,
		user.State,
		user.District,
		user.Verified,
		user.CreatedAt,
	)
	return mapError(err)
}

// nextDisplayID usa un upsert atomico: la fila del contador queda bloqueada hasta
// el commit, asi que dos registros concurrentes del mismo rol nunca leen el mismo valor.
func nextDisplayID(ctx context.Context, q querier, role string) (string, error) {
	const query = `
		INSERT INTO role_counters (role, seq) VALUES ($1, 1)
		ON CONFLICT (role) DO UPDATE SET seq = role_counters.seq + 1
		RETURNING seq
	`
	var seq int64
	if err := q.QueryRow(ctx, query, role).Scan(&seq); err != nil {
		return "", fmt.Errorf("increment role counter: %w", err)
	}
	return domain.FormatDisplayID(role, seq), nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.DisplayID,
		&u.FirstName,
		&u.LastName,
		&u.Mobile,
		&u.Aadhaar,
		&u.Email,
		&u.PasswordHash,
		&u.Roles,
		&u.State,
		&u.District,
		&u.Verified,
		&u.CreatedAt,
	)
	if err != nil {
		return domain.User{}, mapError(err)
	}
	return u, nil
}
