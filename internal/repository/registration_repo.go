package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"krishilok/internal/domain"
)

// RegistrationStore confirma un registro como una sola unidad atomica.
type RegistrationStore interface {
	CommitRegistration(ctx context.Context, user domain.User, otp domain.OTPEntry) (domain.User, error)
}

var _ RegistrationStore = (*PgRegistrationStore)(nil)

type PgRegistrationStore struct {
	pool *pgxpool.Pool
}

func NewPgRegistrationStore(pool *pgxpool.Pool) *PgRegistrationStore {
	return &PgRegistrationStore{pool: pool}
}

// CommitRegistration consume el OTP, asigna el display id del rol e inserta el
// usuario dentro de una transaccion. Cualquier fallo deshace las tres escrituras.
func (s *PgRegistrationStore) CommitRegistration(ctx context.Context, user domain.User, otp domain.OTPEntry) (domain.User, error) {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockEmail(ctx, tx, otp.Email); err != nil {
			return err
		}
		if err := consumeOTP(ctx, tx, otp); err != nil {
			return fmt.Errorf("consume otp: %w", err)
		}
		displayID, err := nextDisplayID(ctx, tx, user.PrimaryRole())
		if err != nil {
			return err
		}
		user.DisplayID = displayID
		if err := insertUser(ctx, tx, user); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}
