package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/models"
)

type UserRepo struct {
	DB DBTX
}

const getUserByID = `-- name: GetUserByID
SELECT id, created_at, name, email, phone, sponsor_id FROM users
WHERE id = $1
`

func (r *UserRepo) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, userID)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

const getSponsor = `-- name: GetSponsor
SELECT sponsor_id FROM users
WHERE id = $1 AND sponsor_id IS NOT NULL
`

func (r *UserRepo) GetSponsor(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var sponsorID uuid.UUID
	err := r.DB.QueryRow(ctx, getSponsor, userID).Scan(&sponsorID)

	switch {
	case err == nil:
		return sponsorID, nil
	case errors.Is(err, pgx.ErrNoRows):
		return sponsorID, apperrors.ErrSponsorNotFound
	default:
		return sponsorID, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Name, &u.Email, &u.Phone, &u.SponsorID)
	return u, err
}
