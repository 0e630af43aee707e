package balance

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/errors"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/postgresql"
)

type repository struct {
	db     postgresql.PostgreSQLClient
	logger logger.Interface
}

// NewRepository creates a new repository.
func NewRepository(db postgresql.PostgreSQLClient, logger logger.Interface) Repository {
	return &repository{
		db:     db,
		logger: logger,
	}
}

// Get returns the balance, or a zero balance when no row exists.
func (r *repository) Get(ctx context.Context, userID, asset string) (*Balance, error) {
	query := `SELECT user_id, asset, amount, updated_at FROM balances WHERE user_id = $1 AND asset = $2`

	b := &Balance{}
	err := r.db.QueryRow(ctx, query, userID, asset).Scan(&b.UserID, &b.Asset, &b.Amount, &b.UpdatedAt)
	if err == pgx.ErrNoRows {
		return &Balance{UserID: userID, Asset: asset}, nil
	}
	if err != nil {
		return nil, errors.TracerFromError(err)
	}

	return b, nil
}

// GetForUpdate locks the balance row for the surrounding transaction,
// creating a zero row first when the user has never held the asset so there
// is always a row to lock.
func (r *repository) GetForUpdate(ctx context.Context, userID, asset string) (*Balance, error) {
	insert := `INSERT INTO balances (user_id, asset, amount) VALUES ($1, $2, 0) ON CONFLICT (user_id, asset) DO NOTHING`
	if _, err := r.db.Exec(ctx, insert, userID, asset); err != nil {
		return nil, errors.TracerFromError(err)
	}

	query := `SELECT user_id, asset, amount, updated_at FROM balances WHERE user_id = $1 AND asset = $2 FOR UPDATE`

	b := &Balance{}
	err := r.db.QueryRow(ctx, query, userID, asset).Scan(&b.UserID, &b.Asset, &b.Amount, &b.UpdatedAt)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}

	return b, nil
}

// Add adjusts a balance by delta. The balances table carries a non-negative
// check constraint as a second line of defense; callers must have verified
// sufficiency under a row lock before debiting.
func (r *repository) Add(ctx context.Context, userID, asset string, delta float64) error {
	query := `INSERT INTO balances (user_id, asset, amount) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, asset) DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = now()`

	_, err := r.db.Exec(ctx, query, userID, asset, delta)
	if err != nil {
		return errors.TracerFromError(err)
	}

	return nil
}
