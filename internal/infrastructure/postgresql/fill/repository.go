package fill

import (
	"context"

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

// Insert stores a fill.
func (r *repository) Insert(ctx context.Context, fill *Fill) error {
	query := `INSERT INTO fills (id, order_id, market, side, price, quantity, amount, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		fill.ID,
		fill.OrderID,
		fill.Market,
		fill.Side,
		fill.Price,
		fill.Quantity,
		fill.Amount,
		fill.CreatedAt,
	)
	if err != nil {
		return errors.TracerFromError(err)
	}

	return nil
}

// ListByOrder returns the fills for an order, oldest first.
func (r *repository) ListByOrder(ctx context.Context, orderID string) ([]*Fill, error) {
	query := `SELECT id, order_id, market, side, price, quantity, amount, created_at FROM fills WHERE order_id = $1 ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}
	defer rows.Close()

	fills := []*Fill{}
	for rows.Next() {
		f := &Fill{}
		err := rows.Scan(
			&f.ID,
			&f.OrderID,
			&f.Market,
			&f.Side,
			&f.Price,
			&f.Quantity,
			&f.Amount,
			&f.CreatedAt,
		)
		if err != nil {
			return nil, errors.TracerFromError(err)
		}
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.TracerFromError(err)
	}

	return fills, nil
}
