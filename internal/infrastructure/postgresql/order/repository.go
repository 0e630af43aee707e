package order

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

const orderColumns = `id, user_id, market, side, type, price, quantity, remaining_quantity, status, created_at, updated_at`

// Insert stores a new order.
func (r *repository) Insert(ctx context.Context, order *Order) error {
	query := `INSERT INTO orders (` + orderColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		order.ID,
		order.UserID,
		order.Market,
		order.Side,
		order.Type,
		order.Price,
		order.Quantity,
		order.RemainingQuantity,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return errors.TracerFromError(err)
	}

	return nil
}

// GetByID gets an order by ID.
func (r *repository) GetByID(ctx context.Context, id string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	return r.scanOrder(r.db.QueryRow(ctx, query, id))
}

// GetForUpdate locks the order row for the duration of the surrounding
// transaction. This lock is what makes settlement and cancellation safe
// against concurrent matching passes.
func (r *repository) GetForUpdate(ctx context.Context, id string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	return r.scanOrder(r.db.QueryRow(ctx, query, id))
}

// ListOpenByMarket returns the resting pending/partial orders for a market.
func (r *repository) ListOpenByMarket(ctx context.Context, market string) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE market = $1 AND status IN ($2, $3) ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, market, StatusPending, StatusPartial)
	if err != nil {
		return nil, errors.TracerFromError(err)
	}
	defer rows.Close()

	orders := []*Order{}
	for rows.Next() {
		order := &Order{}
		err := rows.Scan(
			&order.ID,
			&order.UserID,
			&order.Market,
			&order.Side,
			&order.Type,
			&order.Price,
			&order.Quantity,
			&order.RemainingQuantity,
			&order.Status,
			&order.CreatedAt,
			&order.UpdatedAt,
		)
		if err != nil {
			return nil, errors.TracerFromError(err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.TracerFromError(err)
	}

	return orders, nil
}

// ApplyFill updates the remaining quantity and status after a settled slice.
func (r *repository) ApplyFill(ctx context.Context, id string, remaining float64, status Status) error {
	query := `UPDATE orders SET remaining_quantity = $1, status = $2, updated_at = now() WHERE id = $3`

	_, err := r.db.Exec(ctx, query, remaining, status, id)
	if err != nil {
		return errors.TracerFromError(err)
	}

	return nil
}

// SetStatus updates the status of an order.
func (r *repository) SetStatus(ctx context.Context, id string, status Status) error {
	query := `UPDATE orders SET status = $1, updated_at = now() WHERE id = $2`

	_, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		return errors.TracerFromError(err)
	}

	return nil
}

func (r *repository) scanOrder(row pgx.Row) (*Order, error) {
	order := &Order{}
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.Market,
		&order.Side,
		&order.Type,
		&order.Price,
		&order.Quantity,
		&order.RemainingQuantity,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NewErrorDetails("order not found", errors.ErrOrderNotFound, "id")
	}
	if err != nil {
		return nil, errors.TracerFromError(err)
	}

	return order, nil
}
