package order

import "context"

//go:generate mockgen -source=interface.go -destination=mock/repository_mock.go -package=mock

// Repository is the repository for orders. GetForUpdate and the mutating
// methods are expected to run inside a transaction embedded in the context.
type Repository interface {
	Insert(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	ListOpenByMarket(ctx context.Context, market string) ([]*Order, error)
	ApplyFill(ctx context.Context, id string, remaining float64, status Status) error
	SetStatus(ctx context.Context, id string, status Status) error
}
