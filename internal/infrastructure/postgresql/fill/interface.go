package fill

import "context"

//go:generate mockgen -source=interface.go -destination=mock/repository_mock.go -package=mock

// Repository is the append-only repository for fills.
type Repository interface {
	Insert(ctx context.Context, fill *Fill) error
	ListByOrder(ctx context.Context, orderID string) ([]*Fill, error)
}
