package balance

import "context"

//go:generate mockgen -source=interface.go -destination=mock/repository_mock.go -package=mock

// Repository is the repository for balances. GetForUpdate and Add are
// expected to run inside a transaction embedded in the context; every debit
// must be preceded by a GetForUpdate sufficiency check in the same
// transaction.
type Repository interface {
	Get(ctx context.Context, userID, asset string) (*Balance, error)
	GetForUpdate(ctx context.Context, userID, asset string) (*Balance, error)
	Add(ctx context.Context, userID, asset string, delta float64) error
}
