package reservation

import (
	"context"

	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/balance"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/order"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/usecase/matching"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/errors"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/postgresql"
)

// PlaceOrderRequest carries the parameters for a new order.
//
// For market bids Quantity is the quote-currency amount to spend; the asset
// quantity is derived from the best ask at placement time. For every other
// combination Quantity is the asset quantity.
type PlaceOrderRequest struct {
	UserID   string
	Market   string
	Side     order.Side
	Type     order.Type
	Price    float64 // limit orders only
	Quantity float64
}

// Config holds reservation tunables.
type Config struct {
	// DustThreshold is the minimum quantity treated as non-zero.
	DustThreshold float64
}

// Usecase reserves funds when orders are placed and releases them when
// orders are cancelled. A resting bid holds price*quantity of the quote
// currency; a resting ask holds the asset quantity. Funds can never be
// promised twice: the reservation debit and the sufficiency check share one
// transaction over the locked balance row.
type Usecase struct {
	tx       postgresql.Runner
	orders   order.Repository
	balances balance.Repository
	books    matching.BookSource
	settler  matching.Settler
	logger   logger.Interface
	config   Config
}

// NewUsecase creates a reservation usecase.
func NewUsecase(
	tx postgresql.Runner,
	orders order.Repository,
	balances balance.Repository,
	books matching.BookSource,
	settler matching.Settler,
	logger logger.Interface,
	config Config,
) *Usecase {
	if config.DustThreshold <= 0 {
		config.DustThreshold = 1e-8
	}
	return &Usecase{
		tx:       tx,
		orders:   orders,
		balances: balances,
		books:    books,
		settler:  settler,
		logger:   logger,
		config:   config,
	}
}

// PlaceOrder validates the request, reserves the backing funds, and
// persists the order. Limit orders rest for the matching passes; market
// orders resolve against the latest snapshot and settle immediately.
func (u *Usecase) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*order.Order, error) {
	if req.Quantity < u.config.DustThreshold {
		return nil, errors.NewErrorDetails("quantity must be positive", errors.ErrInvalidQuantity, "quantity")
	}

	switch req.Type {
	case order.TypeLimit:
		if req.Price <= 0 {
			return nil, errors.NewErrorDetails("price must be positive", errors.ErrInvalidPrice, "price")
		}
		return u.placeLimit(ctx, req)
	case order.TypeMarket:
		return u.placeMarket(ctx, req)
	default:
		return nil, errors.NewErrorDetails("unknown order type", errors.ErrInvalidQuantity, "type")
	}
}

func (u *Usecase) placeLimit(ctx context.Context, req PlaceOrderRequest) (*order.Order, error) {
	o := order.NewOrder(req.UserID, req.Market, req.Side, order.TypeLimit, req.Price, req.Quantity)

	err := u.tx.WithinTx(ctx, func(txCtx context.Context) error {
		if err := u.reserve(txCtx, o); err != nil {
			return err
		}
		return u.orders.Insert(txCtx, o)
	})
	if err != nil {
		return nil, err
	}

	u.logger.InfoContext(ctx, "order placed",
		logger.Field{Key: "orderID", Value: o.ID},
		logger.Field{Key: "market", Value: o.Market},
		logger.Field{Key: "side", Value: string(o.Side)},
	)
	return o, nil
}

// placeMarket resolves the order against the latest snapshot and settles it
// in the same tick. The resolved price is written as the order's price, so
// settlement's refund arithmetic is a no-op for market orders.
func (u *Usecase) placeMarket(ctx context.Context, req PlaceOrderRequest) (*order.Order, error) {
	snap, ok := u.books.Latest(req.Market)
	if !ok {
		return nil, errors.NewErrorDetails("no snapshot for market", errors.ErrMarketDataUnavailable, "market")
	}

	var price, quantity float64
	if req.Side == order.SideBid {
		ask, ok := snap.BestAsk()
		if !ok {
			return nil, errors.NewErrorDetails("no ask liquidity for market", errors.ErrMarketDataUnavailable, "market")
		}
		// Quantity carries the amount to spend; derive the asset quantity.
		price = ask.Price
		quantity = req.Quantity / price
	} else {
		bid, ok := snap.BestBid()
		if !ok {
			return nil, errors.NewErrorDetails("no bid liquidity for market", errors.ErrMarketDataUnavailable, "market")
		}
		price = bid.Price
		quantity = req.Quantity
	}

	if quantity < u.config.DustThreshold {
		return nil, errors.NewErrorDetails("derived quantity below dust threshold", errors.ErrInvalidQuantity, "quantity")
	}

	o := order.NewOrder(req.UserID, req.Market, req.Side, order.TypeMarket, price, quantity)

	err := u.tx.WithinTx(ctx, func(txCtx context.Context) error {
		if err := u.reserve(txCtx, o); err != nil {
			return err
		}
		return u.orders.Insert(txCtx, o)
	})
	if err != nil {
		return nil, err
	}

	result, err := u.settler.ExecuteTrade(ctx, o.ID, price, quantity)
	if err != nil {
		// The reservation stands; the order rests and the next pass picks
		// it up at the resolved price.
		u.logger.ErrorContext(ctx, err,
			logger.Field{Key: "action", Value: "settle_market_order"},
			logger.Field{Key: "orderID", Value: o.ID},
		)
		return o, nil
	}
	if result.Executed {
		o = result.Order
	}
	return o, nil
}

// reserve debits the backing funds for an order inside the caller's
// transaction. The balance row stays locked until commit.
func (u *Usecase) reserve(txCtx context.Context, o *order.Order) error {
	if o.Side == order.SideBid {
		asset := order.QuoteAsset(o.Market)
		required := o.Price * o.Quantity

		b, err := u.balances.GetForUpdate(txCtx, o.UserID, asset)
		if err != nil {
			return err
		}
		if b.Amount < required {
			return errors.NewErrorDetails("balance below required reservation", errors.ErrInsufficientFunds, "quantity")
		}
		return u.balances.Add(txCtx, o.UserID, asset, -required)
	}

	asset := order.BaseAsset(o.Market)

	b, err := u.balances.GetForUpdate(txCtx, o.UserID, asset)
	if err != nil {
		return err
	}
	if b.Amount < o.Quantity {
		return errors.NewErrorDetails("holdings below required reservation", errors.ErrInsufficientHoldings, "quantity")
	}
	return u.balances.Add(txCtx, o.UserID, asset, -o.Quantity)
}

// CancelOrder cancels an open order and refunds the unfilled part of its
// reservation. Cancelling an already terminal order is an idempotent no-op:
// a fill that won the row lock first simply stands.
func (u *Usecase) CancelOrder(ctx context.Context, orderID string) error {
	return u.tx.WithinTx(ctx, func(txCtx context.Context) error {
		o, err := u.orders.GetForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if o.Status.IsTerminal() {
			return nil
		}

		if err := u.orders.SetStatus(txCtx, o.ID, order.StatusCancelled); err != nil {
			return err
		}

		// Refund exactly what is still reserved for the unfilled remainder.
		if o.RemainingQuantity < u.config.DustThreshold {
			return nil
		}
		if o.Side == order.SideBid {
			return u.balances.Add(txCtx, o.UserID, order.QuoteAsset(o.Market), o.Price*o.RemainingQuantity)
		}
		return u.balances.Add(txCtx, o.UserID, order.BaseAsset(o.Market), o.RemainingQuantity)
	})
}
