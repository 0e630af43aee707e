package settlement

import (
	"context"

	notificationv1 "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/domain/notification/v1"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/balance"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/fill"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/order"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/redis/archive"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/errors"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/postgresql"
)

// errNoOp aborts the transaction without treating the attempt as a failure.
// Used for stale orders and dust quantities.
var errNoOp = errors.NewErrorDetails("settlement no-op", errors.ErrStaleOrderState, "")

// Config holds settlement tunables.
type Config struct {
	// DustThreshold is the minimum quantity treated as non-zero.
	DustThreshold float64

	// RefundClosingSlice extends the bid price-difference refund to the fill
	// that closes the order. Historically the refund is only granted while
	// the order stays open after the fill; false preserves that contract.
	RefundClosingSlice bool
}

// Result describes the outcome of one ExecuteTrade call.
type Result struct {
	// Executed is false for no-op outcomes (stale order, dust quantity).
	Executed bool

	// Order is the order state after the committed fill. Nil for no-ops.
	Order *order.Order

	// Fill is the settlement record for the executed slice. Nil for no-ops.
	Fill *fill.Fill
}

// Usecase executes proposed trades as atomic, idempotent database
// transactions. Proposals are advisory: every call re-validates against the
// locked order row, so stale or duplicated proposals settle as no-ops.
type Usecase struct {
	tx         postgresql.Runner
	orders     order.Repository
	balances   balance.Repository
	fills      fill.Repository
	archiver   archive.Archiver
	dispatcher notificationv1.Dispatcher
	logger     logger.Interface
	config     Config
}

// NewUsecase creates a settlement usecase.
func NewUsecase(
	tx postgresql.Runner,
	orders order.Repository,
	balances balance.Repository,
	fills fill.Repository,
	archiver archive.Archiver,
	dispatcher notificationv1.Dispatcher,
	logger logger.Interface,
	config Config,
) *Usecase {
	if config.DustThreshold <= 0 {
		config.DustThreshold = 1e-8
	}
	return &Usecase{
		tx:         tx,
		orders:     orders,
		balances:   balances,
		fills:      fills,
		archiver:   archiver,
		dispatcher: dispatcher,
		logger:     logger,
		config:     config,
	}
}

// ExecuteTrade settles one proposed (price, quantity) slice against the
// order. The order row is locked for the whole transaction; the executed
// quantity is clamped to the order's remaining quantity at lock time. Any
// error before commit rolls back, leaving the order exactly as it was; the
// next snapshot-triggered pass retries it naturally.
func (u *Usecase) ExecuteTrade(ctx context.Context, orderID string, proposedPrice, proposedQuantity float64) (Result, error) {
	var (
		result   Result
		executed float64
	)

	err := u.tx.WithinTx(ctx, func(txCtx context.Context) error {
		o, err := u.orders.GetForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}

		// Settled or cancelled by a concurrent pass. Expected, not an error.
		if !o.Status.IsOpen() {
			return errNoOp
		}

		executed = proposedQuantity
		if o.RemainingQuantity < executed {
			executed = o.RemainingQuantity
		}
		if executed < u.config.DustThreshold {
			return errNoOp
		}

		actualAmount := proposedPrice * executed
		remaining := o.RemainingQuantity - executed

		status := order.StatusPartial
		if remaining <= u.config.DustThreshold {
			status = order.StatusFilled
		}

		if o.Side == order.SideBid {
			// The reservation was taken at the order's limit price; executing
			// cheaper frees the difference. Granted only while the order stays
			// open after this fill unless RefundClosingSlice is set.
			if remaining > u.config.DustThreshold || u.config.RefundClosingSlice {
				if diff := (o.Price - proposedPrice) * executed; diff != 0 {
					if err := u.balances.Add(txCtx, o.UserID, order.QuoteAsset(o.Market), diff); err != nil {
						return err
					}
				}
			}

			if err := u.balances.Add(txCtx, o.UserID, order.BaseAsset(o.Market), executed); err != nil {
				return err
			}
		} else {
			if err := u.balances.Add(txCtx, o.UserID, order.QuoteAsset(o.Market), actualAmount); err != nil {
				return err
			}
		}

		if err := u.orders.ApplyFill(txCtx, o.ID, remaining, status); err != nil {
			return err
		}

		f := fill.NewFill(o.ID, o.Market, o.Side, proposedPrice, executed)
		if err := u.fills.Insert(txCtx, f); err != nil {
			return err
		}

		o.RemainingQuantity = remaining
		o.Status = status
		o.UpdatedAt = f.CreatedAt

		result = Result{
			Executed: true,
			Order:    o,
			Fill:     f,
		}
		return nil
	})

	if err == errNoOp {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, err
	}

	// Post-commit side effects. Failures here are logged and dropped; the
	// committed settlement itself is never undone.
	u.afterCommit(ctx, result)

	return result, nil
}

func (u *Usecase) afterCommit(ctx context.Context, result Result) {
	o := result.Order

	if o.Status == order.StatusFilled && u.archiver != nil {
		if err := u.archiver.ArchiveSettled(ctx, o); err != nil {
			u.logger.ErrorContext(ctx, err,
				logger.Field{Key: "action", Value: "archive_settled_order"},
				logger.Field{Key: "orderID", Value: o.ID},
			)
		}
	}

	if u.dispatcher == nil {
		return
	}

	event := &notificationv1.FillEvent{
		UserID:            o.UserID,
		OrderID:           o.ID,
		Market:            o.Market,
		Side:              o.Side,
		ExecutionPrice:    result.Fill.Price,
		ExecutedQuantity:  result.Fill.Quantity,
		RemainingQuantity: o.RemainingQuantity,
		TotalAmount:       result.Fill.Amount,
		Status:            o.Status,
		ExecutionTime:     result.Fill.CreatedAt,
	}
	if err := u.dispatcher.PublishFill(ctx, event); err != nil {
		u.logger.ErrorContext(ctx, err,
			logger.Field{Key: "action", Value: "publish_fill"},
			logger.Field{Key: "orderID", Value: o.ID},
		)
	}
}
