package matching

import (
	"context"
	"sort"
	"sync"

	snapshotv1 "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/domain/snapshot/v1"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/order"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
)

// PassReport summarizes one matching pass.
type PassReport struct {
	Market   string
	Orders   int // open orders examined
	Proposed int // trade proposals sent to settlement
	Settled  int // proposals that committed a fill
	NoOps    int // proposals settled as no-ops (stale order, dust)
	Failed   int // orders skipped because a proposal errored
}

// Config holds matching tunables.
type Config struct {
	// DustThreshold is the minimum quantity treated as non-zero.
	DustThreshold float64
}

// Engine matches open orders against order book snapshots. Matching is
// push-driven: each snapshot update triggers a pass, and there are no
// timers. Passes for the same market never run concurrently; triggers that
// arrive mid-pass coalesce into exactly one follow-up pass.
type Engine struct {
	books   BookSource
	orders  order.Repository
	settler Settler
	logger  logger.Interface
	config  Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]bool
	pending  map[string]bool
}

// NewEngine creates a matching engine.
func NewEngine(books BookSource, orders order.Repository, settler Settler, logger logger.Interface, config Config) *Engine {
	if config.DustThreshold <= 0 {
		config.DustThreshold = 1e-8
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		books:    books,
		orders:   orders,
		settler:  settler,
		logger:   logger,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]bool),
		pending:  make(map[string]bool),
	}
}

// Trigger requests a pass for the market. Safe for concurrent use from the
// snapshot feed. When a pass for the market is already running the request
// collapses into a single pending flag; the running pass re-runs once with
// the then-latest snapshot, which supersedes every coalesced trigger.
func (e *Engine) Trigger(market string) {
	e.mu.Lock()
	if e.inflight[market] {
		e.pending[market] = true
		e.mu.Unlock()
		return
	}
	e.inflight[market] = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.passLoop(market)
}

func (e *Engine) passLoop(market string) {
	defer e.wg.Done()

	for {
		if e.ctx.Err() != nil {
			e.finish(market)
			return
		}

		report, err := e.RunPass(e.ctx, market)
		if err != nil {
			e.logger.Error(err,
				logger.Field{Key: "action", Value: "matching_pass"},
				logger.Field{Key: "market", Value: market},
			)
		} else if report.Proposed > 0 {
			e.logger.Info("matching pass complete",
				logger.Field{Key: "market", Value: market},
				logger.Field{Key: "orders", Value: report.Orders},
				logger.Field{Key: "proposed", Value: report.Proposed},
				logger.Field{Key: "settled", Value: report.Settled},
				logger.Field{Key: "noops", Value: report.NoOps},
				logger.Field{Key: "failed", Value: report.Failed},
			)
		}

		e.mu.Lock()
		if e.pending[market] {
			delete(e.pending, market)
			e.mu.Unlock()
			continue
		}
		delete(e.inflight, market)
		e.mu.Unlock()
		return
	}
}

func (e *Engine) finish(market string) {
	e.mu.Lock()
	delete(e.inflight, market)
	delete(e.pending, market)
	e.mu.Unlock()
}

// Stop cancels in-flight passes and waits for them to drain.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
}

// Wait blocks until all in-flight passes have drained.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// RunPass matches every open order for the market against a private copy of
// the latest snapshot. Liquidity consumed by one order within the pass is
// not offered to later orders: proposed quantities are subtracted from the
// copied levels as the pass walks the order list. A failed proposal skips
// only that order; the pass continues.
func (e *Engine) RunPass(ctx context.Context, market string) (PassReport, error) {
	report := PassReport{Market: market}

	snap, ok := e.books.Latest(market)
	if !ok {
		return report, nil
	}
	book := snap.Clone()

	// Most attractive prices first so each order consumes the best
	// available liquidity before worse levels.
	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })

	open, err := e.orders.ListOpenByMarket(ctx, market)
	if err != nil {
		return report, err
	}
	report.Orders = len(open)

	for _, o := range open {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		e.matchOrder(ctx, o, book, &report)
	}

	return report, nil
}

func (e *Engine) matchOrder(ctx context.Context, o *order.Order, book *snapshotv1.Snapshot, report *PassReport) {
	levels := book.Asks
	eligible := func(levelPrice float64) bool { return levelPrice <= o.Price }
	if o.Side == order.SideAsk {
		levels = book.Bids
		eligible = func(levelPrice float64) bool { return levelPrice >= o.Price }
	}

	remaining := o.RemainingQuantity

	for i := range levels {
		if remaining < e.config.DustThreshold {
			return
		}

		level := &levels[i]
		if !eligible(level.Price) {
			// Levels are sorted best-first; nothing beyond this one matches.
			return
		}
		if level.Size < e.config.DustThreshold {
			continue
		}

		quantity := remaining
		if level.Size < quantity {
			quantity = level.Size
		}

		report.Proposed++
		result, err := e.settler.ExecuteTrade(ctx, o.ID, level.Price, quantity)
		if err != nil {
			report.Failed++
			e.logger.ErrorContext(ctx, err,
				logger.Field{Key: "action", Value: "execute_trade"},
				logger.Field{Key: "orderID", Value: o.ID},
				logger.Field{Key: "price", Value: level.Price},
				logger.Field{Key: "quantity", Value: quantity},
			)
			// Leave this order for the next pass; keep matching the rest.
			return
		}

		if !result.Executed {
			report.NoOps++
			// The order was stale at lock time; no point proposing more.
			return
		}

		report.Settled++
		level.Size -= quantity
		remaining = result.Order.RemainingQuantity
	}
}
