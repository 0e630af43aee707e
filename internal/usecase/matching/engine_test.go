package matching

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	snapshotv1 "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/domain/snapshot/v1"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/order"
	mockOrder "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/order/mock"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/usecase/settlement"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/errors"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.NewLogger(logger.WithLoggingLevel(logger.ErrorLevel))
	require.NoError(t, err)
	return log
}

type fakeBooks struct {
	mu        sync.Mutex
	snapshots map[string]*snapshotv1.Snapshot
}

func (f *fakeBooks) Latest(market string) (*snapshotv1.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snapshots[market]
	return snap, ok
}

func (f *fakeBooks) set(snap *snapshotv1.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[snap.Market] = snap
}

func booksWith(snap *snapshotv1.Snapshot) *fakeBooks {
	return &fakeBooks{snapshots: map[string]*snapshotv1.Snapshot{snap.Market: snap}}
}

type proposal struct {
	OrderID  string
	Price    float64
	Quantity float64
}

// fakeSettler settles every proposal in full against its own remaining
// bookkeeping, mirroring how the real settler clamps and closes orders.
type fakeSettler struct {
	mu        sync.Mutex
	remaining map[string]float64
	proposals []proposal

	failFor map[string]error
	noopFor map[string]bool
}

func newFakeSettler(orders ...*order.Order) *fakeSettler {
	s := &fakeSettler{
		remaining: make(map[string]float64),
		failFor:   make(map[string]error),
		noopFor:   make(map[string]bool),
	}
	for _, o := range orders {
		s.remaining[o.ID] = o.RemainingQuantity
	}
	return s
}

func (s *fakeSettler) ExecuteTrade(ctx context.Context, orderID string, price, quantity float64) (settlement.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failFor[orderID]; err != nil {
		return settlement.Result{}, err
	}
	if s.noopFor[orderID] {
		return settlement.Result{}, nil
	}

	s.proposals = append(s.proposals, proposal{OrderID: orderID, Price: price, Quantity: quantity})

	rem := s.remaining[orderID] - quantity
	if rem < 0 {
		rem = 0
	}
	s.remaining[orderID] = rem

	status := order.StatusPartial
	if rem <= 1e-8 {
		status = order.StatusFilled
	}
	return settlement.Result{
		Executed: true,
		Order:    &order.Order{ID: orderID, RemainingQuantity: rem, Status: status},
	}, nil
}

func (s *fakeSettler) recorded() []proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]proposal{}, s.proposals...)
}

func openOrder(id string, side order.Side, price, quantity float64) *order.Order {
	o := order.NewOrder("user-1", "KRW-BTC", side, order.TypeLimit, price, quantity)
	o.ID = id
	return o
}

func TestEngine_RunPassWithoutSnapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mockOrder.NewMockRepository(ctrl)
	settler := newFakeSettler()

	engine := NewEngine(&fakeBooks{snapshots: map[string]*snapshotv1.Snapshot{}}, repo, settler, newTestLogger(t), Config{})

	report, err := engine.RunPass(context.Background(), "KRW-BTC")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Proposed)
	assert.Empty(t, settler.recorded())
}

func TestEngine_BidWalksCheapestAsksFirst(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	o := openOrder("ord-1", order.SideBid, 105, 3)

	repo := mockOrder.NewMockRepository(ctrl)
	repo.EXPECT().ListOpenByMarket(gomock.Any(), "KRW-BTC").Return([]*order.Order{o}, nil)

	books := booksWith(&snapshotv1.Snapshot{
		Market: "KRW-BTC",
		Asks: []snapshotv1.BookLevel{
			{Price: 110, Size: 5}, // above the limit, never touched
			{Price: 100, Size: 2},
			{Price: 104, Size: 2},
		},
	})

	settler := newFakeSettler(o)
	engine := NewEngine(books, repo, settler, newTestLogger(t), Config{})

	report, err := engine.RunPass(context.Background(), "KRW-BTC")
	require.NoError(t, err)

	assert.Equal(t, []proposal{
		{OrderID: "ord-1", Price: 100, Quantity: 2},
		{OrderID: "ord-1", Price: 104, Quantity: 1},
	}, settler.recorded())
	assert.Equal(t, 2, report.Proposed)
	assert.Equal(t, 2, report.Settled)
	assert.Equal(t, 0, report.Failed)
}

func TestEngine_AskWalksHighestBidsFirst(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	o := openOrder("ord-1", order.SideAsk, 95, 4)

	repo := mockOrder.NewMockRepository(ctrl)
	repo.EXPECT().ListOpenByMarket(gomock.Any(), "KRW-BTC").Return([]*order.Order{o}, nil)

	books := booksWith(&snapshotv1.Snapshot{
		Market: "KRW-BTC",
		Bids: []snapshotv1.BookLevel{
			{Price: 90, Size: 10}, // below the limit, never touched
			{Price: 100, Size: 3},
			{Price: 96, Size: 3},
		},
	})

	settler := newFakeSettler(o)
	engine := NewEngine(books, repo, settler, newTestLogger(t), Config{})

	_, err := engine.RunPass(context.Background(), "KRW-BTC")
	require.NoError(t, err)

	assert.Equal(t, []proposal{
		{OrderID: "ord-1", Price: 100, Quantity: 3},
		{OrderID: "ord-1", Price: 96, Quantity: 1},
	}, settler.recorded())
}

func TestEngine_LiquidityConsumedWithinPass(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	first := openOrder("ord-1", order.SideBid, 100, 2)
	second := openOrder("ord-2", order.SideBid, 100, 2)

	repo := mockOrder.NewMockRepository(ctrl)
	repo.EXPECT().ListOpenByMarket(gomock.Any(), "KRW-BTC").Return([]*order.Order{first, second}, nil)

	books := booksWith(&snapshotv1.Snapshot{
		Market: "KRW-BTC",
		Asks:   []snapshotv1.BookLevel{{Price: 100, Size: 3}},
	})

	settler := newFakeSettler(first, second)
	engine := NewEngine(books, repo, settler, newTestLogger(t), Config{})

	_, err := engine.RunPass(context.Background(), "KRW-BTC")
	require.NoError(t, err)

	// The first order drains 2 of 3; the second only sees the remaining 1.
	assert.Equal(t, []proposal{
		{OrderID: "ord-1", Price: 100, Quantity: 2},
		{OrderID: "ord-2", Price: 100, Quantity: 1},
	}, settler.recorded())

	// The cached snapshot itself is never mutated by a pass.
	snap, _ := books.Latest("KRW-BTC")
	assert.Equal(t, 3.0, snap.Asks[0].Size)
}

func TestEngine_SkipsDustLevels(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	o := openOrder("ord-1", order.SideBid, 100, 1)

	repo := mockOrder.NewMockRepository(ctrl)
	repo.EXPECT().ListOpenByMarket(gomock.Any(), "KRW-BTC").Return([]*order.Order{o}, nil)

	books := booksWith(&snapshotv1.Snapshot{
		Market: "KRW-BTC",
		Asks: []snapshotv1.BookLevel{
			{Price: 99, Size: 1e-9}, // below dust, skipped
			{Price: 100, Size: 1},
		},
	})

	settler := newFakeSettler(o)
	engine := NewEngine(books, repo, settler, newTestLogger(t), Config{})

	_, err := engine.RunPass(context.Background(), "KRW-BTC")
	require.NoError(t, err)

	assert.Equal(t, []proposal{{OrderID: "ord-1", Price: 100, Quantity: 1}}, settler.recorded())
}

func TestEngine_NonCrossingOrderRestsUntilLevelAppears(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	o := openOrder("ord-1", order.SideAsk, 105, 2)

	repo := mockOrder.NewMockRepository(ctrl)
	repo.EXPECT().ListOpenByMarket(gomock.Any(), "KRW-BTC").Return([]*order.Order{o}, nil).Times(3)

	books := booksWith(&snapshotv1.Snapshot{
		Market: "KRW-BTC",
		Bids: []snapshotv1.BookLevel{
			{Price: 100, Size: 5},
			{Price: 99, Size: 5},
		},
	})

	settler := newFakeSettler(o)
	engine := NewEngine(books, repo, settler, newTestLogger(t), Config{})

	// No bid reaches 105; the order keeps resting across snapshot events.
	for i := 0; i < 2; i++ {
		report, err := engine.RunPass(context.Background(), "KRW-BTC")
		require.NoError(t, err)
		assert.Equal(t, 0, report.Proposed)
	}
	assert.Empty(t, settler.recorded())
	assert.Equal(t, order.StatusPending, o.Status)

	// A bid at the limit finally crosses and the full quantity settles.
	books.set(&snapshotv1.Snapshot{
		Market: "KRW-BTC",
		Bids:   []snapshotv1.BookLevel{{Price: 105, Size: 5}},
	})

	report, err := engine.RunPass(context.Background(), "KRW-BTC")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, []proposal{{OrderID: "ord-1", Price: 105, Quantity: 2}}, settler.recorded())
}

func TestEngine_FailedProposalSkipsOrderOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	failing := openOrder("ord-1", order.SideBid, 100, 1)
	healthy := openOrder("ord-2", order.SideBid, 100, 1)

	repo := mockOrder.NewMockRepository(ctrl)
	repo.EXPECT().ListOpenByMarket(gomock.Any(), "KRW-BTC").Return([]*order.Order{failing, healthy}, nil)

	books := booksWith(&snapshotv1.Snapshot{
		Market: "KRW-BTC",
		Asks:   []snapshotv1.BookLevel{{Price: 100, Size: 10}},
	})

	settler := newFakeSettler(failing, healthy)
	settler.failFor["ord-1"] = errors.NewErrorDetails("connection reset", errors.ErrTransientStorageFailure, "")

	engine := NewEngine(books, repo, settler, newTestLogger(t), Config{})

	report, err := engine.RunPass(context.Background(), "KRW-BTC")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, []proposal{{OrderID: "ord-2", Price: 100, Quantity: 1}}, settler.recorded())
}

func TestEngine_NoOpStopsProposingForOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	stale := openOrder("ord-1", order.SideBid, 105, 5)

	repo := mockOrder.NewMockRepository(ctrl)
	repo.EXPECT().ListOpenByMarket(gomock.Any(), "KRW-BTC").Return([]*order.Order{stale}, nil)

	books := booksWith(&snapshotv1.Snapshot{
		Market: "KRW-BTC",
		Asks: []snapshotv1.BookLevel{
			{Price: 100, Size: 1},
			{Price: 101, Size: 1},
		},
	})

	settler := newFakeSettler(stale)
	settler.noopFor["ord-1"] = true

	engine := NewEngine(books, repo, settler, newTestLogger(t), Config{})

	report, err := engine.RunPass(context.Background(), "KRW-BTC")
	require.NoError(t, err)

	// One probe, then the stale order is abandoned for this pass.
	assert.Equal(t, 1, report.Proposed)
	assert.Equal(t, 1, report.NoOps)
	assert.Empty(t, settler.recorded())
}

func TestEngine_TriggerCoalescesWhilePassRuns(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	o := openOrder("ord-1", order.SideBid, 100, 1)

	passStarted := make(chan struct{})
	releasePass := make(chan struct{})

	var passes int
	var mu sync.Mutex

	repo := mockOrder.NewMockRepository(ctrl)
	repo.EXPECT().ListOpenByMarket(gomock.Any(), "KRW-BTC").
		DoAndReturn(func(ctx context.Context, market string) ([]*order.Order, error) {
			mu.Lock()
			passes++
			first := passes == 1
			mu.Unlock()
			if first {
				close(passStarted)
				<-releasePass
			}
			return []*order.Order{o}, nil
		}).
		Times(2)

	books := booksWith(&snapshotv1.Snapshot{
		Market: "KRW-BTC",
		Asks:   []snapshotv1.BookLevel{{Price: 100, Size: 1}},
	})

	settler := newFakeSettler(o)
	engine := NewEngine(books, repo, settler, newTestLogger(t), Config{})

	engine.Trigger("KRW-BTC")
	<-passStarted

	// All of these arrive mid-pass and must collapse into one follow-up.
	engine.Trigger("KRW-BTC")
	engine.Trigger("KRW-BTC")
	engine.Trigger("KRW-BTC")

	close(releasePass)
	engine.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, passes)
}

func TestEngine_StopDrainsInflightPasses(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	o := openOrder("ord-1", order.SideBid, 100, 1)

	repo := mockOrder.NewMockRepository(ctrl)
	repo.EXPECT().ListOpenByMarket(gomock.Any(), "KRW-BTC").
		DoAndReturn(func(ctx context.Context, market string) ([]*order.Order, error) {
			time.Sleep(10 * time.Millisecond)
			return []*order.Order{o}, nil
		}).
		AnyTimes()

	books := booksWith(&snapshotv1.Snapshot{
		Market: "KRW-BTC",
		Asks:   []snapshotv1.BookLevel{{Price: 100, Size: 1}},
	})

	engine := NewEngine(books, repo, newFakeSettler(o), newTestLogger(t), Config{})

	engine.Trigger("KRW-BTC")
	engine.Stop()

	// After Stop returns no pass goroutine is left running.
	engine.Wait()
}
