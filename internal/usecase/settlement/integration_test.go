package settlement

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/balance"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/fill"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/order"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/postgresql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SettlementTestSuite struct {
	suite.Suite
	helper   *postgresql.TestHelper
	orders   order.Repository
	balances balance.Repository
	fills    fill.Repository
	usecase  *Usecase
	ctx      context.Context
}

func (s *SettlementTestSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(s.T(), err)

	config := &postgresql.TestContainerConfig{
		Image:            "postgres:15-alpine",
		Database:         "settlement_test_db",
		Username:         "settlement_test_user",
		Password:         "settlement_test_pass",
		MigrationsPath:   migrationsPath,
		MigrationPattern: "*.up.sql",
		StartupTimeout:   3 * time.Minute,
	}

	s.helper = postgresql.NewTestHelperWithConfig(s.T(), config)

	log, err := logger.NewLogger(logger.WithLoggingLevel(logger.ErrorLevel))
	require.NoError(s.T(), err)

	client := s.helper.GetClient()
	s.orders = order.NewRepository(client, log)
	s.balances = balance.NewRepository(client, log)
	s.fills = fill.NewRepository(client, log)

	s.usecase = NewUsecase(
		postgresql.NewTransaction(client),
		s.orders, s.balances, s.fills,
		nil, nil, log, Config{},
	)
}

func (s *SettlementTestSuite) SetupTest() {
	s.helper.CleanupTables()
}

// insertRestingBid stores an open bid order with its quote reservation
// already debited, the state PlaceOrder leaves behind.
func (s *SettlementTestSuite) insertRestingBid(price, quantity float64) *order.Order {
	o := order.NewOrder("user-1", "KRW-BTC", order.SideBid, order.TypeLimit, price, quantity)
	require.NoError(s.T(), s.orders.Insert(s.ctx, o))
	return o
}

func (s *SettlementTestSuite) balanceOf(userID, asset string) float64 {
	b, err := s.balances.Get(s.ctx, userID, asset)
	require.NoError(s.T(), err)
	return b.Amount
}

func (s *SettlementTestSuite) TestExecuteTradeCommitsFill() {
	o := s.insertRestingBid(100, 2)

	result, err := s.usecase.ExecuteTrade(s.ctx, o.ID, 95, 2)
	require.NoError(s.T(), err)
	require.True(s.T(), result.Executed)

	stored, err := s.orders.GetByID(s.ctx, o.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), order.StatusFilled, stored.Status)
	assert.Equal(s.T(), 0.0, stored.RemainingQuantity)

	fills, err := s.fills.ListByOrder(s.ctx, o.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), fills, 1)
	assert.Equal(s.T(), 95.0, fills[0].Price)
	assert.Equal(s.T(), 190.0, fills[0].Amount)

	assert.Equal(s.T(), 2.0, s.balanceOf("user-1", "BTC"))
	// Closing slice: no price-difference refund by default.
	assert.Equal(s.T(), 0.0, s.balanceOf("user-1", "KRW"))
}

func (s *SettlementTestSuite) TestPartialFillRefundsDifference() {
	o := s.insertRestingBid(100, 4)

	result, err := s.usecase.ExecuteTrade(s.ctx, o.ID, 95, 1)
	require.NoError(s.T(), err)
	require.True(s.T(), result.Executed)

	stored, err := s.orders.GetByID(s.ctx, o.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), order.StatusPartial, stored.Status)
	assert.Equal(s.T(), 3.0, stored.RemainingQuantity)

	assert.Equal(s.T(), 5.0, s.balanceOf("user-1", "KRW"))
	assert.Equal(s.T(), 1.0, s.balanceOf("user-1", "BTC"))
}

// Two settlement attempts race for the same order; the row lock serializes
// them and the loser observes a closed order.
func (s *SettlementTestSuite) TestConcurrentSettlementSettlesOnce() {
	o := s.insertRestingBid(100, 1)

	var wg sync.WaitGroup
	results := make([]Result, 2)
	errs := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.usecase.ExecuteTrade(s.ctx, o.ID, 100, 1)
		}(i)
	}
	wg.Wait()

	require.NoError(s.T(), errs[0])
	require.NoError(s.T(), errs[1])

	executed := 0
	for _, r := range results {
		if r.Executed {
			executed++
		}
	}
	assert.Equal(s.T(), 1, executed)

	fills, err := s.fills.ListByOrder(s.ctx, o.ID)
	require.NoError(s.T(), err)
	assert.Len(s.T(), fills, 1)

	assert.Equal(s.T(), 1.0, s.balanceOf("user-1", "BTC"))
}

func (s *SettlementTestSuite) TestSettleAfterCancelIsNoOp() {
	o := s.insertRestingBid(100, 1)
	require.NoError(s.T(), s.orders.SetStatus(s.ctx, o.ID, order.StatusCancelled))

	result, err := s.usecase.ExecuteTrade(s.ctx, o.ID, 100, 1)
	require.NoError(s.T(), err)
	assert.False(s.T(), result.Executed)

	fills, err := s.fills.ListByOrder(s.ctx, o.ID)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), fills)
	assert.Equal(s.T(), 0.0, s.balanceOf("user-1", "BTC"))
}

func (s *SettlementTestSuite) TestBalanceConstraintRejectsOverdraft() {
	require.NoError(s.T(), s.balances.Add(s.ctx, "user-1", "KRW", 100))

	// The check constraint is the backstop behind the locked sufficiency
	// check in the reservation path.
	err := s.balances.Add(s.ctx, "user-1", "KRW", -200)
	assert.Error(s.T(), err)
	assert.Equal(s.T(), 100.0, s.balanceOf("user-1", "KRW"))
}

func TestSettlementTestSuite(t *testing.T) {
	suite.Run(t, new(SettlementTestSuite))
}
