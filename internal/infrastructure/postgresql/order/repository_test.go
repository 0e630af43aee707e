package order

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/errors"
	mockLogger "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger/mock"
	mockPg "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/postgresql/mock"
	"github.com/stretchr/testify/assert"
)

// fakeRow implements pgx.Row with a canned scan function.
type fakeRow struct {
	scanFn func(dest ...any) error
}

func (f fakeRow) Scan(dest ...any) error {
	return f.scanFn(dest...)
}

func rowFromOrder(o *Order) fakeRow {
	return fakeRow{scanFn: func(dest ...any) error {
		*dest[0].(*string) = o.ID
		*dest[1].(*string) = o.UserID
		*dest[2].(*string) = o.Market
		*dest[3].(*Side) = o.Side
		*dest[4].(*Type) = o.Type
		*dest[5].(*float64) = o.Price
		*dest[6].(*float64) = o.Quantity
		*dest[7].(*float64) = o.RemainingQuantity
		*dest[8].(*Status) = o.Status
		*dest[9].(*time.Time) = o.CreatedAt
		*dest[10].(*time.Time) = o.UpdatedAt
		return nil
	}}
}

func noRows() fakeRow {
	return fakeRow{scanFn: func(dest ...any) error {
		return pgx.ErrNoRows
	}}
}

func testOrder() *Order {
	now := time.Now().UTC()
	return &Order{
		ID:                "01HZY3W0000000000000000000",
		UserID:            "user-1",
		Market:            "KRW-BTC",
		Side:              SideBid,
		Type:              TypeLimit,
		Price:             100,
		Quantity:          2,
		RemainingQuantity: 2,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestRepository_Insert(t *testing.T) {
	ctx := context.Background()
	query := `INSERT INTO orders (` + orderColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	testCases := []struct {
		name     string
		mockFn   func(mockpg *mockPg.MockPostgreSQLClient, tc *Order)
		testData *Order
		assertFn func(t *testing.T, err error)
	}{
		{
			name: "success",
			mockFn: func(mockpg *mockPg.MockPostgreSQLClient, tc *Order) {
				mockpg.EXPECT().
					Exec(ctx, query,
						tc.ID,
						tc.UserID,
						tc.Market,
						tc.Side,
						tc.Type,
						tc.Price,
						tc.Quantity,
						tc.RemainingQuantity,
						tc.Status,
						tc.CreatedAt,
						tc.UpdatedAt,
					).Return(pgconn.CommandTag{}, nil)
			},
			testData: testOrder(),
			assertFn: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "error",
			mockFn: func(mockpg *mockPg.MockPostgreSQLClient, tc *Order) {
				mockpg.EXPECT().
					Exec(ctx, query,
						tc.ID,
						tc.UserID,
						tc.Market,
						tc.Side,
						tc.Type,
						tc.Price,
						tc.Quantity,
						tc.RemainingQuantity,
						tc.Status,
						tc.CreatedAt,
						tc.UpdatedAt,
					).Return(pgconn.CommandTag{}, stderrors.New("connection reset"))
			},
			testData: testOrder(),
			assertFn: func(t *testing.T, err error) {
				assert.Error(t, err)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			pg := mockPg.NewMockPostgreSQLClient(ctrl)
			log := mockLogger.NewMockInterface(ctrl)

			repo := NewRepository(pg, log)

			tc.mockFn(pg, tc.testData)

			err := repo.Insert(ctx, tc.testData)
			tc.assertFn(t, err)
		})
	}
}

func TestRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	testCases := []struct {
		name     string
		mockFn   func(mockpg *mockPg.MockPostgreSQLClient)
		assertFn func(t *testing.T, o *Order, err error)
	}{
		{
			name: "success",
			mockFn: func(mockpg *mockPg.MockPostgreSQLClient) {
				mockpg.EXPECT().
					QueryRow(ctx, query, "ord-1").
					Return(rowFromOrder(testOrder()))
			},
			assertFn: func(t *testing.T, o *Order, err error) {
				assert.NoError(t, err)
				assert.Equal(t, "user-1", o.UserID)
				assert.Equal(t, SideBid, o.Side)
				assert.Equal(t, StatusPending, o.Status)
			},
		},
		{
			name: "not found",
			mockFn: func(mockpg *mockPg.MockPostgreSQLClient) {
				mockpg.EXPECT().
					QueryRow(ctx, query, "ord-1").
					Return(noRows())
			},
			assertFn: func(t *testing.T, o *Order, err error) {
				assert.Nil(t, o)
				assert.True(t, errors.IsCode(err, errors.ErrOrderNotFound))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			pg := mockPg.NewMockPostgreSQLClient(ctrl)
			log := mockLogger.NewMockInterface(ctrl)

			repo := NewRepository(pg, log)

			tc.mockFn(pg)

			o, err := repo.GetByID(ctx, "ord-1")
			tc.assertFn(t, o, err)
		})
	}
}

func TestRepository_GetForUpdate(t *testing.T) {
	ctx := context.Background()
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pg := mockPg.NewMockPostgreSQLClient(ctrl)
	log := mockLogger.NewMockInterface(ctrl)

	pg.EXPECT().
		QueryRow(ctx, query, "ord-1").
		Return(rowFromOrder(testOrder()))

	repo := NewRepository(pg, log)

	o, err := repo.GetForUpdate(ctx, "ord-1")
	assert.NoError(t, err)
	assert.Equal(t, "01HZY3W0000000000000000000", o.ID)
}

func TestRepository_ListOpenByMarket(t *testing.T) {
	ctx := context.Background()
	query := `SELECT ` + orderColumns + ` FROM orders WHERE market = $1 AND status IN ($2, $3) ORDER BY created_at ASC`

	testCases := []struct {
		name     string
		mockFn   func(mockpg *mockPg.MockPostgreSQLClient, rows *mockPg.MockRowsInterface)
		assertFn func(t *testing.T, orders []*Order, err error)
	}{
		{
			name: "two open orders",
			mockFn: func(mockpg *mockPg.MockPostgreSQLClient, rows *mockPg.MockRowsInterface) {
				mockpg.EXPECT().
					Query(ctx, query, "KRW-BTC", StatusPending, StatusPartial).
					Return(rows, nil)

				first := testOrder()
				second := testOrder()
				second.ID = "ord-2"
				second.Status = StatusPartial

				gomock.InOrder(
					rows.EXPECT().Next().Return(true),
					rows.EXPECT().Scan(gomock.Any()).DoAndReturn(func(dest ...any) error {
						return rowFromOrder(first).Scan(dest...)
					}),
					rows.EXPECT().Next().Return(true),
					rows.EXPECT().Scan(gomock.Any()).DoAndReturn(func(dest ...any) error {
						return rowFromOrder(second).Scan(dest...)
					}),
					rows.EXPECT().Next().Return(false),
					rows.EXPECT().Err().Return(nil),
					rows.EXPECT().Close(),
				)
			},
			assertFn: func(t *testing.T, orders []*Order, err error) {
				assert.NoError(t, err)
				assert.Len(t, orders, 2)
				assert.Equal(t, StatusPartial, orders[1].Status)
			},
		},
		{
			name: "query error",
			mockFn: func(mockpg *mockPg.MockPostgreSQLClient, rows *mockPg.MockRowsInterface) {
				mockpg.EXPECT().
					Query(ctx, query, "KRW-BTC", StatusPending, StatusPartial).
					Return(nil, stderrors.New("connection reset"))
			},
			assertFn: func(t *testing.T, orders []*Order, err error) {
				assert.Error(t, err)
				assert.Nil(t, orders)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			pg := mockPg.NewMockPostgreSQLClient(ctrl)
			rows := mockPg.NewMockRowsInterface(ctrl)
			log := mockLogger.NewMockInterface(ctrl)

			repo := NewRepository(pg, log)

			tc.mockFn(pg, rows)

			orders, err := repo.ListOpenByMarket(ctx, "KRW-BTC")
			tc.assertFn(t, orders, err)
		})
	}
}

func TestRepository_ApplyFill(t *testing.T) {
	ctx := context.Background()
	query := `UPDATE orders SET remaining_quantity = $1, status = $2, updated_at = now() WHERE id = $3`

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pg := mockPg.NewMockPostgreSQLClient(ctrl)
	log := mockLogger.NewMockInterface(ctrl)

	pg.EXPECT().
		Exec(ctx, query, 1.5, StatusPartial, "ord-1").
		Return(pgconn.CommandTag{}, nil)

	repo := NewRepository(pg, log)

	assert.NoError(t, repo.ApplyFill(ctx, "ord-1", 1.5, StatusPartial))
}

func TestRepository_SetStatus(t *testing.T) {
	ctx := context.Background()
	query := `UPDATE orders SET status = $1, updated_at = now() WHERE id = $2`

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pg := mockPg.NewMockPostgreSQLClient(ctrl)
	log := mockLogger.NewMockInterface(ctrl)

	pg.EXPECT().
		Exec(ctx, query, StatusCancelled, "ord-1").
		Return(pgconn.CommandTag{}, nil)

	repo := NewRepository(pg, log)

	assert.NoError(t, repo.SetStatus(ctx, "ord-1", StatusCancelled))
}
