package order

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Side represents the side of an order.
type Side string

const (
	// SideBid is a buy order.
	SideBid Side = "bid"
	// SideAsk is a sell order.
	SideAsk Side = "ask"
)

// Type represents the type of an order.
type Type string

const (
	// TypeLimit is a resting limit order.
	TypeLimit Type = "limit"
	// TypeMarket is an immediately-resolved market order.
	TypeMarket Type = "market"
)

// Status represents the lifecycle status of an order. Transitions are
// monotonic: pending -> partial -> filled, or pending|partial -> cancelled.
type Status string

const (
	// StatusPending is an order with no fills yet.
	StatusPending Status = "pending"
	// StatusPartial is an order with at least one fill and remaining quantity.
	StatusPartial Status = "partial"
	// StatusFilled is a fully settled order. Terminal.
	StatusFilled Status = "filled"
	// StatusCancelled is a cancelled order. Terminal.
	StatusCancelled Status = "cancelled"
)

// IsOpen reports whether the order can still be matched or cancelled.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusPartial
}

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

// Order represents a single order. An open bid order holds a reservation of
// price*quantity in the market's quote currency; an open ask order holds
// quantity of the base asset.
type Order struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userID"`
	Market            string    `json:"market"`
	Side              Side      `json:"side"`
	Type              Type      `json:"type"`
	Price             float64   `json:"price"`
	Quantity          float64   `json:"quantity"`
	RemainingQuantity float64   `json:"remainingQuantity"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// NewOrder creates a new pending order with a fresh id.
func NewOrder(userID, market string, side Side, orderType Type, price, quantity float64) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:                NewID(),
		UserID:            userID,
		Market:            market,
		Side:              side,
		Type:              orderType,
		Price:             price,
		Quantity:          quantity,
		RemainingQuantity: quantity,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// NewID returns a new ULID string.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// QuoteAsset returns the currency side of a market, e.g. "KRW" for "KRW-BTC".
func QuoteAsset(market string) string {
	quote, _, _ := strings.Cut(market, "-")
	return quote
}

// BaseAsset returns the traded asset of a market, e.g. "BTC" for "KRW-BTC".
func BaseAsset(market string) string {
	_, base, _ := strings.Cut(market, "-")
	return base
}
