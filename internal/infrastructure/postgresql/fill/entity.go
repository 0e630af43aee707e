package fill

import (
	"time"

	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/order"
)

// Fill is an immutable settlement record for one executed slice of an order.
// Rows are created once and never mutated or deleted.
type Fill struct {
	ID        string     `json:"id"`
	OrderID   string     `json:"orderID"`
	Market    string     `json:"market"`
	Side      order.Side `json:"side"`
	Price     float64    `json:"price"`
	Quantity  float64    `json:"quantity"`
	Amount    float64    `json:"amount"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewFill creates a fill record for an executed slice. Amount is always
// price * quantity.
func NewFill(orderID, market string, side order.Side, price, quantity float64) *Fill {
	return &Fill{
		ID:        order.NewID(),
		OrderID:   orderID,
		Market:    market,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		Amount:    price * quantity,
		CreatedAt: time.Now().UTC(),
	}
}
