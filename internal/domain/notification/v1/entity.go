package notificationv1

import (
	"time"

	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/order"
)

// FillEvent is emitted after a settlement transaction commits. The payload
// carries the user id so any consumer can verify addressing.
type FillEvent struct {
	UserID            string       `json:"userID"`
	OrderID           string       `json:"orderID"`
	Market            string       `json:"market"`
	Side              order.Side   `json:"side"`
	ExecutionPrice    float64      `json:"executionPrice"`
	ExecutedQuantity  float64      `json:"executedQuantity"`
	RemainingQuantity float64      `json:"remainingQuantity"`
	TotalAmount       float64      `json:"totalAmount"`
	Status            order.Status `json:"status"`
	ExecutionTime     time.Time    `json:"executionTime"`
}
