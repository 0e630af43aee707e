package balance

import "time"

// Balance is a user's available amount of one asset. Currency balances and
// asset holdings share the same table; the asset column distinguishes them
// ("KRW" vs "BTC" for the KRW-BTC market).
type Balance struct {
	UserID    string    `json:"userID"`
	Asset     string    `json:"asset"`
	Amount    float64   `json:"amount"`
	UpdatedAt time.Time `json:"updatedAt"`
}
