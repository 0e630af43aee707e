package snapshotv1

import "time"

// BookLevel is one displayed price level of an order book side.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Snapshot is the most recent order book state for one market. It is
// ephemeral: each incoming snapshot fully replaces the previous one, levels
// are never merged.
type Snapshot struct {
	Market     string      `json:"market"`
	Asks       []BookLevel `json:"asks"`
	Bids       []BookLevel `json:"bids"`
	ReceivedAt time.Time   `json:"receivedAt"`
}

// Clone returns a deep copy so a matching pass can decrement level sizes
// without mutating the cached snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := &Snapshot{
		Market:     s.Market,
		Asks:       make([]BookLevel, len(s.Asks)),
		Bids:       make([]BookLevel, len(s.Bids)),
		ReceivedAt: s.ReceivedAt,
	}
	copy(cp.Asks, s.Asks)
	copy(cp.Bids, s.Bids)
	return cp
}

// BestAsk returns the lowest-priced ask level.
func (s *Snapshot) BestAsk() (BookLevel, bool) {
	return bestLevel(s.Asks, func(a, b float64) bool { return a < b })
}

// BestBid returns the highest-priced bid level.
func (s *Snapshot) BestBid() (BookLevel, bool) {
	return bestLevel(s.Bids, func(a, b float64) bool { return a > b })
}

func bestLevel(levels []BookLevel, better func(a, b float64) bool) (BookLevel, bool) {
	if len(levels) == 0 {
		return BookLevel{}, false
	}
	best := levels[0]
	for _, l := range levels[1:] {
		if better(l.Price, best.Price) {
			best = l
		}
	}
	return best, true
}

// Payload is the wire format pushed by the market-data adapter.
type Payload struct {
	Market string      `json:"market"`
	Asks   []BookLevel `json:"asks"`
	Bids   []BookLevel `json:"bids"`
}

// ToSnapshot converts a wire payload into a snapshot stamped with the
// receive time.
func (p *Payload) ToSnapshot() *Snapshot {
	return &Snapshot{
		Market:     p.Market,
		Asks:       p.Asks,
		Bids:       p.Bids,
		ReceivedAt: time.Now().UTC(),
	}
}
