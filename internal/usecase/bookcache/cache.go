package bookcache

import (
	"sync"

	snapshotv1 "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/domain/snapshot/v1"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
)

// TriggerFunc is invoked after a snapshot replacement; it is the sole driver
// of matching passes (push model, no timers).
type TriggerFunc func(market string)

// Cache holds the most recent order book snapshot per market. Each update is
// a single pointer replacement under the lock, so readers never observe a
// half-written snapshot. No history is retained.
type Cache struct {
	mu        sync.RWMutex
	snapshots map[string]*snapshotv1.Snapshot
	onUpdate  TriggerFunc
	logger    logger.Interface
}

// NewCache creates an empty cache.
func NewCache(logger logger.Interface) *Cache {
	return &Cache{
		snapshots: make(map[string]*snapshotv1.Snapshot),
		logger:    logger,
	}
}

// OnUpdate registers the trigger called after each snapshot replacement.
// Must be set before the first Update.
func (c *Cache) OnUpdate(fn TriggerFunc) {
	c.onUpdate = fn
}

// Update fully replaces the stored snapshot for the market and triggers a
// matching pass. The trigger runs outside the lock.
func (c *Cache) Update(market string, snap *snapshotv1.Snapshot) {
	c.mu.Lock()
	c.snapshots[market] = snap
	c.mu.Unlock()

	c.logger.Debug("Order book snapshot replaced",
		logger.Field{Key: "market", Value: market},
		logger.Field{Key: "asks", Value: len(snap.Asks)},
		logger.Field{Key: "bids", Value: len(snap.Bids)},
	)

	if c.onUpdate != nil {
		c.onUpdate(market)
	}
}

// Latest returns the most recent snapshot for the market, or ok=false when
// none has been received yet. Callers must not mutate the returned snapshot;
// Clone it first.
func (c *Cache) Latest(market string) (*snapshotv1.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.snapshots[market]
	return snap, ok
}
