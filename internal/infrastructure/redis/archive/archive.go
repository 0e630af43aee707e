package archive

import (
	"context"
	"encoding/json"

	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/order"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/errors"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/redis"
)

//go:generate mockgen -source=archive.go -destination=mock/archive_mock.go -package=mock

// Archiver stores fully settled orders outside the hot orders table.
type Archiver interface {
	ArchiveSettled(ctx context.Context, o *order.Order) error
}

// Store keeps settled orders in Redis, keyed per order with a per-user index
// hash so the reporting side can collect a user's settled orders cheaply.
type Store struct {
	prefix      string
	logger      logger.Interface
	redisclient redis.Client
}

// NewStore creates a new settled-order archive store.
func NewStore(redisclient redis.Client, prefix string, logger logger.Interface) *Store {
	return &Store{
		prefix:      prefix,
		redisclient: redisclient,
		logger:      logger,
	}
}

// ArchiveSettled writes the order under settled:<orderID> and indexes it
// under settled:user:<userID>. Called only after the settlement transaction
// has committed; a failure here is logged by the caller, never rolled back
// into order state.
func (s *Store) ArchiveSettled(ctx context.Context, o *order.Order) error {
	buf, err := json.Marshal(o)
	if err != nil {
		return errors.NewTracer("settled_order_marshal_error").Wrap(err)
	}

	key := s.prefix + "settled:" + o.ID
	if err := s.redisclient.Set(ctx, key, buf, 0); err != nil {
		return errors.NewTracer("settled_order_store_error").Wrap(err)
	}

	indexKey := s.prefix + "settled:user:" + o.UserID
	if _, err := s.redisclient.HSet(ctx, indexKey, map[string]any{o.ID: buf}); err != nil {
		return errors.NewTracer("settled_order_index_error").Wrap(err)
	}

	s.logger.DebugContext(ctx, "Archived settled order",
		logger.Field{Key: "orderID", Value: o.ID},
		logger.Field{Key: "userID", Value: o.UserID},
	)

	return nil
}
