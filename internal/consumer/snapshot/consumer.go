package snapshot

import (
	"context"
	"encoding/json"

	snapshotv1 "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/domain/snapshot/v1"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/usecase/bookcache"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/config"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// Reader consumes order book snapshots from Kafka and feeds the book cache.
// Only the most recent snapshot per market matters, so messages are applied
// as fast as they arrive and never replayed after restart.
type Reader struct {
	kafkaReader *kafka.Reader
	cache       *bookcache.Cache
	logger      logger.Interface
}

// NewReader creates a Kafka reader for the snapshot topic.
func NewReader(config config.KafkaConfig, cache *bookcache.Cache, log logger.Interface) *Reader {
	kafkaReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     config.Brokers,
		Topic:       config.Topic,
		Partition:   0,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})

	return &Reader{
		kafkaReader: kafkaReader,
		cache:       cache,
		logger:      log,
	}
}

// Run consumes snapshots until ctx is cancelled. Malformed messages are
// logged and skipped; the feed keeps flowing.
func (r *Reader) Run(ctx context.Context) error {
	for {
		msg, err := r.kafkaReader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logError(err, "ReadMessage")
			return err
		}

		var payload snapshotv1.Payload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			r.logError(err, "UnmarshalSnapshot")
			continue
		}
		if payload.Market == "" {
			r.logger.Warn("snapshot without market, skipping",
				logger.Field{Key: "offset", Value: msg.Offset},
			)
			continue
		}

		r.cache.Update(payload.Market, payload.ToSnapshot())
	}
}

// Close properly closes the Kafka reader.
func (r *Reader) Close() error {
	if err := r.kafkaReader.Close(); err != nil {
		r.logError(err, "Close")
		return err
	}
	return nil
}

func (r *Reader) logError(err error, operation string) {
	r.logger.Error(err,
		logger.Field{Key: "error", Value: err.Error()},
		logger.Field{Key: "operation", Value: operation},
	)
}
