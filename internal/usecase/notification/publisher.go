package notification

import (
	"context"
	"encoding/json"

	notificationv1 "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/domain/notification/v1"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/config"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/errors"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisher publishes fill events to a Kafka topic for downstream
// consumers (reporting, archival).
type KafkaPublisher struct {
	kafkaWriter *kafka.Writer
	logger      logger.Interface
}

// NewKafkaPublisher creates a Kafka publisher for fill events.
func NewKafkaPublisher(config config.KafkaConfig, logger logger.Interface) *KafkaPublisher {
	kafkaWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers: config.Brokers,
		Topic:   config.Topic,
	})

	return &KafkaPublisher{
		kafkaWriter: kafkaWriter,
		logger:      logger,
	}
}

// PublishFillEvent publishes a fill event keyed by user so one user's fills
// stay ordered within a partition.
func (p *KafkaPublisher) PublishFillEvent(ctx context.Context, event *notificationv1.FillEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.TracerFromError(err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
	}

	if err := p.kafkaWriter.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(err,
			logger.Field{Key: "error", Value: err.Error()},
			logger.Field{Key: "orderID", Value: event.OrderID},
		)
		return errors.NewTracer("failed to publish fill event")
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.kafkaWriter.Close()
}
