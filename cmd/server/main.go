package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	app "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/app/engine"
	snapshotconsumer "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/consumer/snapshot"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/balance"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/fill"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/order"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/redis/archive"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/usecase/bookcache"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/usecase/matching"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/usecase/notification"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/usecase/reservation"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/usecase/settlement"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/config"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/errors"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/postgresql"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/redis"
)

var cfg *config.Config
var log *logger.Logger

func init() {
	cfg = config.MustLoad()

	l, err := logger.NewLogger(logger.WithLoggingLevel(logger.Level(cfg.App.LogLevel)))
	if err != nil {
		panic(err)
	}
	log = l
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Storage.
	db, err := postgresql.NewClient(ctx, cfg.Postgres)
	if err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "connect_postgres"})
		return
	}
	defer db.Close()

	rclient := redis.NewClient(log, &cfg.Redis)
	if err := rclient.Connect(ctx); err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "connect_redis"})
		return
	}
	defer rclient.Disconnect(context.Background())

	txRunner := postgresql.NewTransaction(db)
	orderRepo := order.NewRepository(db, log)
	balanceRepo := balance.NewRepository(db, log)
	fillRepo := fill.NewRepository(db, log)
	archiveStore := archive.NewStore(rclient, cfg.Redis.PrefixKey, log)

	// Notification path.
	var publisher notification.Publisher
	var kafkaPublisher *notification.KafkaPublisher
	if cfg.FillKafka.Topic != "" {
		kafkaPublisher = notification.NewKafkaPublisher(cfg.FillKafka, log)
		publisher = kafkaPublisher
	}
	dispatcher := notification.NewDispatcher(publisher, log)
	hub := notification.NewHub(dispatcher, log)

	// Matching and settlement.
	settler := settlement.NewUsecase(
		txRunner, orderRepo, balanceRepo, fillRepo, archiveStore, dispatcher, log,
		settlement.Config{
			DustThreshold:      cfg.Matching.DustThreshold,
			RefundClosingSlice: cfg.Matching.RefundClosingSlice,
		},
	)

	cache := bookcache.NewCache(log)
	matcher := matching.NewEngine(cache, orderRepo, settler, log, matching.Config{
		DustThreshold: cfg.Matching.DustThreshold,
	})

	reservations := reservation.NewUsecase(
		txRunner, orderRepo, balanceRepo, cache, settler, log,
		reservation.Config{DustThreshold: cfg.Matching.DustThreshold},
	)

	if cfg.SnapshotKafka.Topic == "" {
		log.Error(errors.NewTracer("SNAPSHOT_KAFKA_TOPIC is not set"))
		return
	}
	reader := snapshotconsumer.NewReader(cfg.SnapshotKafka, cache, log)

	engine := app.NewEngine(cache, matcher, reader, hub, log, cfg.App.WSPort)
	engine.RegisterRoutes(newHandler(reservations, orderRepo, fillRepo, balanceRepo, log).register)

	if err := engine.Start(ctx); err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "start_engine"})
		return
	}

	log.Info("engine started successfully", logger.Field{
		Key:   "environment",
		Value: cfg.App.Environment,
	})

	sig := <-sigChan
	log.Info("received shutdown signal", logger.Field{
		Key:   "signal",
		Value: sig.String(),
	})
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := engine.Stop(shutdownCtx); err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "stop_engine"})
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.Error(err, logger.Field{Key: "action", Value: "close_fill_publisher"})
		}
	}

	log.Info("shutdown complete")
	_ = log.Sync()
}
