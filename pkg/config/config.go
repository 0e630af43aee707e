package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/postgresql"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/redis"
)

// Config holds the configuration for the engine.
type Config struct {
	App           AppConfig         `envPrefix:"APP_"`
	Postgres      postgresql.Config `envPrefix:"POSTGRES_"`
	Redis         redis.Config      `envPrefix:"REDIS_"`
	SnapshotKafka KafkaConfig       `envPrefix:"SNAPSHOT_KAFKA_"`
	FillKafka     KafkaConfig       `envPrefix:"FILL_KAFKA_"`
	Matching      MatchingConfig    `envPrefix:"MATCHING_"`
}

// AppConfig represents the application configuration.
type AppConfig struct {
	Name        string `env:"NAME" envDefault:"papertrade-engine"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	WSPort      int    `env:"WS_PORT" envDefault:"8090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// KafkaConfig holds the configuration for a Kafka reader or writer. An empty
// Topic disables the component it feeds.
type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string   `env:"TOPIC"`
	GroupID string   `env:"GROUP_ID" envDefault:"papertrade-engine"`
}

// MatchingConfig holds tunables for matching and settlement.
type MatchingConfig struct {
	// DustThreshold is the minimum quantity treated as non-zero. Anything
	// below it is a no-op fill.
	DustThreshold float64 `env:"DUST_THRESHOLD" envDefault:"1e-8"`

	// RefundClosingSlice controls whether the bid price-difference refund is
	// also granted on the fill that closes the order. The historical behavior
	// skips the refund on the closing slice; leave this false to keep it.
	RefundClosingSlice bool `env:"REFUND_CLOSING_SLICE" envDefault:"false"`
}

// Load loads the configuration from environment variables and .env file.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads the configuration and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
