// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Store, Redis, Kafka, Dedup, Cleanup, Schedule, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// StoreConfig selects and configures the persistent document store backend.
type StoreConfig struct {
	Backend     string         `yaml:"backend"` // "postgres" or "mongo"
	OpTimeout   time.Duration  `yaml:"opTimeout"`
	ScanTimeout time.Duration  `yaml:"scanTimeout"`
	ScanPage    int            `yaml:"scanPage"`
	Postgres    PostgresConfig `yaml:"postgres"`
	Mongo       MongoConfig    `yaml:"mongo"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	Table           string        `yaml:"table"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// MongoConfig holds MongoDB connection parameters.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// RedisConfig holds Redis connection parameters for the shared seen-URL cache.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	URLSetKey string        `yaml:"urlSetKey"`
	URLSetTTL time.Duration `yaml:"urlSetTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	CrawlCandidates string `yaml:"crawlCandidates"`
	FetchQueue      string `yaml:"fetchQueue"`
	CleanupReports  string `yaml:"cleanupReports"`
}

// DedupConfig controls the tiered ingestion-time deduplicator.
type DedupConfig struct {
	BloomCapacity     int           `yaml:"bloomCapacity"`
	FalsePositiveRate float64       `yaml:"falsePositiveRate"`
	SnapshotPath      string        `yaml:"snapshotPath"`
	SnapshotInterval  time.Duration `yaml:"snapshotInterval"`
	UseSharedCache    bool          `yaml:"useSharedCache"`
	UseStoreCheck     bool          `yaml:"useStoreCheck"`
}

// CleanupConfig controls the retrospective duplicate cleanup path.
type CleanupConfig struct {
	Types               []string `yaml:"types"` // url, content, similar
	Strategy            string   `yaml:"strategy"`
	SimilarityThreshold float64  `yaml:"similarityThreshold"`
	MinContentLength    int      `yaml:"minContentLength"`
	SampleCap           int      `yaml:"sampleCap"`
	MinSimilarityLength int      `yaml:"minSimilarityLength"`
	DeleteChunkSize     int      `yaml:"deleteChunkSize"`
	DryRun              bool     `yaml:"dryRun"`
}

// ScheduleConfig controls the cleanup scheduler service.
type ScheduleConfig struct {
	DailyLight           string        `yaml:"dailyLight"`  // "02:00"
	WeeklyFull           string        `yaml:"weeklyFull"`  // "sunday 03:00"
	MonthlyDeep          string        `yaml:"monthlyDeep"` // "1 04:00"
	MinCleanupInterval   time.Duration `yaml:"minCleanupInterval"`
	MaxDuplicatePercent  float64       `yaml:"maxDuplicatePercent"`
	NotificationsEnabled bool          `yaml:"notificationsEnabled"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics / operational HTTP server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with defaults suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:     "postgres",
			OpTimeout:   10 * time.Second,
			ScanTimeout: 60 * time.Second,
			ScanPage:    500,
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "crawlstore",
				User:            "crawlstore",
				Password:        "localdev",
				SSLMode:         "disable",
				Table:           "documents",
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "crawlstore",
				Collection: "documents",
			},
		},
		Redis: RedisConfig{
			Enabled:   true,
			Addr:      "localhost:6379",
			Password:  "",
			DB:        0,
			PoolSize:  10,
			URLSetKey: "dedup:seen_urls",
			URLSetTTL: 7 * 24 * time.Hour,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "dedup-engine",
			Topics: KafkaTopics{
				CrawlCandidates: "crawl-candidates",
				FetchQueue:      "fetch-queue",
				CleanupReports:  "cleanup-reports",
			},
		},
		Dedup: DedupConfig{
			BloomCapacity:     1_000_000,
			FalsePositiveRate: 0.01,
			SnapshotPath:      "data/url_bloom_filter.json",
			SnapshotInterval:  10 * time.Minute,
			UseSharedCache:    true,
			UseStoreCheck:     true,
		},
		Cleanup: CleanupConfig{
			Types:               []string{"url", "content"},
			Strategy:            "latest",
			SimilarityThreshold: 0.95,
			MinContentLength:    50,
			SampleCap:           1000,
			MinSimilarityLength: 100,
			DeleteChunkSize:     100,
			DryRun:              true,
		},
		Schedule: ScheduleConfig{
			DailyLight:          "02:00",
			WeeklyFull:          "sunday 03:00",
			MonthlyDeep:         "1 04:00",
			MinCleanupInterval:  6 * time.Hour,
			MaxDuplicatePercent: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads DD_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DD_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("DD_POSTGRES_HOST"); v != "" {
		cfg.Store.Postgres.Host = v
	}
	if v := os.Getenv("DD_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Store.Postgres.Port = port
		}
	}
	if v := os.Getenv("DD_POSTGRES_DATABASE"); v != "" {
		cfg.Store.Postgres.Database = v
	}
	if v := os.Getenv("DD_POSTGRES_USER"); v != "" {
		cfg.Store.Postgres.User = v
	}
	if v := os.Getenv("DD_POSTGRES_PASSWORD"); v != "" {
		cfg.Store.Postgres.Password = v
	}
	if v := os.Getenv("DD_POSTGRES_SSLMODE"); v != "" {
		cfg.Store.Postgres.SSLMode = v
	}
	if v := os.Getenv("DD_MONGO_URI"); v != "" {
		cfg.Store.Mongo.URI = v
	}
	if v := os.Getenv("DD_MONGO_DATABASE"); v != "" {
		cfg.Store.Mongo.Database = v
	}
	if v := os.Getenv("DD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DD_DEDUP_SNAPSHOT_PATH"); v != "" {
		cfg.Dedup.SnapshotPath = v
	}
	if v := os.Getenv("DD_CLEANUP_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cleanup.DryRun = b
		}
	}
	if v := os.Getenv("DD_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DD_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DD_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
