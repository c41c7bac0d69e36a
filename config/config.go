package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/engine"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" envDefault:"clover-api"`
	Version                       string   `env:"APP_VERSION" envDefault:"dev"`
	Port                          int      `env:"PORT" envDefault:"3004" validate:"min=1,max=65535"`
	LogLevel                      string   `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" envDefault:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" envDefault:"300"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" envDefault:"300"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" envDefault:"60"`
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" envDefault:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" envDefault:"64000"`      // 64KB
	MaxUploadBytes                int64    `env:"HTTP_SERVER_MAX_UPLOAD_BYTES" envDefault:"1073741824"` // 1GB
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" envDefault:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" envDefault:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" envDefault:"5"`

	// Database driver, postgres or sqlite
	DatabaseDriver string `env:"DB_DRIVER" envDefault:"sqlite" validate:"oneof=postgres sqlite"`
	// Full DSN; overrides the host settings. For sqlite this is the file path.
	DatabaseDSN      string `env:"DB_DSN" envDefault:""`
	DatabaseHost     string `env:"DB_HOST" envDefault:"localhost"`
	DatabasePort     string `env:"DB_PORT" envDefault:"5432"`
	DatabaseUserName string `env:"DB_USER_NAME" envDefault:""`
	DatabasePassword string `env:"DB_PASSWORD" envDefault:""`
	DatabaseName     string `env:"DB_NAME" envDefault:"clover"`
	DatabaseSSLMode  string `env:"DB_SSL_MODE" envDefault:"disable"`
	// SQLite file used when DB_DSN is empty
	DatabaseFile                  string        `env:"DB_FILE" envDefault:"clover.db"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"10m"`
	DatabaseMigrationVersion      uint          `env:"DB_MIGRATION_VERSION" envDefault:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" envDefault:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" envDefault:"true"`
	DatabaseMigrateOnStart        bool          `env:"DB_MIGRATE_ON_START" envDefault:"true"`

	// Ingestion
	IngestChunkSize int `env:"INGEST_CHUNK_SIZE" envDefault:"5000" validate:"min=1"`
	// Chunks decoded ahead of the one being persisted
	IngestPrefetchChunks int `env:"INGEST_PREFETCH_CHUNKS" envDefault:"2" validate:"min=1"`

	// Clusters
	ResolverPageSize int `env:"RESOLVER_PAGE_SIZE" envDefault:"10000" validate:"min=1"`
	// Rebuild clusters when an ingestion finishes
	RebuildOnIngest bool `env:"REBUILD_ON_INGEST" envDefault:"true"`
	// Publish batch.ready and let the consumer rebuild instead of rebuilding inline
	AsyncRebuild        bool          `env:"ASYNC_REBUILD" envDefault:"false"`
	RebuildLockTTL      time.Duration `env:"REBUILD_LOCK_TTL" envDefault:"10m"`
	DefaultPageSize     int           `env:"DEFAULT_PAGE_SIZE" envDefault:"20" validate:"min=1"`
	MaxPageSize         int           `env:"MAX_PAGE_SIZE" envDefault:"500" validate:"gtefield=DefaultPageSize"`
	BackfillConcurrency int           `env:"BACKFILL_CONCURRENCY" envDefault:"2" validate:"min=1"`

	// Redis serializes rebuilds across replicas when enabled
	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaEnabled         bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers         []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEventsTopic     string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"clover-events"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"clover-rebuilder"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" envDefault:"true"`
	KafkaBatchSize       int      `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	KafkaBatchTimeout    int      `env:"KAFKA_BATCH_TIMEOUT_MS" envDefault:"100"`
	KafkaRequiredAcks    int      `env:"KAFKA_REQUIRED_ACKS" envDefault:"1"`
	KafkaCompression     string   `env:"KAFKA_COMPRESSION" envDefault:"snappy"`

	// Graph projection (Memgraph or Neo4j)
	GraphEnabled    bool   `env:"GRAPH_ENABLED" envDefault:"false"`
	GraphDBHost     string `env:"GRAPH_DB_HOST" envDefault:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" envDefault:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" envDefault:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" envDefault:""`
	GraphDBName     string `env:"GRAPH_DB_NAME" envDefault:""`
	GraphDBSecure   bool   `env:"GRAPH_DB_SECURE" envDefault:"false"`

	// Tracing
	TracingExporter    string  `env:"TRACING_EXPORTER" envDefault:"none" validate:"oneof=otlp console none"`
	OTLPEndpoint       string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTLPProtocol       string  `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"grpc" validate:"oneof=grpc http"`
	OTLPHeaders        string  `env:"OTEL_EXPORTER_OTLP_HEADERS" envDefault:""`
	OTLPInsecure       bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	TracingSampleRatio float64 `env:"TRACING_SAMPLE_RATIO" envDefault:"1" validate:"min=0,max=1"`
}

// Load reads .env files when present, then the environment, and validates
// the result.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// a missing file is fine, the environment may carry everything
		_ = godotenv.Load(f)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Database returns the connection settings for the configured driver.
func (c *Config) Database() database.Config {
	dsn := c.DatabaseDSN
	if dsn == "" {
		switch c.DatabaseDriver {
		case database.DriverSQLite:
			dsn = c.DatabaseFile
		default:
			dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				c.DatabaseHost, c.DatabasePort, c.DatabaseUserName, c.DatabasePassword, c.DatabaseName, c.DatabaseSSLMode)
		}
	}

	return database.Config{
		Driver:          c.DatabaseDriver,
		DSN:             dsn,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

// Engine returns the engine settings.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		ChunkSize:           c.IngestChunkSize,
		PrefetchChunks:      c.IngestPrefetchChunks,
		ResolverPageSize:    c.ResolverPageSize,
		RebuildOnIngest:     c.RebuildOnIngest,
		AsyncRebuild:        c.AsyncRebuild && c.KafkaEnabled,
		DefaultPageSize:     c.DefaultPageSize,
		MaxPageSize:         c.MaxPageSize,
		BackfillConcurrency: c.BackfillConcurrency,
	}
}

func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		ServiceName: c.AppName,
		Version:     c.Version,
		Exporter:    c.TracingExporter,
		OTLP: exporters.OTLPConfig{
			Endpoint: c.OTLPEndpoint,
			Protocol: c.OTLPProtocol,
			Insecure: c.OTLPInsecure,
			Headers:  exporters.ParseHeaders(c.OTLPHeaders),
		},
		SampleRatio: c.TracingSampleRatio,
	}
}

func (c *Config) Redis() redis.Config {
	return redis.Config{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c *Config) KafkaProducer() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaEventsTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: time.Duration(c.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

func (c *Config) KafkaConsumer() kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Brokers:       c.KafkaBrokers,
		Topic:         c.KafkaEventsTopic,
		ConsumerGroup: c.KafkaConsumerGroup,
	}
}

func (c *Config) Graph() graph.Config {
	return graph.Config{
		Host:     c.GraphDBHost,
		Port:     c.GraphDBPort,
		Username: c.GraphDBUser,
		Password: c.GraphDBPassword,
		Database: c.GraphDBName,
		Secure:   c.GraphDBSecure,
	}
}
