package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "clover-api", cfg.AppName)
	assert.Equal(t, database.DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, 5000, cfg.IngestChunkSize)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.RebuildOnIngest)
	assert.False(t, cfg.AsyncRebuild)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("INGEST_CHUNK_SIZE", "250")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DB_DRIVER", "postgres")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.IngestChunkSize)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, database.DriverPostgres, cfg.DatabaseDriver)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("RESOLVER_PAGE_SIZE=77\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("RESOLVER_PAGE_SIZE") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 77, cfg.ResolverPageSize)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("INGEST_CHUNK_SIZE", "0")
	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestDatabase(t *testing.T) {
	cfg := &Config{DatabaseDriver: database.DriverSQLite, DatabaseFile: "x.db"}
	assert.Equal(t, "x.db", cfg.Database().DSN)

	cfg = &Config{
		DatabaseDriver:   database.DriverPostgres,
		DatabaseHost:     "db",
		DatabasePort:     "5432",
		DatabaseUserName: "u",
		DatabasePassword: "p",
		DatabaseName:     "clover",
		DatabaseSSLMode:  "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=clover sslmode=disable", cfg.Database().DSN)

	cfg.DatabaseDSN = "postgres://x"
	assert.Equal(t, "postgres://x", cfg.Database().DSN)
}

func TestEngine(t *testing.T) {
	cfg := &Config{IngestChunkSize: 10, RebuildOnIngest: true, AsyncRebuild: true, MaxPageSize: 100}
	assert.False(t, cfg.Engine().AsyncRebuild, "async rebuild needs kafka")
	assert.Equal(t, 10, cfg.Engine().ChunkSize)

	cfg.KafkaEnabled = true
	assert.True(t, cfg.Engine().AsyncRebuild)
}

func TestTracingHeaders(t *testing.T) {
	cfg := &Config{OTLPHeaders: "x-api-key = abc, bad, tenant=t1"}
	assert.Equal(t, map[string]string{"x-api-key": "abc", "tenant": "t1"}, cfg.Tracing().OTLP.Headers)

	cfg.OTLPHeaders = ""
	assert.Empty(t, cfg.Tracing().OTLP.Headers)
}

func TestKafkaProducer(t *testing.T) {
	cfg := &Config{KafkaBrokers: []string{"k:9092"}, KafkaEventsTopic: "events", KafkaBatchTimeout: 250}
	producer := cfg.KafkaProducer()
	assert.Equal(t, "events", producer.Topic)
	assert.Equal(t, 250*time.Millisecond, producer.BatchTimeout)
}
