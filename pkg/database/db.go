package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DB interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	Close() error
	DriverName() string
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	PingContext(ctx context.Context) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	Stats() sql.DBStats

	// Flavor is the go-sqlbuilder dialect matching the driver.
	Flavor() sqlbuilder.Flavor
	// SnapshotTxOptions are the options for a read transaction that must see
	// one consistent snapshot across several statements.
	SnapshotTxOptions() *sql.TxOptions
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error)
}

// Executor is what repositories run statements against: the open
// transaction carried by the context, or the pool.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
}

type DatabaseInstance struct {
	*sqlx.DB
	logger ectologger.Logger
	flavor sqlbuilder.Flavor
}

func NewDatabaseInstance(db *sqlx.DB, logger ectologger.Logger) DB {
	flavor := sqlbuilder.PostgreSQL
	if db.DriverName() == DriverSQLite {
		flavor = sqlbuilder.SQLite
	}
	return &DatabaseInstance{
		DB:     db,
		logger: logger,
		flavor: flavor,
	}
}

func (db *DatabaseInstance) Flavor() sqlbuilder.Flavor {
	return db.flavor
}

func (db *DatabaseInstance) SnapshotTxOptions() *sql.TxOptions {
	if db.DriverName() == DriverPostgres {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	// sqlite transactions are serializable already
	return nil
}

func (db *DatabaseInstance) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error) {
	return GetTx(ctx, db.logger, db, opts)
}

// Conn returns the transaction open on ctx, or db when there is none.
func Conn(ctx context.Context, db DB) Executor {
	if tx, ok := ctx.Value(txKey).(*Transaction); ok && tx.IsOpen() {
		return tx
	}
	return db
}

// Config describes a database connection.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects and pings. SQLite gets a single connection so writers never
// contend for the file lock.
func Open(ctx context.Context, cfg Config, logger ectologger.Logger) (DB, error) {
	dsn := cfg.DSN
	switch cfg.Driver {
	case DriverPostgres:
	case DriverSQLite:
		dsn = SQLiteDSN(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	if cfg.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}

	logger.WithContext(ctx).WithField("driver", cfg.Driver).Info("Connected to database")
	return NewDatabaseInstance(db, logger), nil
}

// SQLiteDSN turns a file path into a modernc DSN with WAL, foreign keys and a
// busy timeout. DSNs that already carry parameters are left alone.
func SQLiteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return "file:" + strings.TrimPrefix(path, "file:") +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
}
