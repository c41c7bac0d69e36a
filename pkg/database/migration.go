package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
)

type MigrationLogger struct {
	ectologger.Logger
}

func (l MigrationLogger) Verbose() bool {
	return false
}

func (l MigrationLogger) Printf(format string, v ...any) {
	l.Infof(strings.TrimSuffix(format, "\n"), v...)
}

type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

type MigrationConfig struct {
	// FS holds one folder of *.up.sql/*.down.sql files per driver
	FS fs.FS
	// Root is the folder inside FS that contains the driver folders
	Root         string
	Version      uint
	Force        int
	AutoRollback bool // If enabled, will attempt to rollback the database to the previous version if an error occurs
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

func (ms *MigrationService) folder(driver string) string {
	if ms.config.Root == "" {
		return driver
	}
	return ms.config.Root + "/" + driver
}

// Migrate applies the embedded migrations for cfg.Driver over a dedicated
// connection that is closed afterwards, so the application pool is never
// shared with the migrator.
func (ms *MigrationService) Migrate(cfg Config) error {
	dsn := cfg.DSN
	if cfg.Driver == DriverSQLite {
		dsn = SQLiteDSN(cfg.DSN)
	}

	conn, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return errors.Wrap(err, "failed to open migration connection")
	}
	defer conn.Close()

	var driver migratedb.Driver
	switch cfg.Driver {
	case DriverPostgres:
		driver, err = postgres.WithInstance(conn, &postgres.Config{})
	case DriverSQLite:
		driver, err = sqlite.WithInstance(conn, &sqlite.Config{})
	default:
		err = fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return errors.Wrap(err, "failed to create migration driver")
	}

	folder := ms.folder(cfg.Driver)
	source, err := iofs.New(ms.config.FS, folder)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("migration folder %s does not exist", folder))
	}

	m, err := migrate.NewWithInstance("iofs", source, cfg.Driver, driver)
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return err
	}
	defer func() { _, _ = m.Close() }()
	m.Log = MigrationLogger{Logger: ms.logger}

	return ms.runMigration(m, folder)
}

func (ms *MigrationService) runMigration(m *migrate.Migrate, folder string) error {
	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force database to version %d", ms.config.Force)
			return err
		}
	}

	version, _, versionErr := m.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		ms.logger.WithError(versionErr).Error("Failed to get current migration version")
	}

	startTime := time.Now()

	var migrationErr error
	if ms.config.Version != 0 {
		migrationErr = m.Migrate(ms.config.Version)
	} else {
		migrationErr = m.Up()
	}

	ms.logger.Infof("Database migrations completed in %v", time.Since(startTime))

	return ms.handleMigrationError(m, migrationErr, version, folder)
}

func (ms *MigrationService) handleMigrationError(m *migrate.Migrate, err error, previousVersion uint, folder string) error {
	if err == nil {
		ms.logger.Info("Successfully applied migrations")
		return nil
	}

	if err == migrate.ErrNoChange {
		ms.logger.Info("No new migrations to apply")
		return nil
	}

	// the database is ahead of the embedded files, usually after a rollback
	if strings.Contains(err.Error(), "no migration found for version") {
		latest, latestErr := getLatestVersion(ms.config.FS, folder)
		if latestErr != nil {
			ms.logger.WithError(latestErr).Error("Failed to get latest migration version")
			return err
		}
		ms.logger.Warnf("No migration found for version %d. Forcing to latest version %d", previousVersion, latest)
		if forceErr := m.Force(latest); forceErr != nil {
			ms.logger.WithError(forceErr).Errorf("Failed to force database to version %d", latest)
			return forceErr
		}
		return nil
	}

	ms.logger.WithError(err).Errorf("Migration failed with error: %v", err)

	version, dirty, versionErr := m.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		ms.logger.WithError(versionErr).Error("Failed to get current migration version")
		return err
	}

	if ms.config.AutoRollback && dirty {
		if previousVersion == 0 && version > 0 {
			previousVersion = version - 1
		}
		ms.logger.Warnf("Database is dirty at version %d. Reverting to version %d", version, previousVersion)
		if forceErr := m.Force(int(previousVersion)); forceErr != nil {
			ms.logger.WithError(forceErr).Errorf("Failed to force database to version %d", previousVersion)
			return forceErr
		}
	}

	// still fail so the application does not start on a half-migrated schema
	return err
}

var migrationFilePattern = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

func getLatestVersion(fsys fs.FS, folder string) (int, error) {
	entries, err := fs.ReadDir(fsys, folder)
	if err != nil {
		return 0, err
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := migrationFilePattern.FindStringSubmatch(entry.Name())
		if len(matches) > 1 {
			version, err := strconv.Atoi(matches[1])
			if err != nil {
				return 0, err
			}
			versions = append(versions, version)
		}
	}

	if len(versions) == 0 {
		return 0, fmt.Errorf("no migration files found")
	}

	sort.Ints(versions)
	return versions[len(versions)-1], nil
}
