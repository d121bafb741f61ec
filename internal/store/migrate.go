package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/matheus3301/clinic/internal/metrics"
	"go.uber.org/zap"
)

// migrationsTable records the schema version of the database file.
const migrationsTable = "schema_migrations"

// MigrateResult describes what happened during migration.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
	// Applied lists the files applied by this run, in order.
	Applied []string
}

// Migrate applies the .sql files of fsys that the database has not seen yet.
// A nil fsys or one without .sql files applies nothing. A file that fails is
// rolled back and the recorded version is left at the last good file.
func Migrate(db *sql.DB, fsys fs.FS, logger *zap.Logger) (*MigrateResult, error) {
	files, err := listMigrations(fsys)
	if err != nil {
		return nil, &MigrationError{Err: fmt.Errorf("list migrations: %w", err)}
	}
	if len(files) == 0 {
		logger.Info("no migrations to apply")
		return &MigrateResult{}, nil
	}

	src := newDirSource(fsys, files)
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, migrationFailure(0, "", fmt.Errorf("migration driver: %w", err))
	}
	m, err := migrate.NewWithInstance("sql", src, "sqlite3", driver)
	if err != nil {
		return nil, &MigrationError{Err: fmt.Errorf("migration instance: %w", err)}
	}
	m.Log = &migrateLogger{logger: logger}

	before, err := currentVersion(m)
	if err != nil {
		return nil, migrationFailure(0, "", err)
	}
	if before.dirty {
		// A previous run stopped inside a file. Each file runs in a
		// transaction, so the database is still at the version before it.
		logger.Warn("resetting dirty migration state", zap.Uint("version", before.version))
		if err := forceBefore(m, before.version); err != nil {
			return nil, migrationFailure(before.version, src.name(before.version), err)
		}
		before.version--
	}

	err = m.Up()
	changed := true
	if errors.Is(err, migrate.ErrNoChange) {
		changed = false
		err = nil
	}
	if err != nil {
		after, verr := currentVersion(m)
		if verr == nil && after.dirty {
			if ferr := forceBefore(m, after.version); ferr != nil {
				logger.Error("failed to reset migration version", zap.Error(ferr))
			}
			return nil, migrationFailure(after.version, src.name(after.version), err)
		}
		return nil, migrationFailure(0, "", err)
	}

	after, err := currentVersion(m)
	if err != nil {
		return nil, migrationFailure(0, "", err)
	}

	var applied []string
	for _, f := range files {
		if f.version > before.version && f.version <= after.version {
			applied = append(applied, f.name)
		}
	}
	metrics.DBMigrationsApplied.Add(float64(len(applied)))
	if changed {
		logger.Info("migrations applied", zap.Uint("version", after.version), zap.Strings("files", applied))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", after.version))
	}

	return &MigrateResult{
		Version: after.version,
		Dirty:   after.dirty,
		Changed: changed,
		Applied: applied,
	}, nil
}

type versionState struct {
	version uint
	dirty   bool
}

func currentVersion(m *migrate.Migrate) (versionState, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return versionState{}, nil
	}
	if err != nil {
		return versionState{}, fmt.Errorf("read migration version: %w", err)
	}
	return versionState{version: v, dirty: dirty}, nil
}

// forceBefore records the version preceding v as clean.
func forceBefore(m *migrate.Migrate, v uint) error {
	prev := int(v) - 1
	if prev == 0 {
		prev = database.NilVersion
	}
	return m.Force(prev)
}

// migrationFailure keeps busy errors unwrapped so the open sequence can retry.
func migrationFailure(version uint, name string, err error) error {
	if IsBusy(err) {
		return err
	}
	return &MigrationError{Version: version, Name: name, Err: err}
}

// migrateLogger forwards golang-migrate's log lines to zap.
type migrateLogger struct {
	logger *zap.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
