package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/matheus3301/clinic/internal/metrics"
	"github.com/mattn/go-sqlite3"
)

const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// connMaxIdleTime is how long idle connections are kept open.
	connMaxIdleTime = 30 * time.Minute
)

// pragmas returns the statements run on every new connection. busy_timeout
// goes first so the journal mode switch already waits on a locked file.
func pragmas(busyTimeout time.Duration) []string {
	return []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 10000",
		"PRAGMA temp_store = MEMORY",
	}
}

// connector opens SQLite connections with the pragmas applied through the
// driver's connect hook, so every pooled connection is configured the same way.
type connector struct {
	dsn    string
	driver *sqlite3.SQLiteDriver
}

func newConnector(path string, stmts []string) *connector {
	return &connector{
		// Immediate transactions take the write lock at BEGIN, where a busy
		// error is still safe to retry.
		dsn: "file:" + path + "?_txlock=immediate",
		driver: &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				for _, stmt := range stmts {
					if _, err := conn.Exec(stmt, nil); err != nil {
						return fmt.Errorf("%s: %w", stmt, err)
					}
				}
				return nil
			},
		},
	}
}

func (c *connector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c *connector) Driver() driver.Driver {
	return c.driver
}

// openSequence performs one physical open: create the file, apply pragmas,
// run migrations. Busy errors are returned unwrapped so the caller can retry
// the whole sequence.
func (m *Manager) openSequence(ctx context.Context) (*sql.DB, *MigrateResult, error) {
	path := m.opts.Path
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		metrics.DBOpenAttempts.WithLabelValues("error").Inc()
		return nil, nil, &OpenError{Path: path, Err: fmt.Errorf("create directory: %w", err)}
	}

	db := sql.OpenDB(newConnector(path, pragmas(m.opts.BusyTimeout)))
	db.SetMaxOpenConns(m.opts.MaxOpenConns)
	db.SetMaxIdleConns(m.opts.MaxOpenConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		if IsBusy(err) {
			metrics.DBOpenAttempts.WithLabelValues("busy").Inc()
			return nil, nil, err
		}
		metrics.DBOpenAttempts.WithLabelValues("error").Inc()
		return nil, nil, &OpenError{Path: path, Err: err}
	}

	// The file exists after the first connection.
	_ = os.Chmod(path, filePermissions)

	fsys, err := m.opts.migrationsFS()
	if err != nil {
		_ = db.Close()
		metrics.DBOpenAttempts.WithLabelValues("error").Inc()
		return nil, nil, &MigrationError{Err: err}
	}
	result, err := Migrate(db, fsys, m.logger)
	if err != nil {
		_ = db.Close()
		if IsBusy(err) {
			metrics.DBOpenAttempts.WithLabelValues("busy").Inc()
			return nil, nil, err
		}
		metrics.DBOpenAttempts.WithLabelValues("error").Inc()
		return nil, nil, err
	}

	metrics.DBOpenAttempts.WithLabelValues("ok").Inc()
	return db, result, nil
}
