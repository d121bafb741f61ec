package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/matheus3301/clinic/internal/bus"
	"github.com/matheus3301/clinic/internal/metrics"
	"github.com/matheus3301/clinic/internal/status"
	"go.uber.org/zap"
)

// Options configures a Manager.
type Options struct {
	// Path is the resolved database file.
	Path string
	// MigrationsDir, when set, is read instead of Migrations. A directory
	// that does not exist means there is nothing to apply.
	MigrationsDir string
	// Migrations is the bundled schema used when MigrationsDir is empty. May be nil.
	Migrations fs.FS

	BusyTimeout  time.Duration
	MaxOpenConns int

	// MaxRetries and RetryBaseDelay form the default budget of each statement.
	MaxRetries     int
	RetryBaseDelay time.Duration

	// ConnectDelay is the fixed wait between busy open attempts.
	// ConnectMaxRetries bounds them; negative means no limit.
	ConnectDelay      time.Duration
	ConnectMaxRetries int
}

// DefaultOptions returns the production defaults for the database at path.
func DefaultOptions(path string) Options {
	return Options{
		Path:              path,
		BusyTimeout:       60 * time.Second,
		MaxOpenConns:      1,
		MaxRetries:        3,
		RetryBaseDelay:    500 * time.Millisecond,
		ConnectDelay:      time.Second,
		ConnectMaxRetries: 30,
	}
}

func (o Options) queryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: o.MaxRetries, Backoff: LinearBackoff(o.RetryBaseDelay)}
}

func (o Options) connectPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: o.ConnectMaxRetries, Backoff: ConstantBackoff(o.ConnectDelay)}
}

func (o Options) migrationsFS() (fs.FS, error) {
	if o.MigrationsDir == "" {
		return o.Migrations, nil
	}
	info, err := os.Stat(o.MigrationsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations path %s is not a directory", o.MigrationsDir)
	}
	return os.DirFS(o.MigrationsDir), nil
}

// pendingConn is the shared result of one in-flight open sequence.
type pendingConn struct {
	done chan struct{}
	db   *sql.DB
	err  error
}

func (p *pendingConn) wait(ctx context.Context) (*sql.DB, error) {
	select {
	case <-p.done:
		return p.db, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Manager owns the process's database handle. The handle is opened lazily on
// first use; concurrent callers share a single open attempt.
type Manager struct {
	opts   Options
	logger *zap.Logger
	state  *status.Machine
	bus    *bus.Bus

	mu       sync.Mutex
	db       *sql.DB
	pending  *pendingConn
	migrated *MigrateResult

	// open is the physical open sequence; replaced in tests.
	open func(context.Context) (*sql.DB, *MigrateResult, error)
}

// NewManager creates a Manager in the Uninitialized state. State changes are
// published on b, which may be nil.
func NewManager(opts Options, logger *zap.Logger, b *bus.Bus) *Manager {
	m := &Manager{
		opts:   opts,
		logger: logger.Named("store"),
		state:  status.NewMachine(b),
		bus:    b,
	}
	m.open = m.openSequence
	return m
}

// GetConnection returns the ready handle, opening it first if needed.
// Callers arriving while an open is in flight wait for that same attempt.
// Cancelling ctx stops the wait, not the attempt.
func (m *Manager) GetConnection(ctx context.Context) (*sql.DB, error) {
	m.mu.Lock()
	switch m.state.Current() {
	case status.Ready:
		db := m.db
		m.mu.Unlock()
		return db, nil
	case status.Connecting:
		p := m.pending
		m.mu.Unlock()
		return p.wait(ctx)
	}

	p := &pendingConn{done: make(chan struct{})}
	m.pending = p
	m.transition(status.Connecting, nil)
	m.mu.Unlock()

	go m.connect(context.WithoutCancel(ctx), p)
	return p.wait(ctx)
}

func (m *Manager) connect(ctx context.Context, p *pendingConn) {
	var (
		db     *sql.DB
		result *MigrateResult
	)
	logRetry := m.retryLogger("connect")
	onRetry := func(attempt int, delay time.Duration, err error) {
		logRetry(attempt, delay, err)
		m.transition(status.Connecting, err)
	}
	err := Retry(ctx, m.opts.connectPolicy(), IsBusy, onRetry, func(ctx context.Context) error {
		var err error
		db, result, err = m.open(ctx)
		return err
	})
	var exhausted *ExhaustedRetriesError
	if errors.As(err, &exhausted) {
		exhausted.Op = "connect"
		metrics.DBRetriesExhausted.WithLabelValues("connect").Inc()
	}

	m.mu.Lock()
	m.pending = nil
	if err != nil {
		p.err = err
		m.transition(status.Failed, err)
	} else {
		m.db = db
		m.migrated = result
		p.db = db
		m.transition(status.Ready, nil)
		if result != nil {
			m.logger.Info("database ready",
				zap.String("path", m.opts.Path),
				zap.Uint("schema_version", result.Version),
				zap.Strings("applied", result.Applied))
			if m.bus != nil {
				m.bus.Emit(bus.KindMigrated, *result)
			}
		}
	}
	m.mu.Unlock()
	close(p.done)
}

// Close closes the handle and returns the manager to Uninitialized. It is a
// no-op when the manager is not Ready, so shutdown paths may call it freely.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Current() != status.Ready {
		return nil
	}
	db := m.db
	m.db = nil
	err := db.Close()
	m.transition(status.Uninitialized, err)
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// transition moves the state machine and logs the change.
func (m *Manager) transition(to status.State, cause error) {
	from := m.state.Current()
	if err := m.state.Transition(to, cause); err != nil {
		m.logger.Error("state transition rejected", zap.Error(err))
		return
	}
	metrics.DBConnectionState.Set(float64(to.Ordinal()))

	fields := []zap.Field{
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("path", m.opts.Path),
	}
	switch {
	case to == status.Failed:
		m.logger.Error("database state changed", append(fields, zap.Error(cause))...)
	case cause != nil:
		m.logger.Warn("database state changed", append(fields, zap.Error(cause))...)
	default:
		m.logger.Info("database state changed", fields...)
	}
}

// State returns the current connection state.
func (m *Manager) State() status.State {
	return m.state.Current()
}

// Path returns the database file location.
func (m *Manager) Path() string {
	return m.opts.Path
}

// Migrations returns the outcome of the last successful open, or nil.
func (m *Manager) Migrations() *MigrateResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.migrated
}

// Stats returns connection pool statistics; zero when not Ready.
func (m *Manager) Stats() sql.DBStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return sql.DBStats{}
	}
	return m.db.Stats()
}

// HealthCheck verifies the open handle answers a trivial query. It does not
// open the database.
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	db := m.db
	m.mu.Unlock()
	if db == nil {
		return ErrNotReady
	}
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
