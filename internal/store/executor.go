package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/matheus3301/clinic/internal/bus"
	"github.com/matheus3301/clinic/internal/metrics"
	"go.uber.org/zap"
)

// Result reports the effect of a write statement.
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

// Executor runs single statements through the Manager's handle, retrying
// busy errors within its budget.
type Executor struct {
	m      *Manager
	policy RetryPolicy
}

// WithRetries returns an Executor whose statements are retried at most n times.
func (m *Manager) WithRetries(n int) *Executor {
	p := m.opts.queryPolicy()
	p.MaxRetries = n
	return &Executor{m: m, policy: p}
}

func (m *Manager) executor() *Executor {
	return &Executor{m: m, policy: m.opts.queryPolicy()}
}

// Execute runs a write statement with the default retry budget.
func (m *Manager) Execute(ctx context.Context, query string, args ...any) (Result, error) {
	return m.executor().Execute(ctx, query, args...)
}

// QueryOne returns the first row of a query with the default retry budget.
func (m *Manager) QueryOne(ctx context.Context, query string, args ...any) (Row, error) {
	return m.executor().QueryOne(ctx, query, args...)
}

// QueryAll returns every row of a query with the default retry budget.
func (m *Manager) QueryAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	return m.executor().QueryAll(ctx, query, args...)
}

// Execute runs a statement that does not return rows.
func (e *Executor) Execute(ctx context.Context, query string, args ...any) (Result, error) {
	var res Result
	err := e.run(ctx, "execute", query, func(ctx context.Context, db *sql.DB) error {
		r, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		res.LastInsertID, _ = r.LastInsertId()
		res.RowsAffected, _ = r.RowsAffected()
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// QueryOne returns the first row of the query, or nil when nothing matches.
func (e *Executor) QueryOne(ctx context.Context, query string, args ...any) (Row, error) {
	var row Row
	err := e.run(ctx, "query_one", query, func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		row, err = scanFirst(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// QueryAll returns the query's rows in order. No match is an empty slice.
func (e *Executor) QueryAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	var out []Row
	err := e.run(ctx, "query_all", query, func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		out, err = scanAll(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Executor) run(ctx context.Context, op, query string, fn func(context.Context, *sql.DB) error) error {
	db, err := e.m.GetConnection(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	err = Retry(ctx, e.policy, IsBusy, e.m.retryLogger(op), func(ctx context.Context) error {
		return fn(ctx, db)
	})
	metrics.DBQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.DBQueriesTotal.WithLabelValues(op, "ok").Inc()
		return nil
	}
	metrics.DBQueriesTotal.WithLabelValues(op, "error").Inc()
	return e.m.classifyFailure(op, query, err)
}

// BusyRetry is the payload of db.busy_retry events.
type BusyRetry struct {
	Op      string
	Attempt int
	Delay   time.Duration
	Err     error
}

// retryLogger returns the RetryFunc that records a busy retry of op.
func (m *Manager) retryLogger(op string) RetryFunc {
	return func(attempt int, delay time.Duration, err error) {
		metrics.DBBusyRetries.WithLabelValues(op).Inc()
		m.logger.Warn("database busy, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if m.bus != nil {
			m.bus.Emit(bus.KindBusyRetry, BusyRetry{Op: op, Attempt: attempt, Delay: delay, Err: err})
		}
	}
}

// classifyFailure wraps a failed statement's error for the caller.
func (m *Manager) classifyFailure(op, query string, err error) error {
	var exhausted *ExhaustedRetriesError
	switch {
	case errors.As(err, &exhausted):
		exhausted.Op = op
		metrics.DBRetriesExhausted.WithLabelValues(op).Inc()
		return exhausted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &QueryError{Op: op, Query: query, Err: err}
}
