package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/matheus3301/clinic/internal/metrics"
	"go.uber.org/zap"
)

// Statement is one entry of a transaction batch.
type Statement struct {
	SQL  string
	Args []any
}

// Stmt builds a Statement.
func Stmt(query string, args ...any) Statement {
	return Statement{SQL: query, Args: args}
}

// RunTransaction runs stmts in order inside one transaction and returns one
// Result per statement. The first failing statement rolls the whole batch
// back and is reported as *StatementError; later statements are not run.
// Only BEGIN is retried on busy, since nothing has been written yet.
func (m *Manager) RunTransaction(ctx context.Context, stmts []Statement) ([]Result, error) {
	db, err := m.GetConnection(ctx)
	if err != nil {
		return nil, err
	}

	txID := uuid.NewString()
	logger := m.logger.With(zap.String("tx", txID), zap.Int("statements", len(stmts)))

	var tx *sql.Tx
	err = Retry(ctx, m.opts.queryPolicy(), IsBusy, m.retryLogger("begin"), func(ctx context.Context) error {
		var err error
		tx, err = db.BeginTx(ctx, nil)
		return err
	})
	if err != nil {
		metrics.DBTransactions.WithLabelValues("begin_failed").Inc()
		return nil, m.classifyFailure("begin", "BEGIN", err)
	}

	results := make([]Result, 0, len(stmts))
	for i, st := range stmts {
		r, err := tx.ExecContext(ctx, st.SQL, st.Args...)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("rollback failed", zap.Error(rbErr))
			}
			metrics.DBTransactions.WithLabelValues("rolled_back").Inc()
			logger.Warn("transaction rolled back", zap.Int("index", i), zap.Error(err))
			return nil, &StatementError{Index: i, Query: st.SQL, Err: err}
		}
		var res Result
		res.LastInsertID, _ = r.LastInsertId()
		res.RowsAffected, _ = r.RowsAffected()
		results = append(results, res)
	}

	if err := tx.Commit(); err != nil {
		metrics.DBTransactions.WithLabelValues("rolled_back").Inc()
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	metrics.DBTransactions.WithLabelValues("committed").Inc()
	logger.Debug("transaction committed")
	return results, nil
}
