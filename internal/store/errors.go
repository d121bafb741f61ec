package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4/database"
	"github.com/mattn/go-sqlite3"
)

// ErrBusy matches any error caused by the engine reporting the file as busy
// or locked, including *ExhaustedRetriesError.
var ErrBusy = errors.New("database busy")

// ErrNotReady is returned by operations that need an open handle when there is none.
var ErrNotReady = errors.New("database not ready")

// IsBusy reports whether err comes from SQLITE_BUSY or SQLITE_LOCKED.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBusy) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	// golang-migrate keeps the driver error in OrigErr without unwrapping it.
	var dbErr *database.Error
	if errors.As(err, &dbErr) && dbErr.OrigErr != nil {
		return IsBusy(dbErr.OrigErr)
	}
	return false
}

// OpenError is returned when the handle cannot be created for a non-busy reason.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open database %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// MigrationError is returned when a migration file fails to apply.
type MigrationError struct {
	Version uint
	Name    string
	Err     error
}

func (e *MigrationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("migrate: %v", e.Err)
	}
	return fmt.Sprintf("migration %d (%s): %v", e.Version, e.Name, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// QueryError wraps a non-busy engine failure during a statement.
type QueryError struct {
	Op    string
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ExhaustedRetriesError is returned when an operation was still busy after
// its retry budget ran out.
type ExhaustedRetriesError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("%s: still busy after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrBusy) true for exhausted retries.
func (e *ExhaustedRetriesError) Is(target error) bool { return target == ErrBusy }

// StatementError reports which statement of a transaction failed.
// The transaction was rolled back and later statements were not run.
type StatementError struct {
	Index int
	Query string
	Err   error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("transaction statement %d: %v", e.Index, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }
