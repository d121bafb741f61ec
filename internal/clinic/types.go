// Package clinic holds the repositories for medicines, patients and
// appointments. They reach the database only through the store's
// connection manager.
package clinic

import (
	"context"

	"github.com/matheus3301/clinic/internal/store"
)

// DB is the part of *store.Manager the repositories use.
type DB interface {
	Execute(ctx context.Context, query string, args ...any) (store.Result, error)
	QueryOne(ctx context.Context, query string, args ...any) (store.Row, error)
	QueryAll(ctx context.Context, query string, args ...any) ([]store.Row, error)
	RunTransaction(ctx context.Context, stmts []store.Statement) ([]store.Result, error)
}

// Medicine is a stocked drug.
type Medicine struct {
	ID        int64
	Name      string
	Dosage    string
	Stock     int64
	CreatedAt int64
}

// Patient is a registered patient.
type Patient struct {
	ID        int64
	Name      string
	Phone     string
	BirthDate string
	LastVisit int64 // unix seconds, 0 if never seen
	CreatedAt int64
}

// Appointment is a booked visit.
type Appointment struct {
	ID          int64
	Reference   string
	PatientID   int64
	ScheduledAt int64 // unix seconds
	Notes       string
	CreatedAt   int64
}
