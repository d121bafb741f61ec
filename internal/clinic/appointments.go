package clinic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/matheus3301/clinic/internal/store"
)

const appointmentColumns = "id, reference, patient_id, scheduled_at, notes, created_at"

// Appointments stores booked visits.
type Appointments struct {
	db DB
}

// NewAppointments creates an Appointments repository.
func NewAppointments(db DB) *Appointments {
	return &Appointments{db: db}
}

// Book creates an appointment and moves the patient's last_visit forward in
// one transaction. An unknown patient fails the whole booking.
func (r *Appointments) Book(ctx context.Context, patientID, scheduledAt int64, notes string) (*Appointment, error) {
	ref := uuid.NewString()
	results, err := r.db.RunTransaction(ctx, []store.Statement{
		store.Stmt(`INSERT INTO appointments (reference, patient_id, scheduled_at, notes)
			VALUES (?, ?, ?, ?)`, ref, patientID, scheduledAt, notes),
		store.Stmt(`UPDATE patients SET last_visit = MAX(COALESCE(last_visit, 0), ?)
			WHERE id = ?`, scheduledAt, patientID),
	})
	if err != nil {
		return nil, fmt.Errorf("book appointment: %w", err)
	}
	return r.Get(ctx, results[0].LastInsertID)
}

// Get returns the appointment with id.
func (r *Appointments) Get(ctx context.Context, id int64) (*Appointment, error) {
	row, err := r.db.QueryOne(ctx, "SELECT "+appointmentColumns+" FROM appointments WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, notFound("appointment", id)
	}
	return appointmentFromRow(row), nil
}

// GetByReference returns the appointment with the given booking reference.
func (r *Appointments) GetByReference(ctx context.Context, ref string) (*Appointment, error) {
	row, err := r.db.QueryOne(ctx, "SELECT "+appointmentColumns+" FROM appointments WHERE reference = ?", ref)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, notFound("appointment", ref)
	}
	return appointmentFromRow(row), nil
}

// ListByPatient returns a patient's appointments, earliest first.
func (r *Appointments) ListByPatient(ctx context.Context, patientID int64) ([]Appointment, error) {
	rows, err := r.db.QueryAll(ctx,
		"SELECT "+appointmentColumns+" FROM appointments WHERE patient_id = ? ORDER BY scheduled_at, id",
		patientID)
	if err != nil {
		return nil, err
	}
	out := make([]Appointment, 0, len(rows))
	for _, row := range rows {
		out = append(out, *appointmentFromRow(row))
	}
	return out, nil
}

// Cancel deletes an appointment.
func (r *Appointments) Cancel(ctx context.Context, id int64) error {
	res, err := r.db.Execute(ctx, "DELETE FROM appointments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}
	if res.RowsAffected == 0 {
		return notFound("appointment", id)
	}
	return nil
}

func appointmentFromRow(row store.Row) *Appointment {
	return &Appointment{
		ID:          row.Int64("id"),
		Reference:   row.String("reference"),
		PatientID:   row.Int64("patient_id"),
		ScheduledAt: row.Int64("scheduled_at"),
		Notes:       row.String("notes"),
		CreatedAt:   row.Int64("created_at"),
	}
}
