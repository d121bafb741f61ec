package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/clinic/internal/store"
)

const patientColumns = "id, name, phone, birth_date, last_visit, created_at"

// Patients stores patient records.
type Patients struct {
	db DB
}

// NewPatients creates a Patients repository.
func NewPatients(db DB) *Patients {
	return &Patients{db: db}
}

// Create inserts a patient and returns it with its ID.
func (r *Patients) Create(ctx context.Context, p Patient) (*Patient, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, errors.New("patient name is required")
	}
	res, err := r.db.Execute(ctx,
		"INSERT INTO patients (name, phone, birth_date) VALUES (?, ?, ?)",
		p.Name, p.Phone, p.BirthDate)
	if err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	return r.Get(ctx, res.LastInsertID)
}

// Get returns the patient with id.
func (r *Patients) Get(ctx context.Context, id int64) (*Patient, error) {
	row, err := r.db.QueryOne(ctx, "SELECT "+patientColumns+" FROM patients WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, notFound("patient", id)
	}
	return patientFromRow(row), nil
}

// List returns patients sorted by name.
func (r *Patients) List(ctx context.Context) ([]Patient, error) {
	rows, err := r.db.QueryAll(ctx, "SELECT "+patientColumns+" FROM patients ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	out := make([]Patient, 0, len(rows))
	for _, row := range rows {
		out = append(out, *patientFromRow(row))
	}
	return out, nil
}

// Update replaces a patient's contact details.
func (r *Patients) Update(ctx context.Context, p Patient) error {
	res, err := r.db.Execute(ctx,
		"UPDATE patients SET name = ?, phone = ?, birth_date = ? WHERE id = ?",
		p.Name, p.Phone, p.BirthDate, p.ID)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if res.RowsAffected == 0 {
		return notFound("patient", p.ID)
	}
	return nil
}

// Delete removes a patient and, through the foreign key, their appointments.
func (r *Patients) Delete(ctx context.Context, id int64) error {
	res, err := r.db.Execute(ctx, "DELETE FROM patients WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if res.RowsAffected == 0 {
		return notFound("patient", id)
	}
	return nil
}

func patientFromRow(row store.Row) *Patient {
	return &Patient{
		ID:        row.Int64("id"),
		Name:      row.String("name"),
		Phone:     row.String("phone"),
		BirthDate: row.String("birth_date"),
		LastVisit: row.Int64("last_visit"),
		CreatedAt: row.Int64("created_at"),
	}
}
