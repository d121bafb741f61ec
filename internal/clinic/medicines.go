package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/clinic/internal/store"
)

const medicineColumns = "id, name, dosage, stock, created_at"

// Medicines stores the clinic's drug inventory.
type Medicines struct {
	db DB
}

// NewMedicines creates a Medicines repository.
func NewMedicines(db DB) *Medicines {
	return &Medicines{db: db}
}

// Create inserts a medicine and returns it with its ID.
func (r *Medicines) Create(ctx context.Context, m Medicine) (*Medicine, error) {
	if strings.TrimSpace(m.Name) == "" {
		return nil, errors.New("medicine name is required")
	}
	res, err := r.db.Execute(ctx,
		"INSERT INTO medicines (name, dosage, stock) VALUES (?, ?, ?)",
		m.Name, m.Dosage, m.Stock)
	if err != nil {
		return nil, fmt.Errorf("create medicine: %w", err)
	}
	return r.Get(ctx, res.LastInsertID)
}

// Get returns the medicine with id.
func (r *Medicines) Get(ctx context.Context, id int64) (*Medicine, error) {
	row, err := r.db.QueryOne(ctx, "SELECT "+medicineColumns+" FROM medicines WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, notFound("medicine", id)
	}
	return medicineFromRow(row), nil
}

// List returns medicines sorted by name.
func (r *Medicines) List(ctx context.Context) ([]Medicine, error) {
	rows, err := r.db.QueryAll(ctx, "SELECT "+medicineColumns+" FROM medicines ORDER BY name")
	if err != nil {
		return nil, err
	}
	return medicinesFromRows(rows), nil
}

// Search returns medicines whose name contains term, case-insensitively.
func (r *Medicines) Search(ctx context.Context, term string) ([]Medicine, error) {
	rows, err := r.db.QueryAll(ctx,
		"SELECT "+medicineColumns+" FROM medicines WHERE name LIKE ? ESCAPE '\\' ORDER BY name",
		"%"+escapeLike(term)+"%")
	if err != nil {
		return nil, err
	}
	return medicinesFromRows(rows), nil
}

// AdjustStock adds delta to a medicine's stock. The stock cannot go negative.
func (r *Medicines) AdjustStock(ctx context.Context, id, delta int64) error {
	res, err := r.db.Execute(ctx, "UPDATE medicines SET stock = stock + ? WHERE id = ?", delta, id)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	if res.RowsAffected == 0 {
		return notFound("medicine", id)
	}
	return nil
}

// Delete removes a medicine.
func (r *Medicines) Delete(ctx context.Context, id int64) error {
	res, err := r.db.Execute(ctx, "DELETE FROM medicines WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete medicine: %w", err)
	}
	if res.RowsAffected == 0 {
		return notFound("medicine", id)
	}
	return nil
}

func medicineFromRow(row store.Row) *Medicine {
	return &Medicine{
		ID:        row.Int64("id"),
		Name:      row.String("name"),
		Dosage:    row.String("dosage"),
		Stock:     row.Int64("stock"),
		CreatedAt: row.Int64("created_at"),
	}
}

func medicinesFromRows(rows []store.Row) []Medicine {
	out := make([]Medicine, 0, len(rows))
	for _, row := range rows {
		out = append(out, *medicineFromRow(row))
	}
	return out
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
