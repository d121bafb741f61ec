package store

import (
	"context"
	"errors"
	"testing"
)

func TestRunTransactionCommits(t *testing.T) {
	m := testManager(t, testOptions(t), nil)
	ctx := context.Background()

	results, err := m.RunTransaction(ctx, []Statement{
		Stmt("INSERT INTO patients (name) VALUES (?)", "Ana"),
		Stmt("INSERT INTO patients (name) VALUES (?)", "Bia"),
		Stmt("UPDATE patients SET phone = ? WHERE name IN ('Ana', 'Bia')", "555"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].LastInsertID != 1 || results[1].LastInsertID != 2 {
		t.Errorf("insert ids = %d, %d, want 1, 2", results[0].LastInsertID, results[1].LastInsertID)
	}
	if results[2].RowsAffected != 2 {
		t.Errorf("update affected %d rows, want 2", results[2].RowsAffected)
	}
}

func TestRunTransactionRollsBackOnFirstError(t *testing.T) {
	m := testManager(t, testOptions(t), nil)
	ctx := context.Background()

	_, err := m.RunTransaction(ctx, []Statement{
		Stmt("INSERT INTO patients (name) VALUES (?)", "A"),
		Stmt("INSERT INTO no_such_table (name) VALUES (?)", "B"),
		Stmt("INSERT INTO patients (name) VALUES (?)", "C"),
	})
	var stmtErr *StatementError
	if !errors.As(err, &stmtErr) {
		t.Fatalf("err = %v, want *StatementError", err)
	}
	if stmtErr.Index != 1 {
		t.Errorf("failed index = %d, want 1", stmtErr.Index)
	}

	rows, err := m.QueryAll(ctx, "SELECT name FROM patients")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("found %d patients after rollback, want 0", len(rows))
	}
}

func TestRunTransactionForeignKey(t *testing.T) {
	m := testManager(t, testOptions(t), nil)

	_, err := m.RunTransaction(context.Background(), []Statement{
		Stmt("INSERT INTO appointments (reference, patient_id, scheduled_at) VALUES (?, ?, ?)", "ref-1", 999, 1700000000),
	})
	var stmtErr *StatementError
	if !errors.As(err, &stmtErr) || stmtErr.Index != 0 {
		t.Fatalf("err = %v, want foreign key failure at statement 0", err)
	}
}

func TestRunTransactionEmpty(t *testing.T) {
	m := testManager(t, testOptions(t), nil)

	results, err := m.RunTransaction(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestRunTransactionBeginBusy(t *testing.T) {
	opts := testOptions(t)
	opts.MaxRetries = 1
	m := testManager(t, opts, nil)
	ctx := context.Background()
	if _, err := m.GetConnection(ctx); err != nil {
		t.Fatal(err)
	}
	holdWriteLock(t, opts.Path)

	_, err := m.RunTransaction(ctx, []Statement{Stmt("INSERT INTO patients (name) VALUES ('X')")})
	var exhausted *ExhaustedRetriesError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want *ExhaustedRetriesError", err)
	}
	if exhausted.Op != "begin" {
		t.Errorf("op = %q, want begin", exhausted.Op)
	}
}
