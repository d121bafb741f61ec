package store

import (
	"context"
	"testing"

	"github.com/matheus3301/clinic/internal/metrics"
	"github.com/matheus3301/clinic/internal/status"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStateTransitionsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := NewManager(testOptions(t), zap.New(core), nil)
	t.Cleanup(func() { _ = m.Close() })

	if _, err := m.GetConnection(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, entry := range logs.FilterMessage("database state changed").All() {
		got = append(got, entry.ContextMap()["to"].(string))
	}
	want := []string{string(status.Connecting), string(status.Ready), string(status.Uninitialized)}
	if len(got) != len(want) {
		t.Fatalf("logged transitions %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, got[i], want[i])
		}
	}
	if logs.FilterMessage("database ready").Len() != 1 {
		t.Error("missing database ready entry")
	}
}

func TestTransactionMetrics(t *testing.T) {
	m := testManager(t, testOptions(t), nil)
	ctx := context.Background()

	committed := testutil.ToFloat64(metrics.DBTransactions.WithLabelValues("committed"))
	rolledBack := testutil.ToFloat64(metrics.DBTransactions.WithLabelValues("rolled_back"))

	if _, err := m.RunTransaction(ctx, []Statement{Stmt("INSERT INTO patients (name) VALUES ('A')")}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RunTransaction(ctx, []Statement{Stmt("INSERT INTO nowhere VALUES (1)")}); err == nil {
		t.Fatal("expected failure")
	}

	if d := testutil.ToFloat64(metrics.DBTransactions.WithLabelValues("committed")) - committed; d != 1 {
		t.Errorf("committed delta = %v, want 1", d)
	}
	if d := testutil.ToFloat64(metrics.DBTransactions.WithLabelValues("rolled_back")) - rolledBack; d != 1 {
		t.Errorf("rolled_back delta = %v, want 1", d)
	}
	if got := testutil.ToFloat64(metrics.DBConnectionState); got != float64(status.Ready.Ordinal()) {
		t.Errorf("state gauge = %v, want ready", got)
	}
}
