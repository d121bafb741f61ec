package client

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/clinic/internal/daemon"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startHealth(t *testing.T) (*health.Server, string) {
	t.Helper()
	// Use a short path to avoid macOS 104-char Unix socket limit.
	dir, err := os.MkdirTemp("/tmp", "clinic-client-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socket := filepath.Join(dir, "d.sock")

	listener, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatal(err)
	}
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(srv.Stop)
	return hs, socket
}

func TestDatabaseStatus(t *testing.T) {
	hs, socket := startHealth(t)
	hs.SetServingStatus(daemon.HealthService, healthpb.HealthCheckResponse_NOT_SERVING)

	c, err := New(socket)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := c.DatabaseStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %s, want NOT_SERVING", st)
	}

	go hs.SetServingStatus(daemon.HealthService, healthpb.HealthCheckResponse_SERVING)
	if err := c.WaitServing(ctx); err != nil {
		t.Fatalf("WaitServing: %v", err)
	}
}

func TestDatabaseStatusNoDaemon(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "missing.sock"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := c.DatabaseStatus(ctx); err == nil {
		t.Error("expected error without a daemon")
	}
}
