package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/matheus3301/clinic/internal/bus"
	"github.com/matheus3301/clinic/internal/config"
	"github.com/matheus3301/clinic/internal/status"
	"github.com/matheus3301/clinic/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name that tracks the database
// connection state. The empty service name tracks the daemon as a whole.
const HealthService = "clinic.database"

// Server serves the standard gRPC health protocol on the daemon's Unix socket.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	socketPath string
	bus        *bus.Bus
	manager    *store.Manager
	logger     *zap.Logger

	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewServer creates the health server for the configured socket.
func NewServer(cfg *config.Config, logger *zap.Logger, b *bus.Bus, m *store.Manager) *Server {
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &Server{
		grpcServer: srv,
		health:     hs,
		socketPath: cfg.SocketPath(),
		bus:        b,
		manager:    m,
		logger:     logger.Named("grpc"),
	}
}

// Start binds the socket and serves in the background.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	// Clean stale socket if it exists.
	if _, err := os.Stat(s.socketPath); err == nil {
		_ = os.Remove(s.socketPath)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.listener = listener

	events, unsubscribe := s.bus.Subscribe(bus.KindStateChanged, 16)
	s.setStatus(s.manager.State())

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.watch(ctx, events, unsubscribe)

	go func() {
		s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
		if err := s.grpcServer.Serve(listener); err != nil {
			s.logger.Error("gRPC server error", zap.Error(err))
		}
	}()
	return nil
}

// watch mirrors connection state changes into the health service.
func (s *Server) watch(ctx context.Context, events <-chan bus.Event, unsubscribe func()) {
	defer close(s.done)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			if change, ok := evt.Payload.(status.Change); ok {
				s.setStatus(change.To)
			}
		}
	}
}

func (s *Server) setStatus(state status.State) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if state == status.Ready {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(HealthService, st)
	s.health.SetServingStatus("", st)
}

// Stop performs a graceful shutdown and removes the socket file. Open Watch
// streams are cut when ctx ends. Stop on a server that never started is a no-op.
func (s *Server) Stop(ctx context.Context) {
	if s.listener == nil {
		return
	}
	s.logger.Info("gRPC server stopping")
	s.cancel()
	<-s.done
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.logger.Warn("gRPC graceful stop timed out, closing connections")
		s.grpcServer.Stop()
		<-stopped
	}
	s.listener = nil
	_ = os.Remove(s.socketPath)
}
