package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/matheus3301/clinic/internal/config"
	"github.com/matheus3301/clinic/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status          string `json:"status"`
	State           string `json:"state"`
	Path            string `json:"path"`
	SchemaVersion   uint   `json:"schemaVersion"`
	OpenConnections int    `json:"openConnections"`
	Error           string `json:"error,omitempty"`
}

// OpsServer exposes /healthz and /metrics over HTTP. It is disabled when
// the configured address is empty.
type OpsServer struct {
	addr    string
	srv     *http.Server
	manager *store.Manager
	logger  *zap.Logger

	listener net.Listener
}

// NewOpsServer creates the ops HTTP server.
func NewOpsServer(cfg *config.Config, logger *zap.Logger, m *store.Manager) *OpsServer {
	s := &OpsServer{
		addr:    cfg.Server.HTTPAddr,
		manager: m,
		logger:  logger.Named("ops"),
	}
	s.srv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Router returns the ops routes.
func (s *OpsServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// Addr returns the bound address, or "" when not listening.
func (s *OpsServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start listens on the configured address and serves in the background.
func (s *OpsServer) Start() error {
	if s.addr == "" {
		s.logger.Info("ops HTTP disabled")
		return nil
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	go func() {
		s.logger.Info("ops HTTP starting", zap.String("addr", listener.Addr().String()))
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops HTTP error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down within ctx's deadline.
func (s *OpsServer) Stop(ctx context.Context) {
	if s.listener == nil {
		return
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("ops HTTP shutdown", zap.Error(err))
	}
	s.listener = nil
}

func (s *OpsServer) healthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:          "healthy",
		State:           string(s.manager.State()),
		Path:            s.manager.Path(),
		OpenConnections: s.manager.Stats().OpenConnections,
	}
	if res := s.manager.Migrations(); res != nil {
		resp.SchemaVersion = res.Version
	}

	code := http.StatusOK
	if err := s.manager.HealthCheck(r.Context()); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method == http.MethodHead {
		return
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("write health response", zap.Error(err))
	}
}
