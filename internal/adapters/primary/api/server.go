package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/atomic"

	"github.com/sufield/securechain/internal/core/domain"
	"github.com/sufield/securechain/internal/core/errors"
	"github.com/sufield/securechain/internal/core/ports"
)

// Routes served by the secure endpoint.
const (
	MessagePath = "/api/secure/message"
	HealthPath  = "/api/secure/health"
	LivezPath   = "/livez"
	ReadyzPath  = "/readyz"
	MetricsPath = "/metrics"
)

const (
	maxRequestBytes   = 1 << 20
	readHeaderTimeout = 10 * time.Second
)

// ServerConfig wires a Server. TLSConfig must be able to serve a certificate.
type ServerConfig struct {
	Addr      string
	TLSConfig *tls.Config

	Messages ports.MessageService
	Health   ports.HealthService

	// Recorder counts requests by route and status. Optional.
	Recorder RequestRecorder

	// MetricsAddr serves Gatherer over plain HTTP on its own listener. Empty disables it.
	MetricsAddr string
	Gatherer    prometheus.Gatherer

	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// Server is the HTTPS endpoint for the secure message and health routes.
type Server struct {
	cfg     ServerConfig
	logger  *slog.Logger
	handler http.Handler
	ready   atomic.Bool

	mu            sync.Mutex
	httpServer    *http.Server
	metricsServer *http.Server
	addr          net.Addr
}

// NewServer validates cfg and builds the router.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.TLSConfig == nil {
		return nil, &errors.ValidationError{Field: "TLSConfig", Value: nil, Message: "TLS configuration cannot be nil"}
	}
	if cfg.Messages == nil {
		return nil, &errors.ValidationError{Field: "Messages", Value: nil, Message: "message service cannot be nil"}
	}
	if cfg.Health == nil {
		return nil, &errors.ValidationError{Field: "Health", Value: nil, Message: "health service cannot be nil"}
	}
	if cfg.MetricsAddr != "" && cfg.Gatherer == nil {
		return nil, &errors.ValidationError{Field: "Gatherer", Value: nil, Message: "metrics listener needs a gatherer"}
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = ports.DefaultShutdownTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{cfg: cfg, logger: cfg.Logger}
	s.handler = otelhttp.NewHandler(s.routes(), "securechain-server")
	return s, nil
}

// Handler returns the instrumented router, for mounting under a test server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetReady flips the /readyz answer.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Addr returns the bound HTTPS address once serving.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(s.logger, s.cfg.Recorder))
	r.Use(identity(s.logger))

	r.Route("/api/secure", func(r chi.Router) {
		r.Get("/message", s.handleGetMessage)
		r.Post("/message", s.handlePostMessage)
		r.Get("/health", s.handleHealth)
	})
	r.Get(LivezPath, s.handleLivez)
	r.Get(ReadyzPath, s.handleReadyz)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no such route", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", "")
	})
	return r
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	caller, _ := PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, s.cfg.Messages.Greeting(r.Context(), caller))
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var in domain.Message
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&in); err != nil {
		s.logger.Debug("Rejected malformed message",
			"error", err,
			"request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusBadRequest,
			errors.ErrInvalidRequest.Code, errors.ErrInvalidRequest.Message, err.Error())
		return
	}

	caller, _ := PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, s.cfg.Messages.Acknowledge(r.Context(), caller, in))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Health.Check(r.Context()))
}

func (s *Server) handleLivez(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusUp)})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": string(domain.StatusDown)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusUp)})
}

// ListenAndServe binds cfg.Addr and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts TLS connections on ln until ctx is canceled, then drains in-flight
// requests for at most ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 2)

	s.mu.Lock()
	s.addr = ln.Addr()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		TLSConfig:         s.cfg.TLSConfig,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	httpServer := s.httpServer
	if s.cfg.MetricsAddr != "" {
		s.metricsServer = newMetricsServer(s.cfg.MetricsAddr, s.cfg.Gatherer)
		metricsServer := s.metricsServer
		go func() {
			s.logger.Info("Metrics listener started", "addr", s.cfg.MetricsAddr)
			errCh <- metricsServer.ListenAndServe()
		}()
	}
	s.mu.Unlock()

	go func() {
		errCh <- httpServer.ServeTLS(ln, "", "")
	}()

	s.SetReady(true)
	s.logger.Info("Secure server started", "addr", ln.Addr().String())

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !stderrors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// Shutdown marks the server not ready and stops both listeners gracefully. Only the
// first call after Serve does any work.
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetReady(false)

	s.mu.Lock()
	httpServer, metricsServer := s.httpServer, s.metricsServer
	s.httpServer, s.metricsServer = nil, nil
	s.mu.Unlock()

	if httpServer == nil && metricsServer == nil {
		return nil
	}

	var errs []error
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down HTTPS server: %w", err))
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down metrics server: %w", err))
		}
	}
	s.logger.Info("Secure server stopped")
	return stderrors.Join(errs...)
}

func newMetricsServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

type errorBody struct {
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	Path      string `json:"path"`
	RequestID string `json:"requestId,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message, detail string) {
	writeJSON(w, status, errorBody{
		Status:    status,
		Error:     code,
		Message:   message,
		Detail:    detail,
		Path:      r.URL.Path,
		RequestID: RequestIDFromContext(r.Context()),
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
