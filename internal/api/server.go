package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/infernum/internal/backend"
	"github.com/seantiz/infernum/internal/engine"
	"github.com/seantiz/infernum/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Settings are the inference options the HTTP layer applies to requests.
type Settings struct {
	// Model is the registry name of the model the engine runs.
	Model string
	// SampleLen is passed to the model with every request.
	SampleLen int
	// RejectWhenBusy refuses new inference while the engine is not idle.
	RejectWhenBusy bool
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router   *chi.Mux
	store    store.Store
	registry *backend.Registry
	engine   *backend.Engine
	settings Settings
	logger   *slog.Logger
	addr     string

	nextRequestID atomic.Uint64

	// records maps engine request ids to history record ids until the
	// result has been polled.
	recordsMu sync.Mutex
	records   map[uint64]string

	// stopping is closed when the HTTP server begins shutting down.
	stopping chan struct{}
	stopOnce sync.Once
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, s store.Store, reg *backend.Registry, eng *backend.Engine, settings Settings, logger *slog.Logger) *Server {
	if settings.SampleLen <= 0 {
		settings.SampleLen = backend.DefaultSampleLen
	}

	srv := &Server{
		router:   chi.NewRouter(),
		store:    s,
		registry: reg,
		engine:   eng,
		settings: settings,
		logger:   logger,
		addr:     addr,
		records:  make(map[uint64]string),
		stopping: make(chan struct{}),
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.instrument)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/", s.handleWelcome)
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/models", s.handleListModels)
		r.Get("/state", s.handleGetState)
		r.Get("/state/stream", s.handleStreamState)
		r.Post("/inference", s.handleInference)
		r.Get("/results", s.handleResults)
		r.Get("/records", s.handleListRecords)
		r.Get("/records/{id}", s.handleGetRecord)
		r.Get("/stats", s.handleGetStats)
	})

	// Unversioned paths kept for older clients.
	s.router.Post("/inference", s.handleInference)
	s.router.Get("/results", s.handleResults)
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run listens on the configured address and serves until SIGINT or SIGTERM
// arrives. A second signal during shutdown kills the process.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is done or the listener fails, then
// shuts down. State streams are ended first so they cannot hold the HTTP
// drain open, and the engine is always stopped: the worker finishes the
// running request and every queued one before Serve returns. Outcomes nobody
// polled are written to their history records.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}
	httpServer.RegisterOnShutdown(s.stopStreams)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String(), "model", s.settings.Model)
		errCh <- httpServer.Serve(ln)
	}()

	var errs []error
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case err := <-errCh:
		errs = append(errs, fmt.Errorf("server error: %w", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	if err := s.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("engine shutdown: %w", err))
	}
	s.finishUnpolled(context.Background())

	s.logger.Info("server stopped")
	return errors.Join(errs...)
}

// stopStreams ends every open state stream. It is safe to call more than once.
func (s *Server) stopStreams() {
	s.stopOnce.Do(func() { close(s.stopping) })
}

// finishUnpolled stores the outcome of every response still waiting in the
// stopped engine.
func (s *Server) finishUnpolled(ctx context.Context) {
	n := 0
	for {
		res := s.engine.TryPollResponse()
		if res.Status == engine.PollEmpty {
			break
		}
		s.finishRecord(ctx, res.Response)
		n++
	}
	if n > 0 {
		s.logger.Info("recorded unpolled results", "count", n)
	}
}
