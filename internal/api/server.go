// Package api serves joined views and accepts write intents over a local
// HTTP interface, for UIs that run out of process.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/praneth2580/storix/internal/join"
	"github.com/praneth2580/storix/internal/store"
	"github.com/praneth2580/storix/internal/sync"
)

// Server timeouts.
const (
	readHeaderTimeout = 5 * time.Second
	requestTimeout    = 30 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Views is the read side of the API. Satisfied by *join.Engine.
type Views interface {
	Products() ([]*join.ProductView, error)
	ProductByID(id string) (*join.ProductView, error)
	Variants() ([]*join.VariantView, error)
	VariantByID(id string) (*join.VariantView, error)
	StockItems() ([]*join.StockView, error)
	StockByID(id string) (*join.StockView, error)
	Customers() ([]*join.CustomerView, error)
	CustomerByID(id string) (*join.CustomerView, error)
	Suppliers() ([]*join.SupplierView, error)
	SupplierByID(id string) (*join.SupplierView, error)
}

// Engine is the intent side of the API. Satisfied by *sync.Engine.
type Engine interface {
	CreateItem(ctx context.Context, t store.Table, data store.Record) (string, error)
	UpdateItem(ctx context.Context, t store.Table, id string, fields store.Record) error
	DeleteItem(ctx context.Context, t store.Table, id string) error
	Pending(ctx context.Context) ([]sync.Mutation, error)
	DiscardPending(ctx context.Context, seq int64) error
	SyncChanges(ctx context.Context) (*sync.Report, error)
	LastSync() string
	Settings() map[string]any
}

// Server routes HTTP requests to the view and sync engines.
type Server struct {
	views  Views
	engine Engine
	logger *slog.Logger
	router *chi.Mux
}

// NewServer creates a Server with its routes installed.
func NewServer(views Views, engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		views:  views,
		engine: engine,
		logger: logger,
		router: chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(requestTimeout))
	s.router.Use(s.logRequests)
}

func (s *Server) setupRoutes() {
	s.router.Get("/status", s.handleStatus)

	s.router.Route("/views", func(r chi.Router) {
		r.Get("/{kind}", s.handleListView)
		r.Get("/{kind}/{id}", s.handleGetView)
	})

	s.router.Route("/tables/{table}", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Patch("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})

	s.router.Get("/pending", s.handlePending)
	s.router.Delete("/pending/{seq}", s.handleDiscard)
	s.router.Post("/sync", s.handleSync)
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on addr and serves until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listening on %s: %w", addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)

	go func() { errc <- srv.Serve(ln) }()

	s.logger.Info("api listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		return fmt.Errorf("api: serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}

	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: serving: %w", err)
	}

	s.logger.Info("api stopped")

	return nil
}

// logRequests logs one debug line per request with its request id.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("api request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
