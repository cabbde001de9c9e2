package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/CTAG07/chainclass/pkg/chain"
	"github.com/CTAG07/chainclass/pkg/store"
)

// Server serves the classification API. It keeps an in-memory copy of the
// stored model: classification reads it under mu, and every mutation goes to
// the store first and then swaps in a freshly loaded model.
type Server struct {
	config    *Config
	store     *store.Store
	keys      *KeyStore
	logger    *slog.Logger
	smoothing chain.Smoothing
	mu        sync.RWMutex
	model     *chain.Model[string, string]
	writeMu   sync.Mutex // serializes store mutations with their reload
	mux       *http.ServeMux
}

// NewServer creates a Server and loads the current model from the store.
func NewServer(ctx context.Context, a *app) (*Server, error) {
	smoothing, err := parseSmoothing(a.config.Smoothing)
	if err != nil {
		return nil, err
	}
	s := &Server{
		config:    a.config,
		store:     a.store,
		keys:      a.keys,
		logger:    a.logger,
		smoothing: smoothing,
		mux:       http.NewServeMux(),
	}
	if err = s.reload(ctx); err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	s.registerRoutes(s.mux)
	return s, nil
}

// Handler returns the root handler with request IDs and authentication
// attached.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.authenticate(s.mux))
}

// reload replaces the in-memory model with the stored one.
func (s *Server) reload(ctx context.Context) error {
	model, err := s.store.Load(ctx, chain.WithSmoothing(s.smoothing))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.model = model
	s.mu.Unlock()
	return nil
}

// mutate runs fn against the store and reloads the model afterwards, even if
// fn failed part way. The reload ignores cancellation of ctx: once fn has
// committed, the in-memory model must follow the store.
func (s *Server) mutate(ctx context.Context, fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	err := fn()
	if rerr := s.reload(context.WithoutCancel(ctx)); rerr != nil {
		return errors.Join(err, fmt.Errorf("reload failed: %w", rerr))
	}
	return err
}

// posterior scores seqs against the current model.
func (s *Server) posterior(seqs [][]string, stable bool) (chain.Posterior[string], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if stable {
		return s.model.StablePosteriorOf(seqs)
	}
	return s.model.PosteriorOf(seqs)
}

// serve runs the HTTP server until ctx is cancelled or SIGINT/SIGTERM arrives,
// then shuts it down gracefully.
func serve(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config, logger := a.config, a.logger
	server, err := NewServer(ctx, a)
	if err != nil {
		return err
	}
	httpServer := &http.Server{Addr: config.Server.Addr, Handler: server.Handler()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting chainclass api server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err = <-errCh:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Stopping api server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()
	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
		return err
	}
	logger.Info("HTTP server stopped.")
	return nil
}
