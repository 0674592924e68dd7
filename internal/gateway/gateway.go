// ABOUTME: Gateway wiring the registry, worker adapters, policy, and archive together
// ABOUTME: Owns the HTTP server lifecycle and route registration

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/arkgart/orchestra/internal/archive"
	"github.com/arkgart/orchestra/internal/config"
	"github.com/arkgart/orchestra/internal/policy"
	"github.com/arkgart/orchestra/internal/session"
	"github.com/arkgart/orchestra/internal/worker"
)

// workerStarter spawns the worker process for a session and returns a
// function that terminates it. Injectable so tests can fake workers.
type workerStarter func(sessionID string, req *worker.Request) (stop func(), err error)

// Gateway exposes orchestration sessions over HTTP: creation, streaming,
// history, exports, and policy preview.
type Gateway struct {
	cfg      *config.Config
	registry *session.Registry
	policy   policy.Evaluator
	archive  archive.Archive
	logger   *slog.Logger

	startWorker workerStarter
	httpServer  *http.Server
}

// New assembles a gateway from its collaborators. archiveStore may be
// nil when archival is disabled.
func New(cfg *config.Config, registry *session.Registry, eval policy.Evaluator, archiveStore archive.Archive, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		cfg:      cfg,
		registry: registry,
		policy:   eval,
		archive:  archiveStore,
		logger:   logger.With("component", "gateway"),
	}

	g.startWorker = func(sessionID string, req *worker.Request) (func(), error) {
		adapter, err := worker.Start(
			worker.Command{Path: cfg.Worker.Command, Args: cfg.Worker.Args},
			sessionID, req, registry, logger,
		)
		if err != nil {
			return nil, err
		}
		return adapter.Stop, nil
	}

	return g
}

// routes builds the HTTP mux for the gateway API.
func (g *Gateway) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/orchestrate", g.handleOrchestrate)
	mux.HandleFunc("GET /api/stream", g.handleStream)
	mux.HandleFunc("GET /ws/stream", g.handleStreamWS)
	mux.HandleFunc("GET /api/sessions/{id}", g.handleSessionInfo)
	mux.HandleFunc("GET /api/sessions/{id}/history", g.handleHistory)
	mux.HandleFunc("DELETE /api/sessions/{id}", g.handleCloseSession)
	mux.HandleFunc("GET /api/sessions/{id}/audit", g.handleAudit)
	mux.HandleFunc("GET /api/export/best", g.handleExportBest)
	mux.HandleFunc("GET /api/export/scoreboard", g.handleExportScoreboard)
	mux.HandleFunc("GET /api/policy", g.handlePolicyPreview)
	mux.HandleFunc("GET /api/health", g.handleHealth)

	return mux
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	g.registry.StartReaper(ctx, g.cfg.Sessions.IdleTTL, g.cfg.Sessions.ReapInterval)

	g.httpServer = &http.Server{
		Addr:    g.cfg.Server.HTTPAddr,
		Handler: g.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("http server listening", "addr", g.cfg.Server.HTTPAddr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	g.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	if g.archive != nil {
		if err := g.archive.Close(); err != nil {
			g.logger.Warn("archive close failed", "error", err)
		}
	}
	return nil
}

// Handler exposes the mux for tests.
func (g *Gateway) Handler() http.Handler {
	return g.routes()
}
