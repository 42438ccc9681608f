// ABOUTME: Gateway orchestrator that owns the HTTP server and the served snapshot
// ABOUTME: Manages snapshot loading, hot-swap watching, health endpoints, and shutdown

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/hub-gateway/internal/config"
	"github.com/2389/hub-gateway/internal/fingerprint"
	"github.com/2389/hub-gateway/internal/hub"
	"github.com/2389/hub-gateway/internal/negotiate"
	"github.com/2389/hub-gateway/internal/store"
)

// openTimeout bounds opening and verifying a snapshot file
const openTimeout = 10 * time.Second

// Gateway orchestrates the hub-gateway server components.
// It serves the hub API over HTTP from the current snapshot.
type Gateway struct {
	config     *config.Config
	compressor *negotiate.Compressor
	snapshots  *snapshotHolder
	httpServer *http.Server
	watcher    *watcher
	logger     *slog.Logger

	// openStore opens a snapshot file; replaced in tests
	openStore func(ctx context.Context, path string) (store.Store, error)
}

// New creates a gateway serving the SQLite snapshot named by cfg.
// The snapshot must open cleanly; an unusable file is a startup error
// wrapping store.ErrUnavailable.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	openStore := func(ctx context.Context, path string) (store.Store, error) {
		return store.OpenSQLite(ctx, cfg.Database.Driver, path)
	}

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	s, err := openStore(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}

	gw, err := newGateway(cfg, s, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	gw.openStore = openStore
	return gw, nil
}

// newGateway wires a gateway around an already opened store
func newGateway(cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	compressor, err := negotiate.NewCompressor(cfg.Compression.GzipLevel, cfg.Compression.ZstdLevel)
	if err != nil {
		return nil, fmt.Errorf("creating compressor: %w", err)
	}

	gw := &Gateway{
		config:     cfg,
		compressor: compressor,
		logger:     logger.With("component", "gateway"),
	}
	gw.snapshots = newSnapshotHolder(gw.newSnapshot(s))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /health/ready", gw.handleReady)
	gw.registerRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.middleware(mux),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	return gw, nil
}

// newSnapshot pairs a store with a fresh assembler and an empty cache.
// Tokens cached for one snapshot never leak into the next.
func (g *Gateway) newSnapshot(s store.Store) *snapshot {
	return &snapshot{
		store: s,
		assembler: hub.New(s, hub.Options{
			BaseURL: g.config.BaseURL(),
			HubURL:  g.config.Hub.HubURL,
			Logger:  g.logger,
		}),
		cache: fingerprint.New(g.compressor, fingerprint.Options{
			MinSize: g.config.Compression.MinSize,
			Logger:  g.logger,
		}),
		loadedAt: time.Now(),
	}
}

// Handler returns the HTTP handler serving every route
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// startServer starts the HTTP server in a goroutine, returning error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and, when configured, the snapshot watcher.
// It blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	g.logger.Info("starting gateway",
		"http_addr", g.config.Server.HTTPAddr,
		"snapshot", g.config.Database.Path,
	)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	if g.config.Database.Watch {
		w, err := g.watchSnapshot(ctx, g.config.Database.Path)
		if err != nil {
			_ = ln.Close()
			return err
		}
		g.watcher = w
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the HTTP server and releases the snapshot.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.watcher != nil {
		errs = appendCloseError(errs, "watcher close", g.watcher.Close())
	}
	errs = appendCloseError(errs, "store close", g.snapshots.close())

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// readiness is the body of /health/ready
type readiness struct {
	Status   string            `json:"status"`
	Plugins  int               `json:"plugins"`
	LoadedAt time.Time         `json:"loaded_at"`
	AgeSecs  int64             `json:"snapshot_age_seconds"`
	Cache    fingerprint.Stats `json:"cache"`
}

// handleReady returns 200 OK if the current snapshot answers queries,
// with the snapshot's age and cache counters.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	snap := g.snapshots.acquire()
	defer snap.release()

	counts, err := snap.store.CountPluginsByType(r.Context())
	if err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("snapshot unavailable"))
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(readiness{
		Status:   "ready",
		Plugins:  total,
		LoadedAt: snap.loadedAt.UTC(),
		AgeSecs:  int64(time.Since(snap.loadedAt).Seconds()),
		Cache:    snap.cache.Stats(),
	})
}
