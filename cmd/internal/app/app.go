// Package app wires the sigrelay server runtime: config, logging, audit
// storage, metrics, HTTP routes and the signaling gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sigrelay/cmd/internal/audit"
	"sigrelay/cmd/internal/signal"
	"sigrelay/cmd/security/wrap"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// App is the sigrelay server runtime. It owns the DB pool, the audit
// recorder and everything the gateway needs.
type App struct {
	cfg Config
	log Logger

	dbPool   *pgxpool.Pool
	recorder *audit.Recorder
	registry *prometheus.Registry

	hub   *signal.Hub
	coord *signal.Coordinator
	ws    *signal.WSGateway
}

// New constructs a fully wired App. Callers must Close it (Run does so).
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)
	}

	var (
		reg     *prometheus.Registry
		metrics *signal.Metrics
	)
	if cfg.MetricsEnabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = signal.NewMetrics(reg)
	}

	store, pool, err := newAuditStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	recorder := audit.NewRecorder(log, store, cfg.AuditQueue)

	hub := signal.NewHub(log, metrics)
	coord := signal.NewCoordinator(log, hub,
		wrap.New(wrap.WithMinRSABits(cfg.WrapMinRSABits)),
		signal.WithMetrics(metrics),
		signal.WithAuditor(recorder),
	)

	return &App{
		cfg:      cfg,
		log:      log,
		dbPool:   pool,
		recorder: recorder,
		registry: reg,
		hub:      hub,
		coord:    coord,
		ws:       signal.NewWSGateway(log, hub, coord, cfg.WS),
	}, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return newHTTPHandler(a.log, a.cfg, httpDeps{
		dbPool:   a.dbPool,
		registry: a.registry,
		coord:    a.coord,
		ws:       a.ws,
	})
}

// Run serves HTTP until ctx is canceled or the listener fails, then shuts
// down gracefully and releases resources.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", base,
		"ws_url", wsBaseURL(base)+"/ws",
		"db_enabled", a.dbPool != nil,
		"metrics_enabled", a.registry != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		a.log.Error("app.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return runErr
}

// Close drains the audit recorder and releases the DB pool.
func (a *App) Close(ctx context.Context) error {
	err := a.recorder.Close(ctx)
	if a.dbPool != nil {
		a.dbPool.Close()
	}
	return err
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newAuditStore picks the audit backend: Postgres when a database URL is
// configured, SQLite when a file path is, otherwise nothing is persisted.
// The returned pool is owned by the caller.
func newAuditStore(ctx context.Context, cfg Config, log Logger) (audit.Store, *pgxpool.Pool, error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("audit: connect postgres: %w", err)
		}
		st, err := audit.NewPostgresStore(pool, audit.WithSchema(cfg.AuditSchema))
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("audit: ensure schema: %w", err)
		}
		log.Info("audit.store.postgres", "schema", cfg.AuditSchema)
		return st, pool, nil

	case cfg.AuditSQLitePath != "":
		st, err := audit.OpenSQLite(cfg.AuditSQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("audit: open sqlite: %w", err)
		}
		log.Info("audit.store.sqlite", "path", cfg.AuditSQLitePath)
		return st, nil, nil

	default:
		log.Info("audit.store.disabled")
		return audit.NopStore{}, nil, nil
	}
}
