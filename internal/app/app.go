// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package app wires together all Concord components.
// This is the "composition root" - all dependencies are created and connected here.
package app

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/jllopis/concord/pkg/a2a/jsonrpc"
	"github.com/jllopis/concord/pkg/a2a/jsonrpc/client"
	"github.com/jllopis/concord/pkg/a2a/server"
	"github.com/jllopis/concord/pkg/agent"
	"github.com/jllopis/concord/pkg/config"
	"github.com/jllopis/concord/pkg/governance"
	"github.com/jllopis/concord/pkg/resilience"
	"github.com/jllopis/concord/pkg/router"
	"github.com/jllopis/concord/pkg/telemetry"

	_ "modernc.org/sqlite"
)

const shutdownTimeout = 10 * time.Second

// App holds the application state and components.
type App struct {
	cfg        *config.Config
	configPath string
	version    string
	logger     *slog.Logger

	registry  *prometheus.Registry
	shutdown  telemetry.ShutdownFunc
	metrics   *telemetry.Metrics
	gate      governance.Gate
	localGate *governance.LocalGate
	auditor   *governance.Auditor
	dbs       []*sql.DB

	handlers map[string]*server.Handler
	remotes  []*router.RemoteSpecialist
	mux      http.Handler
}

// Option configures the application.
type Option func(*App)

// WithLogger sets the root logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithConfigPath enables hot reload of the local policy table from path.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithVersion sets the version reported to telemetry.
func WithVersion(version string) Option {
	return func(a *App) { a.version = version }
}

// New creates a new application with all components wired.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	a := &App{cfg: cfg, version: "dev", handlers: make(map[string]*server.Handler)}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	if err := a.wire(); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) wire() error {
	// 1. Observability first so every component picks up the providers.
	a.registry = prometheus.NewRegistry()
	shutdown, err := telemetry.Setup(context.Background(), telemetry.Config{
		ServiceName:  a.cfg.Telemetry.ServiceName,
		Version:      a.version,
		Exporter:     a.cfg.Telemetry.Exporter,
		OTLPEndpoint: a.cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: a.cfg.Telemetry.OTLPInsecure,
		Registerer:   a.registry,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.shutdown = shutdown
	if a.metrics, err = telemetry.NewMetrics(); err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	// 2. Governance gate and audit trail.
	if err := a.createGovernance(); err != nil {
		return fmt.Errorf("create governance: %w", err)
	}

	// 3. Task store shared by every agent endpoint.
	store, err := a.createTaskStore()
	if err != nil {
		return fmt.Errorf("create task store: %w", err)
	}

	// 4. Specialists, then the orchestrator that routes to them.
	agentOpts := []agent.Option{
		agent.WithGate(a.gate),
		agent.WithAuditor(a.auditor),
		agent.WithLogger(a.logger),
		agent.WithMetrics(a.metrics),
	}
	baseURL := a.cfg.Server.BaseURL

	hr, err := agent.NewHR(baseURL, agentOpts...)
	if err != nil {
		return fmt.Errorf("create hr agent: %w", err)
	}
	finance, err := agent.NewFinance(baseURL, agentOpts...)
	if err != nil {
		return fmt.Errorf("create finance agent: %w", err)
	}
	if err := a.serveAgent(agent.HRSlug, hr, store); err != nil {
		return err
	}
	if err := a.serveAgent(agent.FinanceSlug, finance, store); err != nil {
		return err
	}

	r, err := router.NewHRFinance(
		a.specialist("HR", a.cfg.Router.HRURL, agent.HRSlug),
		a.specialist("Finance", a.cfg.Router.FinanceURL, agent.FinanceSlug),
		router.WithLogger(a.logger),
		router.WithMetrics(a.metrics),
	)
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}
	orchestrator, err := agent.NewOrchestrator(r, baseURL, agentOpts...)
	if err != nil {
		return fmt.Errorf("create orchestrator agent: %w", err)
	}
	if err := a.serveAgent(agent.OrchestratorSlug, orchestrator, store); err != nil {
		return err
	}

	// 5. HTTP surface.
	a.mux = a.routes()
	return nil
}

func (a *App) createGovernance() error {
	gate, local, err := governance.NewGate(a.cfg.Governance, a.logger)
	if err != nil {
		return err
	}
	a.gate, a.localGate = gate, local

	sinks := governance.MultiSink{
		governance.NewAuditSink(a.cfg.Governance, a.logger, &http.Client{Timeout: a.cfg.Governance.Timeout}),
	}
	if path := a.cfg.Governance.Audit.SQLitePath; path != "" {
		db, err := a.openSQLite(path)
		if err != nil {
			return err
		}
		store, err := governance.NewSQLiteAuditStore(db)
		if err != nil {
			return err
		}
		sinks = append(sinks, store)
	}
	a.auditor = governance.NewAuditor(sinks,
		governance.WithAuditTimeout(a.cfg.Governance.Audit.Timeout),
		governance.WithAuditLogger(a.logger),
	)
	return nil
}

func (a *App) createTaskStore() (a2asrv.TaskStore, error) {
	switch a.cfg.Store.Driver {
	case "", "memory":
		return server.NewMemoryTaskStore(), nil
	case "sqlite":
		if a.cfg.Store.DSN == "" {
			return nil, fmt.Errorf("store.dsn is required for the sqlite driver")
		}
		db, err := a.openSQLite(a.cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		store, err := server.NewSQLiteTaskStore(db)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", a.cfg.Store.Driver)
	}
}

func (a *App) openSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	a.dbs = append(a.dbs, db)
	return db, nil
}

func (a *App) serveAgent(slug string, exec *agent.Executor, store a2asrv.TaskStore) error {
	h, err := server.NewHandler(exec.Card(), exec,
		server.WithStore(store),
		server.WithLogger(a.logger),
		server.WithExecutionTimeout(a.cfg.Server.RequestTimeout),
		server.WithMetrics(a.metrics),
	)
	if err != nil {
		return fmt.Errorf("create %s handler: %w", slug, err)
	}
	a.handlers[slug] = h
	return nil
}

// specialist returns the in-process agent when url is empty, an a2a client
// guarded by a breaker otherwise.
func (a *App) specialist(name, url, slug string) router.Specialist {
	if url == "" {
		return router.NewLocalSpecialist(name, a.handlers[slug])
	}
	a.logger.Info("routing to remote specialist", "specialist", name, "url", url)
	remote := router.NewRemoteSpecialist(name, client.New(url),
		router.WithCallTimeout(a.cfg.Router.CallTimeout),
		router.WithBreaker(resilience.BreakerConfigFrom(a.cfg.Router.Breaker)),
		router.WithRemoteLogger(a.logger),
	)
	a.remotes = append(a.remotes, remote)
	return remote
}

// Handler returns the HTTP handler serving every agent endpoint.
func (a *App) Handler() http.Handler {
	return a.mux
}

// Agent returns the handler of the agent with slug, or nil.
func (a *App) Agent(slug string) *server.Handler {
	return a.handlers[slug]
}

// LocalGate returns the local policy gate, nil when a remote service decides.
func (a *App) LocalGate() *governance.LocalGate {
	return a.localGate
}

// Run serves HTTP on cfg.Server.Addr until ctx is done, then shuts down.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.configPath != "" && a.localGate != nil {
		watcher, err := a.watchPolicy()
		if err != nil {
			return err
		}
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	g.Go(func() error {
		a.logger.Info("concord listening",
			"addr", a.cfg.Server.Addr,
			"base_url", a.cfg.Server.BaseURL,
			"governance", a.governanceMode(),
		)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return stderrors.Join(err, a.Close(closeCtx))
}

func (a *App) watchPolicy() (*config.Watcher, error) {
	watcher, err := config.NewWatcher(a.configPath,
		config.WithWatchLogger(a.logger),
		config.WithExtraPaths(a.cfg.Governance.PolicyFile),
	)
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}
	watcher.OnChange(a.reloadPolicy)
	return watcher, nil
}

// reloadPolicy swaps the local rule table. A broken policy keeps the
// previous table in place.
func (a *App) reloadPolicy(cfg *config.Config) {
	if a.localGate == nil {
		return
	}
	rules, err := governance.RuleSetFromConfig(cfg.Governance)
	if err != nil {
		a.logger.Error("policy reload failed", "error", err)
		return
	}
	a.localGate.SetRules(rules)
	a.logger.Info("policy reloaded", "rules", len(rules.Rules))
}

func (a *App) governanceMode() string {
	if a.localGate != nil {
		return "local"
	}
	return "remote"
}

// Close flushes pending audit writes and releases resources.
func (a *App) Close(ctx context.Context) error {
	if a.auditor != nil {
		a.auditor.Wait()
	}
	var errs []error
	for _, remote := range a.remotes {
		errs = append(errs, remote.Close())
	}
	a.remotes = nil
	for _, db := range a.dbs {
		errs = append(errs, db.Close())
	}
	a.dbs = nil
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
		a.shutdown = nil
	}
	return stderrors.Join(errs...)
}

func (a *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(telemetry.Component(a.logger, "http")))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	rpc := make(map[string]http.Handler, len(a.handlers))
	for slug, h := range a.handlers {
		rpc[slug] = jsonrpc.New(h,
			jsonrpc.WithRateLimit(a.cfg.Server.RateLimit, a.cfg.Server.RateBurst),
			jsonrpc.WithLogger(a.logger),
		)
	}
	agentEndpoint := func(w http.ResponseWriter, req *http.Request) {
		h, ok := rpc[chi.URLParam(req, "agent")]
		if !ok {
			http.Error(w, "unknown agent", http.StatusNotFound)
			return
		}
		h.ServeHTTP(w, req)
	}
	r.Get("/api/agents/{agent}", agentEndpoint)
	r.Post("/api/agents/{agent}", agentEndpoint)
	r.Get("/api/agents/{agent}/.well-known/agent-card.json", agentEndpoint)
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.DebugContext(r.Context(), "http.request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
