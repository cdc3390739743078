package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"residency/internal/platform/config"
	"residency/internal/platform/httpserver"
	"residency/internal/platform/logger"
	platformmetrics "residency/internal/platform/metrics"
	"residency/internal/platform/middleware"
	"residency/internal/platform/redis"
	"residency/internal/presence/catalog"
	"residency/internal/presence/engine"
	"residency/internal/presence/handler"
	"residency/internal/presence/metrics"
	"residency/internal/presence/service"
	evidencestore "residency/internal/presence/store/evidence"
	"residency/internal/presence/store/override"
	"residency/internal/presence/store/reportcache"
	"residency/pkg/platform/httputil"
)

// main wires configuration, stores and the HTTP router. Business logic
// lives in internal/presence.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rules, err := loadCatalog(cfg.RulesDir, log)
	if err != nil {
		return err
	}

	eng, err := engine.New(
		engine.WithConfidenceFloor(cfg.Engine.ConfidenceFloor),
		engine.WithTolerance(cfg.Engine.NearDuplicateTolerance),
	)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	var cache service.ReportCache = reportcache.NewMemoryCache(cfg.ReportCacheTTL)
	if redisClient != nil {
		defer redisClient.Close()
		cache = reportcache.NewRedisCache(redisClient.Client, cfg.ReportCacheTTL)
		log.Info("report cache backed by redis")
	}

	var db *sql.DB
	var overrides service.OverrideStore = override.NewInMemoryStore()
	svcOpts := []service.Option{
		service.WithEngine(eng),
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
	}
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		pg := override.NewPostgresStore(db)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		overrides = pg
		svcOpts = append(svcOpts, service.WithTransactor(pg))
		log.Info("override store backed by postgres")
	}

	svc, err := service.New(evidencestore.NewInMemoryStore(), overrides, cache, rules, svcOpts...)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.Latency(platformmetrics.New()))
	handler.New(svc, log, cfg.Server.RequestTimeout).Register(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", health(redisClient, db))

	srv := httpserver.New(cfg.Server.Addr, r, cfg.Server.RequestTimeout)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting residency server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("server stopped cleanly")
	return nil
}

func loadCatalog(dir string, log *slog.Logger) (*catalog.Catalog, error) {
	var (
		c   *catalog.Catalog
		err error
	)
	if dir == "" {
		c, err = catalog.Default()
	} else {
		c, err = catalog.LoadDir(dir)
	}
	if err != nil {
		return nil, fmt.Errorf("rule catalog: %w", err)
	}
	for _, name := range c.Names() {
		rs, err := c.Resolve(name, "")
		if err != nil {
			return nil, err
		}
		for _, defErr := range rs.Errors {
			log.Warn("rule skipped", "rule_set", rs.ID(), "rule_id", defErr.RuleID, "problems", defErr.Problems)
		}
		log.Info("rule set loaded", "rule_set", rs.ID(), "rules", len(rs.Rules))
	}
	return c, nil
}

func health(redisClient *redis.Client, db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				status["redis"], code = "unavailable", http.StatusServiceUnavailable
			}
		}
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				status["postgres"], code = "unavailable", http.StatusServiceUnavailable
			}
		}
		if code != http.StatusOK {
			status["status"] = "degraded"
		}
		httputil.WriteJSON(w, code, status)
	}
}
