// Package server wires the key-distribution service and the relay together
// and runs them until the process is told to stop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/logging"
	"github.com/dmitrijs2005/keyrelay/internal/server/config"
	"github.com/dmitrijs2005/keyrelay/internal/server/httpapi"
	"github.com/dmitrijs2005/keyrelay/internal/server/queue"
	"github.com/dmitrijs2005/keyrelay/internal/server/relay"
	"github.com/dmitrijs2005/keyrelay/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/keyrelay/internal/server/services"
	"github.com/dmitrijs2005/keyrelay/internal/server/sessions"
	"github.com/dmitrijs2005/keyrelay/internal/server/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"

	gs "github.com/dmitrijs2005/keyrelay/internal/server/grpc"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger

	db  *storage.DB
	rdb *redis.Client

	keys      *services.KeyService
	cleaner   *services.Cleaner
	persister *relay.Persister
	router    *relay.Router
	checker   *gs.HealthChecker
	grpc      *gs.GRPCServer
	http      *http.Server
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	rm := repomanager.NewPostgresRepositoryManager()

	db, err := storage.OpenPostgres(ctx, c, rm, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rdb, err := storage.OpenRedis(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("redis init error: %w", err)
	}

	store, err := sessions.New(c, rdb)
	if err != nil {
		_ = rdb.Close()
		_ = db.Close()
		return nil, fmt.Errorf("session store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	keys := services.NewKeyService(db.DB, rm, c, logger, services.WithKeyMetrics(services.NewKeyMetrics(reg)))

	relayMetrics := relay.NewMetrics(reg)
	offline := queue.NewRedisQueue(rdb, c.OfflinePrefix, c.OfflineTTL,
		queue.WithLogger(logger), queue.WithMetrics(reg))
	persister := relay.NewPersister(offline, c.PersistWorkers, c.PersistBuffer, logger, relayMetrics)
	authenticator := relay.NewAuthenticator(store, c.SessionCookie, c.AuthTimeout)
	router := relay.NewRouter(authenticator, relay.NewRegistry(), offline, persister, logger,
		relay.WithRouterMetrics(relayMetrics))

	hs := health.NewServer()
	checker := gs.NewHealthChecker(hs, c.HealthInterval, logger,
		gs.Check{Name: "postgres", Ping: db.PingContext},
		gs.Check{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	api := httpapi.NewRouter(keys, authenticator, logger,
		httpapi.WithRelay(router),
		httpapi.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		httpapi.WithReadiness(checker),
	)

	return &App{
		config:    c,
		logger:    logger,
		db:        db,
		rdb:       rdb,
		keys:      keys,
		cleaner:   services.NewCleaner(keys, c.CleanupInterval, c.CleanupRetentionDays, logger),
		persister: persister,
		router:    router,
		checker:   checker,
		grpc:      gs.NewGRPCServer(c.GRPCAddr, logger, hs),
		http: &http.Server{
			Addr:              c.HTTPAddr,
			Handler:           api,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves until ctx is canceled, a termination signal arrives or a
// component fails. Shutdown stops accepting connections first, then closes
// the relay connections, then flushes pending offline writes.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...", "http_addr", app.config.HTTPAddr, "grpc_addr", app.config.GRPCAddr)

	persistCtx, stopPersist := context.WithCancel(context.Background())
	defer stopPersist()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return app.persister.Run(persistCtx) })
	g.Go(func() error { return app.cleaner.Run(gctx) })
	g.Go(func() error { return app.checker.Run(gctx) })
	g.Go(func() error {
		if err := app.grpc.Run(gctx); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		app.logger.Info(gctx, "Starting HTTP server", "address", app.config.HTTPAddr)
		if err := app.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info(context.Background(), "Stopping app...")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := app.http.Shutdown(sctx); err != nil {
			app.logger.Error(sctx, "http shutdown", "error", err)
		}
		if err := app.router.Close(sctx); err != nil {
			app.logger.Error(sctx, "relay shutdown", "error", err)
		}
		stopPersist()
		return nil
	})

	return g.Wait()
}

// Close releases the store connections.
func (app *App) Close() error {
	return errors.Join(app.rdb.Close(), app.db.Close())
}
