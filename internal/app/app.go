package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-runner/internal/auth"
	"github.com/gokatarajesh/exam-runner/internal/backend"
	"github.com/gokatarajesh/exam-runner/internal/catalog"
	"github.com/gokatarajesh/exam-runner/internal/config"
	"github.com/gokatarajesh/exam-runner/internal/exam"
	"github.com/gokatarajesh/exam-runner/internal/gateway"
	"github.com/gokatarajesh/exam-runner/internal/journal"
	"github.com/gokatarajesh/exam-runner/internal/logging"
	"github.com/gokatarajesh/exam-runner/internal/metrics"
	"github.com/gokatarajesh/exam-runner/internal/server"
	"github.com/gokatarajesh/exam-runner/internal/session"
	"github.com/gokatarajesh/exam-runner/internal/submission"
	ws "github.com/gokatarajesh/exam-runner/pkg/http/ws"
)

// Application aggregates shared infrastructure (backend client, optional
// stores, session manager, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool     *pgxpool.Pool
	redis    *redis.Client
	http     *http.Server
	sessions *session.Manager
	gateway  *gateway.Handler

	bgCancels []context.CancelFunc
}

// New bootstraps the logger, backend client, optional Redis and Postgres, and HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env, cfg.LogLevel)
	logger.Info().Msg("starting application bootstrap")

	rec := metrics.New(prometheus.DefaultRegisterer)

	client, err := backend.New(backend.Options{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.ReadTimeout,
		Metrics: rec,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create backend client: %w", err)
	}

	assets, err := exam.NewAssetResolver(cfg.Backend.AssetBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse asset base url: %w", err)
	}

	emptyAnswers, err := submission.ParseEmptyAnswerEncoding(cfg.Session.EmptyAnswers)
	if err != nil {
		return nil, fmt.Errorf("parse empty answer encoding: %w", err)
	}

	deps := map[string]server.PingFunc{}

	var (
		redisClient *redis.Client
		cache       catalog.Cache
		guard       submission.Guard
	)
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		cache = catalog.NewRedisCache(redisClient, cfg.Redis.CatalogTTL)
		guard = submission.NewRedisGuard(redisClient, submission.GuardOptions{
			LockTTL:    cfg.Redis.LockTTL,
			ReceiptTTL: cfg.Redis.ReceiptTTL,
		}, logger)
		deps["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis enabled: catalog cache and submission guard")
	} else {
		logger.Warn().Msg("REDIS_ADDR not set; catalog cache and submission guard disabled")
	}

	var (
		pool     *pgxpool.Pool
		receipts gateway.Receipts
	)
	if cfg.Postgres.Enabled() {
		pool, err = pgxpool.New(ctx, cfg.Postgres.ConnString())
		if err != nil {
			if redisClient != nil {
				_ = redisClient.Close()
			}
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		receipts = journal.NewRepository(pool)
		deps["postgres"] = pool.Ping
		logger.Info().Str("host", cfg.Postgres.Host).Msg("postgres enabled: submission journal")
	} else {
		logger.Warn().Msg("PG_HOST not set; submission journal disabled")
	}

	hub := ws.NewHub(logger)
	sessions := session.NewManager(session.ManagerOptions{
		Retention:    cfg.Session.Retention,
		ReapInterval: cfg.Session.ReapInterval,
		Metrics:      rec,
		OnClose:      hub.CloseSession,
		Attached:     func(id uuid.UUID) bool { return hub.Connections(id) > 0 },
	}, logger)

	handler := gateway.NewHandler(gateway.ClientBackend{Client: client}, gateway.Options{
		Sessions: sessions,
		Hub:      hub,
		Loader:   exam.NewLoader(client, rec, logger),
		Catalog:  catalog.NewService(cache, logger),
		Receipts: receipts,
		Guard:    guard,
		Assets:   assets,
		Form: submission.FormOptions{
			EmptyAnswers: emptyAnswers,
			NonceField:   cfg.Session.NonceField,
		},
		Upgrader:     server.NewUpgrader(cfg.CORS),
		TickInterval: cfg.Session.TickInterval,
		PageSize:     cfg.Session.NavigatorPageSize,
		Metrics:      rec,
	}, logger)

	requireAuth := auth.RequireBearer(logger)
	apiServer := server.NewHTTPServer(cfg, logger, server.Options{
		Register:     func(mux *http.ServeMux) { handler.Register(mux, requireAuth) },
		Dependencies: deps,
	})

	return &Application{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		redis:     redisClient,
		http:      apiServer,
		sessions:  sessions,
		gateway:   handler,
		bgCancels: make([]context.CancelFunc, 0, 1),
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}

	// cancels every countdown; nothing auto-submits after this point
	a.gateway.Shutdown()

	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	bgCtx, cancel := context.WithCancel(ctx)
	a.bgCancels = append(a.bgCancels, cancel)
	go func() {
		if err := a.sessions.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn().Err(err).Msg("session reaper stopped")
		}
	}()
}
