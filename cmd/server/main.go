package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"fakturin/backend/internal/cache"
	"fakturin/backend/internal/config"
	"fakturin/backend/internal/httpapi"
	"fakturin/backend/internal/numbering"
	"fakturin/backend/internal/service"
	"fakturin/backend/internal/store"
	"fakturin/backend/internal/store/memory"
	pgstore "fakturin/backend/internal/store/postgres"
	"fakturin/backend/internal/store/redisseq"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("fakturin exited")
	}
}

func newApp() *cli.App {
	envFile := &cli.StringFlag{
		Name:    "env-file",
		Usage:   "optional dotenv file read before the environment",
		EnvVars: []string{"FAKTURIN_ENV_FILE"},
	}
	return &cli.App{
		Name:   "fakturin",
		Usage:  "invoice back-office API",
		Flags:  []cli.Flag{envFile},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations to DATABASE_URL",
				Action: migrateDatabase,
			},
		},
	}
}

func loadConfig(c *cli.Context) (config.Config, *logrus.Logger, error) {
	var files []string
	if path := c.String("env-file"); path != "" {
		files = append(files, path)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newLogger(level string, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "LOG_LEVEL")
	}
	logger.SetLevel(parsed)
	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, errors.Errorf("unknown LOG_FORMAT %q", format)
	}
	return logger, nil
}

func migrateDatabase(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}
	version, err := pgstore.Migrate(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	logger.WithField("version", version).Info("migrations applied")
	return nil
}

func serve(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	logrus.SetOutput(logger.Out)
	logrus.SetFormatter(logger.Formatter)
	logrus.SetLevel(logger.GetLevel())

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	var (
		repo    store.Repository
		checks  = make(map[string]httpapi.HealthCheck)
		closers = make([]func() error, 0, 2)
	)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		repo = pg
		checks["postgres"] = pg.Ping
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory")
	}

	var redisClient redis.UniversalClient
	if cfg.RedisAddr != "" {
		redisClient = cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		closers = append(closers, redisClient.Close)
	}

	counters, err := selectCounters(ctx, cfg, repo, redisClient)
	if err != nil {
		return err
	}
	logger.WithField("backend", cfg.CounterBackend).Info("invoice counters")

	dashboardCache := cache.DashboardCache(cache.NoopDashboardCache{})
	if redisClient != nil {
		redisCache := cache.NewRedisDashboardCache(redisClient)
		if err := redisCache.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis unavailable, using noop dashboard cache")
		} else {
			dashboardCache = redisCache
			checks["redis"] = redisCache.Ping
			logger.Info("dashboard cache: redis")
		}
	}

	allocator := numbering.New(counters, cfg.InvoiceSeries, cfg.BusinessOffset())
	svc := service.New(repo, allocator, service.Settings{
		Cache:          dashboardCache,
		CacheTTL:       cfg.DashboardCacheTTL(),
		DraftTTL:       cfg.DraftTTL(),
		StorageTimeout: cfg.StorageTimeout(),
		Logger:         logger,
	})
	api := httpapi.New(svc, cfg.AllowedOrigin, logger)
	for name, check := range checks {
		api.WithHealthCheck(name, check)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Address()).Info("invoice backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case err := <-serverErr:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithError(err).Warn("close error")
		}
	}

	logger.Info("server stopped")
	return nil
}

// selectCounters picks the store that owns per-day invoice sequences. The
// redis backend must be reachable at startup; numbers are never handed out
// from a fallback.
func selectCounters(ctx context.Context, cfg config.Config, repo store.CounterStore, client redis.UniversalClient) (store.CounterStore, error) {
	switch cfg.CounterBackend {
	case config.CounterRepository, "":
		return repo, nil
	case config.CounterRedis:
		if client == nil {
			return nil, errors.New("COUNTER_BACKEND=redis requires REDIS_ADDR")
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, store.Unavailable("redis counters", err)
		}
		return redisseq.New(client), nil
	}
	return nil, errors.Errorf("unknown COUNTER_BACKEND %q", cfg.CounterBackend)
}
