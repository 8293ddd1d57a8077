package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/internhub/internhub/pkg/analytics"
	"github.com/internhub/internhub/pkg/analytics/queue"
	"github.com/internhub/internhub/pkg/api"
	"github.com/internhub/internhub/pkg/config"
	"github.com/internhub/internhub/pkg/middleware"
	"github.com/internhub/internhub/pkg/observability"
	"github.com/internhub/internhub/pkg/storage/postgres"
)

var version = "dev"

var (
	runOnce = flag.Bool("run-once", false, "Run one full analytics pass and exit")
	envFile = flag.String("env-file", ".env", "Optional .env file loaded before configuration")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithFields(map[string]interface{}{"service": "internhub-analytics", "env": cfg.Env})

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Analytics service failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		Environment:    cfg.Env,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("init opentelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: cfg.Database.ReplicaURLs,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, conns); err != nil {
		conns.Close()
		return err
	}

	store := postgres.NewStore(conns)
	opts := []analytics.Option{
		analytics.WithLogger(logger),
		analytics.WithMetrics(metrics),
		analytics.WithCacheTTL(cfg.Analytics.CacheTTL),
		analytics.WithBucketConcurrency(cfg.Analytics.BucketConcurrency),
		analytics.WithBatchConcurrency(cfg.Analytics.BatchSize),
		analytics.WithUserTimeout(cfg.Analytics.UserTimeout),
	}

	service := analytics.NewService(store, opts...)
	updater := analytics.NewUpdater(store, opts...)

	schedCfg := analytics.DefaultSchedulerConfig()
	schedCfg.BatchSize = cfg.Analytics.BatchSize
	schedCfg.BatchDelay = cfg.Analytics.BatchDelay
	schedCfg.RetentionDays = cfg.Analytics.RetentionDays
	schedCfg.CleanupSchedule = cfg.Analytics.CleanupSchedule
	scheduler := analytics.NewScheduler(store, updater, schedCfg, opts...)

	if *runOnce {
		defer conns.Close()
		result, err := scheduler.RunFullPass(ctx)
		if err != nil {
			return fmt.Errorf("analytics pass: %w", err)
		}
		logger.WithFields(map[string]interface{}{
			"users":     result.Users,
			"succeeded": result.Succeeded,
			"failed":    result.Failed,
		}).Info("Analytics pass completed")
		return observability.ShutdownOTel(ctx, providers, logger)
	}

	health := observability.NewHealthChecker(version)
	health.AddCheck("database", true, observability.DatabaseCheck(conns.Primary()))
	health.AddCheck("database_replicas", false, conns.HealthCheck)

	jobs, redisClient, err := openQueue(ctx, cfg, logger)
	if err != nil {
		conns.Close()
		return err
	}
	if redisClient != nil {
		health.AddCheck("redis", false, observability.RedisCheck(redisClient))
	}

	hooks := analytics.NewHooks(jobs, updater, logger, metrics)
	worker := queue.NewWorker(jobs, hooks.HandleJob, queue.WorkerConfig{
		Concurrency: cfg.Queue.Workers,
		JobTimeout:  cfg.Queue.JobTimeout,
		Retry: queue.RetryConfig{
			MaxAttempts:       cfg.Queue.MaxAttempts,
			InitialDelay:      cfg.Queue.RetryDelay,
			MaxDelay:          cfg.Queue.MaxRetryDelay,
			BackoffMultiplier: 2,
		},
	}, logger, metrics)

	maintenanceCtx, stopMaintenance := context.WithCancel(ctx)
	conns.StartMaintenance(maintenanceCtx, cfg.Database.MaintenanceInterval, metrics)
	limiter := newRecomputeLimiter(maintenanceCtx, cfg, redisClient)

	server := &http.Server{
		Addr: net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewOpsRouter(api.OpsRouterConfig{
			Health:    health,
			Registry:  registry,
			Metrics:   metrics,
			Logger:    logger,
			Analytics: api.NewAnalyticsHandlers(service, scheduler, updater, logger),
			Limiter:   limiter,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Registered in dependency order; hooks run in reverse.
	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	shutdown.Register("postgres", func(context.Context) error {
		stopMaintenance()
		return conns.Close()
	})
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("queue", func(context.Context) error { return jobs.Close() })
	shutdown.Register("worker", func(ctx context.Context) error {
		return worker.Stop(remaining(ctx))
	})
	shutdown.Register("scheduler", scheduler.StopAndWait)

	worker.Start(ctx)
	if cfg.Analytics.AutoStart {
		if err := scheduler.Start(cfg.Analytics.IntervalMinutes); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Ops server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			cancelWait()
		}
	}()

	shutdownErr := shutdown.WaitForShutdown(waitCtx)
	select {
	case err := <-serverErr:
		return errors.Join(fmt.Errorf("ops server: %w", err), shutdownErr)
	default:
		return shutdownErr
	}
}

// newRecomputeLimiter shares buckets through Redis when available so every
// replica of the service enforces the same limit.
func newRecomputeLimiter(ctx context.Context, cfg *config.Config, client *redis.Client) middleware.Limiter {
	if cfg.Server.RecomputeRateLimit <= 0 {
		return nil
	}
	rl := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.Server.RecomputeRateLimit,
		WindowDuration:    cfg.Server.RecomputeRateWindow,
	}
	if client != nil {
		return middleware.NewDistributedRateLimiter(client, rl, "internhub:ratelimit:recompute")
	}
	limiter := middleware.NewRateLimiter(rl)
	limiter.StartCleanup(ctx)
	return limiter
}

// openQueue returns the Redis-backed queue when configured, after moving jobs
// left in flight by a previous process back to pending. Without Redis the
// queue lives in process memory.
func openQueue(ctx context.Context, cfg *config.Config, logger *observability.Logger) (queue.Queue, *redis.Client, error) {
	if cfg.Redis.URL == "" {
		logger.Warn("No Redis configured, recompute jobs are kept in memory")
		return queue.NewMemoryQueue(cfg.Queue.Capacity), nil, nil
	}

	client, err := postgres.NewRedisClient(ctx, postgres.RedisConfig{
		URL:        cfg.Redis.URL,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		MaxRetries: cfg.Redis.MaxRetries,
		PoolSize:   cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, nil, err
	}

	rq := queue.NewRedisQueue(client, cfg.Queue.Name)
	recovered, err := rq.Recover(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("recover in-flight jobs: %w", err)
	}
	if recovered > 0 {
		logger.Infof("Recovered %d in-flight recompute jobs", recovered)
	}
	return rq, client, nil
}

func remaining(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}
	return 30 * time.Second
}
