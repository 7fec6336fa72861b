package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/dialer/internal/api"
	"github.com/ignite/dialer/internal/config"
	"github.com/ignite/dialer/internal/pkg/distlock"
	"github.com/ignite/dialer/internal/pkg/logger"
	"github.com/ignite/dialer/internal/pkg/retry"
	"github.com/ignite/dialer/internal/queue"
	"github.com/ignite/dialer/internal/repository/postgres"
	"github.com/ignite/dialer/internal/service/campaign"
	"github.com/ignite/dialer/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		envFile     = flag.String("env-file", "", "path to a .env file to load before reading config")
		configPath  = flag.String("config", "config.yaml", "path to the YAML config file")
		logLevel    = flag.String("log-level", "", "log level override (debug, info, warn, error)")
		workerCount = flag.Int("worker-count", 0, "number of call workers (overrides config)")
	)
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Printf("Failed to load env file %s: %v", *envFile, err)
			return 1
		}
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *workerCount > 0 {
		cfg.Worker.NumWorkers = *workerCount
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.Info("Starting dialer worker", "workers", cfg.Worker.NumWorkers)

	// Campaign store
	db, err := sql.Open("postgres", cfg.Store.DatabaseURL)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		return 1
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Store.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Store.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Store.ConnMaxMinutes) * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Error("Failed to ping database", "error", err)
		return 1
	}
	logger.Info("Connected to database")

	// Job queue
	redisOpts, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		logger.Error("Invalid redis URL", "error", err)
		return 1
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Error("Failed to ping redis", "error", err)
		return 1
	}
	logger.Info("Connected to redis")

	q := queue.New(redisClient)

	// Services
	repo := postgres.NewCampaignRepo(db)
	contacts := postgres.NewContactRepo(db)
	records := postgres.NewCallRecordRepo(db)
	svc := campaign.NewService(repo, contacts)

	executor := worker.NewGatewayExecutor(
		os.Getenv("CALL_GATEWAY_URL"),
		os.Getenv("CALL_GATEWAY_API_KEY"),
		nil,
	)

	pollLock := distlock.NewLock(redisClient, db, "dispatch-poll", 2*cfg.Worker.PollInterval())

	orch := worker.NewOrchestrator(svc, q, executor, pollLock, worker.OrchestratorConfig{
		NumWorkers:   cfg.Worker.NumWorkers,
		BatchSize:    cfg.Worker.BatchSize,
		PollInterval: cfg.Worker.PollInterval(),
		ClaimLease:   cfg.Worker.ClaimLease(),
		RedialDelay:  cfg.Worker.RedialDelay(),

		BreakerThreshold: cfg.Breaker.FailureThreshold,
		BreakerOpenFor:   cfg.Breaker.OpenFor(),
	})
	orch.SetCallRecords(records)
	orch.SetRetryPolicy(retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMillis) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelaySeconds) * time.Second,
	})

	if err := orch.Start(); err != nil {
		logger.Error("Failed to start orchestrator", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recovery := worker.NewClaimRecoveryWorkerWithConfig(db,
		cfg.Worker.RecoveryInterval(), cfg.Worker.StaleClaimAge())
	go recovery.Start(ctx)

	// Status endpoint
	handlers := api.NewHandlers(orch, q)
	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: api.SetupRoutes(handlers),
	}
	go func() {
		logger.Info("Status server listening", "addr", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Status server failed", "error", err)
		}
	}()

	logger.Info("Worker running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker")
	cancel()
	orch.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	srv.Shutdown(shutdownCtx)

	logger.Info("Worker stopped")
	return 0
}
