package main

import (
	"context"
	"customer-onboarding/internal/api"
	"customer-onboarding/internal/api/middleware"
	"customer-onboarding/internal/batch"
	"customer-onboarding/internal/config"
	"customer-onboarding/internal/domain/activation"
	"customer-onboarding/internal/domain/customer"
	"customer-onboarding/internal/domain/identifier"
	"customer-onboarding/internal/event"
	"customer-onboarding/internal/infrastructure/cache"
	"customer-onboarding/internal/infrastructure/database/postgres"
	"customer-onboarding/internal/infrastructure/legacy"
	"customer-onboarding/internal/infrastructure/logging"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// @title Customer Onboarding API
// @version 1.0
// @description Customer role status transitions with CIF, borrower initial and virtual account allocation kept in step with the legacy record.

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, logger := initializeApp()

	dbPool := initializeDatabase(cfg, logger)
	defer closeDatabase(dbPool, logger)
	rabbitMQConn, err := setupRabbitMQ(cfg, logger)
	if err != nil {
		logger.Warn("Status change events disabled, RabbitMQ unavailable", slog.Any("error", err))
	}
	redisClient := initializeRedisClient(cfg, logger)
	rateLimiter := initializeRateLimiter(cfg, redisClient, logger)

	activationService := initializeServices(cfg, rabbitMQConn, dbPool, redisClient, logger)
	compensationJob := batch.NewCompensationJob(
		activationService,
		cache.NewLockManager(redisClient, logger),
		batch.CompensationJobConfig{
			LockKey:    cfg.Batch.LockKey,
			LockExpiry: cfg.Batch.LockExpiry,
			MinAge:     cfg.Batch.CompensationMinAge,
			BatchSize:  cfg.Batch.CompensationBatchSize,
		},
		logger,
	)

	cronScheduler := startBatchJobs(cfg, logger, compensationJob)
	router := api.SetupRouter(rateLimiter, activationService, healthChecks(dbPool, redisClient), cfg, logger)

	srv, serverErrors, shutdownChan := startServer(cfg, router, logger)
	handleShutdown(srv, cronScheduler, rateLimiter, rabbitMQConn, redisClient, shutdownChan, serverErrors, logger)
}

func initializeApp() (*config.Config, *slog.Logger) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logger)
	slog.SetDefault(logger)
	logger.Info("Application starting...", "config_source", viper.ConfigFileUsed())

	return cfg, logger
}

func initializeDatabase(cfg *config.Config, logger *slog.Logger) *pgxpool.Pool {
	logger.Info("Initializing database connection pool...")
	dbPool, err := postgres.NewConnectionPool(context.Background(), cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	return dbPool
}

func closeDatabase(dbPool *pgxpool.Pool, logger *slog.Logger) {
	logger.Info("Closing database connection pool...")
	dbPool.Close()
}

func initializeRateLimiter(cfg *config.Config, redisClient *redis.Client, logger *slog.Logger) *middleware.RateLimiterMiddleware {
	return middleware.NewRateLimiterMiddleware(cfg.Server.RateLimit, redisClient, logger)
}

func initializeServices(cfg *config.Config, rabbitConn *amqp.Connection, dbPool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger) activation.Service {
	logger.Info("Initializing application components...")

	allocators, err := buildAllocators(cfg.Identifier, selectCounter(cfg.Identifier.Counter, dbPool, redisClient, logger), logger)
	if err != nil {
		logger.Error("Invalid identifier configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var publisher event.EventPublisher
	if rabbitConn != nil {
		exchange := cfg.RabbitMQ.ExchangeName
		if exchange == "" {
			exchange = "customer-onboarding"
		}
		if publisher, err = event.NewRabbitMQEventPublisher(rabbitConn, exchange, logger); err != nil {
			logger.Warn("Failed to set up event publisher, continuing without events", slog.Any("error", err))
			publisher = nil
		}
	}

	return activation.NewService(activation.Dependencies{
		Roles:           postgres.NewRoleRepository(dbPool, logger),
		Identifiers:     postgres.NewIdentifierRepository(dbPool, logger),
		Sagas:           postgres.NewSagaRepository(dbPool, logger),
		CIF:             allocators.cif,
		Initials:        allocators.initials,
		VirtualAccounts: allocators.vas,
		Legacy:          legacy.NewClient(cfg.Legacy, nil, logger),
		Publisher:       publisher,
	}, activation.Options{
		SyncTimeout:          cfg.Legacy.Timeout,
		MaxConcurrentChanges: changeSlots(cfg.Database.MaxConns),
	}, logger)
}

// changeSlots leaves room for the second connection a status change takes
// while its role transaction is open.
func changeSlots(maxConns int32) int {
	return max(1, int(maxConns)/2)
}

func selectCounter(cfg config.CounterConfig, dbPool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger) identifier.CounterService {
	if cfg.Backend == config.CounterBackendRedis {
		logger.Info("Using Redis sequence counters", "key_prefix", cfg.KeyPrefix)
		return cache.NewRedisCounter(redisClient, cfg.KeyPrefix, postgres.NewIdentifierRepository(dbPool, logger), logger)
	}
	logger.Info("Using PostgreSQL sequence counters")
	return postgres.NewCounterRepository(dbPool, logger)
}

type allocatorSet struct {
	cif      *identifier.CIFAllocator
	initials *identifier.InitialAllocator
	vas      *identifier.VirtualAccountAllocator
}

func buildAllocators(cfg config.IdentifierConfig, counter identifier.CounterService, logger *slog.Logger) (allocatorSet, error) {
	categories := make([]int, 0, len(cfg.Initial.Categories))
	for _, name := range cfg.Initial.Categories {
		category, err := customer.ParseUserCategory(name)
		if err != nil {
			return allocatorSet{}, fmt.Errorf("identifier.initial.categories: %w", err)
		}
		categories = append(categories, category.Code())
	}

	roles := make([]int, 0, len(cfg.VirtualAccount.Roles))
	for _, name := range cfg.VirtualAccount.Roles {
		role, err := customer.ParseRoleType(name)
		if err != nil {
			return allocatorSet{}, fmt.Errorf("identifier.virtualAccount.roles: %w", err)
		}
		roles = append(roles, role.Code())
	}

	banks := make([]identifier.Bank, 0, len(cfg.VirtualAccount.Banks))
	for _, b := range cfg.VirtualAccount.Banks {
		banks = append(banks, identifier.Bank{Code: b.Code, Name: b.Name, Prefix: b.Prefix})
	}

	loc, err := cfg.CIF.Location()
	if err != nil {
		return allocatorSet{}, fmt.Errorf("identifier.cif.timeZone: %w", err)
	}

	return allocatorSet{
		cif:      identifier.NewCIFAllocator(counter, cfg.CIF.SequenceWidth, loc, logger),
		initials: identifier.NewInitialAllocator(cfg.Initial.RetryBudget, categories, logger),
		vas:      identifier.NewVirtualAccountAllocator(banks, roles, cfg.CIF.SequenceWidth),
	}, nil
}

func healthChecks(dbPool *pgxpool.Pool, redisClient *redis.Client) map[string]api.HealthCheck {
	return map[string]api.HealthCheck{
		"postgres": dbPool.Ping,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}
}

func startServer(cfg *config.Config, router http.Handler, logger *slog.Logger) (*http.Server, <-chan error, <-chan os.Signal) {
	logger.Info("Setting up HTTP server...", "port", cfg.Server.Port)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("Server listening on port %d", cfg.Server.Port))
		err := srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			serverErrors <- err
		} else {
			logger.Info("Server closed gracefully.")
			serverErrors <- nil
		}
	}()
	return srv, serverErrors, shutdownChan
}

func handleShutdown(srv *http.Server, cronScheduler *cron.Cron, rateLimiter *middleware.RateLimiterMiddleware, rabbitConn *amqp.Connection, redisClient *redis.Client,
	shutdownChan <-chan os.Signal, serverErrors <-chan error, logger *slog.Logger) {
	logger.Info("Shutdown handler started. Waiting for signal or server error...")

	triggerReason := waitForShutdownTrigger(shutdownChan, serverErrors, logger)

	logger.Info("Starting graceful shutdown...", "trigger", triggerReason)

	stopCronScheduler(cronScheduler, logger)
	shutdownHTTPServer(srv, serverErrors, logger)
	if rateLimiter != nil {
		rateLimiter.Close()
	}
	closeRabbitMQConnection(rabbitConn, logger)
	closeRedisClient(redisClient, logger)

	logger.Info("Application shutdown process complete.")
}

func waitForShutdownTrigger(shutdownChan <-chan os.Signal, serverErrors <-chan error, logger *slog.Logger) string {
	select {
	case sig := <-shutdownChan:
		logger.Info("Shutdown signal received.", "signal", sig.String())
		return "signal: " + sig.String()
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server exited unexpectedly before signal", "error", err)
			os.Exit(1)
		}
		logger.Info("Server goroutine finished before signal.", "error", err)
		return "server exited"
	}
}

func stopCronScheduler(cronScheduler *cron.Cron, logger *slog.Logger) {
	logger.Info("Stopping cron scheduler...")
	cronCtx := cronScheduler.Stop()
	select {
	case <-cronCtx.Done():
		logger.Info("Cron scheduler stopped gracefully.")
	case <-time.After(15 * time.Second):
		logger.Warn("Cron scheduler shutdown timed out.")
	}
}

func closeRabbitMQConnection(rabbitConn *amqp.Connection, logger *slog.Logger) {
	if rabbitConn != nil && !rabbitConn.IsClosed() {
		logger.Info("Closing RabbitMQ connection...")
		if err := rabbitConn.Close(); err != nil {
			logger.Error("Failed to close RabbitMQ connection gracefully", slog.Any("error", err))
		} else {
			logger.Info("RabbitMQ connection closed.")
		}
	} else if rabbitConn == nil {
		logger.Info("RabbitMQ connection was not established, skipping close.")
	} else {
		logger.Info("RabbitMQ connection already closed, skipping close.")
	}
}

func shutdownHTTPServer(srv *http.Server, serverErrors <-chan error, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Info("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server graceful shutdown failed", "error", err)
		} else {
			logger.Info("HTTP server shutdown initiated.")
		}
		if err := srv.Close(); err != nil {
			logger.Error("HTTP server forced close failed", "error", err)
		}
	} else {
		logger.Info("HTTP server gracefully stopped.")
	}

	logger.Info("Waiting for server goroutine to confirm exit...")
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Server goroutine exited with unexpected error after shutdown", "error", err)
		} else {
			logger.Info("Server goroutine confirmed exit.")
		}
	case <-time.After(5 * time.Second):
		logger.Warn("Timed out waiting for server goroutine confirmation.")
	}
}

func initializeRedisClient(cfg *config.Config, logger *slog.Logger) *redis.Client {
	logger.Info("Initializing central Redis client...")
	if cfg.Redis.Addr == "" {
		logger.Error("Redis address (addr) is not configured.")
		os.Exit(1)
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if status := rdb.Ping(ctx); status.Err() != nil {
		logger.Error("Failed to connect to Redis", "error", status.Err(), "addr", cfg.Redis.Addr)
		_ = rdb.Close()
		os.Exit(1)
		return nil
	}

	logger.Info("Central Redis client connected successfully.", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	return rdb
}

func closeRedisClient(redisClient *redis.Client, logger *slog.Logger) {
	if redisClient != nil {
		logger.Info("Closing central Redis client connection...")
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close central Redis client connection gracefully", "error", err)
		} else {
			logger.Info("Central Redis client connection closed.")
		}
	} else {
		logger.Info("Redis client was not initialized, skipping close.")
	}
}

func startBatchJobs(cfg *config.Config, logger *slog.Logger, compensationJob *batch.CompensationJob) *cron.Cron {
	logger.Info("Initializing batch job scheduler...")
	c := cron.New()

	scheduleSpec := cfg.Batch.CompensationSchedule
	if scheduleSpec == "" {
		scheduleSpec = "@every 1m"
		logger.Warn("Batch compensation schedule not configured, using default", "schedule", scheduleSpec)
	}
	jobTimeout := cfg.Batch.CompensationTimeout
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}

	jobID, err := c.AddJob(scheduleSpec, cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		jobLogger := logger.With("job_name", "SagaCompensation")
		jobLogger.Info("Cron triggered: Running saga compensation job.")

		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if runErr := compensationJob.Run(ctx); runErr != nil {
			jobLogger.Error("Saga compensation job finished with error", slog.Any("error", runErr))
		} else {
			jobLogger.Info("Saga compensation job finished successfully.")
		}
	})))

	if err != nil {
		logger.Error("Failed to schedule saga compensation job", "schedule", scheduleSpec, slog.Any("error", err))
	} else {
		logger.Info("Scheduled saga compensation job", "schedule", scheduleSpec, "job_id", jobID)
	}

	c.Start()
	logger.Info("Cron scheduler started.")
	return c
}

func setupLogger(cfg config.LoggerConfig) *slog.Logger {
	return logging.NewLogger(cfg)
}

func connectRabbitMQ(uri string, logger *slog.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	retryCount := 5
	for i := 1; i <= retryCount; i++ {
		conn, err = amqp.Dial(uri)
		if err == nil {
			logger.Info("Successfully connected to RabbitMQ")

			go func() {
				blockChan := conn.NotifyBlocked(make(chan amqp.Blocking))
				closeChan := conn.NotifyClose(make(chan *amqp.Error))

				select {
				case b := <-blockChan:
					logger.Warn("RabbitMQ Connection Blocked", "reason", b.Reason)
				case e := <-closeChan:
					logger.Error("RabbitMQ Connection Closed", slog.Any("error", e))
				}
			}()

			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ, retrying...",
			slog.Int("attempt", i),
			slog.Int("max_attempts", retryCount),
			slog.Any("error", err),
		)
		time.Sleep(time.Duration(i*2) * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", retryCount, err)
}

func rabbitMQURI(cfg config.RabbitMQConfig) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("RabbitMQ host is not configured")
	}
	port := cfg.Port
	if port == 0 {
		port = 5672
	}
	if cfg.Username != "" && cfg.Password != "" {
		return fmt.Sprintf("amqp://%s:%s@%s:%d", cfg.Username, cfg.Password, cfg.Host, port), nil
	}
	if cfg.Username != "" || cfg.Password != "" {
		return "", fmt.Errorf("RabbitMQ username and password must be provided together")
	}
	return fmt.Sprintf("amqp://%s:%d", cfg.Host, port), nil
}

func setupRabbitMQ(cfg *config.Config, logger *slog.Logger) (*amqp.Connection, error) {
	uri, err := rabbitMQURI(cfg.RabbitMQ)
	if err != nil {
		return nil, err
	}

	conn, err := connectRabbitMQ(uri, logger)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", "error", err)
		return nil, err
	}
	return conn, nil
}
