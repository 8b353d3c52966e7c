package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/learnhub/iam-service/internal/core/port"
	"github.com/learnhub/iam-service/internal/infra/config"
	kafkainfra "github.com/learnhub/iam-service/internal/infra/kafka"
	"github.com/learnhub/iam-service/internal/infra/logger"
	oauthinfra "github.com/learnhub/iam-service/internal/infra/oauth"
	redisinfra "github.com/learnhub/iam-service/internal/infra/redis"
	"github.com/learnhub/iam-service/internal/infra/security"
	"github.com/learnhub/iam-service/internal/infra/telemetry"
	postgresrepo "github.com/learnhub/iam-service/internal/repository/postgres"
	redisrepo "github.com/learnhub/iam-service/internal/repository/redis"
	"github.com/learnhub/iam-service/internal/transport/http/middleware"
	"github.com/learnhub/iam-service/internal/transport/http/routes"
	"github.com/learnhub/iam-service/internal/usecase"
)

// Application owns the wired service graph and its long lived resources.
type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	store      *postgresrepo.Store
	redis      *redisinfra.Client
	tracer     *telemetry.TracerProvider
	tokens     port.TokenRepository
	sweepEvery time.Duration
}

// New wires configuration into a runnable application.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	store, err := postgresrepo.NewStore(ctx, cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	hasher, err := security.NewHasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		store.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init hasher: %w", err)
	}

	repos := postgresrepo.NewRepositories(store.Pool())

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	passwordValidator := security.DefaultPasswordValidator()
	mailboxValidator := security.NewMailboxValidator()

	authService, err := usecase.NewAuthService(cfg, repos.Users, repos.Tokens, hasher, eventPublisher)
	if err != nil {
		store.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init auth service: %w", err)
	}

	registrationService := usecase.NewRegistrationService(repos.Users, authService, hasher, passwordValidator, mailboxValidator, eventPublisher).WithLogger(log)
	userService := usecase.NewUserService(repos.Users, authService, hasher, passwordValidator, eventPublisher)
	roleService := usecase.NewRoleService(repos.Users, repos.Roles, eventPublisher)
	permissionService := usecase.NewPermissionService(repos.Roles, repos.Permissions, eventPublisher)

	providerClient := oauthinfra.NewClient(cfg.OAuth, log)
	oauthService := usecase.NewOAuthService(repos.Users, repos.Connections, providerClient, authService, eventPublisher)

	rateLimitTTL := cfg.Redis.RateLimitTTL
	if rateLimitTTL <= 0 {
		window := cfg.RateLimit.WindowDuration
		if window <= 0 {
			window = time.Minute
		}
		rateLimitTTL = window * 2
	}
	rateLimitStore := redisrepo.NewRateLimitStore(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       rateLimitTTL,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	metrics := telemetry.NewMetrics()
	authService.WithReuseObserver(metrics.ObserveTokenReuse)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Database:    store,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:         authService,
			Registration: registrationService,
			Users:        userService,
			Roles:        roleService,
			Permissions:  permissionService,
			OAuth:        oauthService,
		},
	})

	return &Application{
		cfg:        cfg,
		engine:     engine,
		logger:     log,
		store:      store,
		redis:      redisClient,
		tracer:     tracer,
		tokens:     repos.Tokens,
		sweepEvery: cfg.Sweep.Interval,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.store.Close()
	defer func() {
		_ = a.redis.Close()
	}()
	defer func() {
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.tracer.Shutdown(shutdownCtx)
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sweepExpiredTokens(sweepCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting IAM API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// sweepExpiredTokens periodically deletes refresh token rows past expiry.
func (a *Application) sweepExpiredTokens(ctx context.Context) {
	interval := a.sweepEvery
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := a.tokens.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				a.logger.Warn("token sweep failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				a.logger.Info("token sweep completed", zap.Int64("deleted", deleted))
			}
		}
	}
}
