package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/NEAR-Edu/contract-registry/internal/backoff"
	"github.com/NEAR-Edu/contract-registry/internal/circleci"
	"github.com/NEAR-Edu/contract-registry/internal/metrics"
	"github.com/NEAR-Edu/contract-registry/internal/middleware"
	"github.com/NEAR-Edu/contract-registry/internal/near"
	"github.com/NEAR-Edu/contract-registry/internal/providers"
	"github.com/NEAR-Edu/contract-registry/internal/ratelimit"
	"github.com/NEAR-Edu/contract-registry/internal/repository"
	"github.com/NEAR-Edu/contract-registry/internal/services"
	"github.com/NEAR-Edu/contract-registry/internal/tracing"
	"github.com/NEAR-Edu/contract-registry/internal/watch"
	"github.com/NEAR-Edu/contract-registry/pkg/auth"
	"github.com/NEAR-Edu/contract-registry/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

type Application struct {
	Config         *config.Config
	Engine         *gin.Engine
	Logger         *slog.Logger
	TZ             *time.Location
	Redis          *redis.Client
	RateLimiter    ratelimit.Limiter
	AdminValidator auth.Validator

	Registry    services.RegistryService
	Webhooks    services.WebhookService
	Resolutions services.ResolutionService
	Dispatcher  services.DispatchService
	Cleanup     services.JobCleanupService

	TracingShutdown func(context.Context) error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithAdminValidator sets a custom operator API validator
func WithAdminValidator(validator auth.Validator) ApplicationOption {
	return func(app *Application) error {
		app.AdminValidator = validator
		return nil
	}
}

// WithLogger replaces the root logger built from config
func WithLogger(logger *slog.Logger) ApplicationOption {
	return func(app *Application) error {
		app.Logger = logger
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	app := &Application{
		Config: cfg,
		TZ:     cfg.Location(),
	}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	if app.Logger == nil {
		app.Logger = newLogger(cfg)
		slog.SetDefault(app.Logger)
	}
	logger := app.Logger

	shutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		Environment:  cfg.Env,
		ContractID:   cfg.Near.ContractID,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("tracing setup: %w", err)
	}
	app.TracingShutdown = shutdown

	app.Redis = providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := providers.PingRedis(context.Background(), app.Redis, 2*time.Second); err != nil {
		logger.Warn("redis not reachable at startup", "addr", cfg.RedisAddr, "err", err)
	}
	app.RateLimiter = ratelimit.NewTokenBucketLimiter(app.Redis)
	metrics.RegisterRedisCollector(app.Redis, logger)

	jobs := repository.NewJobRepository(app.Redis, app.TZ, cfg.JobRetention())
	ledger := repository.NewDispatchRepository(app.Redis, time.Duration(cfg.Dispatch.ClaimTTLHours)*time.Hour)

	ci := circleci.NewClient(circleci.ClientConfig{
		BaseURL:           cfg.CircleCI.BaseURL,
		ProjectSlug:       cfg.CircleCI.ProjectSlug,
		APIKey:            cfg.CircleCI.APIKey,
		Timeout:           cfg.HTTPTimeout(),
		RequestsPerSecond: cfg.CircleCI.RequestsPerSecond,
		Burst:             cfg.CircleCI.Burst,
	})
	assembler := circleci.NewAssembler(ci, cfg.CircleCI.ArtifactConcurrency)
	archive := providers.NewCodeArchive(providers.NewLocalUploader(cfg.LocalArtifactsDir))

	node := near.NewClient(cfg.Near.NodeURL, cfg.HTTPTimeout())
	var submitter services.TxSubmitter
	if cfg.SignerConfigured() {
		signer, err := near.NewSigner(cfg.Near.AccountID, cfg.Near.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("near signer: %w", err)
		}
		submitter = near.NewSubmitter(node, signer,
			near.WithGas(cfg.Near.Gas),
			near.WithStatusPolicy(statusPolicy(cfg)),
			near.WithLogger(logger.With("component", "submitter")),
		)
		logger.Info("on-chain resolution enabled", "account", cfg.Near.AccountID, "contract", cfg.Near.ContractID)
	} else {
		logger.Warn("no signer configured; on-chain resolution disabled")
	}

	app.Registry = services.NewRegistryService(node, cfg.Near.ContractID)
	app.Resolutions = services.NewResolutionService(submitter, cfg.Near.ContractID, jobs, ledger, logger)
	app.Webhooks = services.NewWebhookService(assembler, archive, jobs, ledger, app.Resolutions, logger, app.TZ)

	poller := watch.NewPoller(node, cfg.Near.ContractID, cfg.PollInterval(), cfg.Poll.Buffer, logger)
	dispatchEnabled := cfg.Dispatch.Enabled && submitter != nil
	if cfg.Dispatch.Enabled && !dispatchEnabled {
		logger.Warn("dispatch requested without a signer; pending requests will only be observed")
	}
	app.Dispatcher = services.NewDispatchService(poller, ci, ledger, cfg.Dispatch.Branch, dispatchEnabled, logger, app.TZ)
	app.Cleanup = services.NewJobCleanupService(jobs, logger, time.Duration(cfg.Jobs.CleanupIntervalSeconds)*time.Second)

	if app.AdminValidator == nil {
		pc, ok, err := cfg.AdminProvider()
		if err != nil {
			return nil, err
		}
		if ok {
			validator, err := auth.NewValidator(pc)
			if err != nil {
				return nil, fmt.Errorf("admin auth: %w", err)
			}
			app.AdminValidator = validator
		}
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestIDMiddleware(), middleware.TracingMiddleware(), middleware.LoggerMiddleware(logger))
	app.Engine = engine

	return app, nil
}

// Start launches the background loops. They stop when ctx is cancelled or Stop is called.
func (app *Application) Start(ctx context.Context) {
	ctx, app.cancel = context.WithCancel(ctx)
	for _, run := range []func(context.Context){app.Resolutions.Start, app.Dispatcher.Start, app.Cleanup.Start} {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			run(ctx)
		}()
	}
}

// Stop cancels the background loops and waits for them. Transactions already
// broadcast are no longer observed but still execute on-chain.
func (app *Application) Stop(ctx context.Context) error {
	if app.cancel != nil {
		app.cancel()
	}
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if app.Redis != nil {
		return app.Redis.Close()
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler).With("service", "contract-registry-relay", "env", cfg.Env)
}

func statusPolicy(cfg *config.Config) near.StatusPolicy {
	return near.StatusPolicy{
		Backoff: backoff.Policy{
			Name: cfg.Near.StatusPolicy,
			Base: time.Duration(cfg.Near.StatusBaseMillis) * time.Millisecond,
			Max:  time.Duration(cfg.Near.StatusMaxMillis) * time.Millisecond,
		},
		MaxAttempts: cfg.Near.StatusMaxAttempts,
	}
}
