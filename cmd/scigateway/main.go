package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/scisolve/scigateway/internal/api"
	"github.com/scisolve/scigateway/internal/auth"
	"github.com/scisolve/scigateway/internal/backend/alphafold"
	"github.com/scisolve/scigateway/internal/backend/esm3"
	"github.com/scisolve/scigateway/internal/backend/evo2"
	"github.com/scisolve/scigateway/internal/backend/field"
	"github.com/scisolve/scigateway/internal/backend/mattergen"
	"github.com/scisolve/scigateway/internal/backend/spectrum"
	"github.com/scisolve/scigateway/internal/config"
	"github.com/scisolve/scigateway/internal/httputil"
	"github.com/scisolve/scigateway/internal/llm"
	"github.com/scisolve/scigateway/internal/llm/bedrock"
	"github.com/scisolve/scigateway/internal/llm/openai"
	"github.com/scisolve/scigateway/internal/notifications"
	"github.com/scisolve/scigateway/internal/queue"
	"github.com/scisolve/scigateway/internal/ratelimit"
	"github.com/scisolve/scigateway/internal/repository"
	"github.com/scisolve/scigateway/internal/route"
	"github.com/scisolve/scigateway/internal/secrets"
	"github.com/scisolve/scigateway/internal/telemetry"
	"github.com/scisolve/scigateway/internal/tool"
	"github.com/scisolve/scigateway/internal/usage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := telemetry.Init(ctx, "scigateway", cfg.OTLPEndpoint)
		if err != nil {
			slog.Error("failed to initialize telemetry", "error", err)
			os.Exit(1)
		}
		defer shutdown(context.Background())
	}

	if cfg.ModelKeysSecretName != "" {
		if err := loadModelKeys(ctx, cfg); err != nil {
			slog.Error("failed to load model keys", "error", err)
			os.Exit(1)
		}
	}

	routeClient, err := buildLLMClient(ctx, cfg.RouteModel, cfg.AWSRegion)
	if err != nil {
		slog.Error("failed to build route model client", "error", err)
		os.Exit(1)
	}
	agentClient, err := buildLLMClient(ctx, cfg.AgentModel, cfg.AWSRegion)
	if err != nil {
		slog.Error("failed to build agent model client", "error", err)
		os.Exit(1)
	}

	registry, checkers := buildBackends(cfg)

	handlerCfg := api.HandlerConfig{
		Models:         cfg.AvailableModels,
		Classifier:     route.NewClassifier(routeClient),
		AgentClient:    agentClient,
		Registry:       registry,
		MaxAgentSteps:  cfg.MaxAgentSteps,
		RateLimitRPM:   cfg.RateLimitRPM,
		HealthCheckers: checkers,
	}

	if len(cfg.APIKeys) > 0 {
		keys, err := auth.NewKeyStore(cfg.APIKeys)
		if err != nil {
			slog.Error("failed to build key store", "error", err)
			os.Exit(1)
		}
		handlerCfg.Keys = keys
	}

	if cfg.RateLimitRPM > 0 {
		handlerCfg.RateLimiter = buildRateLimiter(cfg)
	}

	if cfg.DatabaseURL != "" {
		tracker, err := repository.NewPostgresUsageTracker(cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to usage database", "error", err)
			os.Exit(1)
		}
		defer tracker.Close()
		handlerCfg.Usage = tracker
	} else {
		handlerCfg.Usage = usage.NewInMemoryTracker()
	}

	if cfg.UsageQueueURL != "" {
		q, err := queue.NewSQSQueue(ctx, cfg.AWSRegion, cfg.UsageQueueURL)
		if err != nil {
			slog.Error("failed to build usage queue", "error", err)
			os.Exit(1)
		}
		handlerCfg.Queue = q
	}

	if cfg.SNSTopicARN != "" {
		notifier, err := notifications.NewSNSNotifier(ctx, cfg.AWSRegion, cfg.SNSTopicARN)
		if err != nil {
			slog.Error("failed to build notifier", "error", err)
			os.Exit(1)
		}
		handlerCfg.Notifier = notifier
	}

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.NewHandler(handlerCfg),
	}

	go func() {
		slog.Info("starting server", "addr", cfg.Addr, "models", cfg.AvailableModels)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}

// loadModelKeys overrides the env-provided model API keys with the secret.
func loadModelKeys(ctx context.Context, cfg *config.Config) error {
	store, err := secrets.NewAWSSecretsManager(ctx, cfg.AWSRegion)
	if err != nil {
		return err
	}

	keys, err := secrets.LoadModelKeys(ctx, store, cfg.ModelKeysSecretName)
	if err != nil {
		return err
	}

	if keys.RouteModelAPIKey != "" {
		cfg.RouteModel.APIKey = keys.RouteModelAPIKey
	}
	if keys.AgentModelAPIKey != "" {
		cfg.AgentModel.APIKey = keys.AgentModelAPIKey
	}
	return nil
}

func buildLLMClient(ctx context.Context, endpoint config.ModelEndpoint, region string) (llm.Client, error) {
	switch endpoint.Provider {
	case "bedrock":
		return bedrock.New(ctx, endpoint.Name, region)
	default:
		return openai.New(endpoint.Name, endpoint.APIKey, endpoint.BaseURL), nil
	}
}

// buildBackends constructs the adapter for every configured scientific
// service and registers it under its routing label. An empty URL leaves
// the label unregistered; requests classified to it then run without a
// tool, like any unknown label.
func buildBackends(cfg *config.Config) (*tool.Registry, []api.HealthChecker) {
	client := httputil.NewClient(httputil.BackendConfig(cfg.BackendTimeout))
	fieldClient := httputil.NewClient(httputil.BackendConfig(cfg.FieldTimeout))

	tools := make(map[string]tool.Tool)
	var checkers []api.HealthChecker

	type adapter interface {
		tool.Tool
		HealthCheck(ctx context.Context) error
	}

	register := func(intent, url string, a adapter) {
		if url == "" {
			slog.Warn("backend disabled", "intent", intent)
			return
		}
		tools[intent] = a
		checkers = append(checkers, api.CheckerFunc{
			CheckerName: a.Name(),
			Fn:          a.HealthCheck,
		})
	}

	register("AlphaFold2", cfg.AlphaFoldURL, alphafold.New(cfg.AlphaFoldURL, client))
	register("ESM3", cfg.ESM3URL, esm3.New(cfg.ESM3URL, client))
	register("EVO2", cfg.Evo2URL, evo2.New(cfg.Evo2URL, client))
	register("MatterGen", cfg.MatterGenURL, mattergen.New(cfg.MatterGenURL, client))
	register("SPECTRUM", cfg.SpectrumURL, spectrum.New(cfg.SpectrumURL, client))
	register("FIELD", cfg.FieldURL, field.New(cfg.FieldURL, fieldClient))

	return tool.NewRegistry(tools), checkers
}

func buildRateLimiter(cfg *config.Config) ratelimit.RateLimiter {
	if cfg.RedisURL != "" {
		limiter, err := ratelimit.NewRedisRateLimiter(cfg.RedisURL)
		if err != nil {
			slog.Warn("redis unavailable, using in-memory rate limiter", "error", err)
			return ratelimit.NewInMemoryRateLimiter()
		}
		return limiter
	}
	return ratelimit.NewInMemoryRateLimiter()
}
