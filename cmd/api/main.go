// Package main is the entrypoint for the Sheetsmith API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/sheetsmith/sheetsmith/internal/bridge"
	"github.com/sheetsmith/sheetsmith/internal/cache"
	"github.com/sheetsmith/sheetsmith/internal/config"
	"github.com/sheetsmith/sheetsmith/internal/events"
	"github.com/sheetsmith/sheetsmith/internal/handler"
	"github.com/sheetsmith/sheetsmith/internal/identity"
	"github.com/sheetsmith/sheetsmith/internal/metrics"
	"github.com/sheetsmith/sheetsmith/internal/middleware"
	"github.com/sheetsmith/sheetsmith/internal/notify"
	"github.com/sheetsmith/sheetsmith/internal/repository"
	"github.com/sheetsmith/sheetsmith/internal/server"
	"github.com/sheetsmith/sheetsmith/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return err
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return err
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	recorder := metrics.NewInMemory()

	// Identity provider and session tokens
	idp := identity.NewClient(cfg.IdentityURL, cfg.IdentityServiceKey, identity.NewHTTPClient(cfg.IdentityTimeout))
	sessions, err := identity.NewSessionVerifier(cfg.SessionJWTSecret, cfg.SessionAudience)
	if err != nil {
		return err
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.SendGridAPIKey != "" {
		notifier = notify.NewSendGrid(cfg.SendGridAPIKey, cfg.MailFromEmail, cfg.MailFromName, logger)
	} else {
		logger.Warn("SENDGRID_API_KEY not set, account notices are disabled")
	}

	// Initialize services
	accounts := service.NewAccountService(repo, cacheClient, idp, notifier, recorder, logger)
	entitlements := service.NewEntitlementService(repo, cacheClient, notifier, recorder, logger)
	keys := service.NewAPIKeyService(repo, cacheClient, cfg.APIKeyEnv(), logger)
	if err := bridge.ValidateBaseURL(cfg.BridgeLibraryURL, !cfg.IsProduction()); err != nil {
		return fmt.Errorf("BRIDGE_LIBRARY_URL: %w", err)
	}
	forwarder := bridge.NewForwarder(cfg.BridgeLibraryURL, &http.Client{Timeout: cfg.BridgeTimeout})
	if cfg.BridgeSigningSecret != "" {
		forwarder.SetSigningSecret(cfg.BridgeSigningSecret)
	} else if cfg.IsProduction() {
		logger.Warn("BRIDGE_SIGNING_SECRET not set, library calls are unsigned")
	}
	bridgeService := service.NewBridgeService(forwarder, entitlements, recorder, logger)
	publisher := events.NewPublisher(cacheClient.Client(), logger, recorder)

	if cfg.TrackingAPIKey == "" {
		logger.Warn("TRACKING_API_KEY not set, installation events are rejected")
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	r := handler.NewRouter(handler.RouterConfig{
		Logger: logger,

		Root: handler.New(),
		Health: handler.NewHealthHandler(logger,
			handler.Check{Name: "postgres", Checker: repo},
			handler.Check{Name: "redis", Checker: cacheClient},
		),
		Metrics: handler.NewMetricsHandler(recorder),
		Auth:    handler.NewAuthHandler(accounts, logger),
		Me:      handler.NewMeHandler(accounts, entitlements, logger),
		APIKeys: handler.NewAPIKeyHandler(keys, logger),
		Admin:   handler.NewAdminHandler(accounts, entitlements, logger),
		Usage:   handler.NewUsageHandler(entitlements, logger),
		Bridge:  handler.NewBridgeHandler(bridgeService, logger),
		Events:  handler.NewEventsHandler(publisher, logger),

		Sessions: sessions,
		APIKeyAuth: middleware.AuthConfig{
			Logger: logger,
			Keys:   repo,
			Cache:  cacheClient,
		},
		AdminAccess: middleware.AdminConfig{
			Logger:       logger,
			Load:         accounts.Me,
			IsAdminEmail: cfg.IsAdminEmail,
		},
		RateLimit: middleware.RateLimitConfig{
			Logger:     logger,
			Limiter:    cacheClient,
			APIEnabled: cfg.RateLimitAPIEnabled,
			APIRPM:     cfg.RateLimitAPIRPM,
			APIBurst:   cfg.RateLimitAPIBurst,
			IPEnabled:  cfg.RateLimitAuthEnabled,
			IPRPS:      cfg.RateLimitAuthRPS,
			IPBurst:    cfg.RateLimitAuthBurst,
		},
		TrackingKey: cfg.TrackingAPIKey,
		CORS:        cors,
		Security:    middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()},
		MaxBodySize: cfg.MaxRequestBodySize,
	})

	srv := server.New(r, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Installation event worker
	if cfg.EventWorkerEnabled {
		worker := events.NewWorker(cacheClient.Client(), repo, logger, events.NewConsumerID(), recorder)
		worker.SetBatchSize(cfg.EventWorkerBatchSize)
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("event worker stopped", "error", err)
			}
		}()
		srv.OnShutdown("event-worker", worker.Shutdown)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"event_worker", cfg.EventWorkerEnabled,
	)

	return srv.Run(ctx)
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", "sheetsmith")
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
