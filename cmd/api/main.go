// Package main is the entrypoint for the keygate API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keygate/keygate/internal/cache"
	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/gate"
	"github.com/keygate/keygate/internal/handler"
	"github.com/keygate/keygate/internal/identity"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/middleware"
	"github.com/keygate/keygate/internal/quota"
	"github.com/keygate/keygate/internal/repository"
	"github.com/keygate/keygate/internal/server"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/usage"
)

func main() {
	ctx := context.Background()

	// Load .env for local development; in production the environment is
	// the source of truth and this is a no-op.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	recorder := metrics.NewPrometheus(prometheus.DefaultRegisterer)

	// Authorization pipeline
	resolver := identity.NewResolver(repo, cacheClient, cfg.IdentityCacheTTL, recorder, logger)
	enforcer := quota.NewEnforcer(cacheClient, logger)
	g := gate.New(resolver, enforcer, cfg.GetExemptPaths(), cfg.AuthEnforced, recorder, logger)

	if !cfg.AuthEnforced {
		logger.Warn("AUTHORIZATION ENFORCEMENT IS DISABLED - all requests pass without checks; set AUTH_ENFORCED=true in production")
	}

	// Usage pipeline
	publisher := usage.NewPublisher(cacheClient.Client(), logger, recorder)

	// Services
	credentialService := service.NewCredentialService(repo, cacheClient, recorder, logger, cfg.KeyEnv)
	tenantService := service.NewTenantService(repo, logger)

	// Handlers
	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	credentialHandler := handler.NewCredentialHandler(logger, credentialService)
	tenantHandler := handler.NewTenantHandler(logger, tenantService)
	whoamiHandler := handler.NewWhoamiHandler()

	r := setupRouter(h, healthHandler, credentialHandler, tenantHandler, whoamiHandler, g, publisher, cfg, logger)

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	if cfg.UsageWorkerEnabled {
		worker := usage.NewWorker(cacheClient.Client(), repo, logger, usage.NewConsumerID(), recorder)
		worker.SetBatchSize(cfg.UsageBatchSize)
		go func() {
			if err := worker.Run(ctx); err != nil && err != context.Canceled {
				logger.Error("usage worker exited", "error", err)
			}
		}()
		srv.OnShutdown("usage worker", worker.Shutdown)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"auth_enforced", cfg.AuthEnforced,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
// The gate middleware sits on every route; it skips the paths the gate
// itself knows to be exempt.
func setupRouter(
	h *handler.Handler,
	healthHandler *handler.HealthHandler,
	credentialHandler *handler.CredentialHandler,
	tenantHandler *handler.TenantHandler,
	whoamiHandler *handler.WhoamiHandler,
	g *gate.Gate,
	publisher *usage.Publisher,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment:      cfg.IsDevelopment(),
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	}))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	if origins := cfg.GetCORSAllowedOrigins(); len(origins) > 0 {
		corsCfg := middleware.DefaultCORSConfig()
		corsCfg.AllowedOrigins = origins
		r.Use(middleware.CORS(corsCfg))
	}

	r.Use(middleware.Gate(middleware.GateConfig{
		Gate:      g,
		Publisher: publisher,
		Logger:    logger,
	}))

	// Exempt endpoints
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/", h.Root)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated surface
	r.Route("/v1", func(r chi.Router) {
		r.Get("/auth/me", whoamiHandler.Whoami)

		// Administrative surface: admin scope required throughout.
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin())

			r.Route("/credentials", func(r chi.Router) {
				r.Post("/", credentialHandler.Create)
				r.Get("/", credentialHandler.List)
				r.Post("/cleanup", credentialHandler.Cleanup)
				r.Delete("/{credential_id}", credentialHandler.Revoke)
				r.Post("/{credential_id}/rotate", credentialHandler.Rotate)
				r.Get("/{credential_id}/usage", credentialHandler.Usage)
			})

			r.Route("/tenants", func(r chi.Router) {
				r.Post("/", tenantHandler.Create)
				r.Get("/", tenantHandler.List)
				r.Get("/{slug}", tenantHandler.Get)
				r.Put("/{slug}/tier", tenantHandler.ChangeTier)
			})
		})
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
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
