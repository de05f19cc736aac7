package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"userservice/internal/auth"
	"userservice/internal/config"
	"userservice/internal/handler"
	"userservice/internal/health"
	"userservice/internal/metrics"
	"userservice/internal/middleware"
	"userservice/internal/repository/postgres"
	"userservice/internal/service"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server", "start"},
		Short:   "Start the API server and the health/metrics server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, closer, err := config.NewLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}
			defer closer.Close()
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.ServerPort,
		"health_port", cfg.HealthPort,
		"table_prefix", cfg.TablePrefix,
	)

	m := metrics.New()

	// Signing keys and token verification
	keyCache := auth.NewKeyCache(cfg.JWKSURL(),
		auth.WithFetchTimeout(cfg.JWKSFetchTimeout),
		auth.WithKeyCacheLogger(logger),
		auth.WithKeyCacheMetrics(m),
	)
	verifierOpts := []auth.VerifierOption{}
	if cfg.KeycloakIssuer != "" {
		verifierOpts = append(verifierOpts, auth.WithIssuer(cfg.KeycloakIssuer))
	}
	if cfg.KeycloakAudience != "" {
		verifierOpts = append(verifierOpts, auth.WithAudience(cfg.KeycloakAudience))
	}
	verifier := auth.NewJWTVerifier(keyCache, logger, verifierOpts...)

	// Storage
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL, postgres.DefaultPoolOptions)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", postgres.DefaultPoolOptions.MaxConns,
		"min_conns", postgres.DefaultPoolOptions.MinConns,
	)

	tables := postgres.NewTableNames(cfg.TablePrefix)
	userRepo := postgres.NewUserRepository(&postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	})
	resolver := auth.NewIdentityResolver(userRepo, cfg.ProvisionTimeout, logger, m)

	// Collaborators
	identity := auth.NewKeycloakAdminClient(ctx, auth.KeycloakAdminConfig{
		BaseURL:      cfg.KeycloakInternalURL,
		Realm:        cfg.KeycloakRealm,
		ClientID:     cfg.KeycloakClientID,
		ClientSecret: cfg.KeycloakClientSecret,
	}, logger)
	content := service.NewContentClient(cfg.ContentServiceURL, logger)

	userService := service.NewUserService(userRepo, identity, content, logger)

	openAPI, err := handler.NewOpenAPIHandler()
	if err != nil {
		return err
	}

	logger.Info("services initialized")

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, handler.Handlers{
		Users:    handler.NewUserHandler(userService, logger),
		Settings: handler.NewSettingsHandler(userService, logger),
		OpenAPI:  openAPI,
	}, middleware.AuthMiddleware(verifier, resolver, logger, m))

	// Order: CORS → request logging → Recovery → Routes (auth per route)
	var h http.Handler = mux
	h = middleware.Recovery(logger)(h)
	h = middleware.RequestLogging(logger, m)(h)

	// CORS - Must be outermost to answer OPTIONS pre-flight requests without auth
	h = cors.New(corsOptions(cfg.CORSOrigins)).Handler(h)

	checker := health.NewChecker(5 * time.Second)
	checker.Add(health.CheckFunc{CheckName: "database", Fn: pool.Ping})

	apiServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	healthServer := &http.Server{
		Addr:              cfg.HealthAddr(),
		Handler:           health.Handler(checker, m.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		go func() {
			logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server on %s: %w", srv.Addr, err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error("server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown failed", "error", err)
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
	return serveErr
}

// corsOptions allows credentials only for an explicit origin list; with the
// wildcard origin they stay off.
func corsOptions(origins string) cors.Options {
	allowed := make([]string, 0)
	wildcard := false
	for _, origin := range strings.Split(origins, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			wildcard = true
		}
		allowed = append(allowed, origin)
	}
	if len(allowed) == 0 {
		allowed = []string{"*"}
		wildcard = true
	}

	return cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: !wildcard,
	}
}
