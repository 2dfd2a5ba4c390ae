package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/welldanyogia/umx-auth/backend/internal/auth"
	"github.com/welldanyogia/umx-auth/backend/internal/clock"
	"github.com/welldanyogia/umx-auth/backend/internal/config"
	"github.com/welldanyogia/umx-auth/backend/internal/email"
	"github.com/welldanyogia/umx-auth/backend/internal/health"
	"github.com/welldanyogia/umx-auth/backend/internal/logger"
	"github.com/welldanyogia/umx-auth/backend/internal/metrics"
	authmw "github.com/welldanyogia/umx-auth/backend/internal/middleware"
	"github.com/welldanyogia/umx-auth/backend/internal/repository"
	"github.com/welldanyogia/umx-auth/backend/internal/sanitizer"
	"github.com/welldanyogia/umx-auth/backend/internal/security"
)

var version = "dev"

func main() {
	log := logger.New(logger.DefaultConfig())
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("Server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := setupDatabase(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbPool.Close()

	// Reporting queries go through sqlx on the pgx stdlib driver
	reportDB, err := sqlx.Connect("pgx", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to open reporting connection: %w", err)
	}
	defer reportDB.Close()
	reportDB.SetMaxOpenConns(10)
	reportDB.SetConnMaxIdleTime(time.Minute)

	go metrics.NewDBStatsCollector(dbPool, reportDB.DB, log).Run(ctx, 15*time.Second)

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = setupRedis(ctx, cfg.Redis.URL)
		if err != nil {
			if cfg.Security.Store == config.StoreRedis {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			log.Warn("Redis unavailable, continuing without it", slog.String("error", err.Error()))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	clk := clock.Real{}

	// Abuse defense
	allowlist, err := security.NewAllowlist(cfg.Security.IPAllowlist)
	if err != nil {
		return fmt.Errorf("invalid SECURITY_IP_ALLOWLIST: %w", err)
	}
	var store security.Store
	switch cfg.Security.Store {
	case config.StoreRedis:
		store = security.NewRedisStore(redisClient, "umx:abuse:")
		log.Info("Abuse defense uses the shared redis store")
	default:
		mem := security.NewMemoryStore(clk)
		go mem.RunSweeper(ctx, time.Minute, log)
		store = mem
	}

	ipBlock := security.NewIPBlockGuard(store, allowlist, security.DefaultIPBlockConfig(), clk, log)
	bruteForce := security.NewBruteForceGuard(store, allowlist, security.DefaultBruteForceConfig(), clk, security.SleepContext, log)
	pipeline := security.NewPipeline(
		security.NewRouteGuard(security.RouteGuardConfig{ExemptPrefixes: cfg.Security.DenyExemptPaths}),
		ipBlock,
		bruteForce,
		security.NewRateLimiter(store, allowlist, security.DefaultRateLimitConfig(), clk, log),
	)

	// Repositories
	sessionRepo := repository.NewSessionRepository(dbPool)

	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		AccessSecret:       cfg.JWT.AccessSecret,
		RefreshSecret:      cfg.JWT.RefreshSecret,
		AccessTokenExpiry:  cfg.JWT.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.JWT.RefreshTokenExpiry,
		Issuer:             cfg.JWT.Issuer,
		Clock:              clk,
	})

	authService := auth.NewAuthService(auth.Dependencies{
		Users:         repository.NewUserRepository(dbPool),
		Tenants:       repository.NewTenantRepository(dbPool),
		Pending:       repository.NewPendingRegistrationRepository(dbPool),
		Registrations: repository.NewRegistrationRepository(dbPool),
		Sessions:      sessionRepo,
		Tokens:        tokenService,
		Passwords:     auth.NewPasswordValidator(cfg.Auth.BcryptCost),
		Mailer:        setupMailer(cfg, log),
		Failures:      ipBlock,
		Sanitizer:     sanitizer.NewTextSanitizer(),
		Clock:         clk,
		Logger:        log,
	}, auth.AuthServiceConfig{
		CodeLength: cfg.Auth.CodeLength,
		CodeTTL:    cfg.Auth.CodeTTL,
		OpenSignup: cfg.Auth.OpenSignup,
	})
	sessionService := auth.NewSessionService(sessionRepo, repository.NewSessionReportRepository(reportDB), clk, log)

	authHandler := auth.NewAuthHandler(authService, auth.CookieOptions{
		Secure: cfg.Cookie.Secure,
		Domain: cfg.Cookie.Domain,
	}, log)
	adminHandler := auth.NewAdminHandler(sessionService, security.NewAdmin(ipBlock, bruteForce, log), log)
	authMiddleware := authmw.NewAuthMiddleware(tokenService)

	healthHandler := health.NewHandler(health.Config{
		DB:          dbPool,
		RedisClient: redisClient,
		Version:     version,
	})

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	if cfg.Server.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(authmw.StructuredLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(authmw.NewAbuseDefense(pipeline, cfg.Security.MaxBodyScanBytes, log).Handler)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		auth.RegisterRoutes(r, authHandler, adminHandler, authMiddleware.Authenticate, authMiddleware.RequireTenantAdmin)
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	// WriteTimeout leaves room for the brute-force delay (up to 30s)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", slog.String("addr", addr), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	healthHandler.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exited")
	return nil
}

// setupDatabase creates and configures the database connection pool
func setupDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Connected to database",
		slog.String("database", cfg.Database.DBName),
		slog.String("host", cfg.Database.Host),
		slog.String("port", cfg.Database.Port),
	)
	return pool, nil
}

func setupRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func setupMailer(cfg *config.Config, log *slog.Logger) email.Sender {
	if cfg.Email.Driver == config.EmailDriverConsole {
		log.Warn("Verification codes are printed to stderr; never use this outside development")
		return email.NewConsoleSender(os.Stderr)
	}
	return email.NewSMTPSender(email.SMTPConfig{
		Host:       cfg.Email.Host,
		Port:       cfg.Email.Port,
		Username:   cfg.Email.Username,
		Password:   cfg.Email.Password,
		From:       cfg.Email.From,
		FromName:   "UMX",
		UseTLS:     cfg.Email.UseTLS,
		Timeout:    10 * time.Second,
		MaxRetries: cfg.Email.MaxRetries,
	}, log)
}
