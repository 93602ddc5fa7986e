package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/pagebuilder-identity/internal/auth"
	"github.com/BradenHooton/pagebuilder-identity/internal/background"
	"github.com/BradenHooton/pagebuilder-identity/internal/bootstrap"
	"github.com/BradenHooton/pagebuilder-identity/internal/config"
	"github.com/BradenHooton/pagebuilder-identity/internal/database"
	"github.com/BradenHooton/pagebuilder-identity/internal/handlers"
	"github.com/BradenHooton/pagebuilder-identity/internal/identifier"
	"github.com/BradenHooton/pagebuilder-identity/internal/metrics"
	middlewareCustom "github.com/BradenHooton/pagebuilder-identity/internal/middleware"
	"github.com/BradenHooton/pagebuilder-identity/internal/repositories"
	"github.com/BradenHooton/pagebuilder-identity/internal/routes"
	"github.com/BradenHooton/pagebuilder-identity/internal/services"
	pkgauth "github.com/BradenHooton/pagebuilder-identity/pkg/auth"
	pkghttp "github.com/BradenHooton/pagebuilder-identity/pkg/http"
	pkglogger "github.com/BradenHooton/pagebuilder-identity/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("rate_limit_backend", cfg.OTP.RateLimitBackend))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(migrateCtx)
		cancel()
		if err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("database migrations applied")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	// Initialize repositories
	identityRepo := repositories.NewIdentityRepository(db)
	otpRepo := repositories.NewOTPRepository(db)

	var rateCounter services.RateLimitCounter
	switch cfg.OTP.RateLimitBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		rateCounter = repositories.NewRedisRateLimitRepository(rdb)
	default:
		rateCounter = repositories.NewRateLimitRepository(db)
	}

	// Notification senders
	sesCtx, sesCancel := context.WithTimeout(context.Background(), 10*time.Second)
	emailSender, err := services.NewSESEmailSender(sesCtx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	sesCancel()
	if err != nil {
		logger.Error("failed to initialize email sender", slog.Any("error", err))
		os.Exit(1)
	}
	smsSender := services.NewHTTPSMSSender(cfg.SMS.GatewayURL, cfg.SMS.APIKey, cfg.SMS.SenderID, logger)
	if cfg.SMS.GatewayURL == "" {
		logger.Warn("SMS_GATEWAY_URL not set, mobile codes will not be delivered")
	}

	// Initialize services
	auditLogger := pkglogger.NewAuditLogger(logger)
	hasher := pkgauth.NewBcryptHasher(cfg.Auth.BcryptCost)
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.SessionTTL,
		cfg.Auth.SessionCookieName,
		cfg.Server.IsProduction(),
	)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	otpService := services.NewOTPService(otpRepo, services.OTPConfig{
		TTL:               cfg.OTP.TTL,
		MaxVerifyAttempts: cfg.OTP.MaxVerifyAttempts,
	}, appMetrics, logger)
	rateLimitService := services.NewRateLimitService(rateCounter, services.RateLimitConfig{
		MaxRequests: cfg.OTP.RateLimitMax,
		Window:      cfg.OTP.RateLimitWindow,
	}, appMetrics, logger)
	notificationService := services.NewNotificationService(emailSender, smsSender, cfg.OTP.TTL, cfg.OTP.DispatchTimeout, appMetrics, logger)

	authService := services.NewAuthService(services.AuthDependencies{
		Identities:  identityRepo,
		Classifier:  identifier.NewClassifier(cfg.OTP.DefaultCountryCode),
		RateLimiter: rateLimitService,
		OTPs:        otpService,
		Dispatcher:  notificationService,
		Sessions:    tokenManager,
		Hasher:      hasher,
		TimingDelay: timingDelay,
		Metrics:     appMetrics,
		Logger:      logger,
		AuditLogger: auditLogger,
	}, services.AuthConfig{RequireOTPOnSignup: cfg.OTP.RequireOnSignup})

	// Bootstrap the superadmin identity if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := bootstrap.EnsureAdmin(ctx, cfg.Admin, identityRepo, hasher, logger); err != nil {
		logger.Error("failed to ensure admin identity", slog.Any("error", err))
	}
	cancel()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, tokenManager)
	healthHandler := handlers.NewHealthHandler(db)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	// Resolve the audit IP against trusted proxies before RealIP rewrites RemoteAddr
	router.Use(pkghttp.ClientIPMiddleware(pkghttp.NewIPConfig(cfg.Server.TrustedProxies)))
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.CORSConfig{AllowedOrigins: cfg.Server.AllowedOrigins}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	routes.RegisterRoutes(router, authHandler, healthHandler, tokenManager, middlewareCustom.DefaultAuthRateLimit(), appMetrics.Handler())

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager([]background.CleanupTask{
		{Table: "otp_codes", Run: otpService.CleanupExpired},
		{Table: "otp_rate_limits", Run: rateLimitService.PruneStale},
	}, appMetrics, logger, cfg.Auth.CleanupInterval)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupManager.Stop()
	cleanupCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
