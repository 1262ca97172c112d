package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/careportal-api/internal/config"
	"github.com/jwalitptl/careportal-api/internal/email"
	accountHandler "github.com/jwalitptl/careportal-api/internal/handler/account"
	assignmentHandler "github.com/jwalitptl/careportal-api/internal/handler/assignment"
	"github.com/jwalitptl/careportal-api/internal/handler/health"
	"github.com/jwalitptl/careportal-api/internal/handler/prometheus"
	relativeHandler "github.com/jwalitptl/careportal-api/internal/handler/relative"
	"github.com/jwalitptl/careportal-api/internal/middleware"
	"github.com/jwalitptl/careportal-api/internal/repository"
	"github.com/jwalitptl/careportal-api/internal/repository/memory"
	"github.com/jwalitptl/careportal-api/internal/repository/postgres"
	"github.com/jwalitptl/careportal-api/internal/router"
	accountService "github.com/jwalitptl/careportal-api/internal/service/account"
	assignmentService "github.com/jwalitptl/careportal-api/internal/service/assignment"
	eventService "github.com/jwalitptl/careportal-api/internal/service/event"
	"github.com/jwalitptl/careportal-api/internal/token"
	"github.com/jwalitptl/careportal-api/pkg/auth"
	"github.com/jwalitptl/careportal-api/pkg/logger"
	"github.com/jwalitptl/careportal-api/pkg/messaging"
	"github.com/jwalitptl/careportal-api/pkg/messaging/redis"
	"github.com/jwalitptl/careportal-api/pkg/metrics"
	"github.com/jwalitptl/careportal-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = *appLogger.Zerolog()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	var broker messaging.Broker
	if cfg.Redis.Enabled {
		broker, err = redis.NewRedisBroker(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, appLogger.Zerolog())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer broker.Close()
	}

	var mailer email.Service
	if cfg.SMTP.Enabled {
		mailer = email.NewSMTPService(cfg.SMTP)
	} else {
		log.Warn().Msg("SMTP disabled; one-time links are returned to admins instead of mailed")
		mailer = email.NewLogService(appLogger)
	}

	if err := middleware.RegisterValidators(middleware.ValidationConfig{
		MinPasswordLength: cfg.Security.MinPasswordLength,
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to register validators")
	}

	m := metrics.New("careportal")
	events := eventService.NewPublisher(broker, cfg.Redis.Channel, appLogger)
	sessions := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)

	accounts := accountService.NewService(accountService.Deps{
		Store:    store,
		Opaque:   token.NewOpaqueIssuer(nil),
		Claims:   token.NewClaimIssuer(cfg.Tokens.SigningSecret, cfg.JWT.Issuer, nil),
		Hasher:   security.NewBcryptHasher(cfg.Security.BcryptCost, cfg.Security.MinPasswordLength),
		Sessions: sessions,
		Mailer:   mailer,
		Events:   events,
		Metrics:  m,
		Logger:   appLogger,
	}, accountService.Config{
		ApprovalTTL:       cfg.Tokens.ApprovalTTL,
		ResetTTL:          cfg.Tokens.ResetTTL,
		InvitationTTL:     cfg.Tokens.InvitationTTL,
		MinPasswordLength: cfg.Security.MinPasswordLength,
		FrontendURL:       cfg.Frontend.BaseURL,
	})
	pairing := assignmentService.NewService(store, events, m, appLogger)

	metricsHandler := prometheus.New(m)
	routerConfig := router.Config{
		CORS:     middleware.DefaultCORSConfig(strings.TrimSuffix(cfg.Frontend.BaseURL, "/")),
		Security: middleware.DefaultSecurityConfig(),
		Timeout:  middleware.DefaultTimeoutConfig(),
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		routerConfig.CORS.AllowOrigins = cfg.Server.AllowedOrigins
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = &middleware.RateLimiterConfig{
			Rate:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
			Burst: cfg.RateLimit.Burst,
			TTL:   cfg.RateLimit.TTL,
		}
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(sessions),
		health.NewHandler(store, metricsHandler.Handler()),
		metricsHandler,
		routerConfig,
		accountHandler.NewHandler(accounts),
		relativeHandler.NewHandler(accounts),
		assignmentHandler.NewHandler(pairing),
	)
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("storage", cfg.Storage.Driver).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server exited properly")
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func()) {
	if cfg.Storage.Driver == "memory" {
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return memory.NewStore(), func() {}
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	return postgres.NewStore(db, cfg.Database.QueryTimeout), func() { db.Close() }
}
