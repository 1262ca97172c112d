package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/careportal-api/internal/config"
	"github.com/jwalitptl/careportal-api/internal/repository/postgres"
	"github.com/jwalitptl/careportal-api/internal/worker"
	"github.com/jwalitptl/careportal-api/pkg/logger"
	"github.com/jwalitptl/careportal-api/pkg/messaging/redis"
	"github.com/jwalitptl/careportal-api/pkg/metrics"
)

const healthAddr = ":8081"

func setupHealthCheck(db interface{ PingContext(context.Context) error }, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: healthAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("health check server failed")
		}
	}()
	return srv
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = *appLogger.Zerolog()

	if cfg.Storage.Driver != "postgres" {
		log.Fatal().Str("driver", cfg.Storage.Driver).Msg("worker needs the postgres store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	store := postgres.NewStore(db, cfg.Database.QueryTimeout)

	m := metrics.New("careportal_worker")
	health := setupHealthCheck(db, m)

	var wg sync.WaitGroup

	reaper := worker.NewTokenReaper(
		store.Tokens(),
		cfg.Worker.ReapInterval,
		cfg.Worker.ReapGrace,
		appLogger.WithFields(map[string]interface{}{"worker": "token_reaper"}),
		m,
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reaper.Start(ctx)
	}()

	if cfg.Redis.Enabled {
		broker, err := redis.NewRedisBroker(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, appLogger.Zerolog())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create Redis broker")
		}
		defer broker.Close()

		recorder := worker.NewEventRecorder(
			broker,
			cfg.Redis.Channel,
			appLogger.WithFields(map[string]interface{}{"worker": "event_recorder"}),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := recorder.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("event recorder stopped")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down...")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = health.Shutdown(shutdownCtx)
}
