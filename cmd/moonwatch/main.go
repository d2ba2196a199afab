// Command moonwatch runs the moon-mining tracker daemon: it exposes
// health and metrics endpoints and periodically probes upstream ESI
// availability so background tasks can skip cycles while ESI is down.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/evetools/moonwatch/pkg/esi"
	"github.com/evetools/moonwatch/pkg/logging"
)

type config struct {
	RedisAddr    string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB      int           `env:"REDIS_DB" envDefault:"1"`
	Port         string        `env:"PORT" envDefault:"8080"`
	UserAgent    string        `env:"USER_AGENT" envDefault:"moonwatch/0.1.0 (ops@moonwatch.example)"`
	PollInterval time.Duration `env:"STATUS_POLL_INTERVAL" envDefault:"5m"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty    bool          `env:"LOG_PRETTY" envDefault:"false"`
}

var upstreamAvailable = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "moonwatch_upstream_available",
	Help: "Whether the last ESI status probe reported an available upstream",
})

func main() {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		fallback := logging.Setup(logging.Config{})
		fallback.Fatal().Err(err).Msg("parse environment")
	}

	logger := logging.Setup(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// The cache is best-effort, so a missing Redis degrades to
		// unconditional requests instead of stopping the daemon.
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, running uncached")
	}

	client, err := esi.New(esi.DefaultConfig(rdb, cfg.UserAgent))
	if err != nil {
		logger.Fatal().Err(err).Msg("create esi client")
	}

	go pollStatus(ctx, client, cfg.PollInterval)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !client.ServerStatus(r.Context()) {
			http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Str("user_agent", cfg.UserAgent).Msg("moonwatch listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server failed")
	}

	_ = rdb.Close()
	logger.Info().Msg("moonwatch stopped")
}

// pollStatus probes upstream availability on a fixed interval and keeps
// the gauge current.
func pollStatus(ctx context.Context, client *esi.Client, interval time.Duration) {
	logger := logging.NewLogger("status-poll")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		available := client.ServerStatus(ctx)
		if available {
			upstreamAvailable.Set(1)
		} else {
			upstreamAvailable.Set(0)
			logger.Warn().Msg("upstream unavailable, tasks should skip this cycle")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
