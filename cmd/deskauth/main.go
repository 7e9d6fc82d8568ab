package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/httpapi"
	"github.com/MrEthical07/deskauth/internal/config"
	promexport "github.com/MrEthical07/deskauth/metrics/export/prometheus"
	"github.com/MrEthical07/deskauth/revocation"
	"github.com/MrEthical07/deskauth/store/postgres"
	redisstore "github.com/MrEthical07/deskauth/store/redis"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to a YAML config file; the environment is used when empty")
	flag.Parse()
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	cfg := config.MustLoadConfig(configPath)

	log := setupLogger(cfg.Env)
	log.Info("starting deskauth", slog.String("env", cfg.Env))

	if err := run(cfg, log); err != nil {
		log.Error("deskauth stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DB.DbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.DB.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info("migrations applied")
	}
	store := postgres.New(db)

	var (
		blacklist revocation.Store = store
		checks                     = []check{store.Ping}
	)
	if cfg.Redis.Addr != "" {
		client, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		redisBlacklist := redisstore.NewStore(client, cfg.Redis.Prefix)
		checks = append(checks, func(ctx context.Context) error {
			_, err := redisBlacklist.Ping(ctx)
			return err
		})
		blacklist = redisBlacklist
		log.Info("access-token blacklist on redis", slog.String("addr", cfg.Redis.Addr))
	}

	engine, err := deskauth.New().
		WithConfig(cfg.Engine()).
		WithStore(store).
		WithRevocationStore(blacklist).
		WithMailer(newLogMailer(log, cfg.Env == envLocal)).
		WithLogger(log).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()
	log.Info("engine ready", slog.Any("security", engine.SecurityReport()))

	if err := ensureAdmin(ctx, store, cfg, log); err != nil {
		return err
	}

	janitor := revocation.NewJanitor(revocation.NewRegistry(blacklist), cfg.Auth.PurgeInterval, log)
	go janitor.Run(ctx)

	router := mux.NewRouter()
	router.HandleFunc("/healthz", healthHandler(checks...)).Methods(http.MethodGet)
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(promexport.NewCollector(engine))
	router.Handle(cfg.HTTPServer.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	httpapi.New(engine, httpapi.Options{TrustProxy: cfg.HTTPServer.TrustProxy, Logger: log}).RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info("shutdown started")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

func connectRedis(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

type check func(ctx context.Context) error

func healthHandler(checks ...check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, p := range checks {
			if err := p(ctx); err != nil {
				http.Error(w, "dependency unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
