package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"nextslot/internal/api"
	"nextslot/internal/availability"
	"nextslot/internal/config"
	"nextslot/internal/database"
	"nextslot/internal/events"
	"nextslot/internal/metrics"
	"nextslot/internal/notify"
	"nextslot/internal/reminders"
	"nextslot/internal/service"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("NEXTSLOT_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	pusher := buildPusher(cfg, &logger)
	emailer := notify.NewSMTPSender(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.From)

	bus := events.NewBus()
	calc := availability.NewCalculator(db)
	inv := availability.NewInvalidator(db, calc, &logger)
	router := notify.NewRouter(db, pusher, emailer, &logger)

	// Every appointment write fans out to both consumers.
	bus.Subscribe(inv.Handle)
	bus.Subscribe(router.Handle)

	appointments := service.NewAppointmentService(db, bus, &logger)

	sweeperCfg := availability.DefaultSweeperConfig()
	sweeperCfg.Interval = cfg.SweepInterval()
	sweeperCfg.RunTimeout = cfg.SweepRunTimeout()
	sweeper := availability.NewSweeper(sweeperCfg, db, inv, &logger)

	reminderCfg := reminders.DefaultConfig()
	reminderCfg.Interval = cfg.ReminderInterval()
	reminderCfg.Window = cfg.ReminderWindow()
	reminderCfg.RunTimeout = cfg.ReminderRunTimeout()
	reminderSweeper := reminders.NewSweeper(reminderCfg, db, router, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper.Start(ctx)
	defer sweeper.Stop()
	reminderSweeper.Start(ctx)
	defer reminderSweeper.Stop()

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	httpServer := api.NewHTTPServer(db, appointments, inv, sweeper, reminderSweeper, &logger)
	if rdb != nil {
		httpServer.UseRedisCache(rdb, cfg.RedisTTL())
	}

	srv := &http.Server{Addr: cfg.API.ListenAddr, Handler: httpServer.Handler()}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("addr", cfg.API.ListenAddr).Msg("availability engine started")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("api server error")
	}
}

func buildPusher(cfg *config.Config, logger *zerolog.Logger) notify.Pusher {
	if cfg.Push.CredentialsPath == "" {
		logger.Warn().Msg("push credentials not configured, push channel disabled")
		return notify.DisabledPusher{}
	}

	creds, err := os.ReadFile(cfg.Push.CredentialsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("read push credentials")
	}
	pusher, err := notify.NewFCMClient(creds, cfg.Push.ProjectID, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create push client")
	}
	return pusher
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
