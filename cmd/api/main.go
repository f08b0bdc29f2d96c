package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-platform/internal/audit"
	"voice-platform/internal/auth"
	"voice-platform/internal/cache"
	"voice-platform/internal/calls"
	"voice-platform/internal/config"
	"voice-platform/internal/httpapi"
	"voice-platform/internal/notify"
	"voice-platform/internal/push"
	"voice-platform/internal/realtime"
	"voice-platform/internal/recording"
	"voice-platform/internal/reporting"
	"voice-platform/internal/scheduler"
	"voice-platform/internal/telephony"
	"voice-platform/internal/users"
	"voice-platform/migrations"
	"voice-platform/pkg/logger"
	"voice-platform/pkg/metrics"
	"voice-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}
	rooms, err := telephony.NewMediaRooms(cfg.Media)
	if err != nil {
		log.Error("media init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if _, err := utils.Migrate(rootCtx, db, migrations.FS, log); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	sessionCache := cache.NewRedisStore(rdb, cfg.Redis.KeyPrefix)
	store := calls.NewPostgresStore(db)
	directory := users.NewPostgresDirectory(db)
	hub := realtime.NewHub(log.With("component", "realtime"))

	var pushProvider notify.PushProvider
	if cfg.Push.Enabled {
		client, err := push.NewFCMClient(rootCtx, cfg.Push.FCMCredentialsFile)
		if err != nil {
			log.Error("fcm init failed", "err", err)
			os.Exit(1)
		}
		pushProvider = push.NewFCMProvider(client, directory, cfg.Calls.RingTimeout, log.With("component", "push"))
	}
	dispatcher := notify.NewDispatcher(hub, pushProvider, directory, notify.Config{
		PushEnabled:       cfg.Push.Enabled,
		PushRatePerMinute: cfg.Push.RatePerMinute,
	}, log.With("component", "notify"))

	var recorder calls.Recorder
	if cfg.RecordingEnabled() {
		client := recording.NewClient(cfg.Recording.BaseURL, cfg.Recording.APIKey, cfg.Recording.Timeout)
		recorder = recording.NewManager(client, sessionCache, 0)
	}

	timers := scheduler.NewRingTimers()
	defer timers.StopAll()

	history := audit.NewService(audit.NewPostgresRepo(db))
	metrics.RegisterRuntimeGauges(prometheus.DefaultRegisterer, timers.Len, hub.Connections)

	callService := calls.NewService(calls.Dependencies{
		Store:     store,
		Cache:     sessionCache,
		Directory: directory,
		Tokens:    rooms,
		Recorder:  recorder,
		Notifier:  dispatcher,
		Timers:    timers,
		Audit:     history,
		Logger:    log.With("component", "calls"),
	}, calls.Options{
		RingTimeout:         cfg.Calls.RingTimeout,
		InactivityThreshold: cfg.Calls.InactivityThreshold,
		CacheTTL:            cfg.Calls.CacheTTL,
		ActiveListTTL:       cfg.Calls.ActiveListTTL,
		SideEffectTimeout:   cfg.Calls.SideEffectTimeout,
	})

	sweeper := scheduler.NewSweeper(func(ctx context.Context) error {
		_, err := callService.Sweep(ctx)
		return err
	}, scheduler.WithInterval(cfg.Calls.SweepInterval), scheduler.WithLogger(log.With("component", "sweeper")))
	if err := sweeper.Start(); err != nil {
		log.Error("sweeper start failed", "err", err)
		os.Exit(1)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(httpapi.Metrics())

	registerRoutes(r, auth.RequireAccessToken(authManager), httpapi.Handlers{
		Calls:    callService,
		Reports:  reporting.NewService(store),
		History:  history,
		Devices:  directory,
		Realtime: hub,
	}, readiness(db, rdb))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	hub.Close()
	if err := sweeper.Stop(shutdownCtx); err != nil {
		log.Error("sweeper stop failed", "err", err)
	}
	// Pending ring timers are dropped; the sweep recovers their calls from
	// the stored ring deadline on the next start.
	timers.StopAll()
}
