package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/consult-api/internal/app"
	"github.com/jwalitptl/consult-api/internal/config"
	consultationhandler "github.com/jwalitptl/consult-api/internal/handler/consultation"
	"github.com/jwalitptl/consult-api/internal/handler/health"
	patienthandler "github.com/jwalitptl/consult-api/internal/handler/patient"
	promhandler "github.com/jwalitptl/consult-api/internal/handler/prometheus"
	providerhandler "github.com/jwalitptl/consult-api/internal/handler/provider"
	scanhandler "github.com/jwalitptl/consult-api/internal/handler/scan"
	"github.com/jwalitptl/consult-api/internal/middleware"
	"github.com/jwalitptl/consult-api/internal/router"
	"github.com/jwalitptl/consult-api/pkg/auth"
	redisbroker "github.com/jwalitptl/consult-api/pkg/messaging/redis"
	"github.com/jwalitptl/consult-api/pkg/metrics"
	"github.com/jwalitptl/consult-api/pkg/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, storeCheck, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal(err, "failed to open storage")
	}
	defer store.Close()

	checks := map[string]health.Check{"storage": storeCheck}

	var redisClient *goredis.Client
	if app.NeedsRedis(cfg) {
		redisClient, err = redisbroker.NewClient(ctx, app.BrokerConfig(cfg.Redis))
		if err != nil {
			log.Fatal(err, "failed to connect to redis")
		}
		defer redisClient.Close()
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(app.MetricsNamespace, registry)

	locker, err := app.NewLocker(cfg.Lock, redisClient)
	if err != nil {
		log.Fatal(err, "failed to create slot locker")
	}

	svcs, err := app.NewServices(cfg, store, locker, m, log)
	if err != nil {
		log.Fatal(err, "failed to build services")
	}

	dispatcher, err := app.NewDispatcher(ctx, cfg, store, redisClient, m, log)
	if err != nil {
		log.Fatal(err, "failed to build notification dispatcher")
	}

	// The memory store lives in this process, so nothing else can drain
	// its outbox.
	if cfg.Storage.Driver == config.StorageDriverMemory {
		processor := worker.NewOutboxProcessor(store.Outbox, store.Tx, dispatcher.Handle,
			app.OutboxProcessorConfig(cfg.Outbox), log, m)
		go processor.Start(ctx)
	}

	var authMW *middleware.AuthMiddleware
	if cfg.Auth.JWTSecret != "" {
		authMW = middleware.NewAuthMiddleware(auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer))
	} else {
		log.Warn("auth.jwt_secret is empty; API authentication is disabled")
	}

	var metricsHandler *promhandler.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = promhandler.New(registry, cfg.Metrics.Path)
	}

	gin.SetMode(gin.ReleaseMode)
	r, err := router.NewRouter(log, middleware.NewHTTPMetrics(app.MetricsNamespace, registry), authMW,
		health.NewHandler(checks),
		metricsHandler,
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			RequestTimeout:   cfg.Server.RequestTimeout,
			MaxBodyBytes:     1 << 20,
		},
		consultationhandler.NewHandler(svcs.Consultations),
		providerhandler.NewHandler(svcs.Providers, svcs.Consultations, dispatcher),
		patienthandler.NewHandler(svcs.Patients),
		scanhandler.NewHandler(svcs.Scanner, nil),
	)
	if err != nil {
		log.Fatal(err, "failed to build router")
	}
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting api server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver, "lock", cfg.Lock.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}
	log.Info("server exited")
}
