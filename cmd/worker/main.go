package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jwalitptl/consult-api/internal/app"
	"github.com/jwalitptl/consult-api/internal/config"
	"github.com/jwalitptl/consult-api/internal/handler/health"
	promhandler "github.com/jwalitptl/consult-api/internal/handler/prometheus"
	"github.com/jwalitptl/consult-api/internal/middleware"
	internalworker "github.com/jwalitptl/consult-api/internal/worker"
	"github.com/jwalitptl/consult-api/pkg/logger"
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

	log := app.NewLogger(cfg.Log).WithFields(map[string]interface{}{"worker_id": workerID()})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Storage.Driver == config.StorageDriverMemory {
		log.Warn("memory storage is private to this process; the worker will only see its own scan events")
	}

	store, storeCheck, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal(err, "failed to open storage")
	}
	defer store.Close()

	checks := map[string]health.Check{"storage": storeCheck}

	var redisClient *goredis.Client
	if cfg.Redis.PublishEvents {
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

	dispatcher, err := app.NewDispatcher(ctx, cfg, store, redisClient, m, log)
	if err != nil {
		log.Fatal(err, "failed to build notification dispatcher")
	}

	processor := worker.NewOutboxProcessor(store.Outbox, store.Tx, dispatcher.Handle,
		app.OutboxProcessorConfig(cfg.Outbox), log, m)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()

	if cfg.Scanner.Enabled {
		// The scanner only needs the store and the emitter; the slot lock is
		// never taken, so the local locker is enough here.
		locker, err := app.NewLocker(config.LockConfig{Driver: config.LockDriverLocal, Wait: cfg.Lock.Wait}, nil)
		if err != nil {
			log.Fatal(err, "failed to create slot locker")
		}
		svcs, err := app.NewServices(cfg, store, locker, m, log)
		if err != nil {
			log.Fatal(err, "failed to build services")
		}

		runner := internalworker.NewScanRunner(svcs.Scanner, cfg.Scanner.Interval, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner.Start(ctx)
		}()
	}

	srv := healthServer(cfg, checks, registry, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "health server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "health server forced to shutdown")
	}
	wg.Wait()
	log.Info("worker exited")
}

func healthServer(cfg *config.Config, checks map[string]health.Check, registry *prometheus.Registry, log *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery(log))

	health.NewHandler(checks).RegisterRoutes(&engine.RouterGroup)
	if cfg.Metrics.Enabled {
		promhandler.New(registry, cfg.Metrics.Path).RegisterRoutes(engine)
	}

	log.Info("starting health server", "port", cfg.Server.HealthPort)
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HealthPort),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func workerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
