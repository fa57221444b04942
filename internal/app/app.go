// Package app assembles the services shared by the api, worker and
// consultctl binaries from a loaded configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/consult-api/internal/config"
	"github.com/jwalitptl/consult-api/internal/email"
	"github.com/jwalitptl/consult-api/internal/handler/health"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/internal/repository/memory"
	"github.com/jwalitptl/consult-api/internal/repository/postgres"
	"github.com/jwalitptl/consult-api/internal/service/consultation"
	"github.com/jwalitptl/consult-api/internal/service/directory"
	"github.com/jwalitptl/consult-api/internal/service/event"
	"github.com/jwalitptl/consult-api/internal/service/matcher"
	"github.com/jwalitptl/consult-api/internal/service/notification"
	"github.com/jwalitptl/consult-api/internal/service/patient"
	"github.com/jwalitptl/consult-api/internal/service/provider"
	"github.com/jwalitptl/consult-api/internal/service/scanner"
	"github.com/jwalitptl/consult-api/internal/service/slot"
	"github.com/jwalitptl/consult-api/pkg/logger"
	redisbroker "github.com/jwalitptl/consult-api/pkg/messaging/redis"
	"github.com/jwalitptl/consult-api/pkg/metrics"
	"github.com/jwalitptl/consult-api/pkg/slotlock"
	"github.com/jwalitptl/consult-api/pkg/worker"
)

const MetricsNamespace = "consult"

func NewLogger(cfg config.LogConfig) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Level),
		Format: cfg.Format,
	})
}

// OpenStore connects the configured storage driver. The returned check
// backs the readiness probe.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*repository.Store, health.Check, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		log.Warn("using in-memory storage; data is lost on restart")
		return memory.NewStore(memory.NewDB()), func(context.Context) error { return nil }, nil

	case config.StorageDriverPostgres:
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(db, postgres.MigrateUp); err != nil {
				db.Close()
				return nil, nil, err
			}
			log.Info("database migrations applied")
		}
		return postgres.NewStore(db), db.PingContext, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func BrokerConfig(cfg config.RedisConfig) redisbroker.Config {
	return redisbroker.Config{
		URL:            cfg.URL,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
		PoolSize:       cfg.PoolSize,
		MinIdleConns:   cfg.MinIdleConns,
		BreakerFailMax: cfg.BreakerFailMax,
		BreakerReset:   cfg.BreakerReset,
	}
}

// NeedsRedis reports whether any configured component talks to Redis.
func NeedsRedis(cfg *config.Config) bool {
	return cfg.Lock.Driver == config.LockDriverRedis || cfg.Redis.PublishEvents
}

func NewLocker(cfg config.LockConfig, client *redis.Client) (slotlock.Locker, error) {
	switch cfg.Driver {
	case config.LockDriverLocal:
		return slotlock.NewLocalLocker(cfg.Wait), nil
	case config.LockDriverRedis:
		if client == nil {
			return nil, fmt.Errorf("lock driver redis requires a redis client")
		}
		return slotlock.NewRedisLocker(client, slotlock.RedisConfig{
			TTL:           cfg.TTL,
			Wait:          cfg.Wait,
			RetryInterval: cfg.RetryInterval,
		}), nil
	default:
		return nil, fmt.Errorf("unknown lock driver %q", cfg.Driver)
	}
}

func OutboxProcessorConfig(cfg config.OutboxConfig) worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:       cfg.BatchSize,
		PollInterval:    cfg.PollInterval,
		RetryAttempts:   cfg.RetryAttempts,
		RetryDelay:      cfg.RetryDelay,
		Retention:       cfg.Retention,
		CleanupInterval: time.Hour,
	}
}

// Services is the assembled domain layer.
type Services struct {
	Directory     *directory.Service
	Consultations *consultation.Service
	Providers     *provider.Service
	Patients      *patient.Service
	Scanner       *scanner.Service
}

func NewServices(cfg *config.Config, store *repository.Store, locker slotlock.Locker, m *metrics.Metrics, log *logger.Logger) (*Services, error) {
	loc, err := cfg.Scanner.Location()
	if err != nil {
		return nil, err
	}

	emitter := event.NewOutboxEmitter(store.Outbox, m, log)
	dir := directory.NewService(store.Providers,
		directory.WithCache(cfg.Directory.CacheTTL),
		directory.WithLocation(loc),
		directory.WithMetrics(m),
	)
	index := slot.NewIndex(store.Consultations)

	return &Services{
		Directory: dir,
		Consultations: consultation.NewService(consultation.Deps{
			Store:   store,
			Matcher: matcher.New(dir, index, locker, m, log),
			Slots:   index,
			Locker:  locker,
			Emitter: emitter,
			Metrics: m,
			Logger:  log,
		}),
		Providers: provider.NewService(store.Providers, dir, log),
		Patients:  patient.NewService(store.Patients),
		Scanner:   scanner.NewService(store, emitter, loc, m, log),
	}, nil
}

// NewDispatcher builds the notification dispatcher the outbox processor
// delivers to. broker may be nil.
func NewDispatcher(ctx context.Context, cfg *config.Config, store *repository.Store, client *redis.Client, m *metrics.Metrics, log *logger.Logger) (*notification.Dispatcher, error) {
	sender, err := email.NewSender(ctx, cfg.Email, log)
	if err != nil {
		return nil, err
	}

	opts := []notification.Option{notification.WithMetrics(m)}
	if cfg.Redis.PublishEvents && client != nil {
		b := redisbroker.NewRedisBroker(client, BrokerConfig(cfg.Redis), log)
		opts = append(opts, notification.WithBroker(b, cfg.Redis.EventChannel))
	}
	return notification.NewDispatcher(store, sender, log, opts...), nil
}
