package main

import (
	"context"
	"time"

	healthhandler "opsline/internal/health/handler"
	"opsline/internal/locks/handler"
	"opsline/internal/locks/service"
	"opsline/internal/locks/store"
	"opsline/internal/locks/sweeper"
	"opsline/internal/locks/validator"
	"opsline/internal/realtime"
	"opsline/pkg/app"
	"opsline/pkg/config"
	"opsline/pkg/kafka"
	"opsline/pkg/metrics"
)

const ServiceName = "locks"

func main() {
	cfg := config.Load(ServiceName)

	cfg.Log.Info("Starting Locks service", "backend", cfg.LockStoreBackend)

	m := metrics.New()
	hub := realtime.NewHub(m, cfg.Log)

	lockStore, probes := initStore(cfg)
	audit := initAudit(cfg)

	var auditPub service.AuditPublisher
	if audit != nil {
		auditPub = audit
	}
	lockService := service.NewLockService(
		lockStore,
		validator.NewLockValidator(cfg.Log),
		hub,
		auditPub,
		m,
		cfg,
	)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handler.NewLockHandler(lockService, cfg.Log), probes...)
	serverApp.MountRealtime("/api/v1/ws", realtime.NewHandler(hub, cfg.AuthSecret, cfg, cfg.Log))
	serverApp.MountMetrics()

	serverApp.AddWorker("hub", hub.Run)
	serverApp.AddWorker("sweeper", sweeper.New(lockService, cfg.SweepInterval, cfg.Log).Run)
	if audit != nil {
		serverApp.OnShutdown(func() {
			if err := audit.Close(); err != nil {
				cfg.Log.Error("Failed to close audit producer", "error", err)
			}
		})
	}
	serverApp.OnShutdown(cfg.GracefulShutdown)

	serverApp.Run()
}

func initStore(cfg *config.Config) (store.Store, []healthhandler.Probe) {
	switch cfg.LockStoreBackend {
	case config.StoreBackendRedis:
		cfg.SetRedis()
		rdb := cfg.Client.Redis
		probe := healthhandler.Probe{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}}
		return store.NewRedis(rdb), []healthhandler.Probe{probe}

	case config.StoreBackendMongo:
		cfg.SetMongo()
		mc := cfg.Client.Mongo
		st := store.NewMongo(mc.Database(cfg.MongoDatabaseName))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := st.EnsureIndexes(ctx); err != nil {
			cfg.Log.Fatal("Failed to create lock indexes", "error", err)
		}

		probe := healthhandler.Probe{Name: "mongo", Check: func(ctx context.Context) error {
			return mc.Ping(ctx, nil)
		}}
		return st, []healthhandler.Probe{probe}

	default:
		return store.NewMemory(), nil
	}
}

func initAudit(cfg *config.Config) *kafka.Producer {
	if len(cfg.KafkaBrokers) == 0 {
		cfg.Log.Info("Kafka brokers not configured, audit stream disabled")
		return nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaEventsTopic, ServiceName)
	if err != nil {
		cfg.Log.Fatal("Failed to create audit producer", "error", err)
	}

	cfg.Log.Info("Audit stream enabled", "topic", cfg.KafkaEventsTopic)
	return producer
}
