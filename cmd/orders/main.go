package main

import (
	"context"

	healthhandler "opsline/internal/health/handler"
	"opsline/internal/orders/handler"
	"opsline/internal/orders/repository"
	"opsline/internal/orders/service"
	"opsline/internal/orders/validator"
	"opsline/internal/realtime"
	"opsline/pkg/app"
	"opsline/pkg/client"
	"opsline/pkg/config"
	"opsline/pkg/metrics"
)

const ServiceName = "orders"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Orders service", "lock_service", cfg.LockServiceURL)

	m := metrics.New()
	hub := realtime.NewHub(m, cfg.Log)
	throttle := realtime.NewThrottle(cfg.BroadcastThrottleWindow)

	orderService := initServices(cfg, hub, throttle)

	mc := cfg.Client.Mongo
	mongoProbe := healthhandler.Probe{Name: "mongo", Check: func(ctx context.Context) error {
		return mc.Ping(ctx, nil)
	}}

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handler.NewOrderHandler(orderService, cfg.Log), mongoProbe)
	serverApp.MountRealtime("/api/v1/ws", realtime.NewHandler(hub, cfg.AuthSecret, cfg, cfg.Log))
	serverApp.MountMetrics()

	serverApp.AddWorker("hub", hub.Run)
	serverApp.OnShutdown(throttle.Stop)
	serverApp.OnShutdown(cfg.GracefulShutdown)

	serverApp.Run()
}

func initServices(cfg *config.Config, hub *realtime.Hub, throttle *realtime.Throttle) service.OrderService {
	factory := &client.LockClientFactory{BaseURL: cfg.LockServiceURL}
	gateway := service.LockGateway(func(token string) service.LockSession {
		return factory.For(token)
	})

	orderService := service.NewOrderService(
		repository.NewMongoOrderRepository(cfg),
		validator.NewOrderValidator(cfg.Log),
		gateway,
		hub,
		throttle,
		cfg,
	)

	cfg.Log.Info("Orders service initialized", "database", cfg.MongoDatabaseName)
	return orderService
}
