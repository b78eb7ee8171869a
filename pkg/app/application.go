package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"opsline/internal/health/handler"
	"opsline/pkg/config"
	"opsline/pkg/contracts"
	"opsline/pkg/middleware"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Application wires the HTTP surfaces and background workers of one service
// and owns their shutdown order.
type Application struct {
	cfg    *config.Config
	server *http.Server
	mux    *http.ServeMux

	healthHandler http.Handler
	appHandler    http.Handler

	workers      []namedWorker
	onShutdown   []func()
	workerCancel context.CancelFunc
	workerWG     sync.WaitGroup
}

type namedWorker struct {
	name string
	run  func(ctx context.Context)
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{cfg: cfg, mux: http.NewServeMux()}
}

func (a *Application) SetApp(appHandler contracts.Handler, probes ...handler.Probe) {
	a.setHealthHandler(a.cfg, probes...)
	a.setAppHandler(a.cfg, appHandler)
	a.setAppServer()
}

func (a *Application) setHealthHandler(cfg *config.Config, probes ...handler.Probe) {
	healthRouter := httprouter.New()
	healthHandler := handler.NewHealthHandler(cfg.Log, probes...)
	healthHandler.RegisterRoutes(healthRouter)

	var h http.Handler = healthRouter
	h = middleware.RequestLogging(cfg.Log)(h)
	h = middleware.Recovery(cfg.Log)(h)
	a.healthHandler = h
}

func (a *Application) setAppHandler(cfg *config.Config, appHandler contracts.Handler) {
	appRouter := httprouter.New()
	appHandler.RegisterRoutes(appRouter)

	var h http.Handler = appRouter
	h = middleware.Auth(cfg.AuthSecret, cfg.Log)(h)
	h = middleware.RequestTimeout(cfg.RequestTimeout)(h)
	h = middleware.ContentTypeValidation(cfg.Log)(h)
	h = middleware.MaxRequestSize(int64(cfg.MaxRequestSize))(h)
	h = middleware.RequestLogging(cfg.Log)(h)
	h = middleware.Recovery(cfg.Log)(h)
	a.appHandler = h
}

// MountRealtime serves the WebSocket endpoint outside the JSON middleware
// chain; the handler authenticates the handshake itself because browsers
// cannot set headers on WebSocket dials.
func (a *Application) MountRealtime(path string, wsHandler contracts.Handler) {
	wsRouter := httprouter.New()
	wsHandler.RegisterRoutes(wsRouter)

	var h http.Handler = wsRouter
	h = middleware.RequestLogging(a.cfg.Log)(h)
	h = middleware.Recovery(a.cfg.Log)(h)
	a.mux.Handle(path, h)

	a.cfg.Log.Info("Realtime endpoint mounted", "path", path)
}

// MountMetrics exposes the Prometheus scrape endpoint.
func (a *Application) MountMetrics() {
	a.mux.Handle("/metrics", promhttp.Handler())
}

// AddWorker registers a long-running goroutine stopped at shutdown.
func (a *Application) AddWorker(name string, run func(ctx context.Context)) {
	a.workers = append(a.workers, namedWorker{name: name, run: run})
}

// OnShutdown registers a hook executed after the server and workers stop.
func (a *Application) OnShutdown(fn func()) {
	a.onShutdown = append(a.onShutdown, fn)
}

func (a *Application) setAppServer() {
	a.mux.Handle("/health", a.healthHandler)
	a.mux.Handle("/ready", a.healthHandler)
	a.mux.Handle("/", a.appHandler)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      a.mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) Run() {
	workerCtx, cancel := context.WithCancel(context.Background())
	a.workerCancel = cancel
	for _, w := range a.workers {
		a.workerWG.Add(1)
		go func(w namedWorker) {
			defer a.workerWG.Done()
			a.cfg.Log.Info("Worker started", "worker", w.name)
			w.run(workerCtx)
		}(w)
	}

	serverErrors := make(chan error, 1)
	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		a.cfg.Log.Fatal("HTTP server failed", "error", err)

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Fatal("Could not stop server gracefully", "error", err)
		}
	}

	if a.workerCancel != nil {
		a.workerCancel()
	}
	a.workerWG.Wait()
	a.cfg.Log.Info("Background workers stopped")

	for _, fn := range a.onShutdown {
		fn()
	}

	a.cfg.Log.Info("Server stopped gracefully")
}
