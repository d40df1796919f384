package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/avabridge/internal/config"
	"github.com/vyrodovalexey/avabridge/internal/observability"
)

// run starts the listeners and the configuration watcher, then blocks
// until a shutdown signal arrives.
func run(app *application, configPath string) {
	logger := app.logger

	app.server = newServer(app)
	go serve(app.server, "bridge server", logger)

	if app.config.Metrics.Enabled {
		app.metricsServer = newMetricsServer(app)
		go serve(app.metricsServer, "metrics server", logger)
	}

	watcher := startConfigWatcher(app, configPath)

	waitForShutdown(app, watcher)
}

func newServer(app *application) *http.Server {
	cfg := app.config.Server
	logger := app.logger

	logger.Info("starting bridge server",
		observability.String("address", cfg.Address),
	)

	return &http.Server{
		Addr:              cfg.Address,
		Handler:           observability.TracingMiddleware(app.tracer)(app.handler),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout.Duration(),
	}
}

// newMetricsServer serves Prometheus metrics and the health endpoints.
func newMetricsServer(app *application) *http.Server {
	cfg := app.config.Metrics

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, app.metrics.Handler())
	app.healthChecker.Register(mux)

	app.logger.Info("starting metrics server",
		observability.String("address", cfg.Address),
		observability.String("metrics_path", cfg.Path),
	)

	return &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

func serve(server *http.Server, name string, logger observability.Logger) {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal(name+" error", observability.Error(err))
	}
}

// startConfigWatcher reloads the pipeline when the configuration file
// changes. Without a watcher the bridge keeps running on the initial
// configuration.
func startConfigWatcher(app *application, configPath string) *config.Watcher {
	logger := app.logger

	watcher, err := config.NewWatcher(configPath, func(newCfg *config.BridgeConfig) {
		logger.Info("configuration changed, rebuilding pipeline")
		app.reload(newCfg)
	},
		config.WithLogger(logger),
		config.WithErrorCallback(func(error) {
			app.metrics.RecordReload(false)
		}),
	)
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		_ = watcher.Stop()
		return nil
	}

	return watcher
}

// waitForShutdown waits for a shutdown signal and drains the listeners.
func waitForShutdown(app *application, watcher *config.Watcher) {
	logger := app.logger

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	app.healthChecker.SetDraining(true)

	timeout := app.config.Server.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop bridge server gracefully", observability.Error(err))
	}

	if app.metricsServer != nil {
		logger.Info("stopping metrics server")
		if err := app.metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to stop metrics server gracefully", observability.Error(err))
		}
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("bridge stopped")
}
