package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/avabridge/internal/config"
	"github.com/vyrodovalexey/avabridge/internal/health"
	"github.com/vyrodovalexey/avabridge/internal/legacy"
	"github.com/vyrodovalexey/avabridge/internal/observability"
	"github.com/vyrodovalexey/avabridge/internal/pipeline"
	"github.com/vyrodovalexey/avabridge/internal/stage"
	"github.com/vyrodovalexey/avabridge/internal/transform"
)

// application holds all application components.
type application struct {
	config        *config.BridgeConfig
	logger        observability.Logger
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	healthChecker *health.Checker
	handler       *chainHandler
	server        *http.Server
	metricsServer *http.Server
}

// newApplication wires metrics, tracing, the legacy bridge and the
// interception chain from cfg.
func newApplication(cfg *config.BridgeConfig, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics("bridge")
	metrics.SetBuildInfo(version, gitCommit, buildTime)
	registerMetrics(metrics)

	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	app := &application{
		config:        cfg,
		logger:        logger,
		metrics:       metrics,
		tracer:        tracer,
		healthChecker: health.NewChecker(version),
		handler:       &chainHandler{},
	}

	built, err := app.buildPipeline(cfg)
	if err != nil {
		return nil, err
	}
	app.handler.store(built)

	app.healthChecker.RegisterCheck("pipeline", app.handler.check)
	app.healthChecker.RegisterCheck("legacy", app.handler.legacyCheck)

	return app, nil
}

// registerMetrics registers the per-package collectors with the bridge
// registry.
func registerMetrics(metrics *observability.Metrics) {
	pipeline.InitMetrics(metrics.Registry())
	legacy.InitMetrics(metrics.Registry())

	tm := transform.GetMetrics()
	tm.MustRegister(metrics.Registry())
	tm.Init()
}

// builtPipeline is one generation of the interception chain.
type builtPipeline struct {
	chain      *pipeline.Chain
	dispatcher *legacy.ProxyDispatcher
}

// buildPipeline builds a fresh chain for cfg. Nothing is shared with the
// previous generation, so a failed build leaves the running chain intact.
func (app *application) buildPipeline(cfg *config.BridgeConfig) (*builtPipeline, error) {
	built := &builtPipeline{}

	opts := stage.Options{
		Logger:       app.logger,
		CaptureLimit: cfg.Legacy.CaptureLimit,
	}

	if cfg.Legacy.URL != "" {
		proxyOpts := []legacy.ProxyOption{legacy.WithProxyLogger(app.logger)}
		if cb := cfg.Legacy.CircuitBreaker; cb.Enabled {
			proxyOpts = append(proxyOpts, legacy.WithCircuitBreaker(cb.Threshold, cb.Timeout.Duration()))
		}

		dispatcher, err := legacy.NewProxyDispatcher(cfg.Legacy.URL, proxyOpts...)
		if err != nil {
			return nil, err
		}
		built.dispatcher = dispatcher

		opts.Bridge = legacy.NewBridge(dispatcher,
			legacy.WithLogger(app.logger),
			legacy.WithCaptureLimit(cfg.Legacy.CaptureLimit),
			legacy.WithTracerProvider(app.tracer.Provider()),
		)
	}

	stages, err := stage.Build(cfg.Pipeline.Stages, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	built.chain = pipeline.NewChain(newRouter(stageNames(stages)), stages,
		pipeline.WithChainLogger(app.logger),
	)

	app.logger.Info("pipeline built",
		observability.Int("stages", len(stages)),
		observability.String("legacy", cfg.Legacy.URL),
	)
	return built, nil
}

// newRouter returns the routes served natively by the bridge. Everything
// else is unhandled and left to the forwarding stages.
func newRouter(stages []string) *pipeline.Router {
	rt := pipeline.NewRouter()
	rt.Get("/_bridge/stages", func(*pipeline.Exchange) pipeline.Outcome {
		body, err := json.Marshal(map[string]interface{}{"stages": stages})
		if err != nil {
			return pipeline.Failed(err)
		}
		return pipeline.Handled(pipeline.NewResponse(http.StatusOK, "application/json", body))
	})
	return rt
}

func stageNames(stages []pipeline.Stage) []string {
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.Name)
	}
	return names
}

// reload rebuilds the chain for cfg and swaps it in. Requests in flight
// finish on the chain they started with.
func (app *application) reload(cfg *config.BridgeConfig) {
	built, err := app.buildPipeline(cfg)
	if err != nil {
		app.metrics.RecordReload(false)
		app.logger.Error("failed to rebuild pipeline, keeping previous", observability.Error(err))
		return
	}

	if cfg.Server.Address != app.config.Server.Address ||
		cfg.Metrics != app.config.Metrics ||
		cfg.Logging != app.config.Logging ||
		cfg.Tracing != app.config.Tracing {
		app.logger.Warn("server, logging, metrics and tracing changes require a restart")
	}

	app.handler.store(built)
	app.metrics.RecordReload(true)
}

// chainHandler serves requests through the current chain generation.
type chainHandler struct {
	current atomic.Pointer[builtPipeline]
}

func (h *chainHandler) store(built *builtPipeline) {
	h.current.Store(built)
}

// ServeHTTP implements http.Handler.
func (h *chainHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	built := h.current.Load()
	if built == nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	built.chain.ServeHTTP(w, r)
}

func (h *chainHandler) check() health.Check {
	built := h.current.Load()
	if built == nil {
		return health.Check{Status: health.StatusUnhealthy, Message: "pipeline not built"}
	}
	return health.Check{
		Status:  health.StatusHealthy,
		Message: fmt.Sprintf("%d stages", len(built.chain.Stages())),
	}
}

// legacyCheck reports an open circuit as degraded: unhandled requests get
// the diagnostic response but native routes keep working.
func (h *chainHandler) legacyCheck() health.Check {
	built := h.current.Load()
	if built == nil || built.dispatcher == nil {
		return health.Check{Status: health.StatusHealthy, Message: "not configured"}
	}

	state := built.dispatcher.State()
	if state == gobreaker.StateOpen {
		return health.Check{Status: health.StatusDegraded, Message: "circuit " + state.String()}
	}
	return health.Check{Status: health.StatusHealthy, Message: "circuit " + state.String()}
}
