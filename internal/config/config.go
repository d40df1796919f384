package config

import (
	"time"

	"github.com/vyrodovalexey/avabridge/internal/transform"
)

// Stage names accepted in pipeline.stages.
const (
	StageNotFound            = "not-found"
	StageRecovery            = "recovery"
	StageJSONError           = "json-error"
	StageRequestID           = "request-id"
	StageAccessLog           = "access-log"
	StageRateLimit           = "rate-limit"
	StageForward             = "forward"
	StageForwardUnhandled    = "forward-unhandled"
	StageCaptureUnhandled    = "capture-unhandled"
	StageModifyRequestBody   = "modify-request-body"
	StageModifyRequestParams = "modify-request-params"
	StageModifyRequest       = "modify-request"
	StageModifyResponse      = "modify-response"
	StageModifyResponseBody  = "modify-response-body"
)

// KnownStages returns every stage name in documentation order.
func KnownStages() []string {
	return []string{
		StageNotFound,
		StageRecovery,
		StageJSONError,
		StageRequestID,
		StageAccessLog,
		StageRateLimit,
		StageForward,
		StageForwardUnhandled,
		StageCaptureUnhandled,
		StageModifyRequestBody,
		StageModifyRequestParams,
		StageModifyRequest,
		StageModifyResponse,
		StageModifyResponseBody,
	}
}

// IsForwardingStage reports whether name hands requests to the legacy
// dispatcher.
func IsForwardingStage(name string) bool {
	switch name {
	case StageForward, StageForwardUnhandled, StageCaptureUnhandled:
		return true
	default:
		return false
	}
}

// BridgeConfig is the root configuration.
type BridgeConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Legacy   LegacyConfig   `yaml:"legacy"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServerConfig configures the inbound HTTP listener.
type ServerConfig struct {
	Address           string   `yaml:"address"`
	ReadHeaderTimeout Duration `yaml:"readHeaderTimeout"`
	ShutdownTimeout   Duration `yaml:"shutdownTimeout"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// TracingConfig configures OpenTelemetry tracing. Spans are exported over
// OTLP gRPC when Endpoint is set.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	ServiceName  string  `yaml:"serviceName"`
}

// LegacyConfig configures the legacy dispatcher.
type LegacyConfig struct {
	// URL of the legacy HTTP server.
	URL string `yaml:"url"`

	// CaptureLimit bounds the bytes buffered per captured response. Larger
	// responses are streamed. Zero disables the limit.
	CaptureLimit int64 `yaml:"captureLimit"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// CircuitBreakerConfig configures the legacy circuit breaker.
type CircuitBreakerConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Threshold int      `yaml:"threshold"`
	Timeout   Duration `yaml:"timeout"`
}

// PipelineConfig lists the stages of the interception chain, outermost
// first.
type PipelineConfig struct {
	Stages []StageConfig `yaml:"stages"`
}

// StageConfig configures one stage. Which fields apply depends on Name.
type StageConfig struct {
	Name string `yaml:"name"`

	// From and To form the forward rule of forwarding stages.
	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`

	// Capture overrides the default dispatch mode of a forwarding stage.
	Capture *bool `yaml:"capture,omitempty"`

	// Transform is applied by modify-request-body and modify-response-body.
	Transform transform.Rules `yaml:"transform,omitempty"`

	// Params are set on the query by modify-request-params.
	Params map[string]string `yaml:"params,omitempty"`

	// Headers are set on the request by modify-request and on the
	// response by modify-response.
	Headers map[string]string `yaml:"headers,omitempty"`

	// StatusMap rewrites response statuses in modify-response.
	StatusMap map[int]int `yaml:"statusMap,omitempty"`

	// NotFoundBody is the body written by the not-found stage.
	NotFoundBody string `yaml:"notFoundBody,omitempty"`

	// RequestsPerSecond and Burst configure the rate-limit stage.
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`
	Burst             int     `yaml:"burst,omitempty"`
}

// Default values.
const (
	DefaultServerAddress     = ":8080"
	DefaultMetricsAddress    = ":9090"
	DefaultMetricsPath       = "/metrics"
	DefaultServiceName       = "avabridge"
	DefaultCaptureLimit      = 10 << 20
	DefaultBreakerThreshold  = 5
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 15 * time.Second
	DefaultBreakerTimeout    = 30 * time.Second
)

// DefaultConfig returns the configuration used for keys missing from the
// file.
func DefaultConfig() *BridgeConfig {
	return &BridgeConfig{
		Server: ServerConfig{
			Address:           DefaultServerAddress,
			ReadHeaderTimeout: Duration(DefaultReadHeaderTimeout),
			ShutdownTimeout:   Duration(DefaultShutdownTimeout),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: DefaultMetricsAddress,
			Path:    DefaultMetricsPath,
		},
		Tracing: TracingConfig{
			SamplingRate: 1.0,
			ServiceName:  DefaultServiceName,
		},
		Legacy: LegacyConfig{
			CaptureLimit: DefaultCaptureLimit,
			CircuitBreaker: CircuitBreakerConfig{
				Threshold: DefaultBreakerThreshold,
				Timeout:   Duration(DefaultBreakerTimeout),
			},
		},
		Pipeline: PipelineConfig{
			Stages: []StageConfig{
				{Name: StageNotFound},
				{Name: StageRecovery},
				{Name: StageJSONError},
				{Name: StageCaptureUnhandled},
			},
		},
	}
}
