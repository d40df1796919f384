package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates bridge configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a bridge configuration.
func ValidateConfig(config *BridgeConfig) error {
	v := NewValidator()
	return v.Validate(config)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *BridgeConfig) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(&config.Server)
	v.validateLogging(&config.Logging)
	v.validateMetrics(&config.Metrics)
	v.validateTracing(&config.Tracing)
	v.validateLegacy(&config.Legacy, needsLegacy(config.Pipeline.Stages))
	v.validateStages(config.Pipeline.Stages)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateServer(server *ServerConfig) {
	if server.Address == "" {
		v.addError("server.address", "address is required")
	}
	if server.ReadHeaderTimeout < 0 {
		v.addError("server.readHeaderTimeout", "must not be negative")
	}
	if server.ShutdownTimeout < 0 {
		v.addError("server.shutdownTimeout", "must not be negative")
	}
}

func (v *Validator) validateLogging(logging *LoggingConfig) {
	if logging.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logging.Level)); err != nil {
			v.addError("logging.level", fmt.Sprintf("invalid level %q", logging.Level))
		}
	}

	switch logging.Format {
	case "", "json", "console":
	default:
		v.addError("logging.format", "format must be 'json' or 'console'")
	}

	switch logging.Output {
	case "", "stdout", "stderr":
	default:
		v.addError("logging.output", "output must be 'stdout' or 'stderr'")
	}
}

func (v *Validator) validateMetrics(metrics *MetricsConfig) {
	if !metrics.Enabled {
		return
	}
	if metrics.Address == "" {
		v.addError("metrics.address", "address is required when metrics are enabled")
	}
	if !strings.HasPrefix(metrics.Path, "/") {
		v.addError("metrics.path", "path must start with '/'")
	}
}

func (v *Validator) validateTracing(tracing *TracingConfig) {
	if tracing.SamplingRate < 0 || tracing.SamplingRate > 1 {
		v.addError("tracing.samplingRate", "samplingRate must be between 0 and 1")
	}
	if tracing.Enabled && tracing.ServiceName == "" {
		v.addError("tracing.serviceName", "serviceName is required when tracing is enabled")
	}
}

func (v *Validator) validateLegacy(legacy *LegacyConfig, required bool) {
	switch {
	case legacy.URL == "" && required:
		v.addError("legacy.url", "url is required when a forwarding stage is configured")
	case legacy.URL != "":
		u, err := url.Parse(legacy.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			v.addError("legacy.url", fmt.Sprintf("invalid url %q", legacy.URL))
		}
	}

	if legacy.CaptureLimit < 0 {
		v.addError("legacy.captureLimit", "must not be negative")
	}

	cb := &legacy.CircuitBreaker
	if cb.Enabled {
		if cb.Threshold <= 0 {
			v.addError("legacy.circuitBreaker.threshold", "threshold must be positive")
		}
		if cb.Timeout <= 0 {
			v.addError("legacy.circuitBreaker.timeout", "timeout must be positive")
		}
	}
}

func (v *Validator) validateStages(stages []StageConfig) {
	known := make(map[string]bool)
	for _, name := range KnownStages() {
		known[name] = true
	}

	for i := range stages {
		stage := &stages[i]
		path := fmt.Sprintf("pipeline.stages[%d]", i)

		if stage.Name == "" {
			v.addError(path+".name", "name is required")
			continue
		}
		if !known[stage.Name] {
			v.addError(path+".name", fmt.Sprintf("unknown stage %q", stage.Name))
			continue
		}

		if stage.Name == StageRateLimit && stage.RequestsPerSecond <= 0 {
			v.addError(path+".requestsPerSecond", "requestsPerSecond must be positive")
		}
		if stage.Burst < 0 {
			v.addError(path+".burst", "burst must not be negative")
		}

		if stage.From != "" {
			if _, err := regexp.Compile(stage.From); err != nil {
				v.addError(path+".from", fmt.Sprintf("invalid pattern: %v", err))
			}
		}
		if stage.To != "" && stage.From == "" {
			v.addError(path+".to", "to requires from")
		}

		if err := stage.Transform.Validate(); err != nil {
			v.addError(path+".transform", err.Error())
		}

		for from, to := range stage.StatusMap {
			if !validStatus(from) || !validStatus(to) {
				v.addError(path+".statusMap", fmt.Sprintf("invalid status mapping %d -> %d", from, to))
			}
		}

		for name := range stage.Headers {
			if strings.TrimSpace(name) == "" {
				v.addError(path+".headers", "header name must not be empty")
			}
		}
		for name := range stage.Params {
			if name == "" {
				v.addError(path+".params", "parameter name must not be empty")
			}
		}
	}
}

func needsLegacy(stages []StageConfig) bool {
	for i := range stages {
		if IsForwardingStage(stages[i].Name) {
			return true
		}
	}
	return false
}

func validStatus(code int) bool {
	return code >= 100 && code <= 599
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{
		Path:    path,
		Message: message,
	})
}
