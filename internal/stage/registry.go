package stage

import (
	"fmt"
	"sort"

	"github.com/vyrodovalexey/avabridge/internal/config"
	"github.com/vyrodovalexey/avabridge/internal/observability"
	"github.com/vyrodovalexey/avabridge/internal/pipeline"
)

// Factory builds a stage from its configuration.
type Factory func(cfg config.StageConfig, opts *Options) (pipeline.Stage, error)

var factories = map[string]Factory{
	config.StageNotFound:            newNotFound,
	config.StageRecovery:            newRecovery,
	config.StageJSONError:           newJSONError,
	config.StageRequestID:           newRequestID,
	config.StageAccessLog:           newAccessLog,
	config.StageRateLimit:           newRateLimit,
	config.StageForward:             newForward,
	config.StageForwardUnhandled:    newForwardUnhandled,
	config.StageCaptureUnhandled:    newCaptureUnhandled,
	config.StageModifyRequestBody:   newModifyRequestBody,
	config.StageModifyRequestParams: newModifyRequestParams,
	config.StageModifyRequest:       newModifyRequest,
	config.StageModifyResponse:      newModifyResponse,
	config.StageModifyResponseBody:  newModifyResponseBody,
}

// Names returns the registered stage names, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates the stages in configuration order, outermost first.
func Build(cfgs []config.StageConfig, opts Options) ([]pipeline.Stage, error) {
	opts = opts.withDefaults()

	stages := make([]pipeline.Stage, 0, len(cfgs))
	for i := range cfgs {
		cfg := cfgs[i]
		factory, ok := factories[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("stage %d: %w: %q", i, ErrUnknownStage, cfg.Name)
		}

		s, err := factory(cfg, &opts)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, cfg.Name, err)
		}
		stages = append(stages, s)
	}

	opts.Logger.Debug("pipeline stages built",
		observability.Int("count", len(stages)),
	)
	return stages, nil
}
