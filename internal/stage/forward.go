package stage

import (
	"github.com/vyrodovalexey/avabridge/internal/config"
	"github.com/vyrodovalexey/avabridge/internal/legacy"
	"github.com/vyrodovalexey/avabridge/internal/observability"
	"github.com/vyrodovalexey/avabridge/internal/pathrewrite"
	"github.com/vyrodovalexey/avabridge/internal/pipeline"
)

// forwardSettings resolves the rule and dispatch mode of a forwarding
// stage.
func forwardSettings(cfg config.StageConfig, opts *Options, mode legacy.Mode) (pathrewrite.Rule, legacy.Mode, error) {
	if opts.Bridge == nil {
		return pathrewrite.Rule{}, mode, ErrNoBridge
	}

	rule := pathrewrite.DefaultRule()
	if cfg.From != "" {
		var err error
		if rule, err = pathrewrite.ParseRule(cfg.From, cfg.To); err != nil {
			return pathrewrite.Rule{}, mode, err
		}
	}

	if cfg.Capture != nil {
		mode = legacy.ModeStreaming
		if *cfg.Capture {
			mode = legacy.ModeCapturing
		}
	}
	return rule, mode, nil
}

// newForward forwards first and falls through to next when the rule does
// not match.
func newForward(cfg config.StageConfig, opts *Options) (pipeline.Stage, error) {
	rule, mode, err := forwardSettings(cfg, opts, legacy.ModeStreaming)
	if err != nil {
		return pipeline.Stage{}, err
	}
	bridge := opts.Bridge

	return pipeline.Stage{
		Name: cfg.Name,
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return pipeline.HandlerFunc(func(ex *pipeline.Exchange) pipeline.Outcome {
				resp, err := bridge.Forward(ex, rule, mode)
				if err != nil {
					return pipeline.Failed(err)
				}
				if resp == nil {
					return next.Serve(ex)
				}
				return pipeline.Handled(resp)
			})
		},
	}, nil
}

func newForwardUnhandled(cfg config.StageConfig, opts *Options) (pipeline.Stage, error) {
	return newUnhandled(cfg, opts, legacy.ModeStreaming)
}

func newCaptureUnhandled(cfg config.StageConfig, opts *Options) (pipeline.Stage, error) {
	return newUnhandled(cfg, opts, legacy.ModeCapturing)
}

// newUnhandled runs next and forwards requests nothing handled. The
// exchange carried by the not-found outcome is forwarded, so request
// changes made further down the chain reach the legacy handler, while the
// response goes to this stage's writer.
func newUnhandled(cfg config.StageConfig, opts *Options, defaultMode legacy.Mode) (pipeline.Stage, error) {
	rule, mode, err := forwardSettings(cfg, opts, defaultMode)
	if err != nil {
		return pipeline.Stage{}, err
	}
	bridge := opts.Bridge
	logger := opts.Logger

	return pipeline.Stage{
		Name: cfg.Name,
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return pipeline.HandlerFunc(func(ex *pipeline.Exchange) pipeline.Outcome {
				out := next.Serve(ex)
				if !out.IsNotFound() || ex.Context().Err() != nil {
					return out
				}

				target := ex
				if derived := out.Exchange(); derived != nil {
					target = derived.WithWriter(ex.Writer())
				}

				resp, err := bridge.Forward(target, rule, mode)
				if err != nil {
					return pipeline.Failed(err)
				}
				if resp == nil {
					logger.WithContext(ex.Context()).Debug("no forward rule for unhandled request",
						observability.String("path", ex.OriginalPath()),
					)
					return out
				}
				return pipeline.Handled(resp)
			})
		},
	}, nil
}
