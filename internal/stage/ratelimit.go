package stage

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avabridge/internal/config"
	"github.com/vyrodovalexey/avabridge/internal/observability"
	"github.com/vyrodovalexey/avabridge/internal/pipeline"
)

// ErrInvalidRateLimit is returned for a rate-limit stage without a
// positive rate.
var ErrInvalidRateLimit = errors.New("rate limit requires a positive requestsPerSecond")

// newRateLimit rejects requests above the configured rate with 429. The
// limiter is shared by all clients and lives as long as the chain.
func newRateLimit(cfg config.StageConfig, opts *Options) (pipeline.Stage, error) {
	if cfg.RequestsPerSecond <= 0 {
		return pipeline.Stage{}, ErrInvalidRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(math.Ceil(cfg.RequestsPerSecond))
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	retryAfter := strconv.Itoa(int(math.Ceil(1 / cfg.RequestsPerSecond)))
	logger := opts.Logger

	return pipeline.Stage{
		Name: cfg.Name,
		Wrap: func(next pipeline.Handler) pipeline.Handler {
			return pipeline.HandlerFunc(func(ex *pipeline.Exchange) pipeline.Outcome {
				if limiter.Allow() {
					return next.Serve(ex)
				}

				logger.WithContext(ex.Context()).Debug("rate limit exceeded",
					observability.String("path", ex.OriginalPath()),
				)
				resp := pipeline.TextResponse(http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
				resp.Header.Set("Retry-After", retryAfter)
				return pipeline.Handled(resp)
			})
		},
	}, nil
}
