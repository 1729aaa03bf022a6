package x402

import (
	"net/http"
	"time"

	"github.com/DeegaLabs/cronos-shield-x402/cache"
	"github.com/DeegaLabs/cronos-shield-x402/logger"
	"github.com/DeegaLabs/cronos-shield-x402/metrics"
	"github.com/DeegaLabs/cronos-shield-x402/types"
)

type Option func(*Flow)

func WithConfig(cfg types.FlowConfig) Option {
	return func(f *Flow) {
		f.cfg = cfg
	}
}

func WithLogger(l logger.Logger) Option {
	return func(f *Flow) {
		f.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(f *Flow) {
		f.rec = r
	}
}

// WithStore injects the payment cache, e.g. a durable cache.FileStore or an
// isolated store in tests.
func WithStore(s cache.Store) Option {
	return func(f *Flow) {
		f.store = s
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(f *Flow) {
		f.httpClient = c
	}
}

// WithClock pins the flow's clock, which also drives authorization validity
// windows.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		f.now = now
	}
}
