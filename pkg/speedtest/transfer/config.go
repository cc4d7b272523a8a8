package transfer

import (
	"net/http"
	"time"

	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/throughput"
)

const defaultRetryDelay = 100 * time.Millisecond

// Option customizes a Pool.
type Option func(*Pool)

// WithMeasurementID tags every request with the given measurement id.
func WithMeasurementID(mid string) Option {
	return func(p *Pool) {
		p.mid = mid
	}
}

// WithErrorHandler registers a function receiving every non-cancellation
// error absorbed by a worker. It may be called from several goroutines.
func WithErrorHandler(fn func(error)) Option {
	return func(p *Pool) {
		p.onError = fn
	}
}

// WithRetryDelay sets the pause a worker takes after a failed attempt.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Pool) {
		p.retryDelay = d
	}
}

// WithAggregator makes the pool count progress into agg so the caller can
// sample it while a phase runs. agg must be fresh: Run starts its clock and
// never resets its byte count, so it serves a single Run.
func WithAggregator(agg *throughput.Aggregator) Option {
	return func(p *Pool) {
		p.agg = agg
	}
}

func newPool(client *http.Client, baseURL string, opts []Option) *Pool {
	if client == nil {
		client = http.DefaultClient
	}
	p := &Pool{
		client:     client,
		baseURL:    baseURL,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}
