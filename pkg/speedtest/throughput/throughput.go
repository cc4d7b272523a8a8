// Package throughput turns byte counts and elapsed time into bandwidth.
package throughput

import (
	"time"

	"go.uber.org/atomic"

	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/results"
)

// Mbps returns the bandwidth in megabits per second for the given number of
// bytes moved in elapsed. It returns 0 when elapsed is not positive.
func Mbps(bytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 || bytes <= 0 {
		return 0
	}
	return float64(bytes) * 8 / elapsed.Seconds() / 1e6
}

// Counter is the running total of bytes moved in the current phase. It is
// shared by every worker of a pool and only ever grows.
type Counter struct {
	n atomic.Int64
}

// Add adds n bytes and returns the new total. Non-positive values are
// ignored so the total never decreases.
func (c *Counter) Add(n int64) int64 {
	if n <= 0 {
		return c.n.Load()
	}
	return c.n.Add(n)
}

// Load returns the current total without blocking writers.
func (c *Counter) Load() int64 {
	return c.n.Load()
}

// Aggregator exposes the progress of a phase both while it is running and
// once it has settled. Live samples and the final result share Mbps.
type Aggregator struct {
	counter Counter
	start   atomic.Time
	now     func() time.Time
}

// New returns an Aggregator. The phase clock starts with Start.
func New() *Aggregator {
	return &Aggregator{now: time.Now}
}

// Start resets the phase clock. It may run concurrently with Sample.
func (a *Aggregator) Start() {
	a.start.Store(a.now())
}

// Add records n more bytes and returns the running total.
func (a *Aggregator) Add(n int64) int64 {
	return a.counter.Add(n)
}

// Bytes returns the running total.
func (a *Aggregator) Bytes() int64 {
	return a.counter.Load()
}

// Elapsed returns the time since Start, or 0 if Start was never called.
func (a *Aggregator) Elapsed() time.Duration {
	start := a.start.Load()
	if start.IsZero() {
		return 0
	}
	return a.now().Sub(start)
}

// Sample returns an instantaneous estimate. Safe for concurrent use with Add.
func (a *Aggregator) Sample() results.Sample {
	bytes := a.counter.Load()
	elapsed := a.Elapsed()
	return results.Sample{
		Bytes:   bytes,
		Elapsed: elapsed,
		Mbps:    Mbps(bytes, elapsed),
	}
}

// Finish returns the settled result for the phase. It must be called after
// every producer has stopped adding bytes.
func (a *Aggregator) Finish() *results.Result {
	s := a.Sample()
	return &results.Result{
		Seconds: s.Elapsed.Seconds(),
		Bytes:   s.Bytes,
		Mbps:    s.Mbps,
	}
}
