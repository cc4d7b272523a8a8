package transfer

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/throughput"
)

// ProgressFunc receives the running byte total of a phase. It is called
// from every worker goroutine and must be safe for concurrent use.
type ProgressFunc func(total int64)

// handle is one in-flight attempt. Its cancel func aborts the request.
type handle struct {
	cancel context.CancelFunc
}

// phase is the state shared by the workers of one Run: the running flag,
// the progress counter and the set of active handles.
type phase struct {
	running    atomic.Bool
	completed  atomic.Int64
	agg        *throughput.Aggregator
	onProgress ProgressFunc

	// reportMu orders onProgress calls; reported is the last total sent.
	reportMu sync.Mutex
	reported int64

	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	active  map[*handle]struct{}
	lastErr error
}

func newPhase(agg *throughput.Aggregator, onProgress ProgressFunc) *phase {
	ph := &phase{
		agg:        agg,
		onProgress: onProgress,
		active:     make(map[*handle]struct{}),
		done:       make(chan struct{}),
	}
	ph.running.Store(true)
	return ph
}

// register creates the token for a new attempt. It returns false once the
// phase is over, in which case the worker must not start another attempt.
func (ph *phase) register(parent context.Context) (context.Context, *handle, bool) {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	if !ph.running.Load() || parent.Err() != nil {
		return nil, nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	h := &handle{cancel: cancel}
	ph.active[h] = struct{}{}
	return ctx, h, true
}

// release removes h from the active set and releases its resources.
func (ph *phase) release(h *handle) {
	ph.mu.Lock()
	delete(ph.active, h)
	ph.mu.Unlock()
	h.cancel()
}

// stop clears the running flag and aborts every active attempt.
func (ph *phase) stop() {
	ph.running.Store(false)
	ph.stopOnce.Do(func() { close(ph.done) })
	ph.mu.Lock()
	defer ph.mu.Unlock()
	for h := range ph.active {
		h.cancel()
	}
}

// add records n bytes and reports progress. It returns whether the phase is
// still running, so callers can abort between chunks.
func (ph *phase) add(n int64) bool {
	ph.agg.Add(n)
	if ph.onProgress != nil && n > 0 {
		ph.report()
	}
	return ph.running.Load()
}

// report sends the current total to onProgress unless a larger or equal
// total was already sent, so the callback never sees the total decrease.
func (ph *phase) report() {
	ph.reportMu.Lock()
	defer ph.reportMu.Unlock()
	total := ph.agg.Bytes()
	if total <= ph.reported {
		return
	}
	ph.reported = total
	ph.onProgress(total)
}

func (ph *phase) setErr(err error) {
	ph.mu.Lock()
	ph.lastErr = err
	ph.mu.Unlock()
}

func (ph *phase) err() error {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	return ph.lastErr
}
