// Package transfer drives timed download and upload phases against a speed
// test server using a pool of concurrent, cancellable workers.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/results"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/spec"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/throughput"
)

// attemptFunc performs one transfer. It calls ph.add as bytes move and
// aborts through h, returning context.Canceled, when add reports the phase
// is over.
type attemptFunc func(ctx context.Context, h *handle, ph *phase) error

// Pool runs one kind of transfer attempt from several workers for a fixed
// wall-clock budget.
type Pool struct {
	kind       spec.SubtestKind
	client     *http.Client
	baseURL    string
	mid        string
	onError    func(error)
	retryDelay time.Duration
	agg        *throughput.Aggregator

	attempt  attemptFunc
	validate func() error
}

// Run starts concurrency workers, each repeatedly issuing one attempt until
// duration elapses. On expiry every in-flight request is aborted. Run returns
// once all workers have settled; elapsed time is measured up to that point.
//
// Transport errors are absorbed and retried. A ProtocolError fails the
// phase. If no byte was moved and some attempt failed, ErrUnreachable is
// returned rather than a zero bandwidth.
func (p *Pool) Run(ctx context.Context, duration time.Duration, concurrency int,
	onProgress ProgressFunc) (*results.Result, error) {
	if duration < 0 {
		return nil, invalidConfigf("duration must be >= 0, got %s", duration)
	}
	if concurrency < 1 {
		return nil, invalidConfigf("concurrency must be >= 1, got %d", concurrency)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if duration == 0 {
		return &results.Result{}, nil
	}

	agg := p.agg
	if agg == nil {
		agg = throughput.New()
	}
	ph := newPhase(agg, onProgress)
	g, gctx := errgroup.WithContext(ctx)
	ph.agg.Start()
	timer := time.AfterFunc(duration, ph.stop)
	defer timer.Stop()

	for i := 0; i < concurrency; i++ {
		id := i
		g.Go(func() error {
			return p.worker(gctx, id, ph)
		})
	}
	err := g.Wait()
	ph.stop()
	result := ph.agg.Finish()

	zap.L().Sugar().Debugw("Phase settled",
		"kind", p.kind,
		"bytes", result.Bytes,
		"seconds", result.Seconds,
		"attempts", ph.completed.Load())

	if err != nil {
		return nil, err
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	if result.Bytes == 0 {
		if last := ph.err(); last != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreachable, last)
		}
	}
	return result, nil
}

func (p *Pool) worker(ctx context.Context, id int, ph *phase) error {
	for {
		actx, h, ok := ph.register(ctx)
		if !ok {
			return nil
		}
		err := p.attempt(actx, h, ph)
		aborted := actx.Err() != nil
		ph.release(h)

		var perr *ProtocolError
		switch {
		case err == nil:
			ph.completed.Inc()
			continue
		case errors.As(err, &perr):
			ph.stop()
			return err
		case aborted:
			// Our own token was canceled: a graceful exit, not an error.
			zap.L().Sugar().Debugw("Attempt aborted", "kind", p.kind, "worker", id)
			continue
		}

		ph.setErr(err)
		zap.L().Sugar().Warnw("Transfer attempt failed",
			"kind", p.kind, "worker", id, "error", err)
		if p.onError != nil {
			p.onError(err)
		}
		if p.retryDelay > 0 {
			t := time.NewTimer(p.retryDelay)
			select {
			case <-ctx.Done():
			case <-ph.done:
			case <-t.C:
			}
			t.Stop()
		}
	}
}
