package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/newazfarhan/newaz-speed-test/internal/handler"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/payload"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/results"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/throughput"
)

func newServer(t *testing.T, cfg handler.Config) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	handler.New(cfg).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// maxProgress records the largest total reported through a ProgressFunc.
type maxProgress struct {
	mu    sync.Mutex
	max   int64
	calls int
}

func (m *maxProgress) report(total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if total > m.max {
		m.max = total
	}
}

func TestDownloadPhase(t *testing.T) {
	srv := newServer(t, handler.Config{})
	var progress maxProgress

	p := NewDownload(srv.Client(), srv.URL, 4_000_000, WithMeasurementID("test"))
	r, err := p.Run(context.Background(), 2*time.Second, 3, progress.report)
	require.NoError(t, err)

	assert.Greater(t, r.Bytes, int64(0))
	assert.InDelta(t, 2.0, r.Seconds, 0.2)
	assert.Greater(t, r.Mbps, 0.0)
	assert.InDelta(t, float64(r.Bytes)*8/1e6/r.Seconds, r.Mbps, 1e-6)
	assert.Equal(t, r.Bytes, progress.max)
	assert.Greater(t, progress.calls, 0)
}

// progressLog records every total reported through a ProgressFunc, in call
// order.
type progressLog struct {
	mu     sync.Mutex
	totals []int64
}

func (l *progressLog) report(total int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totals = append(l.totals, total)
}

func TestDownloadProgressNeverDecreases(t *testing.T) {
	srv := newServer(t, handler.Config{})
	var log progressLog

	p := NewDownload(srv.Client(), srv.URL, 1_000_000)
	r, err := p.Run(context.Background(), time.Second, 16, log.report)
	require.NoError(t, err)

	log.mu.Lock()
	defer log.mu.Unlock()
	require.NotEmpty(t, log.totals)
	for i := 1; i < len(log.totals); i++ {
		if log.totals[i] <= log.totals[i-1] {
			t.Fatalf("report %d: total went from %d to %d", i, log.totals[i-1], log.totals[i])
		}
	}
	assert.Equal(t, r.Bytes, log.totals[len(log.totals)-1])
}

func TestPhaseReportsAreOrdered(t *testing.T) {
	var log progressLog
	ph := newPhase(throughput.New(), log.report)

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				ph.add(int64(1 + i%7))
			}
		}()
	}
	wg.Wait()

	require.NotEmpty(t, log.totals)
	for i := 1; i < len(log.totals); i++ {
		require.Greater(t, log.totals[i], log.totals[i-1])
	}
	assert.Equal(t, ph.agg.Bytes(), log.totals[len(log.totals)-1])
}

func TestEmptyDownloadBodyIsRetried(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Inc()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var errs atomic.Int64
	p := NewDownload(srv.Client(), srv.URL, 1000,
		WithErrorHandler(func(err error) {
			if errors.Is(err, ErrEmptyBody) {
				errs.Inc()
			}
		}),
		WithRetryDelay(50*time.Millisecond))
	_, err := p.Run(context.Background(), 500*time.Millisecond, 1, nil)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Greater(t, errs.Load(), int64(0))
	// One attempt per retry delay at most, instead of a busy loop.
	assert.LessOrEqual(t, hits.Load(), int64(12))
}

func TestUploadPhase(t *testing.T) {
	const chunk = 500_000
	var (
		mu      sync.Mutex
		reports []int64
	)
	h := handler.New(handler.Config{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := httptest.NewRecorder()
		h.Upload(rec, r)
		if rec.Code == http.StatusOK {
			var report results.UploadReport
			if err := json.Unmarshal(rec.Body.Bytes(), &report); err == nil && report.Received != nil {
				mu.Lock()
				reports = append(reports, *report.Received)
				mu.Unlock()
			}
		}
		for k, v := range rec.Header() {
			w.Header()[k] = v
		}
		w.WriteHeader(rec.Code)
		w.Write(rec.Body.Bytes())
	}))
	defer srv.Close()

	buf, err := payload.Generate(chunk)
	require.NoError(t, err)
	r, err := NewUpload(srv.Client(), srv.URL, buf).Run(context.Background(), 2*time.Second, 1, nil)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, r.Seconds, 0.2)
	require.Greater(t, r.Bytes, int64(0))
	assert.Zero(t, r.Bytes%chunk)

	mu.Lock()
	defer mu.Unlock()
	completed := int(r.Bytes / chunk)
	// A request aborted by the timer may still have been fully read by the
	// sink, so the server can count at most one more request per worker.
	assert.GreaterOrEqual(t, len(reports), completed)
	assert.LessOrEqual(t, len(reports), completed+1)
	for _, n := range reports {
		assert.Equal(t, int64(chunk), n)
	}
}

func TestZeroDuration(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Inc()
	}))
	defer srv.Close()

	r, err := NewDownload(srv.Client(), srv.URL, 1000).Run(context.Background(), 0, 3, nil)
	require.NoError(t, err)
	assert.Zero(t, r.Bytes)
	assert.Zero(t, r.Mbps)
	assert.Zero(t, hits.Load())
}

func TestInvalidConfig(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Inc()
	}))
	defer srv.Close()

	tests := []struct {
		name        string
		pool        *Pool
		duration    time.Duration
		concurrency int
	}{
		{"zero concurrency", NewDownload(srv.Client(), srv.URL, 1000), time.Second, 0},
		{"negative duration", NewDownload(srv.Client(), srv.URL, 1000), -time.Second, 1},
		{"zero download size", NewDownload(srv.Client(), srv.URL, 0), time.Second, 1},
		{"empty upload payload", NewUpload(srv.Client(), srv.URL, nil), time.Second, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.pool.Run(context.Background(), tt.duration, tt.concurrency, nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
	assert.Zero(t, hits.Load())
}

func TestUploadProtocolError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"missing field", http.StatusOK, `{}`},
		{"wrong count", http.StatusOK, `{"received": 3}`},
		{"not json", http.StatusOK, `hello`},
		{"client error", http.StatusRequestEntityTooLarge, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			start := time.Now()
			_, err := NewUpload(srv.Client(), srv.URL, make([]byte, 100)).
				Run(context.Background(), 5*time.Second, 2, nil)
			var perr *ProtocolError
			assert.True(t, errors.As(err, &perr), "got %v", err)
			// The phase fails right away instead of running to the end.
			assert.Less(t, time.Since(start), 2*time.Second)
		})
	}
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var errs atomic.Int64
	p := NewDownload(nil, url, 1000, WithErrorHandler(func(error) { errs.Inc() }))
	_, err := p.Run(context.Background(), 300*time.Millisecond, 2, nil)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Greater(t, errs.Load(), int64(0))
}

func TestTransientErrorsAreRetried(t *testing.T) {
	var calls atomic.Int64
	h := handler.New(handler.Config{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Inc()%2 == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		h.Upload(w, r)
	}))
	defer srv.Close()

	var errs atomic.Int64
	p := NewUpload(srv.Client(), srv.URL, make([]byte, 1000),
		WithErrorHandler(func(error) { errs.Inc() }),
		WithRetryDelay(time.Millisecond))
	r, err := p.Run(context.Background(), 500*time.Millisecond, 1, nil)
	require.NoError(t, err)
	assert.Greater(t, r.Bytes, int64(0))
	assert.Greater(t, errs.Load(), int64(0))
}

func TestParentCancellation(t *testing.T) {
	srv := newServer(t, handler.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	_, err := NewDownload(srv.Client(), srv.URL, 4_000_000).Run(ctx, 10*time.Second, 3, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}
