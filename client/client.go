package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-lab/go/memoryless"

	"github.com/newazfarhan/newaz-speed-test/client/config"
	"github.com/newazfarhan/newaz-speed-test/client/emitter"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/latency"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/payload"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/results"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/spec"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/throughput"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/transfer"
)

// Client runs measurement sessions against a single server.
type Client struct {
	httpClient *http.Client
	endpoint   string
	config     *config.ClientConfig
	emitter    emitter.Emitter
}

// New returns a Client for the server at endpoint (host:port) using the
// default configuration.
func New(endpoint string) *Client {
	return NewWithConfig(endpoint, config.NewDefault())
}

func NewWithConfig(endpoint string, config *config.ClientConfig) *Client {
	return &Client{
		httpClient: newHTTPClient(config),
		endpoint:   endpoint,
		config:     config,
		emitter:    &emitter.LogEmitter{},
	}
}

// newHTTPClient returns a client whose idle pool can hold one connection per
// stream, so consecutive attempts reuse their TCP flows.
func newHTTPClient(cfg *config.ClientConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	conns := cfg.DownloadStreams
	if cfg.UploadStreams > conns {
		conns = cfg.UploadStreams
	}
	transport.MaxIdleConnsPerHost = conns
	transport.DisableCompression = true
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// SetEmitter replaces the session event sink.
func (c *Client) SetEmitter(e emitter.Emitter) {
	c.emitter = e
}

func (c *Client) baseURL() string {
	return string(c.config.Protocol) + "://" + c.endpoint
}

// Run performs one session: the latency probe, the download phase, a short
// pause and the upload phase. It stops at the first failing phase and returns
// the partial session together with the error.
func (c *Client) Run(ctx context.Context) (*results.Session, error) {
	if err := c.config.Validate(); err != nil {
		return nil, err
	}
	// Generated before any traffic so it does not skew the upload phase.
	body, err := payload.Generate(c.config.UploadSize)
	if err != nil {
		return nil, err
	}

	session := &results.Session{MeasurementID: uuid.NewString()}

	c.emitter.OnStart(spec.SubtestLatency)
	probe := latency.New(c.httpClient, c.baseURL(), session.MeasurementID)
	ms, err := probe.Measure(ctx, c.config.LatencyRepeats)
	if err != nil {
		c.emitter.OnError(spec.SubtestLatency, err)
		return session, err
	}
	session.LatencyMs = &ms
	c.emitter.OnLatency(ms)

	dl, err := c.runPhase(ctx, spec.SubtestDownload, session.MeasurementID, c.config.DownloadDuration, c.config.DownloadStreams,
		func(opts ...transfer.Option) *transfer.Pool {
			return transfer.NewDownload(c.httpClient, c.baseURL(), c.config.DownloadSize, opts...)
		})
	if err != nil {
		return session, err
	}
	session.Set(spec.SubtestDownload, dl)

	if c.config.PhasePause > 0 {
		select {
		case <-ctx.Done():
			return session, ctx.Err()
		case <-time.After(c.config.PhasePause):
		}
	}

	up, err := c.runPhase(ctx, spec.SubtestUpload, session.MeasurementID, c.config.UploadDuration, c.config.UploadStreams,
		func(opts ...transfer.Option) *transfer.Pool {
			return transfer.NewUpload(c.httpClient, c.baseURL(), body, opts...)
		})
	if err != nil {
		return session, err
	}
	session.Set(spec.SubtestUpload, up)
	return session, nil
}

func (c *Client) runPhase(ctx context.Context, kind spec.SubtestKind, mid string, duration time.Duration,
	streams int, newPool func(...transfer.Option) *transfer.Pool) (*results.Result, error) {
	c.emitter.OnStart(kind)

	agg := throughput.New()
	pool := newPool(
		transfer.WithAggregator(agg),
		transfer.WithMeasurementID(mid),
		transfer.WithErrorHandler(func(err error) {
			c.emitter.OnError(kind, err)
		}),
	)

	sampleCtx, stopSampling := context.WithCancel(ctx)
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.sample(sampleCtx, kind, agg)
	}()

	result, err := pool.Run(ctx, duration, streams, nil)
	stopSampling()
	wg.Wait()
	if err != nil {
		c.emitter.OnError(kind, err)
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	c.emitter.OnComplete(kind, result)
	return result, nil
}

// sample reports live progress at semi-random intervals around
// SampleInterval until ctx is done.
func (c *Client) sample(ctx context.Context, kind spec.SubtestKind, agg *throughput.Aggregator) {
	interval := c.config.SampleInterval
	ticker, err := memoryless.NewTicker(ctx, memoryless.Config{
		Min:      interval / 3,
		Expected: interval,
		Max:      interval * 4 / 3,
	})
	if err != nil {
		c.emitter.OnError(kind, err)
		return
	}
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticker.C:
			if !ok {
				return
			}
			c.emitter.OnProgress(kind, agg.Sample())
		}
	}
}
