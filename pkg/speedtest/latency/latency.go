// Package latency estimates the round-trip time to a speed test server.
package latency

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/m-lab/go/warnonerror"

	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/spec"
)

// DefaultRepeats is the number of round trips used by Measure when repeats
// is not positive.
const DefaultRepeats = 6

var (
	// ErrProbeFailed is returned when a round trip fails.
	ErrProbeFailed = errors.New("latency probe failed")
	// ErrNoSamples is returned by Median for an empty input.
	ErrNoSamples = errors.New("no latency samples")
)

// Probe issues small, cache-defeated requests against the download
// endpoint of a server.
type Probe struct {
	client   *http.Client
	endpoint string
	mid      string
}

// New returns a Probe for the server at baseURL (e.g. http://host:3000).
func New(client *http.Client, baseURL, mid string) *Probe {
	if client == nil {
		client = http.DefaultClient
	}
	return &Probe{
		client:   client,
		endpoint: baseURL + spec.DownloadPath,
		mid:      mid,
	}
}

// Measure performs repeats sequential round trips and returns the median
// round-trip time in milliseconds. Any failing round trip aborts the probe.
func (p *Probe) Measure(ctx context.Context, repeats int) (float64, error) {
	if repeats <= 0 {
		repeats = DefaultRepeats
	}
	samples := make([]float64, 0, repeats)
	for i := 0; i < repeats; i++ {
		rtt, err := p.roundTrip(ctx)
		if err != nil {
			return 0, fmt.Errorf("%w: round trip %d: %v", ErrProbeFailed, i+1, err)
		}
		samples = append(samples, float64(rtt)/float64(time.Millisecond))
	}
	return Median(samples)
}

func (p *Probe) roundTrip(ctx context.Context) (time.Duration, error) {
	q := url.Values{}
	q.Set(spec.SizeParameterName, strconv.Itoa(spec.ProbeSize))
	q.Set(spec.TokenParameterName, uuid.NewString())
	if p.mid != "" {
		q.Set(spec.MeasurementIDParameterName, p.mid)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Cache-Control", "no-store")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer warnonerror.Close(resp.Body, "latency: ignoring body.Close error")
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return 0, err
	}
	rtt := time.Since(start)
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return rtt, nil
}

// Median returns the middle element of samples once sorted. For an even
// number of samples the lower of the two middle elements is returned, so
// the result is always one of the inputs. samples is not modified.
func Median(samples []float64) (float64, error) {
	if len(samples) == 0 {
		return 0, ErrNoSamples
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return sorted[(len(sorted)-1)/2], nil
}
