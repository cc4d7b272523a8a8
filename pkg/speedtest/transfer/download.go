package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/m-lab/go/warnonerror"

	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/spec"
)

// readBufferSize is the size of a single read from a download body.
const readBufferSize = 32 * 1024

// NewDownload returns a Pool whose attempts each download size bytes.
func NewDownload(client *http.Client, baseURL string, size int64, opts ...Option) *Pool {
	p := newPool(client, baseURL, opts)
	p.kind = spec.SubtestDownload
	p.validate = func() error {
		if size <= 0 {
			return invalidConfigf("download size must be > 0, got %d", size)
		}
		return nil
	}
	p.attempt = func(ctx context.Context, h *handle, ph *phase) error {
		return p.download(ctx, h, ph, size)
	}
	return p
}

func (p *Pool) download(ctx context.Context, h *handle, ph *phase, size int64) error {
	q := url.Values{}
	q.Set(spec.SizeParameterName, strconv.FormatInt(size, 10))
	q.Set(spec.TokenParameterName, uuid.NewString())
	if p.mid != "" {
		q.Set(spec.MeasurementIDParameterName, p.mid)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+spec.DownloadPath+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Cache-Control", "no-store")
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer warnonerror.Close(resp.Body, "download: ignoring body.Close error")
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: unexpected status %s", resp.Status)
	}

	buf := make([]byte, readBufferSize)
	var received int64
	for {
		n, err := resp.Body.Read(buf)
		received += int64(n)
		if n > 0 && !ph.add(int64(n)) {
			// The phase is over: abort the request explicitly so the
			// transport tears the connection down now.
			h.cancel()
			return context.Canceled
		}
		if errors.Is(err, io.EOF) {
			if received == 0 {
				return ErrEmptyBody
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}
