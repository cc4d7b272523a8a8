package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/m-lab/go/warnonerror"

	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/results"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/spec"
)

// maxReportSize bounds how much of an upload response is decoded.
const maxReportSize = 4096

// NewUpload returns a Pool whose attempts each POST payload. The payload is
// shared read-only by every worker.
func NewUpload(client *http.Client, baseURL string, payload []byte, opts ...Option) *Pool {
	p := newPool(client, baseURL, opts)
	p.kind = spec.SubtestUpload
	p.validate = func() error {
		if len(payload) == 0 {
			return invalidConfigf("upload payload must not be empty")
		}
		return nil
	}
	p.attempt = func(ctx context.Context, _ *handle, ph *phase) error {
		return p.upload(ctx, ph, payload)
	}
	return p
}

func (p *Pool) upload(ctx context.Context, ph *phase, payload []byte) error {
	q := url.Values{}
	q.Set(spec.TokenParameterName, uuid.NewString())
	if p.mid != "" {
		q.Set(spec.MeasurementIDParameterName, p.mid)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+spec.UploadPath+"?"+q.Encode(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", spec.ContentType)
	req.Header.Set("Cache-Control", "no-store")
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer warnonerror.Close(resp.Body, "upload: ignoring body.Close error")

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("upload: unexpected status %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return protocolErrorf("upload: unexpected status %s", resp.Status)
	}

	var report results.UploadReport
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReportSize)).Decode(&report); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return protocolErrorf("upload: malformed report: %v", err)
	}
	if report.Received == nil {
		return protocolErrorf("upload: report has no received field")
	}
	if *report.Received != int64(len(payload)) {
		return protocolErrorf("upload: server received %d bytes, sent %d",
			*report.Received, len(payload))
	}
	ph.add(int64(len(payload)))
	return nil
}
