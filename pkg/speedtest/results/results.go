// Package results contains the values produced by a measurement session.
package results

import (
	"time"

	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/spec"
)

// Result is the settled outcome of one transfer phase.
type Result struct {
	// Seconds is the wall-clock time from phase start until every worker
	// settled.
	Seconds float64 `json:"seconds"`
	// Bytes is the total number of bytes moved during the phase.
	Bytes int64 `json:"bytes"`
	// Mbps is the bandwidth in megabits per second.
	Mbps float64 `json:"mbps"`
}

// Sample is an instantaneous view of an in-flight phase.
type Sample struct {
	Bytes   int64         `json:"bytes"`
	Elapsed time.Duration `json:"elapsed"`
	Mbps    float64       `json:"mbps"`
}

// Session holds everything measured during one run. It is owned by the
// caller and discarded after being reported.
type Session struct {
	// MeasurementID is shared by every request issued during the session.
	MeasurementID string `json:"mid"`
	// LatencyMs is nil until the latency probe completes.
	LatencyMs *float64 `json:"latency_ms,omitempty"`
	Download  *Result  `json:"download,omitempty"`
	Upload    *Result  `json:"upload,omitempty"`
}

// Set stores r as the result of the given subtest.
func (s *Session) Set(kind spec.SubtestKind, r *Result) {
	switch kind {
	case spec.SubtestDownload:
		s.Download = r
	case spec.SubtestUpload:
		s.Upload = r
	}
}

// UploadReport is the body the upload endpoint returns.
type UploadReport struct {
	// Received is a pointer so a missing field can be told apart from zero.
	Received *int64 `json:"received"`
}
