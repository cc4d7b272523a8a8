// Package spec contains constants for the speed test protocol.
package spec

import "time"

const (
	// DownloadPath selects the download subtest.
	DownloadPath = "/download"
	// UploadPath selects the upload subtest.
	UploadPath = "/upload"

	// SizeParameterName is the query parameter carrying the requested
	// download size in bytes.
	SizeParameterName = "size"
	// TokenParameterName is the query parameter carrying the cache-defeat
	// token. Its value is never interpreted by the server.
	TokenParameterName = "r"
	// MeasurementIDParameterName identifies all the requests belonging to
	// the same measurement session.
	MeasurementIDParameterName = "mid"

	// DefaultDownloadSize is used when a download request has no size.
	DefaultDownloadSize = 5_000_000
	// MaxDownloadSize is the hard server-side cap on a download size.
	MaxDownloadSize = 200 * 1024 * 1024
	// MaxUploadSize bounds a buffered upload body.
	MaxUploadSize = 500_000_000

	// ChunkSize is the size of a single write on the download path and of
	// a single random fill when generating payloads.
	ChunkSize = 64 * 1024

	// ProbeSize is the download size used by latency round trips.
	ProbeSize = 64

	// MaxRuntime is the maximum runtime of a single request on the server.
	MaxRuntime = 25 * time.Second

	// ContentType is the media type of download and upload bodies.
	ContentType = "application/octet-stream"
)

// SubtestKind indicates the subtest kind
type SubtestKind string

const (
	// SubtestLatency is the latency probe.
	SubtestLatency = SubtestKind("latency")

	// SubtestDownload is a download subtest
	SubtestDownload = SubtestKind("download")

	// SubtestUpload is a upload subtest
	SubtestUpload = SubtestKind("upload")
)
