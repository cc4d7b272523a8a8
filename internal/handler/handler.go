package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/newazfarhan/newaz-speed-test/internal/metrics"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/results"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/spec"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/stream"
)

// Config holds the server-side limits of the endpoints.
type Config struct {
	// MaxDownloadSize clamps the requested download size.
	MaxDownloadSize int64
	// BufferUploads reads the whole upload body before counting it.
	// Otherwise the body is counted as it streams in.
	BufferUploads bool
	// MaxUploadSize bounds a buffered upload body.
	MaxUploadSize int64
}

// Handler handles the speed test subtests.
type Handler struct {
	cfg Config
}

// New creates a new Handler. Zero limits are replaced by the defaults.
func New(cfg Config) *Handler {
	if cfg.MaxDownloadSize <= 0 {
		cfg.MaxDownloadSize = spec.MaxDownloadSize
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = spec.MaxUploadSize
	}
	return &Handler{cfg: cfg}
}

// Register installs the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(spec.DownloadPath, h.Download)
	mux.HandleFunc(spec.UploadPath, h.Upload)
}

// writeBadRequest sends a Bad Request response to the client using writer.
func writeBadRequest(writer http.ResponseWriter) {
	writer.Header().Set("Connection", "Close")
	writer.WriteHeader(http.StatusBadRequest)
}

// Download handles the download subtest: it streams the requested number of
// bytes, clamped to MaxDownloadSize.
func (h *Handler) Download(rw http.ResponseWriter, req *http.Request) {
	const endpoint = "download"
	if req.Method != http.MethodGet {
		metrics.RequestsTotal.WithLabelValues(endpoint, "bad-method").Inc()
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	size, err := h.downloadSize(req)
	if err != nil {
		zap.L().Sugar().Infow("Received download request with invalid size",
			"url", req.URL.String(),
			"client", req.RemoteAddr,
			"error", err)
		metrics.RequestsTotal.WithLabelValues(endpoint, "bad-request").Inc()
		writeBadRequest(rw)
		return
	}

	metrics.ActiveRequests.WithLabelValues(endpoint).Inc()
	defer metrics.ActiveRequests.WithLabelValues(endpoint).Dec()

	rw.Header().Set("Content-Type", spec.ContentType)
	rw.Header().Set("Cache-Control", "no-store")
	rw.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	rw.WriteHeader(http.StatusOK)

	// Make sure the response is torn down after (at most) MaxRuntime.
	ctx, cancel := context.WithTimeout(req.Context(), spec.MaxRuntime)
	defer cancel()

	sent, err := stream.Source(ctx, rw, size, nil)
	metrics.BytesTotal.WithLabelValues(endpoint).Add(float64(sent))
	switch {
	case err == nil:
		metrics.RequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	case ctx.Err() != nil || req.Context().Err() != nil || isDisconnect(err):
		// The client went away or the timeout fired. Not an error.
		metrics.RequestsTotal.WithLabelValues(endpoint, "aborted").Inc()
		zap.L().Sugar().Debugw("Download aborted",
			"mid", req.URL.Query().Get(spec.MeasurementIDParameterName),
			"sent", sent,
			"size", size)
	default:
		metrics.RequestsTotal.WithLabelValues(endpoint, "write-error").Inc()
		zap.L().Sugar().Debugw("Download write failed",
			"client", req.RemoteAddr,
			"sent", sent,
			"error", err)
	}
}

// isDisconnect reports whether err is the peer closing the connection while
// a response was being written.
func isDisconnect(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed)
}

func (h *Handler) downloadSize(req *http.Request) (int64, error) {
	raw := req.URL.Query().Get(spec.SizeParameterName)
	if raw == "" {
		return clamp(spec.DefaultDownloadSize, h.cfg.MaxDownloadSize), nil
	}
	size, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if size < 0 {
		return 0, errors.New("negative size")
	}
	return clamp(size, h.cfg.MaxDownloadSize), nil
}

func clamp(size, max int64) int64 {
	if size > max {
		return max
	}
	return size
}

// Upload handles the upload subtest: it counts the request body and replies
// with the number of bytes received.
func (h *Handler) Upload(rw http.ResponseWriter, req *http.Request) {
	const endpoint = "upload"
	if req.Method != http.MethodPost {
		metrics.RequestsTotal.WithLabelValues(endpoint, "bad-method").Inc()
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	metrics.ActiveRequests.WithLabelValues(endpoint).Inc()
	defer metrics.ActiveRequests.WithLabelValues(endpoint).Dec()

	ctx, cancel := context.WithTimeout(req.Context(), spec.MaxRuntime)
	defer cancel()

	var (
		received int64
		err      error
	)
	if h.cfg.BufferUploads {
		var body []byte
		body, err = io.ReadAll(http.MaxBytesReader(rw, req.Body, h.cfg.MaxUploadSize))
		received = stream.CountBody(body)
	} else {
		received, err = stream.CountStream(ctx, req.Body)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.RequestsTotal.WithLabelValues(endpoint, "too-large").Inc()
			rw.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		metrics.RequestsTotal.WithLabelValues(endpoint, "read-error").Inc()
		zap.L().Sugar().Debugw("Upload stream failed",
			"mid", req.URL.Query().Get(spec.MeasurementIDParameterName),
			"client", req.RemoteAddr,
			"error", err)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	metrics.BytesTotal.WithLabelValues(endpoint).Add(float64(received))

	rw.Header().Set("Content-Type", "application/json")
	rw.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(rw).Encode(results.UploadReport{Received: &received}); err != nil {
		metrics.RequestsTotal.WithLabelValues(endpoint, "write-error").Inc()
		return
	}
	metrics.RequestsTotal.WithLabelValues(endpoint, "ok").Inc()
}
