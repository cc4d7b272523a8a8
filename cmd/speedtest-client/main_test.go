package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/newazfarhan/newaz-speed-test/client"
	"github.com/newazfarhan/newaz-speed-test/client/config"
	"github.com/newazfarhan/newaz-speed-test/internal/handler"
)

func shortConfig() *config.ClientConfig {
	cfg := config.New(config.HTTP, 5*time.Second, 200*time.Millisecond, 200*time.Millisecond)
	cfg.PhasePause = 0
	cfg.UploadSize = 10_000
	return cfg
}

func TestMeasureFailureReturnsExitCode(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	var stderr bytes.Buffer
	code := measure(context.Background(), client.NewWithConfig(endpoint, shortConfig()), &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Error:")
}

func TestMeasureSuccess(t *testing.T) {
	mux := http.NewServeMux()
	handler.New(handler.Config{}).Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var stderr bytes.Buffer
	c := client.NewWithConfig(strings.TrimPrefix(srv.URL, "http://"), shortConfig())
	c.SetEmitter(printEmitter{})
	assert.Equal(t, 0, measure(context.Background(), c, &stderr))
	assert.Empty(t, stderr.String())
}
