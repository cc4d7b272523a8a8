package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/transfer"
)

func TestNewDefaultIsValid(t *testing.T) {
	cfg := NewDefault()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 6, cfg.LatencyRepeats)
	assert.Equal(t, 3, cfg.DownloadStreams)
	assert.Equal(t, int64(4_000_000), cfg.DownloadSize)
	assert.Equal(t, 500_000, cfg.UploadSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ClientConfig)
	}{
		{"bad protocol", func(c *ClientConfig) { c.Protocol = "ftp" }},
		{"no repeats", func(c *ClientConfig) { c.LatencyRepeats = 0 }},
		{"negative duration", func(c *ClientConfig) { c.UploadDuration = -time.Second }},
		{"no streams", func(c *ClientConfig) { c.DownloadStreams = 0 }},
		{"download too large", func(c *ClientConfig) { c.DownloadSize = 1 << 40 }},
		{"empty upload", func(c *ClientConfig) { c.UploadSize = 0 }},
		{"zero sample interval", func(c *ClientConfig) { c.SampleInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), transfer.ErrInvalidConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	content := `
protocol: https
download_duration: 5s
upload_duration: 2.5
download_streams: 4
upload_size: 1000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, HTTPS, cfg.Protocol)
	assert.Equal(t, 5*time.Second, cfg.DownloadDuration)
	assert.Equal(t, 2500*time.Millisecond, cfg.UploadDuration)
	assert.Equal(t, 4, cfg.DownloadStreams)
	assert.Equal(t, 1000, cfg.UploadSize)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultPhasePause, cfg.PhasePause)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("upload_streams: 0\n"), 0o600))
	_, err := Load(path)
	assert.ErrorIs(t, err, transfer.ErrInvalidConfig)

	require.NoError(t, os.WriteFile(path, []byte("timeout: [1, 2]\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}
