package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/latency"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/spec"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/transfer"
)

type DialerProtocol string

const (
	HTTPS DialerProtocol = "https"
	HTTP  DialerProtocol = "http"
)

const (
	DefaultProtocol         = HTTP
	DefaultTimeout          = 30 * time.Second
	DefaultDownloadDuration = 10 * time.Second
	DefaultUploadDuration   = 10 * time.Second
	DefaultDownloadStreams  = 3
	DefaultUploadStreams    = 1
	DefaultDownloadSize     = 4_000_000
	DefaultUploadSize       = 500_000
	DefaultPhasePause       = 300 * time.Millisecond
	DefaultSampleInterval   = 300 * time.Millisecond
)

// Duration accepts either a Go duration string ("10s") or a number of
// seconds in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	switch value.Tag {
	case "!!int", "!!float":
		var secs float64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	default:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		if raw == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
}

type ClientConfig struct {
	// The protocol to use (http/https).
	Protocol DialerProtocol

	// The per-request Timeout. It bounds a single HTTP request, not a phase.
	Timeout time.Duration

	// LatencyRepeats is the number of latency round trips.
	LatencyRepeats int

	// DownloadDuration and UploadDuration are the wall-clock budgets of the
	// two transfer phases.
	DownloadDuration time.Duration
	UploadDuration   time.Duration

	// DownloadStreams and UploadStreams are the number of concurrent workers.
	DownloadStreams int
	UploadStreams   int

	// DownloadSize is the size requested by each download attempt.
	DownloadSize int64
	// UploadSize is the body size of each upload attempt.
	UploadSize int

	// PhasePause is the delay between the download and the upload phase.
	PhasePause time.Duration

	// SampleInterval is how often live progress is sampled.
	SampleInterval time.Duration
}

// fileConfig mirrors ClientConfig in the YAML file. Missing keys keep the
// current value.
type fileConfig struct {
	Protocol         *string   `yaml:"protocol"`
	Timeout          *Duration `yaml:"timeout"`
	LatencyRepeats   *int      `yaml:"latency_repeats"`
	DownloadDuration *Duration `yaml:"download_duration"`
	UploadDuration   *Duration `yaml:"upload_duration"`
	DownloadStreams  *int      `yaml:"download_streams"`
	UploadStreams    *int      `yaml:"upload_streams"`
	DownloadSize     *int64    `yaml:"download_size"`
	UploadSize       *int      `yaml:"upload_size"`
	PhasePause       *Duration `yaml:"phase_pause"`
	SampleInterval   *Duration `yaml:"sample_interval"`
}

func New(proto DialerProtocol, timeout, download, upload time.Duration) *ClientConfig {
	return &ClientConfig{
		Protocol:         proto,
		Timeout:          timeout,
		LatencyRepeats:   latency.DefaultRepeats,
		DownloadDuration: download,
		UploadDuration:   upload,
		DownloadStreams:  DefaultDownloadStreams,
		UploadStreams:    DefaultUploadStreams,
		DownloadSize:     DefaultDownloadSize,
		UploadSize:       DefaultUploadSize,
		PhasePause:       DefaultPhasePause,
		SampleInterval:   DefaultSampleInterval,
	}
}

func NewDefault() *ClientConfig {
	return New(DefaultProtocol, DefaultTimeout, DefaultDownloadDuration, DefaultUploadDuration)
}

// Load returns the defaults overridden by the YAML file at path.
func Load(path string) (*ClientConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := NewDefault()
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.apply(fc)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ClientConfig) apply(fc fileConfig) {
	if fc.Protocol != nil {
		c.Protocol = DialerProtocol(*fc.Protocol)
	}
	if fc.Timeout != nil {
		c.Timeout = time.Duration(*fc.Timeout)
	}
	if fc.LatencyRepeats != nil {
		c.LatencyRepeats = *fc.LatencyRepeats
	}
	if fc.DownloadDuration != nil {
		c.DownloadDuration = time.Duration(*fc.DownloadDuration)
	}
	if fc.UploadDuration != nil {
		c.UploadDuration = time.Duration(*fc.UploadDuration)
	}
	if fc.DownloadStreams != nil {
		c.DownloadStreams = *fc.DownloadStreams
	}
	if fc.UploadStreams != nil {
		c.UploadStreams = *fc.UploadStreams
	}
	if fc.DownloadSize != nil {
		c.DownloadSize = *fc.DownloadSize
	}
	if fc.UploadSize != nil {
		c.UploadSize = *fc.UploadSize
	}
	if fc.PhasePause != nil {
		c.PhasePause = time.Duration(*fc.PhasePause)
	}
	if fc.SampleInterval != nil {
		c.SampleInterval = time.Duration(*fc.SampleInterval)
	}
}

// Validate rejects parameters that would make a measurement meaningless.
// Every error wraps transfer.ErrInvalidConfig.
func (c *ClientConfig) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", transfer.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	switch {
	case c.Protocol != HTTP && c.Protocol != HTTPS:
		return invalid("protocol must be http or https, got %q", c.Protocol)
	case c.Timeout < 0:
		return invalid("timeout must be >= 0")
	case c.LatencyRepeats < 1:
		return invalid("latency repeats must be >= 1")
	case c.DownloadDuration < 0 || c.UploadDuration < 0:
		return invalid("durations must be >= 0")
	case c.DownloadStreams < 1 || c.UploadStreams < 1:
		return invalid("streams must be >= 1")
	case c.DownloadSize < 1 || c.DownloadSize > spec.MaxDownloadSize:
		return invalid("download size must be in [1, %d]", spec.MaxDownloadSize)
	case c.UploadSize < 1 || c.UploadSize > spec.MaxUploadSize:
		return invalid("upload size must be in [1, %d]", spec.MaxUploadSize)
	case c.PhasePause < 0:
		return invalid("phase pause must be >= 0")
	case c.SampleInterval <= 0:
		return invalid("sample interval must be > 0")
	}
	return nil
}
