package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"
	"go.uber.org/zap"

	"github.com/newazfarhan/newaz-speed-test/client"
	"github.com/newazfarhan/newaz-speed-test/client/config"
	"github.com/newazfarhan/newaz-speed-test/client/emitter"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/results"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/spec"
)

var (
	flagServer     = flag.String("server", "localhost:3000", "Server address")
	flagConfig     = flag.String("config", "", "Optional YAML configuration file")
	flagProtocol   = flag.String("protocol", "", "Protocol to use (http/https)")
	flagDownload   = flag.Duration("download", 0, "Duration of the download phase")
	flagUpload     = flag.Duration("upload", 0, "Duration of the upload phase")
	flagStreams    = flag.Int("streams", 0, "Number of download streams")
	flagUpStreams  = flag.Int("upload-streams", 0, "Number of upload streams")
	flagUploadSize = flag.Int("upload-size", 0, "Size of each upload request in bytes")
	flagFeed       = flag.String("feed", "", "Listen address for the websocket live feed (disabled if empty)")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
)

// printEmitter prints live progress lines and results to stdout.
type printEmitter struct{}

func (printEmitter) OnStart(kind spec.SubtestKind) {}

func (printEmitter) OnLatency(ms float64) {
	fmt.Printf("Latency:  %.1f ms\n", ms)
}

func (printEmitter) OnProgress(kind spec.SubtestKind, s results.Sample) {
	fmt.Printf("\r%-8s  transferred: %d bytes - %.1fs - %.2f Mbps\033[K",
		kind, s.Bytes, s.Elapsed.Seconds(), s.Mbps)
}

func (printEmitter) OnError(kind spec.SubtestKind, err error) {}

func (printEmitter) OnComplete(kind spec.SubtestKind, r *results.Result) {
	fmt.Printf("\r%-8s  %.2f Mbps (transferred: %d bytes - %.1fs)\033[K\n",
		kind, r.Mbps, r.Bytes, r.Seconds)
}

func loadConfig() *config.ClientConfig {
	cfg := config.NewDefault()
	if *flagConfig != "" {
		var err error
		cfg, err = config.Load(*flagConfig)
		rtx.Must(err, "Could not load config")
	}
	if *flagProtocol != "" {
		cfg.Protocol = config.DialerProtocol(*flagProtocol)
	}
	if *flagDownload != 0 {
		cfg.DownloadDuration = *flagDownload
	}
	if *flagUpload != 0 {
		cfg.UploadDuration = *flagUpload
	}
	if *flagStreams != 0 {
		cfg.DownloadStreams = *flagStreams
	}
	if *flagUpStreams != 0 {
		cfg.UploadStreams = *flagUpStreams
	}
	if *flagUploadSize != 0 {
		cfg.UploadSize = *flagUploadSize
	}
	rtx.Must(cfg.Validate(), "Invalid configuration")
	return cfg
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")
	os.Exit(run())
}

// run sets up logging and the emitters, runs one session and returns the
// process exit code. Deferred cleanups have run by the time it returns.
func run() int {
	logCfg := zap.NewProductionConfig()
	if !*flagDebug {
		logCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := logCfg.Build()
	rtx.Must(err, "Could not create logger")
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg := loadConfig()
	c := client.NewWithConfig(*flagServer, cfg)
	emitters := emitter.Multi{&emitter.LogEmitter{}, printEmitter{}}

	if *flagFeed != "" {
		feed := emitter.NewFeed()
		emitters = append(emitters, feed)
		srv := &http.Server{Addr: *flagFeed, Handler: feed}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zap.L().Sugar().Errorw("Live feed stopped", "error", err)
			}
		}()
		defer srv.Close()
	}
	c.SetEmitter(emitters)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return measure(ctx, c, os.Stderr)
}

// measure runs one session with c and returns 0 on success, 1 on failure.
func measure(ctx context.Context, c *client.Client, stderr io.Writer) int {
	start := time.Now()
	session, err := c.Run(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "\nError:", err)
		return 1
	}
	zap.L().Sugar().Infow("Measurement complete",
		"mid", session.MeasurementID,
		"elapsed", time.Since(start))
	return 0
}
