package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"strconv"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"go.uber.org/zap"

	"github.com/newazfarhan/newaz-speed-test/internal/congestion"
	"github.com/newazfarhan/newaz-speed-test/internal/handler"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/spec"
)

var (
	flagEndpoint        = flag.String("listen", ":3000", "Listen address/port for speed test connections")
	flagPort            = flag.Int("port", 0, "Listen port, overrides the port in -listen when set")
	flagMaxDownloadSize = flag.Int64("max-download-size", spec.MaxDownloadSize, "Maximum download size in bytes")
	flagBufferUploads   = flag.Bool("buffer-uploads", false, "Read upload bodies fully before counting them")
	flagMaxUploadSize   = flag.Int64("max-upload-size", spec.MaxUploadSize, "Maximum buffered upload size in bytes")
	flagStaticDir       = flag.String("static-dir", "", "Optional directory served at / for a front-end")
	flagCongestion      = flag.String("cc", "", "TCP congestion control algorithm for accepted connections (kernel default if empty)")
	flagDebug           = flag.Bool("debug", false, "Enable debug logging")
)

func listenAddr() string {
	if *flagPort == 0 {
		return *flagEndpoint
	}
	host, _, err := net.SplitHostPort(*flagEndpoint)
	rtx.Must(err, "Invalid -listen address %q", *flagEndpoint)
	return net.JoinHostPort(host, strconv.Itoa(*flagPort))
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")

	var (
		logger *zap.Logger
		err    error
	)
	if *flagDebug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	rtx.Must(err, "Could not create logger")
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Shutdown(context.Background())

	h := handler.New(handler.Config{
		MaxDownloadSize: *flagMaxDownloadSize,
		BufferUploads:   *flagBufferUploads,
		MaxUploadSize:   *flagMaxUploadSize,
	})
	mux := http.NewServeMux()
	h.Register(mux)
	if *flagStaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(*flagStaticDir)))
	}

	addr := listenAddr()
	zap.L().Sugar().Infow("About to listen for speed test connections",
		"addr", addr,
		"commit", prometheusx.GitShortCommit,
		"buffer-uploads", *flagBufferUploads,
		"cc", *flagCongestion)
	lc := net.ListenConfig{Control: congestion.Control(*flagCongestion)}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	rtx.Must(err, "Could not listen on %s", addr)
	rtx.Must(http.Serve(ln, mux), "Could not start speed test server")
}
