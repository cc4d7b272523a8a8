package emitter

import (
	"go.uber.org/zap"

	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/results"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/spec"
)

// Emitter receives the events of a measurement session. OnError may be
// called concurrently from several workers.
type Emitter interface {
	OnStart(spec.SubtestKind)
	OnLatency(ms float64)
	OnProgress(spec.SubtestKind, results.Sample)
	OnError(spec.SubtestKind, error)
	OnComplete(spec.SubtestKind, *results.Result)
}

type LogEmitter struct{}

func (e *LogEmitter) OnStart(kind spec.SubtestKind) {
	zap.L().Sugar().Infof("%s: starting", kind)
}

func (e *LogEmitter) OnLatency(ms float64) {
	zap.L().Sugar().Infof("latency: %.1f ms", ms)
}

func (e *LogEmitter) OnProgress(kind spec.SubtestKind, s results.Sample) {
	zap.L().Sugar().Debugf("%s: transferred %d bytes, %.1fs, %.2f Mb/s",
		kind, s.Bytes, s.Elapsed.Seconds(), s.Mbps)
}

func (e *LogEmitter) OnError(kind spec.SubtestKind, err error) {
	zap.L().Sugar().Warnf("%s: error (%v)", kind, err)
}

func (e *LogEmitter) OnComplete(kind spec.SubtestKind, r *results.Result) {
	zap.L().Sugar().Infof("%s: %.2f Mb/s (%d bytes in %.1fs)", kind, r.Mbps, r.Bytes, r.Seconds)
}

// Multi forwards every event to all of its emitters, in order.
type Multi []Emitter

func (m Multi) OnStart(kind spec.SubtestKind) {
	for _, e := range m {
		e.OnStart(kind)
	}
}

func (m Multi) OnLatency(ms float64) {
	for _, e := range m {
		e.OnLatency(ms)
	}
}

func (m Multi) OnProgress(kind spec.SubtestKind, s results.Sample) {
	for _, e := range m {
		e.OnProgress(kind, s)
	}
}

func (m Multi) OnError(kind spec.SubtestKind, err error) {
	for _, e := range m {
		e.OnError(kind, err)
	}
}

func (m Multi) OnComplete(kind spec.SubtestKind, r *results.Result) {
	for _, e := range m {
		e.OnComplete(kind, r)
	}
}
