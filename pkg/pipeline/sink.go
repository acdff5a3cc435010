package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/statsdproxy/statsdproxy"
)

// UpstreamSink is the terminal middleware: it writes each metric's raw
// bytes to the configured upstream sink and stops the chain. Poll is a
// no-op -- there is nothing downstream to drive.
type UpstreamSink struct {
	sink Sink
	log  logrus.FieldLogger
}

// NewUpstreamSink builds a terminal middleware writing to sink.
func NewUpstreamSink(sink Sink) *UpstreamSink {
	return &UpstreamSink{sink: sink, log: newPipelineLogger()}
}

func (s *UpstreamSink) Poll(ctx context.Context) error {
	return nil
}

// Submit writes the metric's current bytes to the upstream. A send error
// (ECONNREFUSED and friends) is a transient per-datagram I/O fault per the
// error policy: log and drop, never propagate or block the chain.
func (s *UpstreamSink) Submit(ctx context.Context, view *statsdproxy.MetricView) (Result, error) {
	if _, err := s.sink.Write(view.RawBytes()); err != nil {
		if overloadWarnLimiter.Allow() {
			s.log.WithError(err).Warn("upstream send failed, dropping datagram")
		}
	}
	return Forwarded, nil
}
