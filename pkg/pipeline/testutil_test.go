package pipeline

import (
	"context"

	"github.com/statsdproxy/statsdproxy"
)

// recorder is a terminal Middleware that records every view it sees and
// always reports Forwarded. Used across the package's tests in place of a
// real Sink.
type recorder struct {
	lines    []string
	pollErr  error
	polls    int
	result   Result
	submitOn []string // if non-empty, only these raw lines (by exact match) get `result`; everything else is Forwarded
}

func (r *recorder) Poll(ctx context.Context) error {
	r.polls++
	return r.pollErr
}

func (r *recorder) Submit(ctx context.Context, view *statsdproxy.MetricView) (Result, error) {
	r.lines = append(r.lines, string(view.RawBytes()))
	if len(r.submitOn) > 0 {
		line := string(view.RawBytes())
		for _, l := range r.submitOn {
			if l == line {
				return r.result, nil
			}
		}
		return Forwarded, nil
	}
	return r.result, nil
}
