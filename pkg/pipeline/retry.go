package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/statsdproxy/statsdproxy"
	"github.com/statsdproxy/statsdproxy/pkg/util"
)

// overloadBackoff is the factory spec §4.F pins: exponential, starting at
// 1ms, capped at 100ms, giving up after 10 attempts.
var overloadBackoff = util.NewBackoffFactory(2.0, 1*time.Second, 1*time.Millisecond, 10)

const backoffCap = 100 * time.Millisecond

// Retry drives submit until it returns Forwarded, the backoff policy gives
// up, or ctx is canceled. On exhaustion the metric is dropped and a warning
// is logged; this is never surfaced as an error.
func Retry(ctx context.Context, log logrus.FieldLogger, name string, view *statsdproxy.MetricView, submit func(context.Context, *statsdproxy.MetricView) (Result, error)) error {
	bo := overloadBackoff()
	for {
		res, err := submit(ctx, view)
		if err != nil {
			return err
		}
		if res == Forwarded {
			return nil
		}

		d := bo.NextBackOff()
		if d == backoff.Stop {
			if overloadWarnLimiter.Allow() {
				log.WithField("middleware", name).Warn("overload: dropping metric after exhausting retries")
			}
			return nil
		}
		if d > backoffCap {
			d = backoffCap
		}

		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}
