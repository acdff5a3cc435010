// Package pipeline holds the middleware contract and the built-in
// middlewares (deny-tag, allow-tag, add-tag, cardinality-limit,
// aggregate-metrics) that process one DogStatsD line at a time.
package pipeline

import (
	"context"

	"github.com/statsdproxy/statsdproxy"
)

// Result is the outcome of a Submit call.
type Result int

const (
	// Forwarded means the caller may consider the metric accepted, whether
	// it was handed downstream, folded into an aggregation bucket, or
	// deliberately dropped by a filtering middleware.
	Forwarded Result = iota
	// Overloaded means the middleware's internal buffers are full and the
	// caller should retry with backoff (see Retry).
	Overloaded
)

// Middleware is a single stage in the processing chain. Implementations
// hold a handle to exactly one downstream Middleware; the terminal stage is
// a Sink.
type Middleware interface {
	// Poll is invoked once per datagram-handling cycle and on every idle
	// tick. It must be cheap. Implementations that buffer (the aggregator)
	// use it to check whether a flush boundary has been crossed.
	Poll(ctx context.Context) error

	// Submit processes one metric view. Forwarded means the caller should
	// move on; Overloaded means the caller should retry after a backoff
	// delay (see Retry). view may be mutated in place.
	Submit(ctx context.Context, view *statsdproxy.MetricView) (Result, error)
}

// Sink is the byte-level destination the terminal middleware writes to.
// A *net.UDPConn already satisfies this.
type Sink interface {
	Write(p []byte) (int, error)
}
