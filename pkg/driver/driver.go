// Package driver runs the UDP receive loop: one blocking read at a time,
// split into lines, driven through a pipeline.Middleware chain with an
// idle tick when no datagram arrives for a while. Modeled on the teacher's
// pkg/statsd receiver loop, minus the Handler/lexer split this system
// doesn't need.
package driver

import (
	"bytes"
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
	"golang.org/x/time/rate"

	"github.com/statsdproxy/statsdproxy"
	"github.com/statsdproxy/statsdproxy/pkg/pipeline"
	"github.com/statsdproxy/statsdproxy/pkg/stats"
)

// badLineLogLimiter rate-limits the "unparseable line" debug log so a
// sender emitting a steady stream of malformed lines can't flood the log.
var badLineLogLimiter = rate.NewLimiter(rate.Every(time.Second), 1)

// packetSizeUDP is the largest possible UDP datagram; matches the
// teacher's receiver buffer sizing rationale.
const packetSizeUDP = 0xffff

// DefaultIdleTick is the idle-tick interval spec §9 recommends
// (flush_interval/2, with the spec's example 1s flush_interval).
const DefaultIdleTick = 500 * time.Millisecond

// finalFlushMargin is added to the observed clock before the shutdown Poll,
// well past any realistic flush_interval, so an in-progress aggregation
// bucket always crosses its boundary and drains instead of being dropped.
const finalFlushMargin = 24 * time.Hour

// Driver owns the receive socket and drives chain's Poll/Submit contract.
type Driver struct {
	conn     net.PacketConn
	chain    pipeline.Middleware
	idleTick time.Duration
	log      logrus.FieldLogger
	statser  stats.Statser
}

// New builds a Driver reading from conn and feeding chain. statser is used
// to self-report packet and bad-line counts; pass stats.FromContext(ctx)
// if no dedicated statser is configured.
func New(conn net.PacketConn, chain pipeline.Middleware, idleTick time.Duration, statser stats.Statser) *Driver {
	if idleTick <= 0 {
		idleTick = DefaultIdleTick
	}
	if statser == nil {
		statser = &stats.NullStatser{}
	}
	return &Driver{
		conn:     conn,
		chain:    chain,
		idleTick: idleTick,
		log:      logrus.StandardLogger(),
		statser:  statser,
	}
}

// Run blocks, reading datagrams and driving the chain, until ctx is
// canceled or the socket returns an error that is not a timeout. On exit it
// calls Poll once, then issues one final Poll against a clock pushed
// finalFlushMargin into the future, so any in-progress aggregation bucket
// crosses its boundary and flushes before returning (spec §5's synthetic
// shutdown flush).
func (d *Driver) Run(ctx context.Context) error {
	defer func() {
		if err := d.chain.Poll(ctx); err != nil {
			d.log.WithError(err).Warn("poll during shutdown failed")
		}
		flushAt := clock.FromContext(ctx).Now().Add(finalFlushMargin)
		flushCtx := clock.Context(ctx, clock.NewMock(flushAt))
		if err := d.chain.Poll(flushCtx); err != nil {
			d.log.WithError(err).Warn("final poll during shutdown failed")
		}
	}()

	buf := make([]byte, packetSizeUDP)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := d.conn.SetReadDeadline(time.Now().Add(d.idleTick)); err != nil {
			return statsdproxy.NewError(statsdproxy.ErrIOFatal, err)
		}

		n, _, err := d.conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				if pollErr := d.chain.Poll(ctx); pollErr != nil {
					return pollErr
				}
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return statsdproxy.NewError(statsdproxy.ErrIOFatal, err)
		}

		if err := d.handleDatagram(ctx, buf[:n]); err != nil {
			return err
		}
	}
}

func (d *Driver) handleDatagram(ctx context.Context, msg []byte) error {
	d.statser.Increment("packets_received", nil)
	for _, line := range bytes.Split(msg, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		if err := d.chain.Poll(ctx); err != nil {
			return err
		}
		view := statsdproxy.Parse(line)
		if view.Opaque() {
			d.statser.Increment("bad_lines", nil)
			if badLineLogLimiter.Allow() {
				d.log.WithField("line", string(line)).Debug("could not parse line, forwarding opaque")
			}
		}
		if err := pipeline.Retry(ctx, d.log, "driver", view, d.chain.Submit); err != nil {
			return err
		}
	}
	return nil
}
