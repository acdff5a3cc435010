package stats

import (
	"sync"
	"time"

	"github.com/statsdproxy/statsdproxy"
)

// Statser is the interface every pipeline component uses to report its own
// operational metrics (lines forwarded, lines dropped, buckets flushed,
// cardinality rejections, and so on). It is deliberately small: there is no
// wire format here, just enough surface for a LoggingStatser or a
// NullStatser to implement.
type Statser interface {
	RegisterFlush() (<-chan time.Duration, func())
	NotifyFlush(d time.Duration)

	Gauge(name string, value float64, tags statsdproxy.Tags)
	Count(name string, amount float64, tags statsdproxy.Tags)
	Increment(name string, tags statsdproxy.Tags)
	TimingMS(name string, ms float64, tags statsdproxy.Tags)
	TimingDuration(name string, d time.Duration, tags statsdproxy.Tags)
	NewTimer(name string, tags statsdproxy.Tags) *Timer
	WithTags(tags statsdproxy.Tags) Statser
}

type flushNotifier struct {
	lock         sync.RWMutex
	flushTargets []chan<- time.Duration
}

// RegisterFlush registers a channel which will receive a notification after
// every flush. If the channel blocks, the notification is silently dropped.
func (fn *flushNotifier) RegisterFlush() (<-chan time.Duration, func()) {
	f := make(chan time.Duration, 1)
	fn.lock.Lock()
	defer fn.lock.Unlock()
	fn.flushTargets = append(fn.flushTargets, f)
	return f, func() {
		fn.lock.Lock()
		defer fn.lock.Unlock()
		targets := fn.flushTargets[:0]
		for _, target := range fn.flushTargets {
			if target != f {
				targets = append(targets, target)
			}
		}
		fn.flushTargets = targets
		close(f)
	}
}

// NotifyFlush notifies any registered channels that a flush completed.
// Non-blocking.
func (fn *flushNotifier) NotifyFlush(d time.Duration) {
	fn.lock.RLock()
	defer fn.lock.RUnlock()
	for _, hook := range fn.flushTargets {
		select {
		case hook <- d:
		default:
		}
	}
}

// NullStatser discards every metric. It is the default when no Statser has
// been attached to a context.
type NullStatser struct {
	flushNotifier
}

func (*NullStatser) Gauge(string, float64, statsdproxy.Tags)          {}
func (*NullStatser) Count(string, float64, statsdproxy.Tags)          {}
func (*NullStatser) Increment(string, statsdproxy.Tags)               {}
func (*NullStatser) TimingMS(string, float64, statsdproxy.Tags)       {}
func (*NullStatser) TimingDuration(string, time.Duration, statsdproxy.Tags) {}
func (ns *NullStatser) NewTimer(name string, tags statsdproxy.Tags) *Timer {
	return newTimer(ns, name, tags)
}
func (ns *NullStatser) WithTags(statsdproxy.Tags) Statser { return ns }

// TaggedStatser wraps another Statser, adding a fixed set of tags to every
// metric sent through it.
type TaggedStatser struct {
	next Statser
	tags statsdproxy.Tags
}

// NewTaggedStatser returns a Statser which injects tags into every call before
// delegating to next.
func NewTaggedStatser(next Statser, tags statsdproxy.Tags) Statser {
	return &TaggedStatser{next: next, tags: tags}
}

func (ts *TaggedStatser) RegisterFlush() (<-chan time.Duration, func()) { return ts.next.RegisterFlush() }
func (ts *TaggedStatser) NotifyFlush(d time.Duration)                  { ts.next.NotifyFlush(d) }

func (ts *TaggedStatser) Gauge(name string, value float64, tags statsdproxy.Tags) {
	ts.next.Gauge(name, value, append(append(statsdproxy.Tags{}, ts.tags...), tags...))
}

func (ts *TaggedStatser) Count(name string, amount float64, tags statsdproxy.Tags) {
	ts.next.Count(name, amount, append(append(statsdproxy.Tags{}, ts.tags...), tags...))
}

func (ts *TaggedStatser) Increment(name string, tags statsdproxy.Tags) {
	ts.Count(name, 1, tags)
}

func (ts *TaggedStatser) TimingMS(name string, ms float64, tags statsdproxy.Tags) {
	ts.next.TimingMS(name, ms, append(append(statsdproxy.Tags{}, ts.tags...), tags...))
}

func (ts *TaggedStatser) TimingDuration(name string, d time.Duration, tags statsdproxy.Tags) {
	ts.TimingMS(name, float64(d)/float64(time.Millisecond), tags)
}

func (ts *TaggedStatser) NewTimer(name string, tags statsdproxy.Tags) *Timer {
	return newTimer(ts, name, tags)
}

func (ts *TaggedStatser) WithTags(tags statsdproxy.Tags) Statser {
	return NewTaggedStatser(ts, tags)
}

// Timer is a small stopwatch helper returned by Statser.NewTimer: it
// captures a start time and reports elapsed duration as a timing metric on
// Send.
type Timer struct {
	statser Statser
	name    string
	tags    statsdproxy.Tags
	start   time.Time
}

func newTimer(statser Statser, name string, tags statsdproxy.Tags) *Timer {
	return &Timer{statser: statser, name: name, tags: tags, start: time.Now()}
}

// Send reports the elapsed time since the timer was created.
func (t *Timer) Send() {
	t.statser.TimingDuration(t.name, time.Since(t.start), t.tags)
}
