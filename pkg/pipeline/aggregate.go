package pipeline

import (
	"context"
	"strconv"
	"time"

	"github.com/tilinna/clock"

	"github.com/statsdproxy/statsdproxy"
	"github.com/statsdproxy/statsdproxy/pkg/pool"
)

// linePool supplies the scratch buffers flush uses to splice a folded value
// back between a bucketKey's prefix and suffix, the way the teacher pools
// *bytes.Buffer for its own line-construction paths.
var linePool = pool.NewBytesBuffer()

// AggregateMetricsConfig configures the bucket-folding aggregator.
type AggregateMetricsConfig struct {
	AggregateCounters bool
	AggregateGauges   bool
	FlushInterval     time.Duration
	FlushOffset       time.Duration
	MaxMapSize        int // 0 means unbounded
}

// DefaultAggregateMetricsConfig mirrors spec §4.E's defaults.
func DefaultAggregateMetricsConfig() AggregateMetricsConfig {
	return AggregateMetricsConfig{
		AggregateCounters: true,
		AggregateGauges:   true,
		FlushInterval:     1 * time.Second,
	}
}

type aggregateKind int

const (
	aggregateCounter aggregateKind = iota
	aggregateGauge
)

// bucketKey is the line with its value span removed, split around the
// point the folded value gets spliced back in at flush time -- exactly the
// "metric bytes with the value stripped out" shape the original
// implementation's BucketKey uses.
type bucketKey struct {
	prefix string
	suffix string
}

type bucketValue struct {
	kind  aggregateKind
	value float64
}

func (bv *bucketValue) merge(v float64) {
	if bv.kind == aggregateCounter {
		bv.value += v
	} else {
		bv.value = v // gauge: last-write-wins
	}
}

// AggregateMetrics folds counters and gauges into wall-clock-aligned time
// buckets, flushing the sealed previous bucket whenever Poll or Submit
// observes that a boundary has been crossed.
type AggregateMetrics struct {
	config AggregateMetricsConfig
	bucket map[bucketKey]*bucketValue

	lastFlushedBucket time.Time
	haveFlushedOnce   bool

	next Middleware
}

// NewAggregateMetrics builds an AggregateMetrics middleware wrapping next.
func NewAggregateMetrics(config AggregateMetricsConfig, next Middleware) *AggregateMetrics {
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Second
	}
	return &AggregateMetrics{
		config: config,
		bucket: make(map[bucketKey]*bucketValue),
		next:   next,
	}
}

// bucketStart computes floor((t-offset)/interval)*interval+offset.
func (am *AggregateMetrics) bucketStart(t time.Time) time.Time {
	interval := am.config.FlushInterval
	shifted := t.Add(-am.config.FlushOffset)
	floored := shifted.Truncate(interval)
	return floored.Add(am.config.FlushOffset)
}

func (am *AggregateMetrics) Poll(ctx context.Context) error {
	am.checkBoundary(ctx)
	return am.next.Poll(ctx)
}

func (am *AggregateMetrics) checkBoundary(ctx context.Context) {
	now := clock.FromContext(ctx).Now()
	current := am.bucketStart(now)
	if !am.haveFlushedOnce {
		am.lastFlushedBucket = current
		am.haveFlushedOnce = true
		return
	}
	if current.After(am.lastFlushedBucket) {
		am.flush(ctx)
		am.lastFlushedBucket = current
	}
}

func (am *AggregateMetrics) flush(ctx context.Context) {
	for key, val := range am.bucket {
		delete(am.bucket, key)

		buf := linePool.Get()
		buf.WriteString(key.prefix)
		buf.WriteString(formatValue(val))
		buf.WriteString(key.suffix)
		line := make([]byte, buf.Len())
		copy(line, buf.Bytes())
		linePool.Put(buf)

		view := statsdproxy.Parse(line)
		if err := Retry(ctx, logForRetry, "aggregate-metrics", view, am.next.Submit); err != nil {
			return
		}
	}
}

func formatValue(v *bucketValue) string {
	return strconv.FormatFloat(v.value, 'g', -1, 64)
}

func (am *AggregateMetrics) Submit(ctx context.Context, view *statsdproxy.MetricView) (Result, error) {
	am.checkBoundary(ctx)

	if !am.shouldFold(view) {
		return am.next.Submit(ctx, view)
	}

	key, val, ok := am.toBucketEntry(view)
	if !ok {
		return am.next.Submit(ctx, view)
	}

	if am.config.MaxMapSize > 0 {
		if _, exists := am.bucket[key]; !exists && len(am.bucket) >= am.config.MaxMapSize {
			am.flush(ctx)
		}
	}

	if existing, ok := am.bucket[key]; ok {
		existing.merge(val)
	} else {
		am.bucket[key] = &bucketValue{kind: foldKindFor(view), value: val}
	}
	return Forwarded, nil
}

func (am *AggregateMetrics) shouldFold(view *statsdproxy.MetricView) bool {
	if view.Opaque() {
		return false
	}
	mtype, ok := view.Type()
	if !ok {
		return false
	}
	switch mtype {
	case statsdproxy.Counter:
		return am.config.AggregateCounters
	case statsdproxy.Gauge:
		return am.config.AggregateGauges && !isDeltaGauge(view)
	default:
		return false
	}
}

// isDeltaGauge reports whether a gauge value starts with "+" or "-", which by
// statsd convention marks a relative adjustment rather than an absolute set.
// Such gauges are never folded; they pass straight through.
func isDeltaGauge(view *statsdproxy.MetricView) bool {
	v, ok := view.Value()
	if !ok || len(v) == 0 {
		return false
	}
	return v[0] == '+' || v[0] == '-'
}

func foldKindFor(view *statsdproxy.MetricView) aggregateKind {
	mtype, _ := view.Type()
	if mtype == statsdproxy.Gauge {
		return aggregateGauge
	}
	return aggregateCounter
}

// toBucketEntry computes the bucket key (line with the value span removed)
// and the scaled value to fold in. The sample rate is stripped from the key
// before it's built, so "x:2|c|@0.5" folds into the same bucket as "x:1|c"
// rather than starting a separate one, and the flushed line never carries
// a "|@" suffix (spec §4.E).
func (am *AggregateMetrics) toBucketEntry(view *statsdproxy.MetricView) (bucketKey, float64, bool) {
	val, ok := view.ValueFloat()
	if !ok {
		return bucketKey{}, 0, false
	}

	mtype, _ := view.Type()
	if mtype == statsdproxy.Counter {
		if rate, ok := view.SampleRate(); ok && rate > 0 {
			val /= rate
		}
	}

	keyView := view
	if _, ok := view.SampleRate(); ok {
		keyView = view.Clone()
		keyView.RemoveSampleRate()
	}

	raw := keyView.RawBytes()
	valStart, valEnd, ok := valueSpan(keyView)
	if !ok {
		return bucketKey{}, 0, false
	}

	key := bucketKey{
		prefix: string(raw[:valStart]),
		suffix: string(raw[valEnd:]),
	}
	return key, val, true
}

// valueSpan re-derives the value's byte offsets without exposing them from
// MetricView -- it reparses just enough structure (name, then the first
// "|") to find the same span Parse located.
func valueSpan(view *statsdproxy.MetricView) (int, int, bool) {
	name, ok := view.Name()
	if !ok {
		return 0, 0, false
	}
	valStart := len(name) + 1 // skip the name and the ":"
	value, ok := view.Value()
	if !ok {
		return 0, 0, false
	}
	return valStart, valStart + len(value), true
}

var logForRetry = newPipelineLogger()
