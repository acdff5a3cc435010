package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statsdproxy/statsdproxy"
)

func TestAggregateMetricsFoldsCountersWithinBucket(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	am := NewAggregateMetrics(AggregateMetricsConfig{
		AggregateCounters: true,
		FlushInterval:     time.Second,
	}, next)

	t0 := time.Unix(1000, 0)
	for _, v := range []string{"1", "2", "3"} {
		view := statsdproxy.Parse([]byte("requests:" + v + "|c"))
		res, err := am.Submit(ctxAt(t0), view)
		require.NoError(t, err)
		assert.Equal(t, Forwarded, res)
	}
	// Nothing flushed yet: still inside the first observed bucket.
	assert.Empty(t, next.lines)

	// Cross into the next bucket.
	require.NoError(t, am.Poll(ctxAt(t0.Add(time.Second))))
	require.Len(t, next.lines, 1)
	assert.Equal(t, "requests:6|c", next.lines[0])
}

func TestAggregateMetricsGaugeLastWriteWins(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	am := NewAggregateMetrics(AggregateMetricsConfig{
		AggregateGauges: true,
		FlushInterval:   time.Second,
	}, next)

	t0 := time.Unix(2000, 0)
	for _, v := range []string{"10", "20", "30"} {
		_, err := am.Submit(ctxAt(t0), statsdproxy.Parse([]byte("temp:"+v+"|g")))
		require.NoError(t, err)
	}
	require.NoError(t, am.Poll(ctxAt(t0.Add(time.Second))))
	require.Len(t, next.lines, 1)
	assert.Equal(t, "temp:30|g", next.lines[0])
}

func TestAggregateMetricsDeltaGaugeNotFolded(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	am := NewAggregateMetrics(AggregateMetricsConfig{
		AggregateGauges: true,
		FlushInterval:   time.Second,
	}, next)

	t0 := time.Unix(3000, 0)
	_, err := am.Submit(ctxAt(t0), statsdproxy.Parse([]byte("temp:+5|g")))
	require.NoError(t, err)
	require.Len(t, next.lines, 1, "a delta gauge must pass straight through, not enter the bucket map")
	assert.Equal(t, "temp:+5|g", next.lines[0])
}

func TestAggregateMetricsCounterSampleRateScaling(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	am := NewAggregateMetrics(AggregateMetricsConfig{
		AggregateCounters: true,
		FlushInterval:     time.Second,
	}, next)

	t0 := time.Unix(4000, 0)
	_, err := am.Submit(ctxAt(t0), statsdproxy.Parse([]byte("requests:1|c|@0.1")))
	require.NoError(t, err)
	require.NoError(t, am.Poll(ctxAt(t0.Add(time.Second))))
	require.Len(t, next.lines, 1)
	assert.Equal(t, "requests:10|c", next.lines[0], "flushed counters never carry a sample rate")
}

func TestAggregateMetricsFoldsAcrossSampleRates(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	am := NewAggregateMetrics(AggregateMetricsConfig{
		AggregateCounters: true,
		FlushInterval:     time.Second,
	}, next)

	t0 := time.Unix(4500, 0)
	for _, line := range []string{"x:1|c", "x:2|c|@0.5", "x:3|c"} {
		_, err := am.Submit(ctxAt(t0), statsdproxy.Parse([]byte(line)))
		require.NoError(t, err)
	}
	require.NoError(t, am.Poll(ctxAt(t0.Add(time.Second))))
	require.Len(t, next.lines, 1, "same series at different sample rates must fold into one bucket")
	assert.Equal(t, "x:8|c", next.lines[0])
}

func TestAggregateMetricsDisabledTypePassesThrough(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	am := NewAggregateMetrics(AggregateMetricsConfig{
		AggregateCounters: false,
		AggregateGauges:   true,
		FlushInterval:     time.Second,
	}, next)

	t0 := time.Unix(5000, 0)
	_, err := am.Submit(ctxAt(t0), statsdproxy.Parse([]byte("requests:1|c")))
	require.NoError(t, err)
	require.Len(t, next.lines, 1)
	assert.Equal(t, "requests:1|c", next.lines[0])
}

func TestAggregateMetricsMaxMapSizeForcesEarlyFlush(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	am := NewAggregateMetrics(AggregateMetricsConfig{
		AggregateCounters: true,
		FlushInterval:     time.Hour,
		MaxMapSize:        1,
	}, next)

	t0 := time.Unix(6000, 0)
	_, err := am.Submit(ctxAt(t0), statsdproxy.Parse([]byte("a:1|c")))
	require.NoError(t, err)
	assert.Empty(t, next.lines)

	_, err = am.Submit(ctxAt(t0), statsdproxy.Parse([]byte("b:1|c")))
	require.NoError(t, err)
	require.Len(t, next.lines, 1, "the second distinct bucket key should have forced a flush of the first")
	assert.Equal(t, "a:1|c", next.lines[0])
}

func TestAggregateMetricsNonCounterGaugePassesThrough(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	am := NewAggregateMetrics(DefaultAggregateMetricsConfig(), next)

	t0 := time.Unix(7000, 0)
	_, err := am.Submit(ctxAt(t0), statsdproxy.Parse([]byte("latency:12|ms")))
	require.NoError(t, err)
	require.Len(t, next.lines, 1)
	assert.Equal(t, "latency:12|ms", next.lines[0])
}

func TestAggregateMetricsPollFlushesOnBoundary(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	am := NewAggregateMetrics(AggregateMetricsConfig{
		AggregateCounters: true,
		FlushInterval:     time.Second,
	}, next)

	t0 := time.Unix(8000, 0)
	_, err := am.Submit(ctxAt(t0), statsdproxy.Parse([]byte("a:1|c")))
	require.NoError(t, err)

	require.NoError(t, am.Poll(ctxAt(t0.Add(time.Second))))
	require.Len(t, next.lines, 1)
	assert.Equal(t, "a:1|c", next.lines[0])
}
