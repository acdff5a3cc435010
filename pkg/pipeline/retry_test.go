package pipeline

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statsdproxy/statsdproxy"
)

func TestRetrySucceedsImmediatelyWhenForwarded(t *testing.T) {
	t.Parallel()

	calls := 0
	submit := func(ctx context.Context, view *statsdproxy.MetricView) (Result, error) {
		calls++
		return Forwarded, nil
	}

	view := statsdproxy.Parse([]byte("a:1|c"))
	err := Retry(context.Background(), logrus.StandardLogger(), "test", view, submit)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryEventuallySucceedsAfterOverload(t *testing.T) {
	t.Parallel()

	calls := 0
	submit := func(ctx context.Context, view *statsdproxy.MetricView) (Result, error) {
		calls++
		if calls < 3 {
			return Overloaded, nil
		}
		return Forwarded, nil
	}

	view := statsdproxy.Parse([]byte("a:1|c"))
	err := Retry(context.Background(), logrus.StandardLogger(), "test", view, submit)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryDropsAfterExhaustingBackoff(t *testing.T) {
	t.Parallel()

	calls := 0
	submit := func(ctx context.Context, view *statsdproxy.MetricView) (Result, error) {
		calls++
		return Overloaded, nil
	}

	view := statsdproxy.Parse([]byte("a:1|c"))
	err := Retry(context.Background(), logrus.StandardLogger(), "test", view, submit)
	require.NoError(t, err, "exhausting retries drops the metric, it is never surfaced as an error")
	assert.Greater(t, calls, 1)
}

func TestRetryPropagatesSubmitError(t *testing.T) {
	t.Parallel()

	wantErr := statsdproxy.NewError(statsdproxy.ErrIOFatal, context.Canceled)
	submit := func(ctx context.Context, view *statsdproxy.MetricView) (Result, error) {
		return Forwarded, wantErr
	}

	view := statsdproxy.Parse([]byte("a:1|c"))
	err := Retry(context.Background(), logrus.StandardLogger(), "test", view, submit)
	assert.Equal(t, wantErr, err)
}

func TestRetryStopsOnContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	submit := func(ctx context.Context, view *statsdproxy.MetricView) (Result, error) {
		return Overloaded, nil
	}

	view := statsdproxy.Parse([]byte("a:1|c"))
	err := Retry(ctx, logrus.StandardLogger(), "test", view, submit)
	assert.Error(t, err)
}
