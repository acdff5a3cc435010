package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tilinna/clock"

	"github.com/statsdproxy/statsdproxy"
)

func ctxAt(t time.Time) context.Context {
	return clock.Context(context.Background(), clock.NewMock(t))
}

func TestCardinalityLimitAdmitsUnderLimit(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	cl := NewCardinalityLimit(CardinalityLimitConfig{
		Rules: []CardinalityRule{{Window: time.Minute, Limit: 2}},
	}, next)

	t0 := time.Unix(1000, 0)
	for _, name := range []string{"a", "b"} {
		view := statsdproxy.Parse([]byte(name + ":1|c"))
		res, err := cl.Submit(ctxAt(t0), view)
		require.NoError(t, err)
		assert.Equal(t, Forwarded, res)
	}
	assert.Len(t, next.lines, 2)
}

func TestCardinalityLimitDropsOverLimit(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	cl := NewCardinalityLimit(CardinalityLimitConfig{
		Rules: []CardinalityRule{{Window: time.Minute, Limit: 1}},
	}, next)

	t0 := time.Unix(1000, 0)
	view1 := statsdproxy.Parse([]byte("a:1|c"))
	_, err := cl.Submit(ctxAt(t0), view1)
	require.NoError(t, err)

	view2 := statsdproxy.Parse([]byte("b:1|c"))
	res, err := cl.Submit(ctxAt(t0), view2)
	require.NoError(t, err)
	assert.Equal(t, Forwarded, res)
	assert.Len(t, next.lines, 1, "second distinct fingerprint should have been dropped, not forwarded downstream")
}

func TestCardinalityLimitRefreshesSeenFingerprint(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	cl := NewCardinalityLimit(CardinalityLimitConfig{
		Rules: []CardinalityRule{{Window: time.Minute, Limit: 1}},
	}, next)

	t0 := time.Unix(1000, 0)
	view := statsdproxy.Parse([]byte("a:1|c"))
	_, err := cl.Submit(ctxAt(t0), view)
	require.NoError(t, err)

	// Same fingerprint again, still within window: allowed, doesn't consume
	// a second slot.
	view2 := statsdproxy.Parse([]byte("a:1|c"))
	_, err = cl.Submit(ctxAt(t0.Add(10*time.Second)), view2)
	require.NoError(t, err)
	assert.Len(t, next.lines, 2)

	view3 := statsdproxy.Parse([]byte("b:1|c"))
	res, err := cl.Submit(ctxAt(t0.Add(20*time.Second)), view3)
	require.NoError(t, err)
	assert.Equal(t, Forwarded, res)
	assert.Len(t, next.lines, 2, "budget still exhausted by the refreshed fingerprint")
}

func TestCardinalityLimitWindowExpiryFreesSlot(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	cl := NewCardinalityLimit(CardinalityLimitConfig{
		Rules: []CardinalityRule{{Window: time.Minute, Limit: 1}},
	}, next)

	t0 := time.Unix(1000, 0)
	view1 := statsdproxy.Parse([]byte("a:1|c"))
	_, err := cl.Submit(ctxAt(t0), view1)
	require.NoError(t, err)

	// Past the window: "a" has aged out, so "b" should now be admitted.
	view2 := statsdproxy.Parse([]byte("b:1|c"))
	_, err = cl.Submit(ctxAt(t0.Add(2*time.Minute)), view2)
	require.NoError(t, err)
	assert.Len(t, next.lines, 2)
}

func TestCardinalityLimitFirstRejectingRuleWins(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	cl := NewCardinalityLimit(CardinalityLimitConfig{
		Rules: []CardinalityRule{
			{Window: time.Minute, Limit: 100},
			{Window: time.Hour, Limit: 1},
		},
	}, next)

	t0 := time.Unix(1000, 0)
	view1 := statsdproxy.Parse([]byte("a:1|c"))
	_, err := cl.Submit(ctxAt(t0), view1)
	require.NoError(t, err)

	view2 := statsdproxy.Parse([]byte("b:1|c"))
	res, err := cl.Submit(ctxAt(t0), view2)
	require.NoError(t, err)
	assert.Equal(t, Forwarded, res)
	assert.Len(t, next.lines, 1, "second rule's tighter limit should reject even though the first rule would admit")
}

func TestCardinalityLimitPassesOpaqueUntracked(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	cl := NewCardinalityLimit(CardinalityLimitConfig{
		Rules: []CardinalityRule{{Window: time.Minute, Limit: 1}},
	}, next)

	t0 := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		view := statsdproxy.Parse([]byte("garbage"))
		_, err := cl.Submit(ctxAt(t0), view)
		require.NoError(t, err)
	}
	assert.Len(t, next.lines, 3)
}

func TestCardinalityLimitPoll(t *testing.T) {
	t.Parallel()

	next := &recorder{}
	cl := NewCardinalityLimit(CardinalityLimitConfig{
		Rules: []CardinalityRule{{Window: time.Minute, Limit: 1}},
	}, next)
	require.NoError(t, cl.Poll(ctxAt(time.Unix(1000, 0))))
	assert.Equal(t, 1, next.polls)
}
