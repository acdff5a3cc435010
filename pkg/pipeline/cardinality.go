package pipeline

import (
	"container/list"
	"context"
	"time"

	"github.com/tilinna/clock"

	"github.com/statsdproxy/statsdproxy"
)

// CardinalityLimitConfig configures a CardinalityLimit middleware: an
// ordered list of rules, each independently bounding the number of distinct
// fingerprints observed within a trailing window.
type CardinalityLimitConfig struct {
	Rules []CardinalityRule
}

// CardinalityRule is one {window, limit} pair.
type CardinalityRule struct {
	Window time.Duration
	Limit  int
}

type cardinalityEntry struct {
	fingerprint uint32
	lastSeen    time.Time
}

type cardinalityState struct {
	window   time.Duration
	limit    int
	lastSeen map[uint32]time.Time
	order    *list.List // of cardinalityEntry, oldest first
}

func newCardinalityState(rule CardinalityRule) *cardinalityState {
	return &cardinalityState{
		window:   rule.Window,
		limit:    rule.Limit,
		lastSeen: make(map[uint32]time.Time),
		order:    list.New(),
	}
}

// evict drops entries older than now-window from the front of the deque,
// removing from the map only when the map's last-seen time still matches
// the deque entry (otherwise the fingerprint was refreshed and a newer
// entry for it is further back in the deque).
func (cs *cardinalityState) evict(now time.Time) {
	cutoff := now.Add(-cs.window)
	for {
		front := cs.order.Front()
		if front == nil {
			return
		}
		entry := front.Value.(cardinalityEntry)
		if entry.lastSeen.After(cutoff) {
			return
		}
		cs.order.Remove(front)
		if seen, ok := cs.lastSeen[entry.fingerprint]; ok && seen.Equal(entry.lastSeen) {
			delete(cs.lastSeen, entry.fingerprint)
		}
	}
}

// admit reports whether fp should be allowed under this rule, refreshing or
// inserting its last-seen time as a side effect.
func (cs *cardinalityState) admit(now time.Time, fp uint32) bool {
	if _, ok := cs.lastSeen[fp]; ok {
		cs.lastSeen[fp] = now
		cs.order.PushBack(cardinalityEntry{fingerprint: fp, lastSeen: now})
		return true
	}
	if len(cs.lastSeen) < cs.limit {
		cs.lastSeen[fp] = now
		cs.order.PushBack(cardinalityEntry{fingerprint: fp, lastSeen: now})
		return true
	}
	return false
}

// CardinalityLimit drops metrics once any configured rule's distinct-
// fingerprint budget for its window is exhausted. Opaque lines have no
// computable fingerprint and pass through untouched.
type CardinalityLimit struct {
	clock clock.Clock
	rules []*cardinalityState
	next  Middleware
}

// NewCardinalityLimit builds a CardinalityLimit middleware wrapping next.
// The clock is taken from ctx via clock.FromContext at Poll/Submit time.
func NewCardinalityLimit(config CardinalityLimitConfig, next Middleware) *CardinalityLimit {
	rules := make([]*cardinalityState, 0, len(config.Rules))
	for _, r := range config.Rules {
		rules = append(rules, newCardinalityState(r))
	}
	return &CardinalityLimit{rules: rules, next: next}
}

func (cl *CardinalityLimit) Poll(ctx context.Context) error {
	now := clock.FromContext(ctx).Now()
	for _, rule := range cl.rules {
		rule.evict(now)
	}
	return cl.next.Poll(ctx)
}

func (cl *CardinalityLimit) Submit(ctx context.Context, view *statsdproxy.MetricView) (Result, error) {
	if view.Opaque() {
		return cl.next.Submit(ctx, view)
	}
	name, _ := view.Name()
	tags, _ := view.Tags()
	fp := statsdproxy.Fingerprint(name, tags)

	now := clock.FromContext(ctx).Now()
	for _, rule := range cl.rules {
		rule.evict(now)
		if !rule.admit(now, fp) {
			return Forwarded, nil
		}
	}
	return cl.next.Submit(ctx, view)
}
