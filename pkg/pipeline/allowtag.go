package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/statsdproxy/statsdproxy"
)

// AllowTagConfig configures AllowTag. Only tags whose key matches Tags, a
// StartsWith prefix, or an EndsWith suffix are retained; everything else is
// dropped. A metric whose name matches Metrics is dropped in its entirety.
type AllowTagConfig struct {
	Tags       []string
	StartsWith []string
	EndsWith   []string
	Metrics    []string
}

// AllowTag retains only matching tags before handing the metric to the next
// middleware.
type AllowTag struct {
	tags       map[string]struct{}
	startsWith statsdproxy.PrefixSet
	endsWith   statsdproxy.SuffixSet
	metrics    statsdproxy.StringMatchList
	next       Middleware
}

// NewAllowTag builds an AllowTag middleware wrapping next.
func NewAllowTag(config AllowTagConfig, next Middleware) *AllowTag {
	tags := make(map[string]struct{}, len(config.Tags))
	for _, t := range config.Tags {
		tags[t] = struct{}{}
	}
	var metrics statsdproxy.StringMatchList
	for _, m := range config.Metrics {
		metrics = append(metrics, statsdproxy.NewStringMatch(m))
	}
	return &AllowTag{
		tags:       tags,
		startsWith: config.StartsWith,
		endsWith:   config.EndsWith,
		metrics:    metrics,
		next:       next,
	}
}

func (at *AllowTag) Poll(ctx context.Context) error {
	return at.next.Poll(ctx)
}

func (at *AllowTag) Submit(ctx context.Context, view *statsdproxy.MetricView) (Result, error) {
	if view.Opaque() {
		return at.next.Submit(ctx, view)
	}

	if name, ok := view.Name(); ok && at.metrics.MatchAny(string(name)) {
		logrus.WithField("name", string(name)).Debug("allow-tag: dropping metric")
		return Forwarded, nil
	}

	view.RetainTags(at.allow)
	return at.next.Submit(ctx, view)
}

func (at *AllowTag) allow(key string) bool {
	if _, ok := at.tags[key]; ok {
		return true
	}
	return at.startsWith.MatchAny(key) || at.endsWith.MatchAny(key)
}
