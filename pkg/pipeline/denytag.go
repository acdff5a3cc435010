package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/statsdproxy/statsdproxy"
)

// DenyTagConfig configures DenyTag. Tags whose key matches Tags, matches a
// StartsWith prefix, or matches an EndsWith suffix are dropped. A metric
// whose name matches Metrics is dropped in its entirety.
type DenyTagConfig struct {
	Tags       []string
	StartsWith []string
	EndsWith   []string
	Metrics    []string
}

// DenyTag removes matching tags (or drops the whole metric) before handing
// it to the next middleware.
type DenyTag struct {
	tags       map[string]struct{}
	startsWith statsdproxy.PrefixSet
	endsWith   statsdproxy.SuffixSet
	metrics    statsdproxy.StringMatchList
	next       Middleware
}

// NewDenyTag builds a DenyTag middleware wrapping next.
func NewDenyTag(config DenyTagConfig, next Middleware) *DenyTag {
	tags := make(map[string]struct{}, len(config.Tags))
	for _, t := range config.Tags {
		tags[t] = struct{}{}
	}
	var metrics statsdproxy.StringMatchList
	for _, m := range config.Metrics {
		metrics = append(metrics, statsdproxy.NewStringMatch(m))
	}
	return &DenyTag{
		tags:       tags,
		startsWith: config.StartsWith,
		endsWith:   config.EndsWith,
		metrics:    metrics,
		next:       next,
	}
}

func (dt *DenyTag) Poll(ctx context.Context) error {
	return dt.next.Poll(ctx)
}

func (dt *DenyTag) Submit(ctx context.Context, view *statsdproxy.MetricView) (Result, error) {
	if view.Opaque() {
		return dt.next.Submit(ctx, view)
	}

	if name, ok := view.Name(); ok && dt.metrics.MatchAny(string(name)) {
		logrus.WithField("name", string(name)).Debug("deny-tag: dropping metric")
		return Forwarded, nil
	}

	view.RemoveTags(dt.deny)
	return dt.next.Submit(ctx, view)
}

func (dt *DenyTag) deny(key string) bool {
	if _, ok := dt.tags[key]; ok {
		return true
	}
	return dt.startsWith.MatchAny(key) || dt.endsWith.MatchAny(key)
}
