package pipeline

import (
	"fmt"

	"github.com/statsdproxy/statsdproxy"
)

// MiddlewareConfig is one entry in the configuration file's `middlewares`
// sequence: a `type` discriminator plus exactly one populated config for
// that type.
type MiddlewareConfig struct {
	Type string

	DenyTag          *DenyTagConfig
	AllowTag         *AllowTagConfig
	AddTag           *AddTagConfig
	CardinalityLimit *CardinalityLimitConfig
	AggregateMetrics *AggregateMetricsConfig
}

// Config is the whole parsed configuration document: an ordered chain of
// middlewares. An empty list is a transparent proxy.
type Config struct {
	Middlewares []MiddlewareConfig
}

// Build constructs the middleware chain described by cfg, terminating in
// sink. Middlewares are wrapped in configuration order: the first entry in
// cfg.Middlewares is the outermost (first to see each metric).
func Build(cfg Config, sink Sink) (Middleware, error) {
	var chain Middleware = NewUpstreamSink(sink)

	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		m := cfg.Middlewares[i]
		next, err := wrap(m, chain)
		if err != nil {
			return nil, statsdproxy.NewError(statsdproxy.ErrConfig, fmt.Errorf("middleware %d (%s): %w", i, m.Type, err))
		}
		chain = next
	}
	return chain, nil
}

func wrap(m MiddlewareConfig, next Middleware) (Middleware, error) {
	switch m.Type {
	case "deny-tag":
		if m.DenyTag == nil {
			return nil, fmt.Errorf("deny-tag: missing config")
		}
		return NewDenyTag(*m.DenyTag, next), nil
	case "allow-tag":
		if m.AllowTag == nil {
			return nil, fmt.Errorf("allow-tag: missing config")
		}
		return NewAllowTag(*m.AllowTag, next), nil
	case "add-tag":
		if m.AddTag == nil {
			return nil, fmt.Errorf("add-tag: missing config")
		}
		return NewAddTag(*m.AddTag, next), nil
	case "cardinality-limit":
		if m.CardinalityLimit == nil {
			return nil, fmt.Errorf("cardinality-limit: missing config")
		}
		return NewCardinalityLimit(*m.CardinalityLimit, next), nil
	case "aggregate-metrics":
		if m.AggregateMetrics == nil {
			return nil, fmt.Errorf("aggregate-metrics: missing config")
		}
		return NewAggregateMetrics(*m.AggregateMetrics, next), nil
	default:
		return nil, fmt.Errorf("unknown middleware type %q", m.Type)
	}
}
