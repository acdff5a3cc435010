// Package config loads the middleware-chain document (spec §6) with
// spf13/viper, the way the teacher's NewFilterFromViper/NewTagHandlerFromViper
// load filter configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/statsdproxy/statsdproxy"
	"github.com/statsdproxy/statsdproxy/pkg/pipeline"
)

// rawMiddleware is the on-disk shape of one `middlewares` entry: a `type`
// discriminator plus whatever fields that type needs, all flattened into
// one map so mapstructure can decode into the concrete config struct.
type rawMiddleware struct {
	Type string `mapstructure:"type"`

	Tags       []string `mapstructure:"tags"`
	StartsWith []string `mapstructure:"starts_with"`
	EndsWith   []string `mapstructure:"ends_with"`
	Metrics    []string `mapstructure:"metrics"`

	Rules []struct {
		WindowSeconds int `mapstructure:"window_seconds"`
		Limit         int `mapstructure:"limit"`
	} `mapstructure:"rules"`

	AggregateCounters *bool  `mapstructure:"aggregate_counters"`
	AggregateGauges   *bool  `mapstructure:"aggregate_gauges"`
	FlushInterval     string `mapstructure:"flush_interval"`
	FlushOffset       string `mapstructure:"flush_offset"`
	MaxMapSize        int    `mapstructure:"max_map_size"`
}

// Load reads the YAML document at path and returns the parsed middleware
// chain. An empty or absent `middlewares` list is a transparent proxy, not
// an error.
func Load(path string) (pipeline.Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return pipeline.Config{}, statsdproxy.NewError(statsdproxy.ErrConfig, fmt.Errorf("reading config: %w", err))
	}

	var raws []rawMiddleware
	if err := v.UnmarshalKey("middlewares", &raws); err != nil {
		return pipeline.Config{}, statsdproxy.NewError(statsdproxy.ErrConfig, fmt.Errorf("parsing middlewares: %w", err))
	}

	cfg := pipeline.Config{Middlewares: make([]pipeline.MiddlewareConfig, 0, len(raws))}
	for i, raw := range raws {
		mc, err := toMiddlewareConfig(raw)
		if err != nil {
			return pipeline.Config{}, statsdproxy.NewError(statsdproxy.ErrConfig, fmt.Errorf("middleware %d: %w", i, err))
		}
		cfg.Middlewares = append(cfg.Middlewares, mc)
	}
	return cfg, nil
}

func toMiddlewareConfig(raw rawMiddleware) (pipeline.MiddlewareConfig, error) {
	mc := pipeline.MiddlewareConfig{Type: raw.Type}

	switch raw.Type {
	case "deny-tag":
		mc.DenyTag = &pipeline.DenyTagConfig{
			Tags:       raw.Tags,
			StartsWith: raw.StartsWith,
			EndsWith:   raw.EndsWith,
			Metrics:    raw.Metrics,
		}
	case "allow-tag":
		mc.AllowTag = &pipeline.AllowTagConfig{
			Tags:       raw.Tags,
			StartsWith: raw.StartsWith,
			EndsWith:   raw.EndsWith,
			Metrics:    raw.Metrics,
		}
	case "add-tag":
		mc.AddTag = &pipeline.AddTagConfig{Tags: raw.Tags}
	case "cardinality-limit":
		rules := make([]pipeline.CardinalityRule, 0, len(raw.Rules))
		for _, r := range raw.Rules {
			if r.Limit < 0 {
				return mc, statsdproxy.NewError(statsdproxy.ErrConfig, fmt.Errorf("cardinality-limit: limit must be zero or positive"))
			}
			rules = append(rules, pipeline.CardinalityRule{
				Window: time.Duration(r.WindowSeconds) * time.Second,
				Limit:  r.Limit,
			})
		}
		mc.CardinalityLimit = &pipeline.CardinalityLimitConfig{Rules: rules}
	case "aggregate-metrics":
		cfg := pipeline.DefaultAggregateMetricsConfig()
		if raw.AggregateCounters != nil {
			cfg.AggregateCounters = *raw.AggregateCounters
		}
		if raw.AggregateGauges != nil {
			cfg.AggregateGauges = *raw.AggregateGauges
		}
		if raw.FlushInterval != "" {
			d, err := time.ParseDuration(raw.FlushInterval)
			if err != nil {
				return mc, statsdproxy.NewError(statsdproxy.ErrConfig, fmt.Errorf("aggregate-metrics: flush_interval: %w", err))
			}
			cfg.FlushInterval = d
		}
		if raw.FlushOffset != "" {
			d, err := time.ParseDuration(raw.FlushOffset)
			if err != nil {
				return mc, statsdproxy.NewError(statsdproxy.ErrConfig, fmt.Errorf("aggregate-metrics: flush_offset: %w", err))
			}
			cfg.FlushOffset = d
		}
		if raw.MaxMapSize < 0 {
			return mc, statsdproxy.NewError(statsdproxy.ErrConfig, fmt.Errorf("aggregate-metrics: max_map_size must be zero or positive"))
		}
		cfg.MaxMapSize = raw.MaxMapSize
		mc.AggregateMetrics = &cfg
	default:
		return mc, statsdproxy.NewError(statsdproxy.ErrConfig, fmt.Errorf("unknown middleware type %q", raw.Type))
	}
	return mc, nil
}
