package pipeline

import (
	"context"

	"github.com/statsdproxy/statsdproxy"
)

// AddTagConfig configures AddTag: literal "key:value" pairs appended to
// every non-opaque metric's tag set.
type AddTagConfig struct {
	Tags []string
}

// AddTag appends a fixed set of tags to every metric it sees. Not
// idempotent: running the same chain twice over a line duplicates the tags,
// matching the original implementation's append-only behavior.
type AddTag struct {
	tags []string
	next Middleware
}

// NewAddTag builds an AddTag middleware wrapping next.
func NewAddTag(config AddTagConfig, next Middleware) *AddTag {
	return &AddTag{tags: config.Tags, next: next}
}

func (at *AddTag) Poll(ctx context.Context) error {
	return at.next.Poll(ctx)
}

func (at *AddTag) Submit(ctx context.Context, view *statsdproxy.MetricView) (Result, error) {
	if view.Opaque() {
		return at.next.Submit(ctx, view)
	}
	view.AddTags(at.tags...)
	return at.next.Submit(ctx, view)
}
