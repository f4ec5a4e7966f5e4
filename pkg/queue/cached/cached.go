// Package cached wraps template and sequence lookups with a pkg/cache
// cache. Every dispatch run resolves the same handful of templates, so a
// short TTL removes almost all catalog reads without delaying edits for long.
package cached

import (
	"context"
	"time"

	"github.com/dmitrymomot/mailqueue/pkg/cache"
	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

// DefaultTTL is used when the caller passes zero.
const DefaultTTL = 30 * time.Second

var (
	_ queue.TemplateStore = (*Templates)(nil)
	_ queue.SequenceStore = (*Sequences)(nil)
)

// Templates caches ActiveTemplateByKey results. Misses are not cached, so a
// template activated after a failed lookup is picked up on the next call.
type Templates struct {
	next  queue.TemplateStore
	cache cache.Cache[queue.Template]
	ttl   time.Duration
}

// NewTemplates wraps next with c.
func NewTemplates(next queue.TemplateStore, c cache.Cache[queue.Template], ttl time.Duration) *Templates {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Templates{next: next, cache: c, ttl: ttl}
}

// ActiveTemplateByKey implements queue.TemplateStore.
func (t *Templates) ActiveTemplateByKey(ctx context.Context, key string) (*queue.Template, error) {
	tpl, err := cache.GetOrSet(ctx, t.cache, key, func(ctx context.Context) (queue.Template, time.Duration, error) {
		v, err := t.next.ActiveTemplateByKey(ctx, key)
		if err != nil {
			return queue.Template{}, 0, err
		}
		return *v, t.ttl, nil
	})
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Invalidate drops the cached template so the next lookup reads through.
func (t *Templates) Invalidate(ctx context.Context, key string) error {
	return t.cache.Delete(ctx, key)
}

// Sequences caches ActiveSequenceByKey results.
type Sequences struct {
	next  queue.SequenceStore
	cache cache.Cache[queue.Sequence]
	ttl   time.Duration
}

// NewSequences wraps next with c.
func NewSequences(next queue.SequenceStore, c cache.Cache[queue.Sequence], ttl time.Duration) *Sequences {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Sequences{next: next, cache: c, ttl: ttl}
}

// ActiveSequenceByKey implements queue.SequenceStore.
func (s *Sequences) ActiveSequenceByKey(ctx context.Context, key string) (*queue.Sequence, error) {
	seq, err := cache.GetOrSet(ctx, s.cache, key, func(ctx context.Context) (queue.Sequence, time.Duration, error) {
		v, err := s.next.ActiveSequenceByKey(ctx, key)
		if err != nil {
			return queue.Sequence{}, 0, err
		}
		return *v, s.ttl, nil
	})
	if err != nil {
		return nil, err
	}
	return &seq, nil
}

// Invalidate drops the cached sequence so the next lookup reads through.
func (s *Sequences) Invalidate(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, key)
}
