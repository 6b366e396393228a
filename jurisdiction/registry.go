/*
registry.go - Rule registry with read-through cache

PURPOSE:
  Resolves jurisdiction codes to validated Rules for the Aggregator.
  Built-in defaults are always available; a backend (the sqlite rules
  table) can add custom jurisdictions or override a default. Lookups are
  served from a bounded LRU so the snapshot job does not hit the database
  once per (owner, rule) pair.

LOOKUP ORDER:
  1. LRU cache
  2. Backend (if configured)
  3. Built-in rules

  A backend rule with the same code as a built-in wins.

INVALIDATION:
  Writers call Invalidate(code) after changing a rule in the backend.
  Rules are immutable values, so a stale cache entry is never partially
  updated. Every invalidation bumps a generation counter; a miss only
  caches what it loaded if no invalidation happened while it was loading,
  otherwise a read that raced a write could re-cache the old rule.

SEE ALSO:
  - rules.go: Built-in rules
  - generic/store.go: RuleSource interface
*/
package jurisdiction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/warp/staycount/generic"
	"github.com/warp/staycount/metrics"
)

// DefaultCacheSize bounds the registry cache.
const DefaultCacheSize = 256

// Registry implements generic.RuleSource.
type Registry struct {
	mu      sync.RWMutex
	gen     uint64 // bumped under mu by every invalidation
	builtin map[generic.JurisdictionCode]generic.Rule
	backend generic.RuleSource
	cache   *lru.Cache[generic.JurisdictionCode, generic.Rule]
}

// NewRegistry builds a registry over backend (may be nil) seeded with
// DefaultRules plus extra. An invalid extra rule is a configuration error.
func NewRegistry(backend generic.RuleSource, cacheSize int, extra ...generic.Rule) (*Registry, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[generic.JurisdictionCode, generic.Rule](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule cache: %w", err)
	}

	r := &Registry{
		builtin: make(map[generic.JurisdictionCode]generic.Rule),
		backend: backend,
		cache:   cache,
	}
	for _, rule := range append(DefaultRules(), extra...) {
		if err := r.register(rule); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(rule generic.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtin[rule.Code] = rule.WithDefaults()
	r.gen++
	r.cache.Remove(rule.Code)
	return nil
}

// Register adds or replaces a built-in rule.
func (r *Registry) Register(rule generic.Rule) error {
	return r.register(rule)
}

// GetRule resolves code, returning a wrapped generic.ErrRuleNotFound when
// neither the backend nor the built-ins know it.
func (r *Registry) GetRule(ctx context.Context, code generic.JurisdictionCode) (*generic.Rule, error) {
	if rule, ok := r.cache.Get(code); ok {
		metrics.RuleCacheHits.Inc()
		return &rule, nil
	}
	metrics.RuleCacheMisses.Inc()

	r.mu.RLock()
	gen := r.gen
	r.mu.RUnlock()

	rule, err := r.load(ctx, code)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.gen == gen {
		r.cache.Add(code, rule)
	}
	r.mu.Unlock()
	return &rule, nil
}

func (r *Registry) load(ctx context.Context, code generic.JurisdictionCode) (generic.Rule, error) {
	if r.backend != nil {
		rule, err := r.backend.GetRule(ctx, code)
		switch {
		case err == nil:
			if err := rule.Validate(); err != nil {
				return generic.Rule{}, err
			}
			return rule.WithDefaults(), nil
		case !errors.Is(err, generic.ErrRuleNotFound):
			return generic.Rule{}, fmt.Errorf("load rule %s: %w", code, err)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.builtin[code]
	if !ok {
		return generic.Rule{}, fmt.Errorf("%w: %s", generic.ErrRuleNotFound, code)
	}
	return rule, nil
}

// ListRules returns built-in and backend rules merged by code, sorted.
func (r *Registry) ListRules(ctx context.Context) ([]generic.Rule, error) {
	merged := make(map[generic.JurisdictionCode]generic.Rule)

	r.mu.RLock()
	for code, rule := range r.builtin {
		merged[code] = rule
	}
	r.mu.RUnlock()

	if r.backend != nil {
		custom, err := r.backend.ListRules(ctx)
		if err != nil {
			return nil, fmt.Errorf("list rules: %w", err)
		}
		for _, rule := range custom {
			merged[rule.Code] = rule.WithDefaults()
		}
	}

	out := make([]generic.Rule, 0, len(merged))
	for _, rule := range merged {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// Invalidate drops code from the cache.
func (r *Registry) Invalidate(code generic.JurisdictionCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.cache.Remove(code)
}

// Purge empties the cache.
func (r *Registry) Purge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.cache.Purge()
}

var _ generic.RuleSource = (*Registry)(nil)
