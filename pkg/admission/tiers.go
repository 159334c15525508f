package admission

import (
	"fmt"
	"time"
)

// DefaultTierConfigs returns the stock per-operation policies. Create is the
// most expensive class for the platform and gets the tightest budget; view is
// the cheapest and the loosest. The suspicious tier is an internal escalation
// budget consulted for callers already flagged as risky.
func DefaultTierConfigs() map[Operation]WindowConfig {
	return map[Operation]WindowConfig{
		OpCreate:     {Window: 15 * time.Minute, MaxAttempts: 3, KeyPrefix: "create:"},
		OpUpdate:     {Window: 5 * time.Minute, MaxAttempts: 10, KeyPrefix: "update:"},
		OpSearch:     {Window: time.Minute, MaxAttempts: 30, KeyPrefix: "search:"},
		OpView:       {Window: time.Minute, MaxAttempts: 60, KeyPrefix: "view:"},
		OpSuspicious: {Window: time.Hour, MaxAttempts: 5, KeyPrefix: "suspicious:"},
	}
}

// Registry holds one SlidingWindow per operation class. Each tier has its own
// window and capacity; exhausting one class never touches another, and the
// key prefixes keep a shared caller key from colliding across tiers.
type Registry struct {
	tiers map[Operation]*SlidingWindow
}

// NewRegistry builds a Registry from per-operation policies, normally
// DefaultTierConfigs with zero or more overrides applied. Every operation
// class must have a policy and every policy must be valid.
func NewRegistry(configs map[Operation]WindowConfig) (*Registry, error) {
	tiers := make(map[Operation]*SlidingWindow, len(configs))
	for op := range DefaultTierConfigs() {
		cfg, ok := configs[op]
		if !ok {
			return nil, fmt.Errorf("registry: missing config for operation %q", op)
		}
		win, err := NewSlidingWindow(cfg)
		if err != nil {
			return nil, fmt.Errorf("registry: %s tier: %w", op, err)
		}
		tiers[op] = win
	}
	return &Registry{tiers: tiers}, nil
}

// Tier returns the window for an operation class.
func (r *Registry) Tier(op Operation) (*SlidingWindow, bool) {
	win, ok := r.tiers[op]
	return win, ok
}

// Sweep evicts idle keys from every tier and returns the total removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	removed := 0
	for _, win := range r.tiers {
		removed += win.Sweep(maxIdle)
	}
	return removed
}

func (r *Registry) setClock(now func() time.Time) {
	for _, win := range r.tiers {
		win.now = now
	}
}
