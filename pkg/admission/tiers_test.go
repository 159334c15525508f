package admission

import (
	"testing"
	"time"
)

func TestNewRegistry_RequiresEveryTier(t *testing.T) {
	configs := DefaultTierConfigs()
	delete(configs, OpView)

	if _, err := NewRegistry(configs); err == nil {
		t.Error("Expected error when a tier config is missing, got nil")
	}
}

func TestNewRegistry_RejectsInvalidTier(t *testing.T) {
	configs := DefaultTierConfigs()
	configs[OpSearch] = WindowConfig{Window: time.Minute, MaxAttempts: -1}

	if _, err := NewRegistry(configs); err == nil {
		t.Error("Expected error for invalid tier config, got nil")
	}
}

func TestRegistry_DefaultBudgets(t *testing.T) {
	reg, err := NewRegistry(DefaultTierConfigs())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	want := map[Operation]struct {
		max    int
		window time.Duration
	}{
		OpCreate:     {3, 15 * time.Minute},
		OpUpdate:     {10, 5 * time.Minute},
		OpSearch:     {30, time.Minute},
		OpView:       {60, time.Minute},
		OpSuspicious: {5, time.Hour},
	}

	for op, exp := range want {
		win, ok := reg.Tier(op)
		if !ok {
			t.Fatalf("Missing tier for %s", op)
		}
		cfg := win.Config()
		if cfg.MaxAttempts != exp.max || cfg.Window != exp.window {
			t.Errorf("%s tier: expected %d per %s, got %d per %s",
				op, exp.max, exp.window, cfg.MaxAttempts, cfg.Window)
		}
	}
}

// Exhausting one operation class must never touch another class's budget,
// even for the same identity.
func TestRegistry_TierIsolation(t *testing.T) {
	reg, err := NewRegistry(DefaultTierConfigs())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	clock := newFakeClock()
	reg.setClock(clock.Now)

	search, _ := reg.Tier(OpSearch)
	for i := 0; i < 30; i++ {
		if res := search.Check("user_1"); !res.Allowed {
			t.Fatalf("Search call %d should fit the budget", i)
		}
	}
	if res := search.Check("user_1"); res.Allowed {
		t.Fatal("Search budget should be exhausted")
	}

	create, _ := reg.Tier(OpCreate)
	res := create.Check("user_1")
	if !res.Allowed {
		t.Error("Exhausting search must not affect the create budget")
	}
	if res.Remaining != 2 {
		t.Errorf("Create should have a fresh budget, got remaining %d", res.Remaining)
	}
}

func TestRegistry_UnknownOperation(t *testing.T) {
	reg, err := NewRegistry(DefaultTierConfigs())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if _, ok := reg.Tier(Operation("delete")); ok {
		t.Error("Expected no tier for an unknown operation class")
	}
}
