package admission

import (
	"testing"
	"time"
)

func newTestTracker(t *testing.T, clock *fakeClock) *ReputationTracker {
	t.Helper()
	tr, err := NewReputationTracker(DefaultReputationThresholds())
	if err != nil {
		t.Fatalf("NewReputationTracker failed: %v", err)
	}
	tr.now = clock.Now
	return tr
}

func TestNewReputationTracker_Validation(t *testing.T) {
	th := DefaultReputationThresholds()
	th.RetentionWindow = 0
	if _, err := NewReputationTracker(th); err == nil {
		t.Error("Expected error for zero retention window, got nil")
	}

	th = DefaultReputationThresholds()
	th.TempBlockDuration = -time.Minute
	if _, err := NewReputationTracker(th); err == nil {
		t.Error("Expected error for negative temp block duration, got nil")
	}
}

func TestReputationTracker_QuietIPIsLow(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(t, clock)

	// Age the address first so the young-burst rule cannot trip.
	tr.CheckIP("198.51.100.1")
	clock.Advance(time.Hour)

	var assess IPAssessment
	for i := 0; i < 10; i++ {
		assess = tr.CheckIP("198.51.100.1")
		clock.Advance(time.Minute)
	}
	if assess.Risk != RiskLow || assess.Action != ActionAllow {
		t.Errorf("Expected low/allow for a quiet aged IP, got %s/%s", assess.Risk, assess.Action)
	}
}

func TestReputationTracker_SteadyVolumeIsThrottled(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(t, clock)

	// An IP first seen two hours ago, making 60 requests inside the last
	// hour, crosses the medium cutoff but nothing worse.
	tr.CheckIP("203.0.113.5")
	clock.Advance(2 * time.Hour)

	var assess IPAssessment
	for i := 0; i < 60; i++ {
		assess = tr.CheckIP("203.0.113.5")
		clock.Advance(30 * time.Second)
	}
	if assess.Risk != RiskMedium {
		t.Errorf("Expected medium risk at 60 requests/hour, got %s", assess.Risk)
	}
	if assess.Action != ActionThrottle {
		t.Errorf("Expected throttle at medium risk, got %s", assess.Action)
	}
}

func TestReputationTracker_SuspiciousActivityForcesCritical(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(t, clock)

	tr.CheckIP("203.0.113.5")
	clock.Advance(2 * time.Hour)
	tr.CheckIP("203.0.113.5")

	for i := 0; i < 6; i++ {
		tr.RecordSuspicious("203.0.113.5")
	}

	clock.Advance(time.Minute)
	assess := tr.CheckIP("203.0.113.5")
	if assess.Risk != RiskCritical {
		t.Errorf("Six suspicious events must force critical regardless of rate, got %s", assess.Risk)
	}
	if assess.Action != ActionBlockTemp {
		t.Errorf("Expected a temporary block for critical at low volume, got %s", assess.Action)
	}
}

func TestReputationTracker_SuspiciousActivityElevatesLow(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(t, clock)

	tr.CheckIP("198.51.100.9")
	clock.Advance(time.Hour)

	tr.RecordSuspicious("198.51.100.9")
	tr.RecordSuspicious("198.51.100.9")
	tr.RecordSuspicious("198.51.100.9")

	assess := tr.CheckIP("198.51.100.9")
	if assess.Risk != RiskMedium {
		t.Errorf("Three suspicious events should lift low to medium, got %s", assess.Risk)
	}
}

func TestReputationTracker_YoungBurstIsHigh(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(t, clock)

	// A brand-new address arriving hot: 25 requests in its first minute.
	var assess IPAssessment
	for i := 0; i < 25; i++ {
		assess = tr.CheckIP("192.0.2.77")
		clock.Advance(2 * time.Second)
	}
	if assess.Risk != RiskHigh {
		t.Errorf("Expected high risk for a young bursting IP, got %s", assess.Risk)
	}
	if assess.Action != ActionBlockTemp {
		t.Errorf("Expected a temporary block, got %s", assess.Action)
	}
}

func TestReputationTracker_TempBlockExpiresLazily(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(t, clock)

	for i := 0; i < 25; i++ {
		tr.CheckIP("192.0.2.77")
	}

	// Still inside the stored block window: blocked even though the
	// recomputed risk alone would no longer demand it.
	clock.Advance(30 * time.Minute)
	if assess := tr.CheckIP("192.0.2.77"); assess.Action != ActionBlockTemp {
		t.Errorf("Expected the stored block to hold at 30 minutes, got %s", assess.Action)
	}

	// Past expiry plus the retention window the address starts fresh.
	clock.Advance(2 * time.Hour)
	if assess := tr.CheckIP("192.0.2.77"); assess.Action != ActionAllow {
		t.Errorf("Expected the block to have lapsed, got %s", assess.Action)
	}
}

func TestReputationTracker_ExtremeVolumeIsPermanent(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(t, clock)

	tr.CheckIP("192.0.2.200")
	clock.Advance(time.Hour)

	var assess IPAssessment
	for i := 0; i < 550; i++ {
		assess = tr.CheckIP("192.0.2.200")
		clock.Advance(time.Second)
	}
	if assess.Action != ActionBlockPerm {
		t.Fatalf("Expected a permanent block above the extreme-volume cutoff, got %s", assess.Action)
	}

	// Permanent means permanent: a week of silence changes nothing.
	clock.Advance(7 * 24 * time.Hour)
	assess = tr.CheckIP("192.0.2.200")
	if assess.Action != ActionBlockPerm || assess.Risk != RiskCritical {
		t.Errorf("Expected the permanent block to stick, got %s/%s", assess.Risk, assess.Action)
	}
}

func TestReputationTracker_Sweep(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(t, clock)

	tr.CheckIP("stale")
	tr.CheckIP("perm")
	clock.Advance(time.Hour)
	for i := 0; i < 550; i++ {
		tr.CheckIP("perm")
	}
	clock.Advance(48 * time.Hour)
	tr.CheckIP("fresh")

	removed := tr.Sweep(24 * time.Hour)
	if removed != 1 {
		t.Errorf("Expected only the stale unprivileged IP removed, got %d", removed)
	}
	if _, ok := tr.ips["perm"]; !ok {
		t.Error("Permanently blocked addresses must survive the sweep")
	}
	if _, ok := tr.ips["fresh"]; !ok {
		t.Error("Fresh addresses must survive the sweep")
	}
}
