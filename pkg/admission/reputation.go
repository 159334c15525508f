package admission

import (
	"fmt"
	"sync"
	"time"
)

// ReputationThresholds are the tunables of the IP reputation heuristic.
// Like the profiler cutoffs, the stock numbers are inherited and kept
// overridable.
type ReputationThresholds struct {
	// RetentionWindow is how long request timestamps are kept per IP.
	RetentionWindow time.Duration

	// YoungIPAge and YoungIPBurst flag brand-new addresses that arrive hot:
	// an IP younger than YoungIPAge making more than YoungIPBurst requests
	// per hour is high risk before any volume cutoff applies.
	YoungIPAge   time.Duration
	YoungIPBurst int

	// Volume cutoffs, requests per hour.
	CriticalRequests int
	HighRequests     int
	MediumRequests   int

	// SuspiciousCritical forces critical risk once the stored suspicious
	// counter passes it; SuspiciousElevate lifts low risk to medium.
	SuspiciousCritical int
	SuspiciousElevate  int

	// PermBlockRequests is the per-hour volume above which a critical IP is
	// blocked permanently instead of temporarily.
	PermBlockRequests int
	// TempBlockDuration is how long a temporary block lasts. Expiry is a
	// stored timestamp compared lazily on the next check; no timers.
	TempBlockDuration time.Duration
}

// DefaultReputationThresholds returns the stock tuning.
func DefaultReputationThresholds() ReputationThresholds {
	return ReputationThresholds{
		RetentionWindow:    time.Hour,
		YoungIPAge:         6 * time.Minute,
		YoungIPBurst:       20,
		CriticalRequests:   200,
		HighRequests:       100,
		MediumRequests:     50,
		SuspiciousCritical: 5,
		SuspiciousElevate:  2,
		PermBlockRequests:  500,
		TempBlockDuration:  time.Hour,
	}
}

type ipRecord struct {
	requests     []time.Time
	suspicious   int
	firstSeen    time.Time
	blockedUntil time.Time
	permBlocked  bool
}

// ReputationTracker keeps per-IP request history and a suspicious-activity
// counter, and derives a risk assessment plus a recommended traffic action
// on every check.
//
// Safe for concurrent use.
type ReputationTracker struct {
	mu  sync.Mutex
	th  ReputationThresholds
	ips map[string]*ipRecord
	now func() time.Time
}

// NewReputationTracker constructs an empty tracker.
func NewReputationTracker(th ReputationThresholds) (*ReputationTracker, error) {
	if th.RetentionWindow <= 0 {
		return nil, fmt.Errorf("reputation: retention window must be positive, got %s", th.RetentionWindow)
	}
	if th.TempBlockDuration <= 0 {
		return nil, fmt.Errorf("reputation: temp block duration must be positive, got %s", th.TempBlockDuration)
	}
	return &ReputationTracker{
		th:  th,
		ips: make(map[string]*ipRecord),
		now: time.Now,
	}, nil
}

// CheckIP records one request from ip and returns the address's current
// assessment. Active blocks are honored before any recomputation, so a
// blocked address stays blocked until its stored expiry passes.
func (t *ReputationTracker) CheckIP(ip string) IPAssessment {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	rec, ok := t.ips[ip]
	if !ok {
		rec = &ipRecord{firstSeen: now}
		t.ips[ip] = rec
	}

	cutoff := now.Add(-t.th.RetentionWindow)
	idx := 0
	for idx < len(rec.requests) && rec.requests[idx].Before(cutoff) {
		idx++
	}
	rec.requests = append(rec.requests[idx:], now)
	perHour := len(rec.requests)

	if rec.permBlocked {
		return IPAssessment{Risk: RiskCritical, RequestsPerHour: perHour, Action: ActionBlockPerm}
	}

	risk := t.classify(rec, perHour, now)
	action := t.action(risk, perHour)

	if now.Before(rec.blockedUntil) && action != ActionBlockPerm {
		action = ActionBlockTemp
	}

	switch action {
	case ActionBlockPerm:
		rec.permBlocked = true
	case ActionBlockTemp:
		until := now.Add(t.th.TempBlockDuration)
		if until.After(rec.blockedUntil) {
			rec.blockedUntil = until
		}
	}

	return IPAssessment{Risk: risk, RequestsPerHour: perHour, Action: action}
}

// RecordSuspicious bumps the address's suspicious-activity counter. It never
// denies traffic by itself; it biases every later CheckIP.
func (t *ReputationTracker) RecordSuspicious(ip string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.ips[ip]
	if !ok {
		rec = &ipRecord{firstSeen: t.now()}
		t.ips[ip] = rec
	}
	rec.suspicious++
	return rec.suspicious
}

// Sweep drops addresses with no requests newer than maxIdle. Permanently
// blocked addresses are kept.
func (t *ReputationTracker) Sweep(maxIdle time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-maxIdle)
	removed := 0
	for ip, rec := range t.ips {
		if rec.permBlocked {
			continue
		}
		if len(rec.requests) == 0 || rec.requests[len(rec.requests)-1].Before(cutoff) {
			delete(t.ips, ip)
			removed++
		}
	}
	return removed
}

func (t *ReputationTracker) classify(rec *ipRecord, perHour int, now time.Time) RiskLevel {
	age := now.Sub(rec.firstSeen)

	var risk RiskLevel
	switch {
	case age < t.th.YoungIPAge && perHour > t.th.YoungIPBurst:
		risk = RiskHigh
	case perHour > t.th.CriticalRequests:
		risk = RiskCritical
	case perHour > t.th.HighRequests:
		risk = RiskHigh
	case perHour > t.th.MediumRequests:
		risk = RiskMedium
	default:
		risk = RiskLow
	}

	if rec.suspicious > t.th.SuspiciousCritical {
		return RiskCritical
	}
	if rec.suspicious > t.th.SuspiciousElevate && risk == RiskLow {
		return RiskMedium
	}
	return risk
}

func (t *ReputationTracker) action(risk RiskLevel, perHour int) TrafficAction {
	switch risk {
	case RiskCritical:
		if perHour > t.th.PermBlockRequests {
			return ActionBlockPerm
		}
		return ActionBlockTemp
	case RiskHigh:
		return ActionBlockTemp
	case RiskMedium:
		return ActionThrottle
	default:
		return ActionAllow
	}
}
