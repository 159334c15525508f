package admission

import (
	"fmt"
	"sync"
	"time"
)

// ProfilerThresholds are the tunables of the behavioral analysis. The stock
// values are inherited operating numbers without a documented derivation, so
// they are configuration rather than constants.
type ProfilerThresholds struct {
	// AnalysisWindow is the trailing interval Analyze recomputes from.
	AnalysisWindow time.Duration
	// MaxHistory caps the retained action records per identity, oldest
	// dropped first, independent of AnalysisWindow.
	MaxHistory int

	// CriticalFailedAttempts and friends are the risk cutoffs, checked in
	// order: critical, then high, then medium.
	CriticalFailedAttempts int
	HighCreates            int
	HighSearches           int
	MediumCreates          int
	MediumUpdates          int
	MediumSearches         int

	// BotMinActions is the minimum trailing-window sample size before timing
	// regularity is considered at all.
	BotMinActions int
	// BotIntervalTolerance is the relative band around the mean inter-action
	// interval that counts as "regular".
	BotIntervalTolerance float64
	// BotRegularShare is the fraction of intervals that must fall inside the
	// band for the identity to be flagged bot-like.
	BotRegularShare float64

	// RiskMultipliers scale the base per-operation budgets down by risk.
	RiskMultipliers map[RiskLevel]float64
	// BotMultiplier further scales budgets for bot-like identities.
	BotMultiplier float64
	// MinLimits floor the scaled budgets so a flagged identity is slowed
	// down, never locked out entirely.
	MinLimits map[Operation]int
}

// DefaultProfilerThresholds returns the stock tuning.
func DefaultProfilerThresholds() ProfilerThresholds {
	return ProfilerThresholds{
		AnalysisWindow:         time.Hour,
		MaxHistory:             100,
		CriticalFailedAttempts: 10,
		HighCreates:            5,
		HighSearches:           100,
		MediumCreates:          3,
		MediumUpdates:          20,
		MediumSearches:         50,
		BotMinActions:          10,
		BotIntervalTolerance:   0.10,
		BotRegularShare:        0.70,
		RiskMultipliers: map[RiskLevel]float64{
			RiskLow:      1.0,
			RiskMedium:   0.7,
			RiskHigh:     0.5,
			RiskCritical: 0.2,
		},
		BotMultiplier: 0.3,
		MinLimits: map[Operation]int{
			OpCreate: 1,
			OpUpdate: 1,
			OpSearch: 5,
			OpView:   5,
		},
	}
}

// Profiler keeps a bounded per-identity action history and derives a fresh
// behavioral assessment from it on demand. Nothing derived is stored; every
// Analyze is a pure recomputation over the trailing window.
//
// Safe for concurrent use.
type Profiler struct {
	mu         sync.Mutex
	th         ProfilerThresholds
	baseLimits map[Operation]int
	history    map[string][]ActionRecord
	now        func() time.Time
}

// NewProfiler constructs a Profiler. baseLimits are the unscaled
// per-operation budgets that recommended limits start from, normally the
// tier MaxAttempts values.
func NewProfiler(th ProfilerThresholds, baseLimits map[Operation]int) (*Profiler, error) {
	if th.AnalysisWindow <= 0 {
		return nil, fmt.Errorf("profiler: analysis window must be positive, got %s", th.AnalysisWindow)
	}
	if th.MaxHistory <= 0 {
		return nil, fmt.Errorf("profiler: max history must be positive, got %d", th.MaxHistory)
	}
	limits := make(map[Operation]int, len(baseLimits))
	for op, max := range baseLimits {
		limits[op] = max
	}
	return &Profiler{
		th:         th,
		baseLimits: limits,
		history:    make(map[string][]ActionRecord),
		now:        time.Now,
	}, nil
}

// Record appends one behavioral event to the identity's history, evicting
// the oldest entry beyond the cap.
func (p *Profiler) Record(identity string, op Operation, failed bool, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	records := append(p.history[identity], ActionRecord{
		Operation: op,
		At:        p.now(),
		Failed:    failed,
		Reason:    reason,
	})
	if len(records) > p.th.MaxHistory {
		records = records[len(records)-p.th.MaxHistory:]
	}
	p.history[identity] = records
}

// MarkLastFailed flags the identity's most recent action as failed, carrying
// the reason. Used when the outcome arrives after the action was recorded.
func (p *Profiler) MarkLastFailed(identity, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	records := p.history[identity]
	if len(records) == 0 {
		return
	}
	records[len(records)-1].Failed = true
	records[len(records)-1].Reason = reason
}

// Analyze derives the identity's current behavioral profile from the
// trailing analysis window.
func (p *Profiler) Analyze(identity string) Profile {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	cutoff := now.Add(-p.th.AnalysisWindow)
	var recent []ActionRecord
	for _, rec := range p.history[identity] {
		if !rec.At.Before(cutoff) {
			recent = append(recent, rec)
		}
	}

	counts := make(map[Operation]int)
	failed := 0
	for _, rec := range recent {
		counts[rec.Operation]++
		if rec.Failed {
			failed++
		}
	}

	risk := p.classify(counts, failed)
	botLike := p.regularTiming(recent)

	return Profile{
		Risk:              risk,
		BotLike:           botLike,
		Counts:            counts,
		FailedAttempts:    failed,
		RecommendedLimits: p.recommendedLimits(risk, botLike),
	}
}

// Sweep drops identities whose newest action is older than maxIdle.
func (p *Profiler) Sweep(maxIdle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-maxIdle)
	removed := 0
	for identity, records := range p.history {
		if len(records) == 0 || records[len(records)-1].At.Before(cutoff) {
			delete(p.history, identity)
			removed++
		}
	}
	return removed
}

func (p *Profiler) classify(counts map[Operation]int, failed int) RiskLevel {
	switch {
	case failed > p.th.CriticalFailedAttempts:
		return RiskCritical
	case counts[OpCreate] > p.th.HighCreates || counts[OpSearch] > p.th.HighSearches:
		return RiskHigh
	case counts[OpCreate] > p.th.MediumCreates ||
		counts[OpUpdate] > p.th.MediumUpdates ||
		counts[OpSearch] > p.th.MediumSearches:
		return RiskMedium
	default:
		return RiskLow
	}
}

// regularTiming reports whether the inter-action intervals are unnaturally
// uniform. Humans jitter; schedulers do not.
func (p *Profiler) regularTiming(recent []ActionRecord) bool {
	if len(recent) < p.th.BotMinActions {
		return false
	}

	intervals := make([]time.Duration, 0, len(recent)-1)
	var total time.Duration
	for i := 1; i < len(recent); i++ {
		gap := recent[i].At.Sub(recent[i-1].At)
		intervals = append(intervals, gap)
		total += gap
	}
	avg := float64(total) / float64(len(intervals))

	band := avg * p.th.BotIntervalTolerance
	regular := 0
	for _, gap := range intervals {
		diff := float64(gap) - avg
		if diff < 0 {
			diff = -diff
		}
		if diff <= band {
			regular++
		}
	}
	return float64(regular)/float64(len(intervals)) > p.th.BotRegularShare
}

func (p *Profiler) recommendedLimits(risk RiskLevel, botLike bool) map[Operation]int {
	mult := p.th.RiskMultipliers[risk]
	if mult == 0 {
		mult = 1.0
	}
	if botLike {
		mult *= p.th.BotMultiplier
	}

	limits := make(map[Operation]int, len(p.baseLimits))
	for op, base := range p.baseLimits {
		if op == OpSuspicious {
			continue
		}
		scaled := int(float64(base) * mult)
		if floor := p.th.MinLimits[op]; scaled < floor {
			scaled = floor
		}
		limits[op] = scaled
	}
	return limits
}
