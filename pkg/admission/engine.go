package admission

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelhq/admission/pkg/eventlog"
)

// ErrUnknownOperation is returned when Check is asked about an operation
// class no tier is configured for. This is a caller programming error, not a
// denial.
var ErrUnknownOperation = errors.New("admission: unknown operation class")

// Engine is the single entry point callers hit once per incoming operation.
// It composes the tier registry with the behavior profiler (authenticated
// traffic) and the IP reputation tracker (anonymous traffic) into one
// admission decision.
//
// Safe for concurrent use. All state is process-local; see the package
// documentation for what that means in a multi-replica deployment.
type Engine struct {
	registry   *Registry
	profiler   *Profiler
	reputation *ReputationTracker
	sink       eventlog.Sink
	recorder   MetricsRecorder
	logger     *zap.Logger
	now        func() time.Time

	// blockRetryAfter is the fixed wait handed to anonymous callers denied
	// by reputation, independent of any tier window.
	blockRetryAfter time.Duration
}

// New constructs an Engine with default tiers and thresholds, customized by
// options. Invalid configuration fails here, never at check time.
func New(opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	registry, err := NewRegistry(cfg.tiers)
	if err != nil {
		return nil, err
	}

	baseLimits := make(map[Operation]int, len(cfg.tiers))
	for op, tier := range cfg.tiers {
		baseLimits[op] = tier.MaxAttempts
	}
	profiler, err := NewProfiler(cfg.profiler, baseLimits)
	if err != nil {
		return nil, err
	}
	reputation, err := NewReputationTracker(cfg.reputation)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		registry:        registry,
		profiler:        profiler,
		reputation:      reputation,
		sink:            cfg.sink,
		recorder:        cfg.recorder,
		logger:          cfg.logger,
		now:             cfg.now,
		blockRetryAfter: cfg.blockRetryAfter,
	}
	registry.setClock(cfg.now)
	profiler.now = cfg.now
	reputation.now = cfg.now
	return e, nil
}

// Check decides whether one operation from identity may proceed. For
// anonymous callers identity is the source IP. A denial is a normal Result,
// not an error; the only error is an unknown operation class.
func (e *Engine) Check(ctx context.Context, op Operation, identity string, authenticated bool) (Result, error) {
	start := time.Now()
	tier, ok := e.registry.Tier(op)
	if !ok {
		return Result{}, ErrUnknownOperation
	}

	tags := map[string]string{"operation": string(op)}
	e.recorder.Add("admission.check", 1, tags)
	defer func() {
		e.recorder.Observe("admission.latency", time.Since(start).Seconds(), tags)
	}()

	if authenticated {
		res := e.checkAuthenticated(ctx, op, tier, identity)
		return res, nil
	}
	res := e.checkAnonymous(ctx, op, tier, identity)
	return res, nil
}

func (e *Engine) checkAuthenticated(ctx context.Context, op Operation, tier *SlidingWindow, identity string) Result {
	e.profiler.Record(identity, op, false, "")
	prof := e.profiler.Analyze(identity)

	if prof.Risk == RiskCritical || prof.BotLike {
		if prof.BotLike {
			e.emit(ctx, eventlog.Event{
				At:       e.now(),
				Identity: identity,
				Type:     eventlog.TypeBotDetected,
				Details:  map[string]string{"operation": string(op), "risk": string(prof.Risk)},
			})
		}
		// Flagged identities burn the suspicious budget first; its denial
		// outranks the operation tier.
		if sus, ok := e.registry.Tier(OpSuspicious); ok {
			if res := sus.Check(identity); !res.Allowed {
				e.denied(ctx, op, identity, "suspicious_tier", res)
				return res
			}
		}
	}

	res := tier.Check(identity)
	if !res.Allowed {
		e.denied(ctx, op, identity, "tier", res)
	}
	return res
}

func (e *Engine) checkAnonymous(ctx context.Context, op Operation, tier *SlidingWindow, ip string) Result {
	assess := e.reputation.CheckIP(ip)
	if assess.Action == ActionBlockTemp || assess.Action == ActionBlockPerm {
		now := e.now()
		res := Result{
			Allowed:    false,
			Remaining:  0,
			ResetTime:  now.Add(e.blockRetryAfter),
			RetryAfter: e.blockRetryAfter,
		}
		e.emit(ctx, eventlog.Event{
			At:       now,
			Identity: ip,
			Type:     eventlog.TypeIPBlocked,
			Details: map[string]string{
				"operation": string(op),
				"risk":      string(assess.Risk),
				"action":    string(assess.Action),
			},
		})
		e.recorder.Add("admission.denied", 1, map[string]string{"operation": string(op), "reason": "ip_block"})
		return res
	}

	res := tier.Check(ip)
	if !res.Allowed {
		e.denied(ctx, op, ip, "tier", res)
	}
	return res
}

// RecordFailure feeds the outcome of an operation that was admitted but then
// failed. It raises the caller's future risk without denying anything now:
// the profiler marks the action failed for authenticated callers, the
// reputation tracker counts a suspicious event for anonymous ones. Tiers
// configured with SkipFailed refund the attempt.
func (e *Engine) RecordFailure(ctx context.Context, op Operation, identity string, authenticated bool, reason string) {
	if tier, ok := e.registry.Tier(op); ok {
		tier.UpdateLast(identity, false)
	}

	if authenticated {
		e.profiler.MarkLastFailed(identity, reason)
		return
	}

	count := e.reputation.RecordSuspicious(identity)
	e.emit(ctx, eventlog.Event{
		At:       e.now(),
		Identity: identity,
		Type:     eventlog.TypeSuspiciousActivity,
		Details: map[string]string{
			"operation": string(op),
			"reason":    reason,
			"count":     strconv.Itoa(count),
		},
	})
}

// Profile returns the identity's current behavioral assessment, including
// the advisory per-operation recommended limits.
func (e *Engine) Profile(identity string) Profile {
	return e.profiler.Analyze(identity)
}

// Status reports the tier budget for identity without admitting anything.
func (e *Engine) Status(op Operation, identity string) (Result, error) {
	tier, ok := e.registry.Tier(op)
	if !ok {
		return Result{}, ErrUnknownOperation
	}
	return tier.Status(identity), nil
}

// Sweep evicts identities and addresses idle for longer than maxIdle from
// every component, bounding key-space growth. Callers run it periodically;
// the engine schedules nothing itself.
func (e *Engine) Sweep(maxIdle time.Duration) int {
	removed := e.registry.Sweep(maxIdle)
	removed += e.profiler.Sweep(maxIdle)
	removed += e.reputation.Sweep(maxIdle)
	return removed
}

func (e *Engine) denied(ctx context.Context, op Operation, identity, reason string, res Result) {
	e.recorder.Add("admission.denied", 1, map[string]string{"operation": string(op), "reason": reason})
	e.emit(ctx, eventlog.Event{
		At:       e.now(),
		Identity: identity,
		Type:     eventlog.TypeRateLimitExceeded,
		Details: map[string]string{
			"operation":   string(op),
			"reason":      reason,
			"retry_after": res.RetryAfter.String(),
		},
	})
}

// emit hands an event to the sink off the decision path. A slow or broken
// sink must never gate, block, or corrupt an admission decision.
func (e *Engine) emit(ctx context.Context, ev eventlog.Event) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Warn("event sink panicked", zap.Any("panic", r))
			}
		}()
		if err := e.sink.Emit(context.WithoutCancel(ctx), ev); err != nil {
			e.logger.Debug("event sink emit failed", zap.Error(err), zap.String("event_type", ev.Type))
		}
	}()
}
