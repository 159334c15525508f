// Package admission decides, per caller and per operation class, whether a
// request on a multi-tenant platform may proceed, and adapts its thresholds
// to observed behavior instead of enforcing a single static limit.
//
// The primary entry point is the Engine:
//
//	res, err := engine.Check(ctx, admission.OpSearch, identity, authenticated)
//
// The returned Result contains whether the request is allowed, how much of
// the budget remains, and timing hints for callers that want to set
// rate-limit headers (for example, Retry-After).
//
// # Overview
//
// The engine composes four pieces:
//
//   - SlidingWindow: a generic counter admitting at most N attempts per key
//     in any trailing interval of fixed length.
//   - Registry: five independently configured windows, one per operation
//     class (create, update, search, view, suspicious). Exhausting one class
//     never touches another.
//   - Profiler: a bounded per-identity action history from which a risk
//     level, a bot-likelihood flag and advisory per-operation limits are
//     recomputed on every query.
//   - ReputationTracker: per-IP request history and a suspicious-activity
//     counter, yielding a risk level and a recommended traffic action for
//     anonymous callers.
//
// Authenticated traffic flows through the Profiler; anonymous traffic (where
// the identity is the source IP) through the ReputationTracker. Identities
// the profiler flags as critical or bot-like must additionally pass the
// tight suspicious tier, and its denial outranks the operation tier. IPs the
// tracker wants blocked are denied outright with a fixed wait, bypassing the
// tiers.
//
// # Decision Semantics
//
// A denial is a normal Result, never an error. Result fields are directly
// consumable by protocol code:
//
//   - Allowed reports whether the current request is permitted.
//   - Remaining is the number of attempts left in the window after this
//     decision.
//   - RetryAfter is 0 when allowed; when denied it is how long to wait until
//     the oldest counted attempt ages out (or the fixed block duration for
//     reputation-blocked IPs).
//   - ResetTime is the absolute instant the budget restores.
//
// The only error Check returns is ErrUnknownOperation, a caller programming
// error.
//
// # Concurrency
//
// Everything is safe for concurrent use. Each window's read-prune-append
// sequence runs as one critical section, so parallel callers cannot
// over-admit beyond MaxAttempts.
//
// # Scope
//
// State is process-local and in-memory. Nothing is persisted and nothing is
// coordinated across instances: each replica enforces its own budget, which
// is acceptable for single-instance deployments or behind a coordinating
// layer. Idle keys are evicted only by Sweep, which callers are expected to
// run periodically.
//
// # Side Channels
//
// The engine emits security events (rate_limit_exceeded, ip_blocked,
// bot_detected, suspicious_activity) to an eventlog.Sink and counters and
// latencies to a MetricsRecorder. Both are fire-and-forget: a slow or broken
// sink can never gate an admission decision.
//
// # Configuration
//
// The Engine is configured with functional options:
//
//	engine, err := admission.New(
//		admission.WithTierConfig(admission.OpSearch, admission.WindowConfig{
//			Window:      time.Minute,
//			MaxAttempts: 100,
//			KeyPrefix:   "search:",
//		}),
//		admission.WithSink(eventlog.NewZapSink(logger)),
//		admission.WithRecorder(metrics.NewPrometheusRecorder(nil)),
//	)
//
// Every numeric cutoff in the profiler and the reputation tracker is part of
// ProfilerThresholds or ReputationThresholds rather than a constant: the
// stock values are inherited operating numbers, not derived ones, and
// deployments tune them.
package admission
