package admission

import (
	"time"

	"go.uber.org/zap"

	"github.com/kestrelhq/admission/pkg/eventlog"
)

type engineConfig struct {
	tiers           map[Operation]WindowConfig
	profiler        ProfilerThresholds
	reputation      ReputationThresholds
	sink            eventlog.Sink
	recorder        MetricsRecorder
	logger          *zap.Logger
	now             func() time.Time
	blockRetryAfter time.Duration
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		tiers:           DefaultTierConfigs(),
		profiler:        DefaultProfilerThresholds(),
		reputation:      DefaultReputationThresholds(),
		sink:            eventlog.NopSink{},
		recorder:        &NoOpMetricsRecorder{},
		logger:          zap.NewNop(),
		now:             time.Now,
		blockRetryAfter: time.Hour,
	}
}

// Option customizes an Engine at construction time.
type Option func(*engineConfig)

// WithTierConfig overrides the policy of one operation class.
func WithTierConfig(op Operation, cfg WindowConfig) Option {
	return func(c *engineConfig) { c.tiers[op] = cfg }
}

// WithTierConfigs replaces all tier policies at once. The map must cover
// every operation class.
func WithTierConfigs(tiers map[Operation]WindowConfig) Option {
	return func(c *engineConfig) { c.tiers = tiers }
}

// WithProfilerThresholds replaces the behavioral tuning.
func WithProfilerThresholds(th ProfilerThresholds) Option {
	return func(c *engineConfig) { c.profiler = th }
}

// WithReputationThresholds replaces the IP reputation tuning.
func WithReputationThresholds(th ReputationThresholds) Option {
	return func(c *engineConfig) { c.reputation = th }
}

// WithSink sets where security events are delivered (default: discarded).
func WithSink(sink eventlog.Sink) Option {
	return func(c *engineConfig) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithRecorder injects a metrics backend (default: no-op).
func WithRecorder(rec MetricsRecorder) Option {
	return func(c *engineConfig) {
		if rec != nil {
			c.recorder = rec
		}
	}
}

// WithLogger sets the engine's own logger (default: no-op).
func WithLogger(logger *zap.Logger) Option {
	return func(c *engineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock injects the time source. Tests use it to step through windows
// without sleeping.
func WithClock(now func() time.Time) Option {
	return func(c *engineConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithBlockRetryAfter sets the fixed wait returned to reputation-blocked
// anonymous callers (default one hour).
func WithBlockRetryAfter(d time.Duration) Option {
	return func(c *engineConfig) {
		if d > 0 {
			c.blockRetryAfter = d
		}
	}
}
