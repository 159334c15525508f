// Package eventlog carries structured security events from the admission
// engine to wherever they are stored. Delivery and retention are the sink's
// problem; the engine only emits.
//
// Two sinks are provided:
//
//   - ZapSink writes events to a zap logger, which is enough for
//     single-instance deployments that ship logs anyway.
//   - RedisSink appends events to a Redis stream so an external consumer can
//     aggregate them across instances.
//
// Sinks are best effort. Emit may return an error for callers that care, but
// the engine swallows it: an event that cannot be delivered must never gate
// an admission decision.
package eventlog

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event types emitted by the admission engine.
const (
	TypeRateLimitExceeded  = "rate_limit_exceeded"
	TypeSuspiciousActivity = "suspicious_activity"
	TypeIPBlocked          = "ip_blocked"
	TypeBotDetected        = "bot_detected"
)

// Event is one security observation. Identity holds either the resolved
// caller identity or, for anonymous traffic, the source IP. UserAgent,
// Method and Path are filled by the protocol layer when known; the engine
// itself leaves them empty.
type Event struct {
	At        time.Time
	Identity  string
	UserAgent string
	Method    string
	Path      string
	Type      string
	Details   map[string]string
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Emit(ctx context.Context, ev Event) error { return nil }

// ZapSink logs each event as one structured entry.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink wraps a zap logger as a Sink.
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Emit(ctx context.Context, ev Event) error {
	fields := []zap.Field{
		zap.Time("at", ev.At),
		zap.String("identity", ev.Identity),
		zap.String("event_type", ev.Type),
	}
	if ev.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", ev.UserAgent))
	}
	if ev.Method != "" {
		fields = append(fields, zap.String("method", ev.Method))
	}
	if ev.Path != "" {
		fields = append(fields, zap.String("path", ev.Path))
	}
	for k, v := range ev.Details {
		fields = append(fields, zap.String(k, v))
	}
	s.logger.Info("security event", fields...)
	return nil
}
