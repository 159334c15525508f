package eventlog

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink appends events to a Redis stream via XADD. The stream is capped
// (approximate MAXLEN) so an idle consumer cannot grow it without bound.
type RedisSink struct {
	client  *redis.Client
	stream  string
	maxLen  int64
	timeout time.Duration
}

// RedisSinkOption customizes a RedisSink.
type RedisSinkOption func(*RedisSink)

// WithStream sets the stream name (default "admission:events").
func WithStream(name string) RedisSinkOption {
	return func(s *RedisSink) { s.stream = name }
}

// WithMaxLen sets the approximate stream cap (default 10000).
func WithMaxLen(n int64) RedisSinkOption {
	return func(s *RedisSink) { s.maxLen = n }
}

// WithTimeout sets the per-emit context timeout (default 5s).
func WithTimeout(d time.Duration) RedisSinkOption {
	return func(s *RedisSink) { s.timeout = d }
}

// NewRedisSink verifies connectivity and returns a sink writing to the
// configured stream.
func NewRedisSink(client *redis.Client, opts ...RedisSinkOption) (*RedisSink, error) {
	s := &RedisSink{
		client:  client,
		stream:  "admission:events",
		maxLen:  10000,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RedisSink) Emit(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	values := map[string]interface{}{
		"at":         strconv.FormatInt(ev.At.UnixMilli(), 10),
		"identity":   ev.Identity,
		"event_type": ev.Type,
	}
	if ev.UserAgent != "" {
		values["user_agent"] = ev.UserAgent
	}
	if ev.Method != "" {
		values["method"] = ev.Method
	}
	if ev.Path != "" {
		values["path"] = ev.Path
	}
	for k, v := range ev.Details {
		values["detail_"+k] = v
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
}
