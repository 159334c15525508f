package admission

import (
	"fmt"
	"sync"
	"time"
)

// rateEntry is one admitted attempt. An attempt starts out pending and is
// settled by UpdateLast once its outcome is known.
type rateEntry struct {
	at     time.Time
	failed bool
}

// SlidingWindow admits at most MaxAttempts events per key in any trailing
// interval of Window length.
//
// It is safe for concurrent use by multiple goroutines: every
// read-prune-append sequence runs under the mutex, so concurrent callers
// cannot over-admit beyond MaxAttempts. State is local to the process.
type SlidingWindow struct {
	mu   sync.Mutex
	cfg  WindowConfig
	keys map[string][]rateEntry
	now  func() time.Time
}

// NewSlidingWindow constructs a SlidingWindow with empty state. Invalid
// policy is a construction error, never a call-time surprise.
func NewSlidingWindow(cfg WindowConfig) (*SlidingWindow, error) {
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("sliding window: max attempts must be positive, got %d", cfg.MaxAttempts)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("sliding window: window must be positive, got %s", cfg.Window)
	}
	return &SlidingWindow{
		cfg:  cfg,
		keys: make(map[string][]rateEntry),
		now:  time.Now,
	}, nil
}

// Config returns the window's immutable policy.
func (w *SlidingWindow) Config() WindowConfig {
	return w.cfg
}

// Check decides whether one more attempt for key fits in the trailing
// window. When it does, the attempt is recorded at the current instant and
// counts against capacity immediately. Denials carry how long the caller
// should wait until the oldest attempt ages out.
func (w *SlidingWindow) Check(key string) Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	key = w.cfg.KeyPrefix + key
	entries := pruneEntries(w.keys[key], now.Add(-w.cfg.Window))

	if len(entries) >= w.cfg.MaxAttempts {
		w.keys[key] = entries
		return w.denied(entries, now)
	}

	entries = append(entries, rateEntry{at: now})
	w.keys[key] = entries
	return Result{
		Allowed:   true,
		Remaining: w.cfg.MaxAttempts - len(entries),
		ResetTime: entries[0].at.Add(w.cfg.Window),
	}
}

// Status reports what Check would return without admitting anything. Calling
// it any number of times never changes the outcome of the next Check.
func (w *SlidingWindow) Status(key string) Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	key = w.cfg.KeyPrefix + key
	entries := pruneEntries(w.keys[key], now.Add(-w.cfg.Window))
	w.keys[key] = entries

	if len(entries) >= w.cfg.MaxAttempts {
		return w.denied(entries, now)
	}

	res := Result{
		Allowed:   true,
		Remaining: w.cfg.MaxAttempts - len(entries),
	}
	if len(entries) > 0 {
		res.ResetTime = entries[0].at.Add(w.cfg.Window)
	} else {
		res.ResetTime = now
	}
	return res
}

// UpdateLast settles the outcome of the most recently admitted attempt for
// key. With SkipFailed set, a failed attempt is removed from the window and
// no longer counts against capacity.
func (w *SlidingWindow) UpdateLast(key string, success bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key = w.cfg.KeyPrefix + key
	entries := w.keys[key]
	if len(entries) == 0 {
		return
	}
	if success {
		entries[len(entries)-1].failed = false
		return
	}
	if w.cfg.SkipFailed {
		w.keys[key] = entries[:len(entries)-1]
		return
	}
	entries[len(entries)-1].failed = true
}

// Sweep drops keys whose newest attempt is older than maxIdle, bounding
// key-space growth for identities that stopped sending traffic. It returns
// the number of keys removed.
func (w *SlidingWindow) Sweep(maxIdle time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-maxIdle)
	removed := 0
	for key, entries := range w.keys {
		if len(entries) == 0 || entries[len(entries)-1].at.Before(cutoff) {
			delete(w.keys, key)
			removed++
		}
	}
	return removed
}

func (w *SlidingWindow) denied(entries []rateEntry, now time.Time) Result {
	reset := entries[0].at.Add(w.cfg.Window)
	wait := reset.Sub(now)
	retry := wait / time.Second
	if wait%time.Second != 0 {
		retry++
	}
	return Result{
		Allowed:    false,
		Remaining:  0,
		ResetTime:  reset,
		RetryAfter: retry * time.Second,
	}
}

// pruneEntries drops everything before cutoff. Entries are ordered by
// timestamp, so this advances an index instead of filtering the whole slice.
func pruneEntries(entries []rateEntry, cutoff time.Time) []rateEntry {
	idx := 0
	for idx < len(entries) && entries[idx].at.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		return entries[idx:]
	}
	return entries
}
