package client

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/DrewBradfordXYZ/sforce-go/soap"
)

// Throttle paces query continuation. Acquire is called before every
// queryMore request and may block; it must return early with ctx.Err() when
// the context is done.
type Throttle interface {
	Acquire(ctx context.Context) error
}

// LimitObserver is implemented by throttles that react to the API usage the
// service reports in its LimitInfoHeader. The client feeds it every page.
type LimitObserver interface {
	ObserveLimits(limits []soap.LimitInfo)
}

// NoOpThrottle is a throttle that does nothing (the default).
type NoOpThrottle struct{}

// NewNoOpThrottle creates a no-op throttle.
func NewNoOpThrottle() *NoOpThrottle {
	return &NoOpThrottle{}
}

// Acquire returns immediately unless ctx is already done.
func (t *NoOpThrottle) Acquire(ctx context.Context) error {
	return ctx.Err()
}

// FixedDelayThrottle waits the same delay before every page.
type FixedDelayThrottle struct {
	delay time.Duration
}

// NewFixedDelayThrottle creates a throttle pausing d between pages.
func NewFixedDelayThrottle(d time.Duration) *FixedDelayThrottle {
	return &FixedDelayThrottle{delay: d}
}

// Acquire sleeps for the configured delay.
func (t *FixedDelayThrottle) Acquire(ctx context.Context) error {
	return sleep(ctx, t.delay)
}

// SlidingWindowThrottle allows at most limit pages per window.
type SlidingWindowThrottle struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	timestamps []time.Time
}

// NewSlidingWindowThrottle creates a new sliding window throttle.
// Defaults are 100 requests per 10 seconds.
func NewSlidingWindowThrottle(limit int, window time.Duration) *SlidingWindowThrottle {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = 10 * time.Second
	}
	return &SlidingWindowThrottle{
		limit:      limit,
		window:     window,
		timestamps: make([]time.Time, 0, limit),
	}
}

// Acquire waits until a slot is available in the window.
func (t *SlidingWindowThrottle) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.mu.Lock()
		now := time.Now()
		t.prune(now)

		if len(t.timestamps) < t.limit {
			t.timestamps = append(t.timestamps, now)
			t.mu.Unlock()
			return nil
		}

		// Wait until the oldest request leaves the window
		waitTime := t.timestamps[0].Add(t.window).Sub(now)
		t.mu.Unlock()

		if err := sleep(ctx, waitTime); err != nil {
			return err
		}
	}
}

// prune drops timestamps outside the window (must be called with lock held).
func (t *SlidingWindowThrottle) prune(now time.Time) {
	windowStart := now.Add(-t.window)
	kept := t.timestamps[:0]
	for _, ts := range t.timestamps {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	t.timestamps = kept
}

// WindowCount returns the number of requests in the current window.
func (t *SlidingWindowThrottle) WindowCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune(time.Now())
	return len(t.timestamps)
}

// Remaining returns how many requests the current window still allows.
func (t *SlidingWindowThrottle) Remaining() int {
	return max(0, t.limit-t.WindowCount())
}

// Reset clears the throttle state.
func (t *SlidingWindowThrottle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timestamps = t.timestamps[:0]
}

// DefaultUsageThreshold is the API usage ratio above which AdaptiveThrottle
// starts backing off.
const DefaultUsageThreshold = 0.8

// AdaptiveThrottle backs off exponentially between pages while the reported
// API usage is at or above a threshold, and does not wait otherwise.
type AdaptiveThrottle struct {
	mu        sync.Mutex
	threshold float64
	policy    *backoff.ExponentialBackOff
	pressured bool
}

// NewAdaptiveThrottle creates an adaptive throttle. threshold is a usage
// ratio in (0, 1]; other values select DefaultUsageThreshold. initial and
// maxDelay bound the backoff delays (defaults 1s and 30s).
func NewAdaptiveThrottle(threshold float64, initial, maxDelay time.Duration) *AdaptiveThrottle {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultUsageThreshold
	}
	if initial <= 0 {
		initial = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	maxDelay = max(maxDelay, initial)
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initial
	policy.MaxInterval = maxDelay
	policy.Reset()

	return &AdaptiveThrottle{threshold: threshold, policy: policy}
}

// ObserveLimits records the latest usage report. Falling back under the
// threshold resets the backoff.
func (t *AdaptiveThrottle) ObserveLimits(limits []soap.LimitInfo) {
	if len(limits) == 0 {
		return
	}
	pressured := false
	for _, l := range limits {
		if l.Usage() >= t.threshold {
			pressured = true
			break
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pressured && !pressured {
		t.policy.Reset()
	}
	t.pressured = pressured
}

// Pressured reports whether the last observed usage was at or above the threshold.
func (t *AdaptiveThrottle) Pressured() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pressured
}

// Acquire waits for the next backoff delay while usage is high.
func (t *AdaptiveThrottle) Acquire(ctx context.Context) error {
	t.mu.Lock()
	if !t.pressured {
		t.mu.Unlock()
		return ctx.Err()
	}
	delay := t.policy.NextBackOff()
	t.mu.Unlock()

	if delay == backoff.Stop {
		delay = t.policy.MaxInterval
	}
	return sleep(ctx, delay)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
