package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tootfill/tootfill/internal/core"
)

// ErrAcquireTimeout is returned when a bucket cannot admit a request within
// its acquire timeout.
var ErrAcquireTimeout = errors.New("rate bucket acquire timed out")

// Defaults for a newly seen host. Capacity is half of the 300 calls per
// 5 minutes a Mastodon-compatible server grants each IP.
const (
	DefaultCapacity        = 150
	DefaultInterval        = 300 * time.Second
	DefaultInitialLevel    = 2
	DefaultAcquireTimeout  = 30 * time.Second
	DefaultIntervalCeiling = time.Hour
)

const levelEpsilon = 1e-9

// BucketConfig holds the parameters a bucket is created with.
type BucketConfig struct {
	Capacity        int
	Interval        time.Duration
	InitialLevel    int
	AcquireTimeout  time.Duration
	IntervalCeiling time.Duration

	// Clock and Sleep are swapped out in tests.
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultBucketConfig returns the built-in tunables.
func DefaultBucketConfig() BucketConfig {
	return BucketConfig{
		Capacity:        DefaultCapacity,
		Interval:        DefaultInterval,
		InitialLevel:    DefaultInitialLevel,
		AcquireTimeout:  DefaultAcquireTimeout,
		IntervalCeiling: DefaultIntervalCeiling,
	}
}

func (c BucketConfig) withDefaults() BucketConfig {
	if c.Capacity < 1 {
		c.Capacity = DefaultCapacity
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.InitialLevel < 0 {
		c.InitialLevel = 0
	}
	if c.InitialLevel > c.Capacity {
		c.InitialLevel = c.Capacity
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.IntervalCeiling <= 0 {
		c.IntervalCeiling = DefaultIntervalCeiling
	}
	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC() }
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	return c
}

// Bucket is a leaky bucket guarding one origin host.
//
// Level counts units still in the bucket and drains linearly at Capacity
// units per Interval. A request is admitted only once the level has drained
// to zero, so admissions are spaced at least Interval/Capacity apart and no
// window of Interval admits more than Capacity of them. Capacity may only
// shrink and Interval may only grow after creation.
type Bucket struct {
	mu       sync.Mutex
	capacity int
	level    float64
	interval time.Duration
	ceiling  time.Duration
	timeout  time.Duration
	updated  time.Time
	acquired int

	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBucket creates a bucket. Zero-valued Capacity, Interval, AcquireTimeout
// and IntervalCeiling fall back to defaults; InitialLevel is taken as given
// (clamped to [0, Capacity]), so a zero level stays expressible.
func NewBucket(cfg BucketConfig) *Bucket {
	cfg = cfg.withDefaults()
	return &Bucket{
		capacity: cfg.Capacity,
		level:    float64(cfg.InitialLevel),
		interval: cfg.Interval,
		ceiling:  cfg.IntervalCeiling,
		timeout:  cfg.AcquireTimeout,
		updated:  cfg.Clock(),
		clock:    cfg.Clock,
		sleep:    cfg.Sleep,
	}
}

// Acquire waits for the backlog ahead of it to drain, then consumes one unit.
// It fails with ErrAcquireTimeout without waiting when the backlog would not
// drain within the acquire timeout, or with the context error if ctx ends
// first.
func (b *Bucket) Acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	deadline := b.clock().Add(b.timeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait, ok := b.reserve()
		if ok {
			return nil
		}
		if b.clock().Add(wait).After(deadline) {
			return fmt.Errorf("%w: backlog drains in %s, limit %s", ErrAcquireTimeout, wait.Round(time.Millisecond), b.timeout)
		}
		if err := b.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// TryAcquire consumes one unit if the bucket has drained right now.
func (b *Bucket) TryAcquire() bool {
	_, ok := b.reserve()
	return ok
}

// reserve takes a unit once the level has drained, or reports how long the
// remaining level needs to drain.
func (b *Bucket) reserve() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.leak(b.clock())
	if b.level <= levelEpsilon {
		b.level++
		b.acquired++
		return 0, true
	}
	return b.drainTime(b.level), false
}

// drainTime rounds up so that sleeping it always empties units.
// Caller holds b.mu.
func (b *Bucket) drainTime(units float64) time.Duration {
	return time.Duration(math.Ceil(float64(b.interval) * units / float64(b.capacity)))
}

// Credit releases units from the current window, clamping the level at zero.
func (b *Bucket) Credit(units int) {
	if units <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.leak(b.clock())
	b.level = math.Max(0, b.level-float64(units))
}

// Reconcile aligns the level with a server-reported remaining count. The
// level is only ever raised, to capacity minus remaining; a server reporting
// more headroom than the bucket believes in changes nothing.
func (b *Bucket) Reconcile(remaining int) bool {
	if remaining < 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.leak(b.clock())
	consumed := float64(b.capacity - remaining)
	if consumed <= b.level {
		return false
	}
	b.level = consumed
	return true
}

// SetCapacity lowers the capacity. Raising is refused.
func (b *Bucket) SetCapacity(capacity int) bool {
	if capacity < 1 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if capacity >= b.capacity {
		return false
	}
	b.leak(b.clock())
	b.capacity = capacity
	return true
}

// SetInterval lengthens the drain interval, up to (not including) the ceiling.
func (b *Bucket) SetInterval(interval time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if interval <= b.interval || interval >= b.ceiling {
		return false
	}
	b.leak(b.clock())
	b.interval = interval
	return true
}

// Capacity returns the current capacity.
func (b *Bucket) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Level returns the drained level as of now.
func (b *Bucket) Level() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leak(b.clock())
	return b.level
}

// Interval returns the current drain interval.
func (b *Bucket) Interval() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.interval
}

// IntervalCeiling returns the upper bound for SetInterval.
func (b *Bucket) IntervalCeiling() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ceiling
}

// Snapshot returns a copy of the bucket state. Host-level fields are left
// for the registry to fill.
func (b *Bucket) Snapshot() core.BucketSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leak(b.clock())
	return core.BucketSnapshot{
		Capacity: b.capacity,
		Level:    b.level,
		Interval: b.interval,
		Acquired: b.acquired,
	}
}

// leak drains the level for the time elapsed since the last update.
// Caller holds b.mu.
func (b *Bucket) leak(now time.Time) {
	elapsed := now.Sub(b.updated)
	if elapsed <= 0 {
		return
	}
	if b.level > 0 {
		drained := float64(b.capacity) * elapsed.Seconds() / b.interval.Seconds()
		b.level = math.Max(0, b.level-drained)
	}
	b.updated = now
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
