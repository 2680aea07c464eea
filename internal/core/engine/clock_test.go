package engine

import (
	"context"
	"time"
)

// fakeClock advances only when slept on or told to.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) config(capacity int, interval time.Duration, initial int) BucketConfig {
	return BucketConfig{
		Capacity:        capacity,
		Interval:        interval,
		InitialLevel:    initial,
		AcquireTimeout:  DefaultAcquireTimeout,
		IntervalCeiling: DefaultIntervalCeiling,
		Clock:           c.Now,
		Sleep:           c.Sleep,
	}
}
