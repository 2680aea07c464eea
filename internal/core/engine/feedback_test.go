package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tootfill/tootfill/internal/core"
)

const feedbackHost = "https://example.social/"

func intPtr(v int) *int { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func newFeedbackFixture() (*fakeClock, *Registry, *FeedbackAdapter, *Bucket) {
	clock := newFakeClock()
	registry := NewRegistry(clock.config(DefaultCapacity, DefaultInterval, DefaultInitialLevel))
	adapter := &FeedbackAdapter{Registry: registry, Clock: clock.Now}
	return clock, registry, adapter, registry.BucketFor(feedbackHost)
}

func TestFeedbackReconcilesRemaining(t *testing.T) {
	_, _, adapter, bucket := newFeedbackFixture()

	fb := adapter.Apply(feedbackHost, bucket, core.RateLimitInfo{Remaining: intPtr(140)})
	require.True(t, fb.Reconciled)
	require.InDelta(t, 10.0, bucket.Level(), 1e-6)
	require.InDelta(t, 10.0, fb.Level, 1e-6)
}

func TestFeedbackIgnoresMoreHeadroom(t *testing.T) {
	_, _, adapter, bucket := newFeedbackFixture()

	fb := adapter.Apply(feedbackHost, bucket, core.RateLimitInfo{Remaining: intPtr(149)})
	require.False(t, fb.Changed())
	require.InDelta(t, 2.0, bucket.Level(), 1e-6)

	fb = adapter.Apply(feedbackHost, bucket, core.RateLimitInfo{Remaining: intPtr(300)})
	require.False(t, fb.Changed())
	require.InDelta(t, 2.0, bucket.Level(), 1e-6)
}

func TestFeedbackLowersCapacityOnly(t *testing.T) {
	_, _, adapter, bucket := newFeedbackFixture()

	fb := adapter.Apply(feedbackHost, bucket, core.RateLimitInfo{Limit: intPtr(60)})
	require.True(t, fb.CapacityLowered)
	require.Equal(t, 60, bucket.Capacity())

	fb = adapter.Apply(feedbackHost, bucket, core.RateLimitInfo{Limit: intPtr(100)})
	require.False(t, fb.Changed())
	require.Equal(t, 60, bucket.Capacity())
}

func TestFeedbackRaisesIntervalFromReset(t *testing.T) {
	clock, registry, adapter, bucket := newFeedbackFixture()

	reset := clock.Now().Add(599*time.Second + 200*time.Millisecond)
	fb := adapter.Apply(feedbackHost, bucket, core.RateLimitInfo{Reset: timePtr(reset)})
	require.True(t, fb.IntervalRaised)
	require.Equal(t, 600*time.Second, bucket.Interval())
	require.Equal(t, 600*time.Second, registry.RememberedInterval(feedbackHost))
}

func TestFeedbackIgnoresUnusableReset(t *testing.T) {
	clock, registry, adapter, bucket := newFeedbackFixture()

	cases := []time.Time{
		clock.Now().Add(-time.Minute),
		clock.Now().Add(2 * time.Minute),
		clock.Now().Add(time.Hour),
		clock.Now().Add(3 * time.Hour),
	}
	for _, reset := range cases {
		fb := adapter.Apply(feedbackHost, bucket, core.RateLimitInfo{Reset: timePtr(reset)})
		require.False(t, fb.Changed(), "reset %s", reset)
	}
	require.Equal(t, DefaultInterval, bucket.Interval())
	require.Equal(t, DefaultInterval, registry.RememberedInterval(feedbackHost))
}

func TestFeedbackRespectsRememberedInterval(t *testing.T) {
	clock, registry, adapter, bucket := newFeedbackFixture()
	registry.RememberInterval(feedbackHost, 900*time.Second)

	fb := adapter.Apply(feedbackHost, bucket, core.RateLimitInfo{Reset: timePtr(clock.Now().Add(600 * time.Second))})
	require.False(t, fb.IntervalRaised)
	require.Equal(t, DefaultInterval, bucket.Interval())
}

func TestFeedbackEmptyInfo(t *testing.T) {
	_, _, adapter, bucket := newFeedbackFixture()

	fb := adapter.Apply(feedbackHost, bucket, core.RateLimitInfo{})
	require.False(t, fb.Changed())

	var nilAdapter *FeedbackAdapter
	fb = nilAdapter.Apply(feedbackHost, bucket, core.RateLimitInfo{Limit: intPtr(1)})
	require.False(t, fb.Changed())
	require.Equal(t, DefaultCapacity, bucket.Capacity())
}

func TestFeedbackMonotonicAcrossSequence(t *testing.T) {
	clock, _, adapter, bucket := newFeedbackFixture()

	steps := []core.RateLimitInfo{
		{Limit: intPtr(120), Remaining: intPtr(100)},
		{Limit: intPtr(200)},
		{Reset: timePtr(clock.Now().Add(400 * time.Second))},
		{Reset: timePtr(clock.Now().Add(350 * time.Second))},
		{Limit: intPtr(90), Remaining: intPtr(89)},
		{Reset: timePtr(clock.Now().Add(50 * time.Minute))},
	}

	capacity := bucket.Capacity()
	interval := bucket.Interval()
	for _, step := range steps {
		adapter.Apply(feedbackHost, bucket, step)
		require.LessOrEqual(t, bucket.Capacity(), capacity)
		require.GreaterOrEqual(t, bucket.Interval(), interval)
		capacity = bucket.Capacity()
		interval = bucket.Interval()
	}
	require.Equal(t, 90, bucket.Capacity())
	require.Equal(t, 50*time.Minute, bucket.Interval())
}
