package engine

import (
	"math"
	"time"

	"github.com/tootfill/tootfill/internal/core"
)

// Feedback describes the adjustments one response caused.
type Feedback struct {
	Reconciled      bool
	Level           float64
	CapacityLowered bool
	Capacity        int
	IntervalRaised  bool
	Interval        time.Duration
}

// Changed reports whether any adjustment was made.
func (f Feedback) Changed() bool {
	return f.Reconciled || f.CapacityLowered || f.IntervalRaised
}

// FeedbackAdapter tightens a host's bucket from server rate-limit metadata.
type FeedbackAdapter struct {
	Registry *Registry
	Clock    func() time.Time
}

// Apply inspects info and adjusts bucket (and the registry's interval memory
// for host). Absent values are treated as no information.
func (a *FeedbackAdapter) Apply(host string, bucket *Bucket, info core.RateLimitInfo) Feedback {
	var fb Feedback
	if a == nil || bucket == nil || info.Empty() {
		return fb
	}

	if info.Remaining != nil && *info.Remaining >= 0 {
		if bucket.Capacity()-*info.Remaining > 0 && bucket.Reconcile(*info.Remaining) {
			fb.Reconciled = true
			fb.Level = bucket.Level()
		}
	}

	if info.Limit != nil && *info.Limit < bucket.Capacity() {
		if bucket.SetCapacity(*info.Limit) {
			fb.CapacityLowered = true
			fb.Capacity = *info.Limit
		}
	}

	if info.Reset != nil {
		until := secondsUntil(a.now(), *info.Reset)
		if until > 0 && until < bucket.IntervalCeiling() &&
			until > bucket.Interval() && until > a.rememberedInterval(host) {
			if bucket.SetInterval(until) {
				fb.IntervalRaised = true
				fb.Interval = until
				if a.Registry != nil {
					a.Registry.RememberInterval(host, until)
				}
			}
		}
	}

	return fb
}

func (a *FeedbackAdapter) rememberedInterval(host string) time.Duration {
	if a.Registry == nil {
		return 0
	}
	return a.Registry.RememberedInterval(host)
}

func (a *FeedbackAdapter) now() time.Time {
	if a != nil && a.Clock != nil {
		return a.Clock()
	}
	return time.Now().UTC()
}

// secondsUntil rounds the distance to reset up to whole seconds.
func secondsUntil(now, reset time.Time) time.Duration {
	delta := reset.Sub(now)
	if delta <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(delta.Seconds())) * time.Second
}
