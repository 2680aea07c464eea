package core

import "time"

// BucketSnapshot captures per-host throttling state at a point in time.
type BucketSnapshot struct {
	Host               string        `json:"host"`
	Capacity           int           `json:"capacity"`
	Level              float64       `json:"level"`
	Interval           time.Duration `json:"interval"`
	RememberedInterval time.Duration `json:"remembered_interval"`
	Acquired           int           `json:"acquired"`
}

// RateLimitInfo is the rate-limit metadata a server attached to a response.
// Nil fields were absent or malformed.
type RateLimitInfo struct {
	Remaining *int
	Limit     *int
	Reset     *time.Time
}

// Empty reports whether no usable rate-limit metadata was present.
func (i RateLimitInfo) Empty() bool {
	return i.Remaining == nil && i.Limit == nil && i.Reset == nil
}
