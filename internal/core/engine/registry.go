package engine

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tootfill/tootfill/internal/core"
)

// Registry owns one bucket per origin host for the duration of a run.
// Entries are created lazily and never removed.
type Registry struct {
	mu        sync.Mutex
	defaults  BucketConfig
	buckets   map[string]*Bucket
	intervals map[string]time.Duration
}

// NewRegistry creates an empty registry whose buckets start from defaults.
func NewRegistry(defaults BucketConfig) *Registry {
	return &Registry{
		defaults:  defaults.withDefaults(),
		buckets:   make(map[string]*Bucket),
		intervals: make(map[string]time.Duration),
	}
}

// BucketFor returns the bucket for host, creating it on first use.
func (r *Registry) BucketFor(host string) *Bucket {
	key := normalizeHost(host)

	r.mu.Lock()
	defer r.mu.Unlock()

	if bucket, ok := r.buckets[key]; ok {
		return bucket
	}
	bucket := NewBucket(r.defaults)
	r.buckets[key] = bucket
	return bucket
}

// Lookup returns the bucket for host without creating one.
func (r *Registry) Lookup(host string) (*Bucket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bucket, ok := r.buckets[normalizeHost(host)]
	return bucket, ok
}

// RememberedInterval returns the last interval learned for host, or the
// default interval.
func (r *Registry) RememberedInterval(host string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if interval, ok := r.intervals[normalizeHost(host)]; ok {
		return interval
	}
	return r.defaults.Interval
}

// RememberInterval records a learned interval for host. Values not larger
// than what is already remembered are ignored.
func (r *Registry) RememberInterval(host string, interval time.Duration) bool {
	key := normalizeHost(host)

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.intervals[key]
	if !ok {
		current = r.defaults.Interval
	}
	if interval <= current {
		return false
	}
	r.intervals[key] = interval
	return true
}

// Len returns the number of hosts seen so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

// Snapshots returns the state of every bucket, sorted by host.
func (r *Registry) Snapshots() []core.BucketSnapshot {
	r.mu.Lock()
	hosts := make([]string, 0, len(r.buckets))
	for host := range r.buckets {
		hosts = append(hosts, host)
	}
	r.mu.Unlock()

	sort.Strings(hosts)

	snapshots := make([]core.BucketSnapshot, 0, len(hosts))
	for _, host := range hosts {
		bucket, _ := r.Lookup(host)
		snapshot := bucket.Snapshot()
		snapshot.Host = host
		snapshot.RememberedInterval = r.RememberedInterval(host)
		snapshots = append(snapshots, snapshot)
	}
	return snapshots
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}
