package server

import (
	"sync"
	"time"

	"github.com/tootfill/tootfill/internal/core"
	"github.com/tootfill/tootfill/internal/core/engine"
)

// Run phases reported by /status.
const (
	PhaseRunning  = "running"
	PhaseFinished = "finished"
	PhaseAborted  = "aborted"
)

// RunStatus tracks a run's running totals for the status endpoints. It
// satisfies engine.ProgressReporter.
type RunStatus struct {
	mu       sync.RWMutex
	summary  core.RunSummary
	phase    string
	registry *engine.Registry
	clock    func() time.Time
}

// NewRunStatus starts tracking run runID. Bucket state is read live from
// registry.
func NewRunStatus(runID string, registry *engine.Registry) *RunStatus {
	clock := func() time.Time { return time.Now().UTC() }
	return &RunStatus{
		summary:  core.RunSummary{RunID: runID, StartedAt: clock()},
		phase:    PhaseRunning,
		registry: registry,
		clock:    clock,
	}
}

// Report records the totals after a record.
func (s *RunStatus) Report(summary core.RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	startedAt := s.summary.StartedAt
	s.summary = summary
	if s.summary.StartedAt.IsZero() {
		s.summary.StartedAt = startedAt
	}
}

// Finish stores the final summary and ends the running phase.
func (s *RunStatus) Finish(summary *core.RunSummary) {
	if summary == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.summary = *summary
	s.phase = PhaseFinished
	if summary.Aborted {
		s.phase = PhaseAborted
	}
}

// Snapshot returns the current phase and totals, with bucket state and
// elapsed time filled in while the run is still going.
func (s *RunStatus) Snapshot() (string, core.RunSummary) {
	s.mu.RLock()
	phase := s.phase
	summary := s.summary
	s.mu.RUnlock()

	if phase == PhaseRunning {
		summary.Elapsed = s.clock().Sub(summary.StartedAt)
		if s.registry != nil {
			summary.Buckets = s.registry.Snapshots()
		}
	}
	return phase, summary
}

// Running reports whether the run is still in progress.
func (s *RunStatus) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase == PhaseRunning
}
