package core

import (
	"errors"
	"time"
)

// ErrInvalidRow marks an input row that could not yield a bookmark URL.
var ErrInvalidRow = errors.New("invalid input row")

// BookmarkRecord is one input row.
//
// Host and ResourceID are only set when the URL matched the supported origin
// pattern (Matched is true).
type BookmarkRecord struct {
	URL        string
	Host       string
	ResourceID string
	Matched    bool
}

// FetchResponse is what an origin server returned for one status request.
type FetchResponse struct {
	URL        string
	StatusCode int
	RateLimit  RateLimitInfo
	Body       []byte
}

// OK reports whether the response carried a success status.
func (r *FetchResponse) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// OutcomeKind classifies what was committed for a record.
type OutcomeKind int

const (
	OutcomeContent OutcomeKind = iota
	OutcomeEmpty
	OutcomeSkipped
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContent:
		return "content"
	case OutcomeEmpty:
		return "empty"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// OutcomeReason explains why a record did not yield content.
type OutcomeReason string

const (
	ReasonNone         OutcomeReason = ""
	ReasonNonMatch     OutcomeReason = "non_match"
	ReasonHTTPStatus   OutcomeReason = "http_status"
	ReasonFetchFailed  OutcomeReason = "fetch_failed"
	ReasonCommitFailed OutcomeReason = "commit_failed"
	ReasonInvalidRow   OutcomeReason = "invalid_row"
)

// RecordOutcome is the result of processing one record.
type RecordOutcome struct {
	Kind       OutcomeKind
	Reason     OutcomeReason
	Content    string
	StatusCode int
	Err        error
}

// ContentOutcome builds an outcome carrying fetched text.
func ContentOutcome(content string) RecordOutcome {
	return RecordOutcome{Kind: OutcomeContent, Content: content}
}

// EmptyOutcome builds an outcome committed with an empty content field.
func EmptyOutcome(reason OutcomeReason, err error) RecordOutcome {
	return RecordOutcome{Kind: OutcomeEmpty, Reason: reason, Err: err}
}

// RunSummary reports what a run did.
type RunSummary struct {
	RunID     string           `json:"run_id"`
	StartedAt time.Time        `json:"started_at"`
	Elapsed   time.Duration    `json:"elapsed"`
	Read      int              `json:"read"`
	Committed int              `json:"committed"`
	Content   int              `json:"content"`
	Empty     int              `json:"empty"`
	Skipped   int              `json:"skipped"`
	Aborted   bool             `json:"aborted"`
	AbortErr  string           `json:"abort_error,omitempty"`
	Buckets   []BucketSnapshot `json:"buckets,omitempty"`
}

// Record tallies one outcome.
func (s *RunSummary) Record(outcome RecordOutcome) {
	if s == nil {
		return
	}
	switch outcome.Kind {
	case OutcomeContent:
		s.Content++
		s.Committed++
	case OutcomeEmpty:
		s.Empty++
		s.Committed++
	case OutcomeSkipped:
		s.Skipped++
	}
}
