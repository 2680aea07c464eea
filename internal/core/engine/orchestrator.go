package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/tootfill/tootfill/internal/core"
	apperrors "github.com/tootfill/tootfill/internal/errors"
	"github.com/tootfill/tootfill/internal/metrics"
)

// Fetcher resolves bookmark URLs and retrieves their content from the origin.
type Fetcher interface {
	// Resolve parses a bookmark URL. Unsupported URLs come back unmatched.
	Resolve(rawURL string) core.BookmarkRecord

	// Fetch issues exactly one request for a matched record. Non-success
	// statuses are returned as responses, not errors.
	Fetch(ctx context.Context, record core.BookmarkRecord) (*core.FetchResponse, error)

	// Content extracts the text of a successful response.
	Content(resp *core.FetchResponse) (string, error)
}

// Source yields bookmark URLs in input order and io.EOF when exhausted.
type Source interface {
	Next() (string, error)
}

// Sink appends one output row per processed record.
type Sink interface {
	Write(url, content string) error
}

// ProgressReporter receives a copy of the running totals after every record.
type ProgressReporter interface {
	Report(summary core.RunSummary)
}

// Orchestrator drives records one at a time through throttling, fetching,
// feedback and commit.
type Orchestrator struct {
	Fetcher  Fetcher
	Registry *Registry
	Feedback *FeedbackAdapter
	Pacer    *Pacer
	Progress ProgressReporter
	Logger   *logging.Logger
	RunID    string
	Clock    func() time.Time
}

// Run processes source to sink in order. Per-record failures never stop the
// run; a throttling failure (or ctx ending) does, and is returned alongside
// the summary of what was committed before it. Closing the sink is left to
// the caller.
func (o *Orchestrator) Run(ctx context.Context, source Source, sink Sink) (*core.RunSummary, error) {
	if o == nil || o.Fetcher == nil || o.Registry == nil {
		return nil, errors.New("orchestrator is not configured")
	}
	if source == nil || sink == nil {
		return nil, errors.New("source and sink are required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	summary := &core.RunSummary{RunID: o.RunID, StartedAt: o.now()}
	defer func() {
		summary.Elapsed = o.now().Sub(summary.StartedAt)
		summary.Buckets = o.Registry.Snapshots()
	}()

	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return o.abort(summary, err)
		}

		rawURL, err := source.Next()
		if errors.Is(err, io.EOF) {
			return summary, nil
		}
		if err != nil {
			if errors.Is(err, core.ErrInvalidRow) {
				summary.Read++
				outcome := core.RecordOutcome{Kind: core.OutcomeSkipped, Reason: core.ReasonInvalidRow, Err: err}
				summary.Record(outcome)
				o.observe(index, core.BookmarkRecord{}, outcome)
				o.report(summary)
				continue
			}
			return summary, fmt.Errorf("read input: %w", err)
		}
		summary.Read++

		record := o.Fetcher.Resolve(rawURL)
		outcome, err := o.process(ctx, record)
		if err != nil {
			return o.abort(summary, err)
		}

		outcome = o.commit(sink, record, outcome)
		summary.Record(outcome)
		o.observe(index, record, outcome)
		o.report(summary)
	}
}

// process runs one record up to, but not including, the commit. Only a
// throttling failure is returned as an error.
func (o *Orchestrator) process(ctx context.Context, record core.BookmarkRecord) (core.RecordOutcome, error) {
	if !record.Matched {
		return core.EmptyOutcome(core.ReasonNonMatch, nil), nil
	}

	bucket := o.Registry.BucketFor(record.Host)
	if err := o.throttle(ctx, record.Host, bucket); err != nil {
		return core.RecordOutcome{}, err
	}

	resp, err := o.Fetcher.Fetch(ctx, record)
	if err != nil {
		return core.EmptyOutcome(core.ReasonFetchFailed, err), nil
	}
	if resp == nil {
		return core.EmptyOutcome(core.ReasonFetchFailed, errors.New("fetcher returned no response")), nil
	}

	o.applyFeedback(record.Host, bucket, resp.RateLimit)

	if !resp.OK() {
		outcome := core.EmptyOutcome(core.ReasonHTTPStatus, fmt.Errorf("unexpected status %d", resp.StatusCode))
		outcome.StatusCode = resp.StatusCode
		return outcome, nil
	}

	content, err := o.Fetcher.Content(resp)
	if err != nil {
		outcome := core.EmptyOutcome(core.ReasonFetchFailed, err)
		outcome.StatusCode = resp.StatusCode
		return outcome, nil
	}

	outcome := core.ContentOutcome(content)
	outcome.StatusCode = resp.StatusCode
	return outcome, nil
}

func (o *Orchestrator) throttle(ctx context.Context, host string, bucket *Bucket) error {
	start := o.now()
	if err := bucket.Acquire(ctx); err != nil {
		return fmt.Errorf("acquire %s: %w", host, err)
	}
	if err := o.Pacer.Wait(ctx); err != nil {
		return fmt.Errorf("pace %s: %w", host, err)
	}

	waited := o.now().Sub(start)
	metrics.RecordThrottleWait(host, waited)
	if waited >= time.Second {
		o.debug("Throttled request", zap.String("host", host), zap.Duration("waited", waited))
	}
	return nil
}

func (o *Orchestrator) applyFeedback(host string, bucket *Bucket, info core.RateLimitInfo) {
	fb := o.Feedback.Apply(host, bucket, info)
	if !fb.Changed() {
		return
	}

	fields := []zap.Field{zap.String("host", host)}
	if fb.Reconciled {
		metrics.RecordFeedback("reconciled")
		fields = append(fields, zap.Float64("level", fb.Level))
	}
	if fb.CapacityLowered {
		metrics.RecordFeedback("capacity_lowered")
		metrics.SetBucketCapacity(host, fb.Capacity)
		fields = append(fields, zap.Int("capacity", fb.Capacity))
	}
	if fb.IntervalRaised {
		metrics.RecordFeedback("interval_raised")
		fields = append(fields, zap.Duration("interval", fb.Interval))
	}
	o.debug("Applied rate-limit feedback", fields...)
}

// commit performs the single write for a record. A failed write turns the
// outcome into Skipped; it is never retried.
func (o *Orchestrator) commit(sink Sink, record core.BookmarkRecord, outcome core.RecordOutcome) core.RecordOutcome {
	if err := sink.Write(record.URL, outcome.Content); err != nil {
		cause := fmt.Errorf("commit: %w", err)
		if outcome.Err != nil {
			cause = fmt.Errorf("%w (after: %v)", cause, outcome.Err)
		}
		return core.RecordOutcome{
			Kind:       core.OutcomeSkipped,
			Reason:     core.ReasonCommitFailed,
			StatusCode: outcome.StatusCode,
			Err:        cause,
		}
	}
	return outcome
}

func (o *Orchestrator) abort(summary *core.RunSummary, err error) (*core.RunSummary, error) {
	summary.Aborted = true
	summary.AbortErr = err.Error()
	if o.Logger != nil {
		o.Logger.Error("Stopping run", zap.String("run_id", o.RunID), zap.Int("read", summary.Read), zap.Error(err))
	}
	return summary, err
}

func (o *Orchestrator) observe(index int, record core.BookmarkRecord, outcome core.RecordOutcome) {
	metrics.RecordOutcome(outcome.Kind.String(), string(outcome.Reason))
	if o.Logger == nil {
		return
	}

	fields := []zap.Field{
		zap.Int("row", index+1),
		zap.String("url", record.URL),
		zap.String("outcome", outcome.Kind.String()),
	}
	if record.Host != "" {
		fields = append(fields, zap.String("host", record.Host))
	}
	if outcome.Reason != core.ReasonNone {
		fields = append(fields, zap.String("reason", string(outcome.Reason)))
	}
	if outcome.StatusCode != 0 {
		fields = append(fields, zap.Int("status", outcome.StatusCode))
	}

	envelope := o.failureEnvelope(record, outcome)
	switch {
	case outcome.Kind == core.OutcomeSkipped:
		o.Logger.Error("Record skipped", append(fields, envelopeFields(envelope, outcome.Err)...)...)
	case outcome.Err != nil:
		o.Logger.Warn("Record committed empty", append(fields, envelopeFields(envelope, outcome.Err)...)...)
	default:
		o.Logger.Info("Record committed", fields...)
	}
}

// failureEnvelope classifies a failed record. Error-status outcomes are not
// fetch failures and get no envelope.
func (o *Orchestrator) failureEnvelope(record core.BookmarkRecord, outcome core.RecordOutcome) *gferrors.ErrorEnvelope {
	if outcome.Err == nil {
		return nil
	}
	switch outcome.Reason {
	case core.ReasonCommitFailed:
		return apperrors.WrapCommitFailed(o.RunID, outcome.Err, record.URL)
	case core.ReasonFetchFailed:
		return apperrors.WrapFetchFailed(o.RunID, outcome.Err, record.URL)
	default:
		return nil
	}
}

func envelopeFields(envelope *gferrors.ErrorEnvelope, err error) []zap.Field {
	if envelope == nil {
		return []zap.Field{zap.Error(err)}
	}
	return []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.String("correlation_id", envelope.CorrelationID),
		zap.Error(err),
	}
}

func (o *Orchestrator) report(summary *core.RunSummary) {
	if o.Progress != nil {
		o.Progress.Report(*summary)
	}
}

func (o *Orchestrator) debug(msg string, fields ...zap.Field) {
	if o.Logger != nil {
		o.Logger.Debug(msg, fields...)
	}
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}
