package output

import (
	"encoding/json"

	"github.com/tootfill/tootfill/internal/core"
)

// JSONFormatter renders summaries as JSON.
type JSONFormatter struct {
	Indent bool
}

type jsonBucket struct {
	Host              string  `json:"host"`
	Capacity          int     `json:"capacity"`
	Level             float64 `json:"level"`
	IntervalSeconds   float64 `json:"interval_seconds"`
	RememberedSeconds float64 `json:"remembered_interval_seconds"`
	Acquired          int     `json:"acquired"`
}

type jsonSummary struct {
	RunID          string       `json:"run_id"`
	StartedAt      string       `json:"started_at"`
	ElapsedSeconds float64      `json:"elapsed_seconds"`
	Read           int          `json:"read"`
	Committed      int          `json:"committed"`
	Content        int          `json:"content"`
	Empty          int          `json:"empty"`
	Skipped        int          `json:"skipped"`
	Aborted        bool         `json:"aborted"`
	AbortErr       string       `json:"abort_error,omitempty"`
	Buckets        []jsonBucket `json:"buckets"`
}

// FormatSummary renders a run summary as JSON. Durations are written as
// seconds.
func (f *JSONFormatter) FormatSummary(summary *core.RunSummary) (string, error) {
	if summary == nil {
		return "", nil
	}

	payload := jsonSummary{
		RunID:          summary.RunID,
		StartedAt:      summary.StartedAt.UTC().Format(timeLayout),
		ElapsedSeconds: summary.Elapsed.Seconds(),
		Read:           summary.Read,
		Committed:      summary.Committed,
		Content:        summary.Content,
		Empty:          summary.Empty,
		Skipped:        summary.Skipped,
		Aborted:        summary.Aborted,
		AbortErr:       summary.AbortErr,
		Buckets:        make([]jsonBucket, 0, len(summary.Buckets)),
	}
	for _, b := range summary.Buckets {
		payload.Buckets = append(payload.Buckets, jsonBucket{
			Host:              b.Host,
			Capacity:          b.Capacity,
			Level:             b.Level,
			IntervalSeconds:   b.Interval.Seconds(),
			RememberedSeconds: b.RememberedInterval.Seconds(),
			Acquired:          b.Acquired,
		})
	}

	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(payload, "", "  ")
	} else {
		data, err = json.Marshal(payload)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
