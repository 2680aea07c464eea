package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/tootfill/tootfill/internal/core"
)

const timeLayout = time.RFC3339

// TableFormatter renders summaries as ASCII tables.
type TableFormatter struct{}

// FormatSummary renders the outcome counts followed by one row per host.
func (f *TableFormatter) FormatSummary(summary *core.RunSummary) (string, error) {
	if summary == nil {
		return "", nil
	}

	counts := table.NewWriter()
	counts.SetStyle(table.StyleRounded)
	counts.AppendHeader(table.Row{"Read", "Committed", "Content", "Empty", "Skipped", "Elapsed"})
	counts.AppendRow(table.Row{
		summary.Read,
		summary.Committed,
		summary.Content,
		summary.Empty,
		summary.Skipped,
		summary.Elapsed.Round(time.Millisecond).String(),
	})

	var b strings.Builder
	b.WriteString(runTitle(summary))
	b.WriteString("\n")
	b.WriteString(counts.Render())
	if summary.Aborted {
		b.WriteString("\naborted: ")
		b.WriteString(summary.AbortErr)
	}

	if len(summary.Buckets) > 0 {
		buckets := table.NewWriter()
		buckets.SetStyle(table.StyleRounded)
		buckets.AppendHeader(table.Row{"Host", "Capacity", "Level", "Interval", "Learned", "Requests"})
		buckets.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, Align: text.AlignRight},
			{Number: 3, Align: text.AlignRight},
			{Number: 6, Align: text.AlignRight},
		})
		for _, bucket := range summary.Buckets {
			buckets.AppendRow(table.Row{
				bucket.Host,
				bucket.Capacity,
				fmt.Sprintf("%.1f", bucket.Level),
				bucket.Interval.String(),
				bucket.RememberedInterval.String(),
				bucket.Acquired,
			})
		}
		b.WriteString("\n")
		b.WriteString(buckets.Render())
	}

	return b.String(), nil
}

func runTitle(summary *core.RunSummary) string {
	title := "Run"
	if summary.RunID != "" {
		title += " " + summary.RunID
	}
	if !summary.StartedAt.IsZero() {
		title += " started " + summary.StartedAt.UTC().Format(timeLayout)
	}
	return title
}
