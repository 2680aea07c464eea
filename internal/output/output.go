package output

import (
	"fmt"
	"strings"

	"github.com/tootfill/tootfill/internal/core"
)

// Format represents a run summary format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatNone  Format = "none"
)

// Formatter renders run summaries.
type Formatter interface {
	FormatSummary(summary *core.RunSummary) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatNone):
		return FormatNone, nil
	default:
		return "", fmt.Errorf("unsupported summary format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatNone:
		return noneFormatter{}
	default:
		return &TableFormatter{}
	}
}

type noneFormatter struct{}

func (noneFormatter) FormatSummary(*core.RunSummary) (string, error) {
	return "", nil
}
