package fetcher

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tootfill/tootfill/internal/core"
)

// Rate-limit response headers.
const (
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// resetLayouts are tried in order; Mastodon sends ISO 8601 with milliseconds.
var resetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// RateLimitFromHeader extracts rate-limit metadata. Missing or malformed
// values are left nil.
func RateLimitFromHeader(header http.Header) core.RateLimitInfo {
	var info core.RateLimitInfo
	if header == nil {
		return info
	}

	if value, ok := parseCount(header.Get(HeaderRateLimitRemaining)); ok && value >= 0 {
		info.Remaining = &value
	}
	if value, ok := parseCount(header.Get(HeaderRateLimitLimit)); ok {
		info.Limit = &value
	}
	if value, ok := parseReset(header.Get(HeaderRateLimitReset)); ok {
		info.Reset = &value
	}

	return info
}

func parseCount(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

// parseReset accepts ISO 8601 timestamps, HTTP dates and Unix epoch seconds.
func parseReset(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	for _, layout := range resetLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), true
		}
	}
	if parsed, err := http.ParseTime(raw); err == nil {
		return parsed.UTC(), true
	}
	if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil && epoch > 0 {
		return time.Unix(epoch, 0).UTC(), true
	}

	return time.Time{}, false
}
