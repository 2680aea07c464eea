package fetcher

import (
	"regexp"
	"strings"

	"github.com/tootfill/tootfill/internal/core"
)

// bookmarkPattern matches status URLs of Mastodon-compatible servers:
// group 1 is the host base (with trailing slash), group 2 the status id.
var bookmarkPattern = regexp.MustCompile(`^(https://[^/]+/)users/[^/]+/statuses/([0-9]+)$`)

// ParseBookmark splits a bookmark URL into its origin host and status id.
// URLs that do not match are returned with Matched unset.
func ParseBookmark(rawURL string) core.BookmarkRecord {
	record := core.BookmarkRecord{URL: rawURL}

	match := bookmarkPattern.FindStringSubmatch(strings.TrimSpace(rawURL))
	if match == nil {
		return record
	}

	record.Host = match[1]
	record.ResourceID = match[2]
	record.Matched = true
	return record
}
