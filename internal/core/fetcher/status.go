package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tootfill/tootfill/internal/core"
)

const (
	// DefaultTimeout bounds a single status request end to end.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodyBytes caps how much of a status body is read.
	DefaultMaxBodyBytes int64 = 4 << 20

	defaultUserAgent = "tootfill"
)

// StatusFetcher retrieves statuses through the Mastodon-compatible REST API.
type StatusFetcher struct {
	Client       *http.Client
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Resolve parses a bookmark URL.
func (f *StatusFetcher) Resolve(rawURL string) core.BookmarkRecord {
	return ParseBookmark(rawURL)
}

// StatusURL returns the API endpoint for a matched record.
func StatusURL(record core.BookmarkRecord) string {
	return record.Host + "api/v1/statuses/" + url.PathEscape(record.ResourceID)
}

// Fetch issues one GET for the record's status. Any HTTP status is returned as
// a response; only transport and read failures are errors.
func (f *StatusFetcher) Fetch(ctx context.Context, record core.BookmarkRecord) (*core.FetchResponse, error) {
	if !record.Matched || strings.TrimSpace(record.Host) == "" || strings.TrimSpace(record.ResourceID) == "" {
		return nil, errors.New("record is not a supported bookmark")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reqURL := StatusURL(record)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent())

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("request status: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes()))
	if err != nil {
		return nil, fmt.Errorf("read status body: %w", err)
	}

	return &core.FetchResponse{
		URL:        reqURL,
		StatusCode: resp.StatusCode,
		RateLimit:  RateLimitFromHeader(resp.Header),
		Body:       body,
	}, nil
}

// Content returns the status's content field as text.
func (f *StatusFetcher) Content(resp *core.FetchResponse) (string, error) {
	if resp == nil {
		return "", errors.New("response is required")
	}

	var payload struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return "", fmt.Errorf("decode status: %w", err)
	}
	if payload.Content == nil {
		return "", errors.New("status has no content field")
	}
	return *payload.Content, nil
}

func (f *StatusFetcher) client() *http.Client {
	if f != nil && f.Client != nil {
		return f.Client
	}
	timeout := DefaultTimeout
	if f != nil && f.Timeout > 0 {
		timeout = f.Timeout
	}
	return &http.Client{Timeout: timeout}
}

func (f *StatusFetcher) userAgent() string {
	if f != nil && strings.TrimSpace(f.UserAgent) != "" {
		return f.UserAgent
	}
	return defaultUserAgent
}

func (f *StatusFetcher) maxBodyBytes() int64 {
	if f != nil && f.MaxBodyBytes > 0 {
		return f.MaxBodyBytes
	}
	return DefaultMaxBodyBytes
}
