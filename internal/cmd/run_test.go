package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/tootfill/tootfill/internal/config"
	"github.com/tootfill/tootfill/internal/core/engine"
	apperrors "github.com/tootfill/tootfill/internal/errors"
	"github.com/tootfill/tootfill/internal/output"
)

func loadTestConfig(t *testing.T, overrides map[string]any) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	for key, value := range overrides {
		v.Set(key, value)
	}
	cfg, err := config.Load(v)
	require.NoError(t, err)
	return cfg
}

// loadFastConfig shortens the throttle interval so runs against a local
// server are not paced at production speed.
func loadFastConfig(t *testing.T, overrides map[string]any) *config.Config {
	t.Helper()
	merged := map[string]any{"throttle.interval": "10ms"}
	for key, value := range overrides {
		merged[key] = value
	}
	return loadTestConfig(t, merged)
}

func writeInput(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bookmarks.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(rows, "\n")+"\n"), 0o600))
	return path
}

func readOutput(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close() // nolint:errcheck // test cleanup

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}

func newStatusServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("X-RateLimit-Limit", "120")
		w.Header().Set("X-RateLimit-Remaining", "100")
		switch r.URL.Path {
		case "/api/v1/statuses/1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"1","content":"<p>hello</p>"}`))
		default:
			http.Error(w, `{"error":"Record not found"}`, http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExecuteRunEndToEnd(t *testing.T) {
	var hits int32
	srv := newStatusServer(t, &hits)

	input := writeInput(t,
		srv.URL+"/users/alice/statuses/1",
		"https://other.example/notes/abc",
		srv.URL+"/users/bob/statuses/2",
	)
	out := filepath.Join(t.TempDir(), "nested", "filled.csv")

	var summaryOut bytes.Buffer
	summary, err := executeRun(context.Background(), loadFastConfig(t, nil), runOptions{
		Input:      input,
		Output:     out,
		Summary:    output.FormatJSON,
		RunID:      "run-e2e",
		Client:     srv.Client(),
		SummaryOut: &summaryOut,
	})
	require.NoError(t, err)

	require.Equal(t, [][]string{
		{srv.URL + "/users/alice/statuses/1", "<p>hello</p>"},
		{"https://other.example/notes/abc", ""},
		{srv.URL + "/users/bob/statuses/2", ""},
	}, readOutput(t, out))
	require.Equal(t, int32(2), atomic.LoadInt32(&hits))

	require.Equal(t, 3, summary.Read)
	require.Equal(t, 3, summary.Committed)
	require.Equal(t, 1, summary.Content)
	require.Equal(t, 2, summary.Empty)
	require.False(t, summary.Aborted)
	require.Len(t, summary.Buckets, 1)
	require.Equal(t, 120, summary.Buckets[0].Capacity)
	require.Equal(t, 2, summary.Buckets[0].Acquired)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(summaryOut.Bytes(), &decoded))
	require.Equal(t, "run-e2e", decoded["run_id"])
}

func TestExecuteRunSkipHeaderAndColumn(t *testing.T) {
	var hits int32
	srv := newStatusServer(t, &hits)

	input := writeInput(t,
		"title,url",
		"first,"+srv.URL+"/users/alice/statuses/1",
	)
	out := filepath.Join(t.TempDir(), "filled.csv")

	cfg := loadFastConfig(t, map[string]any{"input.column": 1, "input.skip_header": true})
	summary, err := executeRun(context.Background(), cfg, runOptions{
		Input:   input,
		Output:  out,
		Summary: output.FormatNone,
		Client:  srv.Client(),
	})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Read)
	require.Equal(t, [][]string{{srv.URL + "/users/alice/statuses/1", "<p>hello</p>"}}, readOutput(t, out))
}

func TestExecuteRunThrottleTimeoutStopsRun(t *testing.T) {
	var hits int32
	srv := newStatusServer(t, &hits)

	input := writeInput(t,
		"https://other.example/notes/1",
		srv.URL+"/users/alice/statuses/1",
		"https://other.example/notes/2",
	)
	out := filepath.Join(t.TempDir(), "filled.csv")

	cfg := loadTestConfig(t, map[string]any{
		"throttle.capacity":         1,
		"throttle.initial_level":    1,
		"throttle.interval":         "1h",
		"throttle.interval_ceiling": "2h",
		"throttle.acquire_timeout":  "50ms",
	})

	summary, err := executeRun(context.Background(), cfg, runOptions{
		Input:   input,
		Output:  out,
		Summary: output.FormatNone,
		Client:  srv.Client(),
	})
	require.ErrorIs(t, err, engine.ErrAcquireTimeout)
	require.True(t, summary.Aborted)
	require.Equal(t, 2, summary.Read)
	require.Equal(t, int32(0), atomic.LoadInt32(&hits))

	// Rows before the stop survive and the file was closed cleanly.
	require.Equal(t, [][]string{{"https://other.example/notes/1", ""}}, readOutput(t, out))

	envelope, code := classifyRunError("run-1", input, err)
	require.Equal(t, foundry.ExitExternalServiceUnavailable, code)
	require.Equal(t, apperrors.CodeThrottleTimeout, envelope.Code)
	require.Equal(t, "run-1", envelope.CorrelationID)
}

func TestExecuteRunCanceled(t *testing.T) {
	input := writeInput(t, "https://other.example/notes/1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := executeRun(ctx, loadTestConfig(t, nil), runOptions{
		Input:   input,
		Output:  filepath.Join(t.TempDir(), "filled.csv"),
		Summary: output.FormatNone,
	})
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, summary.Aborted)

	_, code := classifyRunError("run-1", input, err)
	require.Equal(t, foundry.ExitFailure, code)
}

func TestExecuteRunMissingInput(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.csv")
	_, err := executeRun(context.Background(), loadTestConfig(t, nil), runOptions{
		Input:  missing,
		Output: filepath.Join(t.TempDir(), "filled.csv"),
	})
	require.Error(t, err)

	envelope, code := classifyRunError("run-1", missing, err)
	require.Equal(t, foundry.ExitFileNotFound, code)
	require.Equal(t, apperrors.CodeInputNotFound, envelope.Code)
	require.Equal(t, missing, envelope.Context["path"])
}

func TestExecuteRunGlobalPacer(t *testing.T) {
	var hits int32
	srv := newStatusServer(t, &hits)

	input := writeInput(t,
		srv.URL+"/users/alice/statuses/1",
		srv.URL+"/users/alice/statuses/1",
		srv.URL+"/users/alice/statuses/1",
	)

	cfg := loadFastConfig(t, map[string]any{"throttle.max_rps": 20, "throttle.pacer_burst": 1})
	start := time.Now()
	summary, err := executeRun(context.Background(), cfg, runOptions{
		Input:   input,
		Output:  filepath.Join(t.TempDir(), "filled.csv"),
		Summary: output.FormatNone,
		Client:  srv.Client(),
	})
	require.NoError(t, err)
	require.Equal(t, 3, summary.Content)
	// Burst of one at 20/s spaces three requests by at least ~100ms total.
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRenderConfig(t *testing.T) {
	rendered, err := renderConfig(loadTestConfig(t, nil))
	require.NoError(t, err)
	require.Contains(t, rendered, "capacity: 150")
	require.Contains(t, rendered, "interval: 5m0s")
	require.Contains(t, rendered, "acquire_timeout: 30s")
	require.Contains(t, rendered, "interval_ceiling: 1h0m0s")
	require.Contains(t, rendered, "skip_header: false")
}

func TestExitWithCode(t *testing.T) {
	var got int
	original := osExit
	osExit = func(code int) { got = code }
	t.Cleanup(func() { osExit = original })

	ExitWithCode(nil, foundry.ExitConfigInvalid, "Invalid configuration",
		apperrors.WrapConfigInvalid("run-1", os.ErrInvalid, "invalid configuration"))

	info, ok := foundry.GetExitCodeInfo(foundry.ExitConfigInvalid)
	require.True(t, ok)
	require.Equal(t, info.Code, got)
}

func TestWriteExitReport(t *testing.T) {
	var buf bytes.Buffer
	writeExitReport(&buf, 69, "EXIT_EXTERNAL_SERVICE_UNAVAILABLE", "service unavailable", "Backfill run failed",
		apperrors.WrapThrottleTimeout("run-9", engine.ErrAcquireTimeout))

	report := buf.String()
	require.Contains(t, report, "[THROTTLE_TIMEOUT]")
	require.Contains(t, report, "run: run-9")
	require.Contains(t, report, "Underlying error: rate bucket acquire timed out")
	require.Contains(t, report, "Exit Code: 69")
}

func TestExecuteRunWithStatusServer(t *testing.T) {
	input := writeInput(t, "https://other.example/notes/1")
	out := filepath.Join(t.TempDir(), "filled.csv")

	cfg := loadTestConfig(t, map[string]any{"status.addr": "127.0.0.1:0"})
	summary, err := executeRun(context.Background(), cfg, runOptions{
		Input:   input,
		Output:  out,
		Summary: output.FormatNone,
	})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Committed)
	require.Equal(t, [][]string{{"https://other.example/notes/1", ""}}, readOutput(t, out))
}
