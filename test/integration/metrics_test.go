package integration

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tootfill/tootfill/internal/core"
	"github.com/tootfill/tootfill/internal/metrics"
	"github.com/tootfill/tootfill/internal/observability"
	"github.com/tootfill/tootfill/internal/server"
)

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// initMetricsOrSkip starts the exporter on a free loopback port and tears it
// down after the test.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()

	if _, err := observability.InitMetrics("tootfill_test", "127.0.0.1:0"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}
	t.Cleanup(observability.ShutdownMetrics)
}

func TestMetricsProxiedThroughStatusServer(t *testing.T) {
	initMetricsOrSkip(t)

	metrics.RecordOutcome(core.OutcomeContent.String(), "")
	metrics.RecordOutcome(core.OutcomeEmpty.String(), string(core.ReasonHTTPStatus))
	metrics.RecordFeedback("reconciled")
	metrics.SetBucketCapacity("https://a.example/", 40)

	ts := httptest.NewServer(server.New(server.NewRunStatus("run-int", nil)).Handler())
	t.Cleanup(ts.Close)

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	content := string(body)
	assert.Contains(t, content, "tootfill_records_total")
	assert.Contains(t, content, "tootfill_feedback_total")
}

func TestMetricsDisabledIsSilent(t *testing.T) {
	observability.ShutdownMetrics()

	// Emission without an exporter must be a no-op.
	metrics.RecordOutcome(core.OutcomeSkipped.String(), string(core.ReasonCommitFailed))
	metrics.RecordRunAborted("THROTTLE_TIMEOUT")

	ts := httptest.NewServer(server.New(nil).Handler())
	t.Cleanup(ts.Close)

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
