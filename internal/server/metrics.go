package server

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	apperrors "github.com/tootfill/tootfill/internal/errors"
	"github.com/tootfill/tootfill/internal/observability"
)

var metricsProxyClient = &http.Client{
	Timeout: 5 * time.Second,
}

// metricsHandler proxies the Prometheus exporter so the status address can
// be scraped directly.
func metricsHandler(w http.ResponseWriter, r *http.Request) {
	exporter := observability.PrometheusExporter
	if exporter == nil {
		respondError(w, r, http.StatusServiceUnavailable,
			apperrors.NewServiceUnavailableError("Metrics exporter not initialized"))
		return
	}

	_, port, err := net.SplitHostPort(exporter.GetAddr())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError,
			apperrors.WrapInternal("", err, "Unable to resolve metrics exporter address"))
		return
	}

	metricsURL := fmt.Sprintf("http://127.0.0.1:%s/metrics", port)
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, metricsURL, nil)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError,
			apperrors.WrapInternal("", err, "Unable to construct metrics request"))
		return
	}

	// Preserve caller hint for content negotiation
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := metricsProxyClient.Do(req)
	if err != nil {
		unavailable, _ := errors.NewErrorEnvelope("EXTERNAL_SERVICE_ERROR", "Prometheus exporter unavailable").
			WithContext(map[string]interface{}{
				"metrics_url":    metricsURL,
				"original_error": err.Error(),
			})
		respondError(w, r, http.StatusBadGateway, unavailable)
		return
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	for key, values := range resp.Header {
		if isHopByHop(key) {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if resp.Header.Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil && observability.CLILogger != nil {
		observability.CLILogger.Warn("Failed to write metrics response", zap.Error(err))
	}
}

// Skip hop-by-hop headers; net/http handles them.
func isHopByHop(key string) bool {
	switch strings.ToLower(key) {
	case "connection", "keep-alive", "proxy-authenticate", "proxy-authorization",
		"te", "trailer", "transfer-encoding", "upgrade":
		return true
	default:
		return false
	}
}
