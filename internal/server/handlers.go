package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"

	apperrors "github.com/tootfill/tootfill/internal/errors"
	"github.com/tootfill/tootfill/internal/output"
)

// AppVersion is injected from main via SetVersionInfo
var (
	AppVersion   = "dev"
	AppCommit    = "unknown"
	AppBuildDate = "unknown"
)

// SetVersionInfo sets the version information reported by /version
func SetVersionInfo(version, commit, buildDate string) {
	AppVersion = version
	AppCommit = commit
	AppBuildDate = buildDate
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse is the /status body.
type StatusResponse struct {
	Phase   string          `json:"phase"`
	Summary json.RawMessage `json:"summary"`
}

// VersionResponse represents the version information response
type VersionResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Gofulmen  string `json:"gofulmen"`
	Crucible  string `json:"crucible"`
}

func (s *Server) livenessHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ProbeResponse{Status: "alive", Timestamp: time.Now().UTC()})
}

// readinessHandler reports ready only while the run is still processing
// records.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.status == nil || !s.status.Running() {
		respondError(w, r, http.StatusServiceUnavailable,
			apperrors.NewServiceUnavailableError("Run is not in progress"))
		return
	}
	respondJSON(w, http.StatusOK, ProbeResponse{Status: "ready", Timestamp: time.Now().UTC()})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		respondError(w, r, http.StatusServiceUnavailable,
			apperrors.NewServiceUnavailableError("No run is being tracked"))
		return
	}

	phase, summary := s.status.Snapshot()
	rendered, err := (&output.JSONFormatter{}).FormatSummary(&summary)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError,
			apperrors.WrapInternal(summary.RunID, err, "Unable to render run status"))
		return
	}

	respondJSON(w, http.StatusOK, StatusResponse{
		Phase:   phase,
		Summary: json.RawMessage(rendered),
	})
}

func versionHandler(w http.ResponseWriter, r *http.Request) {
	version := crucible.GetVersion()
	respondJSON(w, http.StatusOK, VersionResponse{
		Name:      "tootfill",
		Version:   AppVersion,
		Commit:    AppCommit,
		BuildDate: AppBuildDate,
		GoVersion: runtime.Version(),
		Gofulmen:  version.Gofulmen,
		Crucible:  version.Crucible,
	})
}
