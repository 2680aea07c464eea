package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tootfill/tootfill/internal/config"
	"github.com/tootfill/tootfill/internal/core"
	"github.com/tootfill/tootfill/internal/core/engine"
	"github.com/tootfill/tootfill/internal/core/fetcher"
	apperrors "github.com/tootfill/tootfill/internal/errors"
	"github.com/tootfill/tootfill/internal/metrics"
	"github.com/tootfill/tootfill/internal/observability"
	"github.com/tootfill/tootfill/internal/output"
	"github.com/tootfill/tootfill/internal/records"
	"github.com/tootfill/tootfill/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run <input.csv>",
	Short: "Backfill status content for a bookmark export",
	Long: `Read bookmark URLs from a CSV file and write one (url, content) row per input
row, in input order. Rows whose status cannot be fetched are written with empty
content. The run stops early only when a server keeps a request waiting longer
than throttle.acquire_timeout.

Examples:
  # Write the backfilled CSV to a file
  tootfill run bookmarks.csv --out filled.csv

  # URLs in the second column, export has a header row
  tootfill run bookmarks.csv --column 1 --skip-header > filled.csv

  # Read from stdin and print the run summary as JSON
  cat bookmarks.csv | tootfill run - --summary json > filled.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("out", "o", "-", "Output CSV path (- for stdout)")
	runCmd.Flags().Int("column", 0, "Zero-based CSV column holding the bookmark URL")
	runCmd.Flags().Bool("skip-header", false, "Skip the first input row")
	runCmd.Flags().String("summary", "table", "Run summary written to stderr: table, json, none")
	runCmd.Flags().Int("metrics-port", 0, "Serve Prometheus metrics on this port for the duration of the run")
	runCmd.Flags().String("status-addr", "", "Serve run status (/status, /health/ready) on this address, e.g. 127.0.0.1:8089")

	_ = viper.BindPFlag("input.column", runCmd.Flags().Lookup("column"))
	_ = viper.BindPFlag("input.skip_header", runCmd.Flags().Lookup("skip-header"))
	_ = viper.BindPFlag("status.addr", runCmd.Flags().Lookup("status-addr"))
}

// runOptions carries the per-invocation settings that are not part of Config.
type runOptions struct {
	Input       string
	Output      string
	Summary     output.Format
	MetricsAddr string
	RunID       string

	// Client overrides the HTTP client built from fetch.timeout.
	Client *http.Client

	// SummaryOut receives the rendered summary; nil discards it.
	SummaryOut io.Writer
}

func runBackfill(cmd *cobra.Command, args []string) error {
	runID := uuid.New().String()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid configuration",
			apperrors.WrapConfigInvalid(runID, err, "invalid configuration"))
		return err
	}

	observability.InitLogger(appName, cfg.Logging.Profile, cfg.Logging.Level, verbose, runID)

	summaryValue, err := cmd.Flags().GetString("summary")
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(summaryValue)
	if err != nil {
		return err
	}

	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}

	metricsPort, err := cmd.Flags().GetInt("metrics-port")
	if err != nil {
		return err
	}

	opts := runOptions{
		Input:      args[0],
		Output:     outPath,
		Summary:    format,
		RunID:      runID,
		SummaryOut: cmd.ErrOrStderr(),
	}
	switch {
	case metricsPort > 0:
		opts.MetricsAddr = fmt.Sprintf(":%d", metricsPort)
	case cfg.Metrics.Enabled:
		opts.MetricsAddr = cfg.Metrics.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := executeRun(ctx, cfg, opts); err != nil {
		envelope, code := classifyRunError(runID, opts.Input, err)
		stop()
		ExitWithCode(observability.CLILogger, code, "Backfill run failed", envelope)
		return err
	}
	return nil
}

// executeRun performs one backfill. The output is closed exactly once on
// every path, and the summary is rendered even when the run was stopped.
func executeRun(ctx context.Context, cfg *config.Config, opts runOptions) (*core.RunSummary, error) {
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	logger := observability.CLILogger

	source, err := records.Open(opts.Input, records.ReaderOptions{
		Column:     cfg.Input.Column,
		SkipHeader: cfg.Input.SkipHeader,
	})
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer source.Close() // nolint:errcheck // read-only input

	sink, err := records.Create(opts.Output)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	defer sink.Close() // nolint:errcheck // closed explicitly below; second call is a no-op

	if opts.MetricsAddr != "" {
		addr, metricsErr := observability.InitMetrics(appName, opts.MetricsAddr)
		if metricsErr != nil {
			logWarn(logger, "Metrics exporter disabled", zap.String("addr", opts.MetricsAddr), zap.Error(metricsErr))
		} else {
			defer observability.ShutdownMetrics()
			logInfo(logger, "Serving metrics", zap.String("addr", addr))
		}
	}

	orchestrator := buildOrchestrator(cfg, opts, logger)

	var status *server.RunStatus
	if addr := strings.TrimSpace(cfg.Status.Addr); addr != "" {
		status = server.NewRunStatus(opts.RunID, orchestrator.Registry)
		statusServer := server.New(status)
		bound, statusErr := statusServer.Start(addr)
		if statusErr != nil {
			logWarn(logger, "Status server disabled", zap.String("addr", addr), zap.Error(statusErr))
			status = nil
		} else {
			orchestrator.Progress = status
			defer shutdownStatusServer(statusServer, logger)
			logInfo(logger, "Serving run status", zap.String("addr", bound))
		}
	}

	logInfo(logger, "Starting backfill",
		zap.String("run_id", opts.RunID),
		zap.String("input", opts.Input),
		zap.String("output", sink.Path()),
	)

	summary, runErr := orchestrator.Run(ctx, source, sink)
	if closeErr := sink.Close(); closeErr != nil && runErr == nil {
		runErr = fmt.Errorf("close output: %w", closeErr)
	}

	if summary != nil {
		if status != nil {
			status.Finish(summary)
		}
		if summary.Aborted {
			_, code := classifyRunError(opts.RunID, opts.Input, runErr)
			metrics.RecordRunAborted(abortCode(code))
		}
		logInfo(logger, "Backfill finished",
			zap.Int("read", summary.Read),
			zap.Int("committed", summary.Committed),
			zap.Int("content", summary.Content),
			zap.Int("empty", summary.Empty),
			zap.Int("skipped", summary.Skipped),
			zap.Bool("aborted", summary.Aborted),
			zap.Duration("elapsed", summary.Elapsed),
		)
		if err := writeSummary(opts.SummaryOut, opts.Summary, summary); err != nil {
			logWarn(logger, "Failed to render run summary", zap.Error(err))
		}
	}

	return summary, runErr
}

func buildOrchestrator(cfg *config.Config, opts runOptions, logger *logging.Logger) *engine.Orchestrator {
	registry := engine.NewRegistry(engine.BucketConfig{
		Capacity:        cfg.Throttle.Capacity,
		Interval:        cfg.Throttle.Interval,
		InitialLevel:    cfg.Throttle.InitialLevel,
		AcquireTimeout:  cfg.Throttle.AcquireTimeout,
		IntervalCeiling: cfg.Throttle.IntervalCeiling,
	})

	return &engine.Orchestrator{
		Fetcher: &fetcher.StatusFetcher{
			Client:       opts.Client,
			UserAgent:    cfg.Fetch.UserAgent,
			Timeout:      cfg.Fetch.Timeout,
			MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		},
		Registry: registry,
		Feedback: &engine.FeedbackAdapter{Registry: registry},
		Pacer:    engine.NewPacer(cfg.Throttle.MaxRPS, cfg.Throttle.PacerBurst),
		Logger:   logger,
		RunID:    opts.RunID,
	}
}

func shutdownStatusServer(srv *server.Server, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logWarn(logger, "Status server shutdown failed", zap.Error(err))
	}
}

func writeSummary(w io.Writer, format output.Format, summary *core.RunSummary) error {
	if w == nil || format == output.FormatNone {
		return nil
	}
	rendered, err := output.NewFormatter(format).FormatSummary(summary)
	if err != nil {
		return err
	}
	if rendered == "" {
		return nil
	}
	_, err = fmt.Fprintln(w, rendered)
	return err
}

// classifyRunError maps an error that ended a run to its envelope and exit code.
func classifyRunError(runID, input string, err error) (*gferrors.ErrorEnvelope, foundry.ExitCode) {
	switch {
	case errors.Is(err, engine.ErrAcquireTimeout):
		return apperrors.WrapThrottleTimeout(runID, err), foundry.ExitExternalServiceUnavailable
	case errors.Is(err, fs.ErrNotExist):
		return apperrors.WrapInputNotFound(runID, err, input), foundry.ExitFileNotFound
	case errors.Is(err, context.Canceled):
		return apperrors.WrapRunCanceled(runID, err), foundry.ExitFailure
	default:
		return apperrors.WrapInternal(runID, err, "run failed"), foundry.ExitFailure
	}
}

func abortCode(code foundry.ExitCode) string {
	switch code {
	case foundry.ExitExternalServiceUnavailable:
		return apperrors.CodeThrottleTimeout
	case foundry.ExitFileNotFound:
		return apperrors.CodeInputNotFound
	default:
		return apperrors.CodeRunCanceled
	}
}

func logInfo(logger *logging.Logger, msg string, fields ...zap.Field) {
	if logger != nil {
		logger.Info(msg, fields...)
	}
}

func logWarn(logger *logging.Logger, msg string, fields ...zap.Field) {
	if logger != nil {
		logger.Warn(msg, fields...)
	}
}
