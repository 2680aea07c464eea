package errors

import (
	stderrors "errors"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
)

// Error codes used by tootfill.
const (
	CodeFetchFailed     = "FETCH_FAILED"
	CodeCommitFailed    = "COMMIT_FAILED"
	CodeThrottleTimeout = "THROTTLE_TIMEOUT"
	CodeRunCanceled     = "RUN_CANCELED"
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeInputNotFound   = "INPUT_NOT_FOUND"
	CodeInternal        = "INTERNAL_ERROR"

	// Status server responses
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// Error creation helpers
func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConfigInvalid, message)
}

func NewInputNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInputNotFound, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeServiceUnavailable, message)
}

// Wrap functions for existing errors.
// The run id becomes the envelope's correlation id so log lines and the
// final error can be matched up.

func WrapFetchFailed(runID string, err error, url string) *errors.ErrorEnvelope {
	envelope := wrap(CodeFetchFailed, "fetch failed", runID, err, map[string]interface{}{"url": url})
	envelope, _ = envelope.WithSeverity(errors.SeverityMedium)
	return envelope
}

func WrapCommitFailed(runID string, err error, url string) *errors.ErrorEnvelope {
	envelope := wrap(CodeCommitFailed, "commit failed", runID, err, map[string]interface{}{"url": url})
	envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	return envelope
}

func WrapThrottleTimeout(runID string, err error) *errors.ErrorEnvelope {
	envelope := wrap(CodeThrottleTimeout, "timed out waiting for rate-limit admission", runID, err, nil)
	envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	return envelope
}

func WrapRunCanceled(runID string, err error) *errors.ErrorEnvelope {
	envelope := wrap(CodeRunCanceled, "run canceled", runID, err, nil)
	envelope, _ = envelope.WithSeverity(errors.SeverityMedium)
	return envelope
}

func WrapInternal(runID string, err error, message string) *errors.ErrorEnvelope {
	envelope := wrap(CodeInternal, message, runID, err, nil)
	envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	return envelope
}

func WrapConfigInvalid(runID string, err error, message string) *errors.ErrorEnvelope {
	envelope := wrap(CodeConfigInvalid, message, runID, err, nil)
	envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	return envelope
}

func WrapInputNotFound(runID string, err error, path string) *errors.ErrorEnvelope {
	envelope := wrap(CodeInputNotFound, "input file not found", runID, err, map[string]interface{}{"path": path})
	envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	return envelope
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}

	return WrapInternal("", err, "unexpected error")
}

// correlationID returns runID, or a fresh UUID when the run has none yet.
func correlationID(runID string) string {
	if runID != "" {
		return runID
	}
	return uuid.New().String()
}

func wrap(code, message, runID string, err error, extra map[string]interface{}) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(code, message)
	envelope = envelope.WithCorrelationID(correlationID(runID))

	ctx := make(map[string]interface{}, len(extra)+1)
	for key, value := range extra {
		ctx[key] = value
	}
	if err != nil {
		ctx["wrapped_error"] = err.Error()
	}
	if len(ctx) > 0 {
		if updated, ctxErr := envelope.WithContext(ctx); ctxErr == nil {
			envelope = updated
		}
	}
	if err != nil {
		envelope.Original = err
	}
	return envelope
}
