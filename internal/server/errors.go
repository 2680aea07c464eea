package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tootfill/tootfill/internal/observability"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// Recovery turns a handler panic into a 500 response
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				panicErr := errors.NewErrorEnvelope("INTERNAL_ERROR", fmt.Sprintf("panic: %v", rec))
				panicErr, _ = panicErr.WithSeverity(errors.SeverityCritical)

				if observability.CLILogger != nil {
					observability.CLILogger.Error("Status handler panicked",
						zap.String("path", r.URL.Path),
						zap.String("stack_trace", string(debug.Stack())))
				}
				respondError(w, r, http.StatusInternalServerError, panicErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func respondError(w http.ResponseWriter, r *http.Request, statusCode int, envelope *errors.ErrorEnvelope) {
	requestID := ""
	if r != nil {
		requestID = middleware.GetReqID(r.Context())
	}
	if requestID != "" {
		envelope = envelope.WithCorrelationID(requestID)
	}

	response := ErrorResponse{
		Error: ErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   envelope.Context,
			RequestID: envelope.CorrelationID,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
