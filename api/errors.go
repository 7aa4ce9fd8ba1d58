package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kdl/schedule-engine/observability"
	"github.com/kdl/schedule-engine/scheduling"
)

// =============================================================================
// ERROR MAPPING
// =============================================================================
//
//   malformed request            400
//   not found                    404
//   conflict, invalid transition 409
//   validation, policy count     422
//   internal                     500 (reported to Sentry)
//   commit                       503 (retryable, reported to Sentry)

func statusFor(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest
	}
	switch scheduling.KindOf(err) {
	case scheduling.KindValidation, scheduling.KindPolicyCount:
		return http.StatusUnprocessableEntity
	case scheduling.KindConflict, scheduling.KindInvalidTransition:
		return http.StatusConflict
	case scheduling.KindNotFound:
		return http.StatusNotFound
	case scheduling.KindCommit:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeEngineError renders err with its status and structured details.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status), Details: err.Error()}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		resp.Error = reqErr.Msg
		resp.Details = ""
		resp.Fields = reqErr.Fields
	} else {
		resp.Kind = string(scheduling.KindOf(err))
		resp.Retryable = scheduling.IsRetryable(err)
	}

	var bve *scheduling.BatchValidationError
	if errors.As(err, &bve) {
		resp.Violations = toViolationDTOs(bve)
	}
	var ce *scheduling.ConflictError
	if errors.As(err, &ce) {
		resp.Conflicts = toConflictDTOs(ce.Conflicts)
	}

	if status >= http.StatusInternalServerError {
		reqID := middleware.GetReqID(r.Context())
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", reqID),
			zap.Error(err))
		observability.CaptureRequestErr(err, r.Method, routePattern(r), reqID)
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
