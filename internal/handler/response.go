package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
	"github.com/poppopjmp/spiderfoot-sub001/pkg/apierror"
)

func writeJSON(w http.ResponseWriter, status int, payload model.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, model.APIResponse{Success: true, Data: data})
}

func writePage(w http.ResponseWriter, data any, meta model.Meta) {
	writeJSON(w, http.StatusOK, model.APIResponse{Success: true, Data: data, Meta: &meta})
}

// writeError maps domain sentinels and apierror values onto the JSON error
// envelope. Unknown errors become an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		writeJSON(w, apiErr.HTTPStatus, model.APIResponse{
			Success: false,
			Error:   &model.APIError{Code: apiErr.Code, Message: apiErr.Message, Details: apiErr.Details},
		})
		return
	}

	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	message := "Unexpected server error"

	switch {
	case errors.Is(err, model.ErrRuleNotFound), errors.Is(err, model.ErrRunNotFound):
		status, code, message = http.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, model.ErrRuleBusy):
		status, code, message = http.StatusConflict, "RULE_BUSY", err.Error()
	case errors.Is(err, model.ErrActionImmutable):
		status, code, message = http.StatusConflict, "ACTION_IMMUTABLE", err.Error()
	case errors.Is(err, model.ErrRunNotRunning):
		status, code, message = http.StatusConflict, "RUN_NOT_RUNNING", err.Error()
	case errors.Is(err, model.ErrRunLimit):
		status, code, message = http.StatusServiceUnavailable, "RUN_LIMIT", err.Error()
	case errors.Is(err, model.ErrInvalidInput),
		errors.Is(err, model.ErrUnknownResourceType),
		errors.Is(err, model.ErrUnknownCriterion):
		status, code, message = http.StatusBadRequest, "BAD_REQUEST", err.Error()
	default:
		slog.Error("unhandled error", "error", err)
	}

	writeJSON(w, status, model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: code, Message: message},
	})
}

func parseIntOrDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
