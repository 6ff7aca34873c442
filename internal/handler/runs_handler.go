package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
	"github.com/poppopjmp/spiderfoot-sub001/internal/service"
)

type RunsHandler struct {
	service *service.RetentionService
}

func NewRunsHandler(s *service.RetentionService) *RunsHandler {
	return &RunsHandler{service: s}
}

// List pages through the enforcement run history, optionally filtered by
// rule_id and trigger.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := model.RunQuery{
		RuleID:  r.URL.Query().Get("rule_id"),
		Trigger: r.URL.Query().Get("trigger"),
		Page:    parseIntOrDefault(r.URL.Query().Get("page"), 1),
		Limit:   parseIntOrDefault(r.URL.Query().Get("limit"), 20),
	}
	if query.Limit > 100 {
		query.Limit = 100
	}

	runs, meta, err := h.service.ListRuns(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, runs, meta)
}

// Get returns one run, including its summary counters.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, run)
}

// GetErrors pages through a run's per-resource failures.
func (h *RunsHandler) GetErrors(w http.ResponseWriter, r *http.Request) {
	page := parseIntOrDefault(r.URL.Query().Get("page"), 1)
	limit := parseIntOrDefault(r.URL.Query().Get("limit"), 50)
	if limit > 200 {
		limit = 200
	}

	errs, meta, err := h.service.GetRunErrors(r.Context(), chi.URLParam(r, "runID"), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, errs, meta)
}

// Cancel requests cooperative cancellation of an in-flight run.
func (h *RunsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CancelRun(r.Context(), chi.URLParam(r, "runID")); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}
