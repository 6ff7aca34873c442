package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
	"github.com/poppopjmp/spiderfoot-sub001/internal/service"
	"github.com/poppopjmp/spiderfoot-sub001/pkg/apierror"
)

type RulesHandler struct {
	service *service.RetentionService
}

func NewRulesHandler(s *service.RetentionService) *RulesHandler {
	return &RulesHandler{service: s}
}

// List returns every rule with its most recent run.
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.ListRules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, summaries)
}

// Create registers a new retention rule.
func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierror.BadRequest("invalid JSON body", err.Error()))
		return
	}

	rule, err := h.service.CreateRule(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, rule)
}

// Get returns a single rule.
func (h *RulesHandler) Get(w http.ResponseWriter, r *http.Request) {
	rule, err := h.service.GetRule(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, rule)
}

// Update applies a partial rule update.
func (h *RulesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierror.BadRequest("invalid JSON body", err.Error()))
		return
	}

	rule, err := h.service.UpdateRule(r.Context(), chi.URLParam(r, "ruleID"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, rule)
}

// Delete removes a rule. Its run history is kept.
func (h *RulesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRule(r.Context(), chi.URLParam(r, "ruleID")); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Preview evaluates the rule's criteria without touching any resource.
func (h *RulesHandler) Preview(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Preview(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// Enforce starts an asynchronous enforcement run and returns the pending
// run record for polling.
func (h *RulesHandler) Enforce(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Enforce(r.Context(), chi.URLParam(r, "ruleID"), model.TriggerManual)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, run)
}
