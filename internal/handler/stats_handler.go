package handler

import (
	"net/http"

	"github.com/poppopjmp/spiderfoot-sub001/internal/service"
)

type StatsHandler struct {
	service *service.RetentionService
}

func NewStatsHandler(s *service.RetentionService) *StatsHandler {
	return &StatsHandler{service: s}
}

// Get returns the aggregate retention numbers for the dashboard.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, stats)
}
