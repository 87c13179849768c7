package api

import (
	"net/http"

	"github.com/seantiz/petroflow/internal/store"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total            int            `json:"total"`
	ByStatus         map[string]int `json:"by_status"`
	AvgDurationMS    float64        `json:"avg_duration_ms"`
	TotalErrors      int            `json:"total_errors"`
	ErrorsByCategory map[string]int `json:"errors_by_category"`
	Active           int            `json:"active"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetWorkflowStats(r.Context())
	if err != nil {
		s.logger.Error("get workflow stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:            stats.Total,
		ByStatus:         stats.CountByStatus,
		AvgDurationMS:    stats.AvgDurationMS,
		TotalErrors:      stats.TotalErrors,
		ErrorsByCategory: stats.ErrorsByCategory,
		Active:           len(s.engine.Active()),
	})
}

// handleGetErrorStats reports the error handler's in-memory statistics.
func (s *Server) handleGetErrorStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Faults().Statistics())
}

// handleListErrors lists persisted error records, optionally for one workflow.
func (s *Server) handleListErrors(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	recs, err := s.store.ListErrorRecords(r.Context(), r.URL.Query().Get("workflow_id"), limit)
	if err != nil {
		s.logger.Error("list error records", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list errors")
		return
	}
	if recs == nil {
		recs = []store.ErrorRecord{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"errors": recs})
}

// retriesResponse is the JSON response for the retry counter endpoints.
type retriesResponse struct {
	Counters map[string]int `json:"counters,omitempty"`
	Reset    int            `json:"reset"`
}

func (s *Server) handleListRetries(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, retriesResponse{Counters: s.engine.Faults().RetryCounters()})
}

// handleResetRetries clears retry counters so automatic recovery resumes.
// workflow_id clears that workflow's counters, key clears one counter, and
// neither clears them all.
func (s *Server) handleResetRetries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var n int
	if id := q.Get("workflow_id"); id != "" {
		n = s.engine.Faults().ResetWorkflowRetries(id)
	} else {
		n = s.engine.Faults().ResetRetries(q.Get("key"))
	}
	s.logger.Info("retry counters reset", "workflow_id", q.Get("workflow_id"), "key", q.Get("key"), "reset", n)
	s.writeJSON(w, http.StatusOK, retriesResponse{Reset: n})
}
