package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/petroflow/internal/calc"
	"github.com/seantiz/petroflow/internal/engine"
	"github.com/seantiz/petroflow/internal/model"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 64 << 20 // 64 MB; well logs are large
)

// submitResponse is returned by POST /v1/workflows.
type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// listWorkflowsResponse wraps the paginated list response.
type listWorkflowsResponse struct {
	Workflows []model.WorkflowSummary `json:"workflows"`
	Total     int                     `json:"total"`
	Limit     int                     `json:"limit"`
	Offset    int                     `json:"offset"`
}

// decodeRequest reads and checks a workflow request body. It writes the
// error response and returns false when the body is unusable.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (engine.Request, bool) {
	var req engine.Request
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if len(req.Wells) == 0 {
		s.writeError(w, http.StatusBadRequest, "wells is required")
		return req, false
	}
	return req, true
}

// writeEngineError maps engine errors to HTTP responses.
func (s *Server) writeEngineError(w http.ResponseWriter, op string, err error) {
	var calcErr *calc.Error
	switch {
	case errors.Is(err, engine.ErrWorkflowNotFound):
		s.writeError(w, http.StatusNotFound, "workflow not found")
	case errors.Is(err, engine.ErrNotComplete):
		s.writeError(w, http.StatusConflict, "workflow is not complete")
	case errors.Is(err, engine.ErrWorkflowFinished):
		s.writeError(w, http.StatusConflict, "workflow already finished")
	case errors.Is(err, engine.ErrRunEvicted):
		s.writeError(w, http.StatusGone, "workflow run is no longer held in memory")
	case errors.As(err, &calcErr):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(op, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

func (s *Server) handleSubmitWorkflow(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	id, err := s.engine.Submit(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, "submit workflow", err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, submitResponse{ID: id, Status: model.StatusIdle})
}

// handleRunWorkflow runs a workflow synchronously and returns its result
// bundle. A workflow that fails still returns its final state.
func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	res, err := s.engine.Run(r.Context(), req)
	if err != nil {
		var nv *engine.NoValidWellsError
		if errors.As(err, &nv) {
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.writeEngineError(w, "run workflow", err)
		return
	}

	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	state, err := s.engine.State(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, "get workflow", err)
		return
	}

	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, "get result", err)
		return
	}

	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	workflows, total, err := s.store.ListWorkflows(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list workflows", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list workflows")
		return
	}

	if workflows == nil {
		workflows = []model.WorkflowSummary{}
	}

	s.writeJSON(w, http.StatusOK, listWorkflowsResponse{
		Workflows: workflows,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	})
}

func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"active": s.engine.Active()})
}

func (s *Server) handleUpdateParameters(w http.ResponseWriter, r *http.Request) {
	var params model.CalculationParameters
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.engine.UpdateParameters(r.Context(), chi.URLParam(r, "id"), params)
	if err != nil {
		s.writeEngineError(w, "update parameters", err)
		return
	}

	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancelWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.engine.Cancel(id); err != nil {
		s.writeEngineError(w, "cancel workflow", err)
		return
	}

	state, err := s.engine.State(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, "get cancelled workflow", err)
		return
	}

	s.writeJSON(w, http.StatusOK, state)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
