package fault

import (
	"slices"
	"strings"
	"time"

	"github.com/seantiz/petroflow/internal/events"
)

// Indicator is an active progress display.
type Indicator struct {
	ID            string    `json:"id"`
	WorkflowID    string    `json:"workflow_id,omitempty"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	Percent       float64   `json:"percent"`
	Indeterminate bool      `json:"indeterminate"`
	Cancelable    bool      `json:"cancelable"`
	StartedAt     time.Time `json:"started_at"`
}

// ShowProgress registers (or replaces) the indicator with the given id and
// emits progress_start.
func (h *Handler) ShowProgress(id string, ind Indicator) {
	ind.ID = id
	if ind.StartedAt.IsZero() {
		ind.StartedAt = time.Now().UTC()
	}
	h.mu.Lock()
	h.indicators[id] = ind
	h.mu.Unlock()

	h.publishProgress(events.KindProgressStart, ind)
}

// UpdateProgress sets the percent and message of an active indicator and
// emits progress_update. It reports false when the indicator is unknown.
func (h *Handler) UpdateProgress(id string, percent float64, message string) bool {
	h.mu.Lock()
	ind, ok := h.indicators[id]
	if !ok {
		h.mu.Unlock()
		return false
	}
	ind.Percent = max(0, min(100, percent))
	if message != "" {
		ind.Message = message
	}
	h.indicators[id] = ind
	h.mu.Unlock()

	h.publishProgress(events.KindProgressUpdate, ind)
	return true
}

// HideProgress removes the indicator and emits progress_end. It reports
// false when the indicator is unknown.
func (h *Handler) HideProgress(id string) bool {
	h.mu.Lock()
	ind, ok := h.indicators[id]
	delete(h.indicators, id)
	h.mu.Unlock()
	if !ok {
		return false
	}

	h.publishProgress(events.KindProgressEnd, ind)
	return true
}

// ActiveProgress returns the active indicators sorted by id.
func (h *Handler) ActiveProgress() []Indicator {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Indicator, 0, len(h.indicators))
	for _, ind := range h.indicators {
		out = append(out, ind)
	}
	slices.SortFunc(out, func(a, b Indicator) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (h *Handler) publishProgress(kind events.Kind, ind Indicator) {
	if h.broker == nil {
		return
	}
	h.broker.Publish(events.Event{
		Kind:       kind,
		WorkflowID: ind.WorkflowID,
		Progress:   ind.Percent,
		Step:       ind.Title,
		Message:    ind.Message,
		Data: map[string]any{
			"indicator_id":  ind.ID,
			"indeterminate": ind.Indeterminate,
			"cancelable":    ind.Cancelable,
		},
	})
}
