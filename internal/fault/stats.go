package fault

// Statistics aggregates the handler's history.
type Statistics struct {
	Total            int              `json:"total"`
	ByCategory       map[Category]int `json:"by_category"`
	BySeverity       map[Severity]int `json:"by_severity"`
	Recent           []Record         `json:"recent"`
	RetriesAttempted int              `json:"retries_attempted"`
	Recovered        int              `json:"recovered"`
	RecoveryRate     float64          `json:"recovery_rate"`
}

// Statistics returns counts by category and severity over the retained
// history, the most recent records (newest first), and the recovery rate
// (retries attempted per error seen).
func (h *Handler) Statistics() Statistics {
	h.mu.Lock()
	defer h.mu.Unlock()

	hist := h.historyLocked()
	st := Statistics{
		Total:            h.seen,
		ByCategory:       make(map[Category]int),
		BySeverity:       make(map[Severity]int),
		RetriesAttempted: h.attempted,
		Recovered:        h.recovered,
	}
	for _, r := range hist {
		st.ByCategory[r.Category]++
		st.BySeverity[r.Severity]++
	}
	for i := len(hist) - 1; i >= 0 && len(st.Recent) < DefaultRecentCount; i-- {
		st.Recent = append(st.Recent, hist[i])
	}
	if h.seen > 0 {
		st.RecoveryRate = float64(h.attempted) / float64(h.seen)
	}
	return st
}
