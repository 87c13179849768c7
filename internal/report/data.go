package report

import (
	"time"

	"github.com/seantiz/petroflow/internal/model"
)

// Data is the bundle handed to report templates and exporters.
type Data struct {
	WorkflowID      string                           `json:"workflow_id"`
	Wells           []WellInfo                       `json:"wells"`
	Parameters      model.CalculationParameters      `json:"parameters"`
	Calculations    []*model.CalculationResult       `json:"calculations"`
	Zones           []model.ReservoirZone            `json:"zones"`
	Targets         []model.CompletionTarget         `json:"targets"`
	Perforations    []model.PerforationInterval      `json:"perforations"`
	Recommendations []model.CompletionRecommendation `json:"recommendations"`
	Errors          []model.WorkflowIssue            `json:"errors"`
	Warnings        []model.WorkflowIssue            `json:"warnings"`
	GeneratedAt     time.Time                        `json:"generated_at"`
}

// WellInfo is the per-well header carried in a report bundle.
type WellInfo struct {
	Name     string             `json:"name"`
	Metadata model.WellMetadata `json:"metadata"`
	Samples  int                `json:"samples"`
	Curves   []string           `json:"curves"`
}

// InfoFor summarises a well for a report bundle.
func InfoFor(w *model.WellLog) WellInfo {
	info := WellInfo{Name: w.Name, Metadata: w.Metadata}
	if d, ok := w.Depths(); ok {
		info.Samples = len(d)
	}
	for _, c := range w.Curves {
		info.Curves = append(info.Curves, c.Mnemonic)
	}
	return info
}

// CalculationsFor returns the results of a single well.
func (d *Data) CalculationsFor(well string) []*model.CalculationResult {
	var out []*model.CalculationResult
	for _, r := range d.Calculations {
		if r.WellName == well {
			out = append(out, r)
		}
	}
	return out
}
