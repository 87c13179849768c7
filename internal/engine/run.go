package engine

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/seantiz/petroflow/internal/calc"
	"github.com/seantiz/petroflow/internal/model"
	"github.com/seantiz/petroflow/internal/report"
	"github.com/seantiz/petroflow/internal/targets"
)

// loadedWell is a validated well together with its cache identity.
type loadedWell struct {
	log *model.WellLog
	key string
}

// run is the in-memory record of one workflow.
//
// mu guards the fields below it. emitMu serialises transitions, progress
// and event publication so observers see them in order; it is always
// acquired before mu.
type run struct {
	id         string
	persistCtx context.Context

	emitMu  sync.Mutex
	seq     int
	segment int

	mu        sync.Mutex
	plan      plan
	state     model.WorkflowState
	wells     []loadedWell
	results   map[string]map[calc.Type]*model.CalculationResult
	analyses  map[string]*targets.Analysis
	reports   []*report.Report
	exports   map[string]string
	cancel    context.CancelFunc
	cancelled bool
}

func (r *run) snapshot() model.WorkflowState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Snapshot()
}

func (r *run) status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Status
}

func (r *run) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *run) addIssue(warning bool, issue model.WorkflowIssue) {
	if issue.Timestamp.IsZero() {
		issue.Timestamp = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return
	}
	if warning {
		r.state.Warnings = append(r.state.Warnings, issue)
		return
	}
	r.state.Errors = append(r.state.Errors, issue)
}

// storeResult keeps a calculation result unless the run was cancelled.
func (r *run) storeResult(res *model.CalculationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return
	}
	if r.results == nil {
		r.results = make(map[string]map[calc.Type]*model.CalculationResult)
	}
	byType, ok := r.results[res.WellName]
	if !ok {
		byType = make(map[calc.Type]*model.CalculationResult)
		r.results[res.WellName] = byType
	}
	byType[calc.Type(res.Type)] = res
}

func (r *run) resultsFor(well string) map[calc.Type]*model.CalculationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.results[well])
}

// collectCalculations copies the results into the state in well order,
// then type order.
func (r *run) collectCalculations() {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.CalculationResult{}
	for _, w := range r.wells {
		for _, t := range r.plan.types {
			if res, ok := r.results[w.log.Name][t]; ok {
				out = append(out, res)
			}
		}
	}
	r.state.Calculations = out
}

func (r *run) storeAnalysis(a *targets.Analysis) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return
	}
	if r.analyses == nil {
		r.analyses = make(map[string]*targets.Analysis)
	}
	r.analyses[a.WellName] = a
}

// collectAnalyses copies zones and targets into the state in well order.
func (r *run) collectAnalyses() {
	r.mu.Lock()
	defer r.mu.Unlock()
	zones := []model.ReservoirZone{}
	tgts := []model.CompletionTarget{}
	for _, w := range r.wells {
		if a, ok := r.analyses[w.log.Name]; ok {
			zones = append(zones, a.Zones...)
			tgts = append(tgts, a.Targets...)
		}
	}
	r.state.Zones = zones
	r.state.Targets = tgts
}

// bundle builds the report data from the current state.
func (r *run) bundle() *report.Data {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := &report.Data{
		WorkflowID:   r.id,
		Parameters:   r.plan.params,
		Calculations: slices.Clone(r.state.Calculations),
		Zones:        slices.Clone(r.state.Zones),
		Targets:      slices.Clone(r.state.Targets),
		Errors:       slices.Clone(r.state.Errors),
		Warnings:     slices.Clone(r.state.Warnings),
		GeneratedAt:  time.Now().UTC(),
	}
	for _, w := range r.wells {
		d.Wells = append(d.Wells, report.InfoFor(w.log))
		if a, ok := r.analyses[w.log.Name]; ok {
			d.Perforations = append(d.Perforations, a.Perforations...)
			d.Recommendations = append(d.Recommendations, a.Recommendations...)
		}
	}
	return d
}

func (r *run) addReport(rep *report.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.cancelled {
		r.reports = append(r.reports, rep)
	}
}

func (r *run) addExport(format, ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return
	}
	if r.exports == nil {
		r.exports = make(map[string]string)
	}
	r.exports[format] = ref
}

// result assembles the bundle returned to callers.
func (r *run) result() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := &Result{
		State:           r.state.Snapshot(),
		Reports:         slices.Clone(r.reports),
		Exports:         maps.Clone(r.exports),
		Visualization:   buildVisualization(r.state.Calculations),
		Perforations:    []model.PerforationInterval{},
		Recommendations: []model.CompletionRecommendation{},
	}
	if res.Reports == nil {
		res.Reports = []*report.Report{}
	}
	if res.Exports == nil {
		res.Exports = map[string]string{}
	}
	for _, w := range r.wells {
		if a, ok := r.analyses[w.log.Name]; ok {
			res.Perforations = append(res.Perforations, a.Perforations...)
			res.Recommendations = append(res.Recommendations, a.Recommendations...)
		}
	}
	return res
}
