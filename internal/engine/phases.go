package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/seantiz/petroflow/internal/cache"
	"github.com/seantiz/petroflow/internal/calc"
	"github.com/seantiz/petroflow/internal/events"
	"github.com/seantiz/petroflow/internal/fault"
	"github.com/seantiz/petroflow/internal/model"
)

// analysisInputs are the curves reservoir analysis reads, whether or not
// the request asked for them.
var analysisInputs = []calc.Type{
	calc.TypePorosity,
	calc.TypeShaleVolume,
	calc.TypeWaterSaturation,
	calc.TypePermeability,
}

// load validates the requested wells. Invalid wells are excluded with an
// error recorded; the phase fails only when none remain.
func (e *Engine) load(ctx context.Context, r *run) error {
	ctx, span := e.tracer.Start(ctx, "workflow.loading")
	defer span.End()

	if err := e.transition(r, model.StatusLoading, "Loading wells"); err != nil {
		return err
	}

	wells := r.plan.wells
	seen := make(map[string]bool, len(wells))
	var valid []loadedWell
	for i, w := range wells {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := ""
		if w != nil {
			name = w.Name
		}
		res := e.deps.Validator.Validate(w)
		if res.IsValid && seen[name] {
			res.IsValid = false
			res.Errors = append(res.Errors, "duplicate well name")
		}
		for _, msg := range res.Warnings {
			r.addIssue(true, model.WorkflowIssue{
				Code:     "WELL_VALIDATION_WARNING",
				Category: string(fault.CategoryDataValidation),
				Severity: string(fault.SeverityLow),
				Message:  msg,
				WellName: name,
				Step:     model.StatusLoading,
			})
		}

		if !res.IsValid {
			rec, _ := e.deps.Faults.Handle(ctx, &WellValidationError{Well: name, Problems: res.Errors}, fault.Context{
				Operation:  "validate_well",
				WorkflowID: r.id,
				WellName:   name,
				WellData:   true,
			})
			r.addIssue(false, issueFrom(rec, model.StatusLoading))
			e.emit(r, progressLoaded*float64(i+1)/float64(len(wells)), model.StatusLoading,
				fmt.Sprintf("Excluded well %s", name))
			continue
		}

		seen[name] = true
		well := w.Clone()
		if calc.Downsample(well, e.opts.MaxSamples) {
			r.addIssue(true, model.WorkflowIssue{
				Code:     "WELL_DOWNSAMPLED",
				Category: string(fault.CategoryPerformance),
				Severity: string(fault.SeverityLow),
				Message:  fmt.Sprintf("well downsampled to at most %d samples", e.opts.MaxSamples),
				WellName: name,
				Step:     model.StatusLoading,
			})
		}
		valid = append(valid, loadedWell{log: well, key: well.Name + "#" + well.Fingerprint()})
		e.emit(r, progressLoaded*float64(i+1)/float64(len(wells)), model.StatusLoading,
			fmt.Sprintf("Validated well %s", name))
	}

	span.SetAttributes(attribute.Int("wells.valid", len(valid)))
	if len(valid) == 0 {
		return &NoValidWellsError{Total: len(wells)}
	}

	names := make([]string, len(valid))
	for i, w := range valid {
		names[i] = w.log.Name
	}
	r.mu.Lock()
	r.wells = valid
	r.state.Wells = names
	r.mu.Unlock()

	e.emit(r, progressLoaded, model.StatusLoading, fmt.Sprintf("Loaded %d of %d well(s)", len(valid), len(wells)))
	return nil
}

func (e *Engine) calculatePhase(ctx context.Context, r *run) error {
	if err := e.transition(r, model.StatusCalculating, "Running calculations"); err != nil {
		return err
	}
	return e.calculate(ctx, r, progressLoaded, progressCalculated)
}

func (e *Engine) analysePhase(ctx context.Context, r *run) error {
	return e.analyse(ctx, r, progressCalculated, progressAnalysed)
}

// calculate computes every (well, type) pair of the plan under the
// concurrency limit, spreading progress over [lo, hi]. A failing pair is
// recorded and skipped. Only cancellation fails the phase.
func (e *Engine) calculate(ctx context.Context, r *run, lo, hi float64) error {
	r.mu.Lock()
	wells := r.wells
	types := r.plan.types
	params := r.plan.params
	r.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "workflow.calculating", trace.WithAttributes(
		attribute.Int("calculations.total", len(wells)*len(types)),
		attribute.Int("calculations.limit", e.opts.MaxConcurrent),
	))
	defer span.End()

	total := float64(len(wells) * len(types))
	var done atomic.Int64

	var g errgroup.Group
	g.SetLimit(e.opts.MaxConcurrent)
dispatch:
	for _, w := range wells {
		for _, t := range types {
			if ctx.Err() != nil || r.isCancelled() {
				break dispatch
			}
			g.Go(func() error {
				e.calculatePair(ctx, r, w, t, params)
				n := done.Add(1)
				e.emit(r, lo+(hi-lo)*float64(n)/total, model.StatusCalculating,
					fmt.Sprintf("Calculated %s for %s", t, w.log.Name))
				return nil
			})
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if r.isCancelled() {
		return ErrCancelled
	}
	r.collectCalculations()
	e.emit(r, hi, model.StatusCalculating, fmt.Sprintf("Completed %d calculation(s)", int(total)))
	return nil
}

// calculatePair computes one pair, routing failures through the fault
// handler with a retry.
func (e *Engine) calculatePair(ctx context.Context, r *run, w loadedWell, t calc.Type, p model.CalculationParameters) {
	res, err := e.calculateOne(w, t, p)
	if err == nil {
		r.storeResult(res)
		e.noteSampleErrors(r, res)
		return
	}
	if ctx.Err() != nil {
		return
	}

	var retried *model.CalculationResult
	rec, recovered := e.deps.Faults.Handle(ctx, err, fault.Context{
		Operation:       "calculate",
		WorkflowID:      r.id,
		WellName:        w.log.Name,
		CalculationType: string(t),
		Retry: func(context.Context) error {
			res, err := e.calculateOne(w, t, p)
			if err != nil {
				return err
			}
			retried = res
			return nil
		},
	})
	if recovered && retried != nil {
		r.storeResult(retried)
		e.noteSampleErrors(r, retried)
		return
	}
	r.addIssue(false, issueFrom(rec, model.StatusCalculating))
}

// noteSampleErrors warns when a formula rejected samples whose inputs were
// present, such as Archie samples with zero porosity or resistivity.
func (e *Engine) noteSampleErrors(r *run, res *model.CalculationResult) {
	n := res.Quality.SampleErrors
	if n == 0 {
		return
	}
	e.logger.Warn("calculation rejected samples",
		"workflow_id", r.id, "well", res.WellName, "type", res.Type, "samples", n)
	r.addIssue(true, model.WorkflowIssue{
		Code:     "CALCULATION_SAMPLE_ERRORS",
		Category: string(fault.CategoryCalculation),
		Severity: string(fault.SeverityLow),
		Message:  fmt.Sprintf("%s: %d of %d samples could not be evaluated", res.Type, n, len(res.Values)),
		WellName: res.WellName,
		Step:     model.StatusCalculating,
	})
}

// calculateOne returns the result for one pair through the cache.
// Dependencies are resolved through the cache too, so they are computed
// once per well and parameter set.
func (e *Engine) calculateOne(w loadedWell, t calc.Type, p model.CalculationParameters) (*model.CalculationResult, error) {
	start := time.Now()
	var resolve calc.Resolver
	resolve = func(dep calc.Type) (*model.CalculationResult, error) {
		res, _, err := e.deps.Cache.GetOrCompute(cache.Key(w.key, string(dep), p), e.opts.CacheTTL,
			func() (*model.CalculationResult, error) {
				return calc.Compute(dep, w.log, p, resolve)
			})
		return res, err
	}

	res, hit, err := e.deps.Cache.GetOrCompute(cache.Key(w.key, string(t), p), e.opts.CacheTTL,
		func() (*model.CalculationResult, error) {
			return calc.Compute(t, w.log, p, resolve)
		})
	switch {
	case err != nil:
		calculationsTotal.WithLabelValues(string(t), "error").Inc()
	case hit:
		calculationsTotal.WithLabelValues(string(t), "cached").Inc()
		e.logger.Debug("calculation cache hit", "well", w.log.Name, "type", t)
	default:
		calculationsTotal.WithLabelValues(string(t), "computed").Inc()
		calculationDuration.WithLabelValues(string(t)).Observe(time.Since(start).Seconds())
	}
	return res, err
}

// analyse runs reservoir analysis per well, spreading progress over
// [lo, hi]. Failures are recorded as warnings.
func (e *Engine) analyse(ctx context.Context, r *run, lo, hi float64) error {
	ctx, span := e.tracer.Start(ctx, "workflow.reservoir_analysis")
	defer span.End()

	r.mu.Lock()
	wells := r.wells
	params := r.plan.params
	cutoffs := r.plan.cutoffs
	r.mu.Unlock()

	for i, w := range wells {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.isCancelled() {
			return ErrCancelled
		}

		results := r.resultsFor(w.log.Name)
		if results == nil {
			results = make(map[calc.Type]*model.CalculationResult)
		}
		for _, t := range analysisInputs {
			if results[t] != nil {
				continue
			}
			if res, err := e.calculateOne(w, t, params); err == nil {
				results[t] = res
			}
		}

		a, err := e.deps.Targets.Analyze(w.log.Name, results, cutoffs)
		if err != nil {
			rec, _ := e.deps.Faults.Handle(ctx, err, fault.Context{
				Operation:  "analyze_targets",
				WorkflowID: r.id,
				WellName:   w.log.Name,
			})
			r.addIssue(true, issueFrom(rec, stepAnalysis))
		} else {
			r.storeAnalysis(a)
		}
		e.emit(r, lo+(hi-lo)*float64(i+1)/float64(len(wells)), stepAnalysis,
			fmt.Sprintf("Analysed reservoir for %s", w.log.Name))
	}

	r.collectAnalyses()
	state := r.snapshot()
	e.publish(r, events.Event{
		Kind:    events.KindCalculationsUpdated,
		Step:    stepAnalysis,
		Message: fmt.Sprintf("%d calculation(s), %d target(s)", len(state.Calculations), len(state.Targets)),
		Data: map[string]any{
			"calculations": len(state.Calculations),
			"zones":        len(state.Zones),
			"targets":      len(state.Targets),
		},
	})
	e.emit(r, hi, stepAnalysis, "Reservoir analysis complete")
	return nil
}

// generate renders the requested reports, then the requested exports.
// Each failing template or format is recorded and skipped.
func (e *Engine) generate(ctx context.Context, r *run) error {
	ctx, span := e.tracer.Start(ctx, "workflow.generating_report", trace.WithAttributes(
		attribute.Int("reports.templates", len(r.plan.templates)),
		attribute.Int("reports.formats", len(r.plan.formats)),
	))
	defer span.End()

	if err := e.transition(r, model.StatusGeneratingReport, "Generating reports"); err != nil {
		return err
	}
	data := r.bundle()

	templates := r.plan.templates
	for i, id := range templates {
		if err := ctx.Err(); err != nil {
			return err
		}
		rep, err := e.deps.Reports.GenerateReport(ctx, id, data)
		if err != nil {
			rec, ok := e.deps.Faults.Handle(ctx, err, fault.Context{
				Operation:  "generate_report",
				WorkflowID: r.id,
				TemplateID: id,
				Retry: func(ctx context.Context) error {
					rep, err = e.deps.Reports.GenerateReport(ctx, id, data)
					return err
				},
			})
			if !ok || err != nil {
				r.addIssue(false, issueFrom(rec, model.StatusGeneratingReport))
				rep = nil
			}
		}
		if rep != nil {
			r.addReport(rep)
		}
		e.emit(r, progressAnalysed+(progressReported-progressAnalysed)*float64(i+1)/float64(len(templates)),
			model.StatusGeneratingReport, fmt.Sprintf("Processed template %s", id))
	}
	e.emit(r, progressReported, model.StatusGeneratingReport, "Reports generated")

	formats := r.plan.formats
	for i, format := range formats {
		if err := ctx.Err(); err != nil {
			return err
		}
		ref, err := e.deps.Exporter.Export(ctx, format, data)
		if err != nil {
			rec, ok := e.deps.Faults.Handle(ctx, err, fault.Context{
				Operation:    "export",
				WorkflowID:   r.id,
				ExportFormat: format,
				Retry: func(ctx context.Context) error {
					ref, err = e.deps.Exporter.Export(ctx, format, data)
					return err
				},
			})
			if !ok || err != nil {
				r.addIssue(false, issueFrom(rec, stepExporting))
				ref = ""
			}
		}
		if ref != "" {
			r.addExport(format, ref)
		}
		e.emit(r, progressReported+(progressExported-progressReported)*float64(i+1)/float64(len(formats)),
			stepExporting, fmt.Sprintf("Processed export %s", format))
	}
	return nil
}

// cacheKeys lists the cache entries a run holds under parameters p.
func cacheKeys(wells []loadedWell, p model.CalculationParameters) []string {
	var keys []string
	for _, w := range wells {
		for _, t := range calc.AllTypes() {
			keys = append(keys, cache.Key(w.key, string(t), p))
		}
	}
	return keys
}
