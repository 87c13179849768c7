package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/seantiz/petroflow/internal/model"
)

// UpdateParameters re-runs the calculations and reservoir analysis of a
// complete workflow with new parameters. Wells, reports and exports are
// kept. Cache entries for the previous parameters are evicted. The re-run
// starts a new event segment, so progress restarts at the end of loading.
func (e *Engine) UpdateParameters(ctx context.Context, id string, params model.CalculationParameters) (*Result, error) {
	r := e.lookup(id)
	if r == nil {
		return nil, e.missing(ctx, id, ErrRunEvicted)
	}

	r.mu.Lock()
	status := r.state.Status
	r.mu.Unlock()
	if status != model.StatusComplete {
		return nil, ErrNotComplete
	}

	e.deps.Broker.Reopen(id)
	// The transition is the guard against concurrent updates: only one
	// caller can leave complete.
	if err := e.transition(r, model.StatusCalculating, "Parameters changed"); err != nil {
		return nil, fmt.Errorf("re-enter calculating: %w", err)
	}
	runCtx := e.activate(ctx, r)
	defer e.finish(r)

	runCtx, span := e.tracer.Start(runCtx, "workflow.parameter_change", trace.WithAttributes(
		attribute.String("workflow.id", id),
	))
	defer span.End()

	params = params.WithDefaults()
	r.emitMu.Lock()
	r.mu.Lock()
	r.segment++
	r.state.Segment = r.segment
	previous := r.plan.params
	r.plan.params = params
	r.results = nil
	r.analyses = nil
	r.state.Progress = progressLoaded
	wells := r.wells
	r.mu.Unlock()
	r.emitMu.Unlock()

	if previous.Hash() != params.Hash() {
		evicted := 0
		for _, key := range cacheKeys(wells, previous) {
			if e.deps.Cache.Evict(key) {
				evicted++
			}
		}
		e.logger.Info("parameters changed", "workflow_id", id, "evicted", evicted)
	}

	e.emit(r, progressLoaded, model.StatusCalculating, "Recalculating with new parameters")
	if err := e.calculate(runCtx, r, progressLoaded, progressCalculated); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, e.fail(runCtx, r, err)
	}
	if err := e.analyse(runCtx, r, progressCalculated, progressAnalysed); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, e.fail(runCtx, r, err)
	}

	e.emit(r, progressComplete, model.StatusComplete, "Recalculation complete")
	if err := e.transition(r, model.StatusComplete, "Recalculation complete"); err != nil {
		return nil, e.fail(runCtx, r, err)
	}
	return r.result(), nil
}
