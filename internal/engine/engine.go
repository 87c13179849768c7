package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/seantiz/petroflow/internal/cache"
	"github.com/seantiz/petroflow/internal/calc"
	"github.com/seantiz/petroflow/internal/events"
	"github.com/seantiz/petroflow/internal/fault"
	"github.com/seantiz/petroflow/internal/model"
	"github.com/seantiz/petroflow/internal/report"
	"github.com/seantiz/petroflow/internal/store"
	"github.com/seantiz/petroflow/internal/targets"
	"github.com/seantiz/petroflow/internal/telemetry"
)

// Defaults for Options.
const (
	DefaultMaxConcurrent  = 4
	DefaultMaxSamples     = 20000
	DefaultRetainFinished = 64
)

// Progress band boundaries.
const (
	progressLoaded     = 20
	progressCalculated = 65
	progressAnalysed   = 80
	progressReported   = 95
	progressExported   = 99
	progressComplete   = 100
)

// Step labels carried by progress events that do not match a status.
const (
	stepAnalysis  = "reservoir_analysis"
	stepExporting = "exporting"
)

// TargetAnalyzer runs reservoir analysis over one well's curves.
type TargetAnalyzer interface {
	Analyze(well string, results map[calc.Type]*model.CalculationResult, cutoffs model.Cutoffs) (*targets.Analysis, error)
}

// Deps are the collaborators an Engine is built from. All are required.
type Deps struct {
	Cache     *cache.Cache
	Faults    *fault.Handler
	Broker    *events.Broker
	Store     store.Store
	Validator report.Validator
	Reports   report.Generator
	Exporter  report.Exporter
	Targets   TargetAnalyzer
	Logger    *slog.Logger
}

// Options tunes an Engine. Zero values select defaults.
type Options struct {
	MaxConcurrent int
	CacheTTL      time.Duration
	MaxSamples    int
	Parameters    model.CalculationParameters
	Cutoffs       model.Cutoffs

	// RetainFinished caps how many finished runs stay in memory. Older
	// runs are served from the store without reports or exports and can
	// no longer be re-run with new parameters.
	RetainFinished int
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = cache.DefaultTTL
	}
	if o.MaxSamples <= 0 {
		o.MaxSamples = DefaultMaxSamples
	}
	if o.RetainFinished <= 0 {
		o.RetainFinished = DefaultRetainFinished
	}
	o.Parameters = o.Parameters.WithDefaults()
	if o.Cutoffs == (model.Cutoffs{}) {
		o.Cutoffs = model.DefaultCutoffs()
	}
	return o
}

// Engine orchestrates workflows.
type Engine struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
	wg     sync.WaitGroup

	mu       sync.Mutex
	runs     map[string]*run
	active   map[string]bool
	finished []string // oldest first
}

// New creates an engine.
func New(deps Deps, opts Options) *Engine {
	return &Engine{
		deps:   deps,
		opts:   opts.withDefaults(),
		logger: deps.Logger,
		tracer: telemetry.Tracer(),
		runs:   make(map[string]*run),
		active: make(map[string]bool),
	}
}

// Broker returns the engine's event broker for stream subscription.
func (e *Engine) Broker() *events.Broker {
	return e.deps.Broker
}

// Faults returns the engine's error handler.
func (e *Engine) Faults() *fault.Handler {
	return e.deps.Faults
}

// Run executes a workflow to completion and returns its result bundle.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	r, runCtx, err := e.start(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.execute(runCtx, r)
}

// Submit creates a workflow and runs it in a background goroutine. The
// workflow is persisted before Submit returns. The run is detached from
// ctx cancellation; use Cancel to stop it.
func (e *Engine) Submit(ctx context.Context, req Request) (string, error) {
	r, runCtx, err := e.start(context.WithoutCancel(ctx), req)
	if err != nil {
		return "", err
	}

	e.wg.Go(func() {
		if _, err := e.execute(runCtx, r); err != nil {
			e.logger.Debug("workflow ended with error", "workflow_id", r.id, "error", err)
		}
	})
	return r.id, nil
}

// Wait blocks until all submitted workflows finish.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Cancel stops an active workflow. Its status becomes error and
// calculations still in flight have their results discarded.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	r, ok := e.runs[id]
	active := e.active[id]
	e.mu.Unlock()

	if !ok {
		return e.missing(context.Background(), id, ErrWorkflowFinished)
	}
	if !active || !e.abort(r, "workflow cancelled by user") {
		return ErrWorkflowFinished
	}
	e.logger.Info("workflow cancelled", "workflow_id", id)
	return nil
}

// State returns a snapshot of a workflow's state, falling back to the
// store for workflows this process has not run.
func (e *Engine) State(ctx context.Context, id string) (model.WorkflowState, error) {
	if r := e.lookup(id); r != nil {
		return r.snapshot(), nil
	}
	s, err := e.deps.Store.GetWorkflow(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.WorkflowState{}, ErrWorkflowNotFound
	}
	if err != nil {
		return model.WorkflowState{}, fmt.Errorf("get workflow: %w", err)
	}
	return *s, nil
}

// Result returns the result bundle of a finished workflow.
func (e *Engine) Result(ctx context.Context, id string) (*Result, error) {
	if r := e.lookup(id); r != nil {
		res := r.result()
		if !model.IsTerminal(res.State.Status) {
			return nil, ErrNotComplete
		}
		return res, nil
	}

	s, err := e.State(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.IsTerminal(s.Status) {
		return nil, ErrNotComplete
	}
	return &Result{
		State:           s,
		Reports:         []*report.Report{},
		Exports:         map[string]string{},
		Visualization:   buildVisualization(s.Calculations),
		Perforations:    []model.PerforationInterval{},
		Recommendations: []model.CompletionRecommendation{},
	}, nil
}

// Active returns the ids of running workflows, sorted.
func (e *Engine) Active() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (e *Engine) lookup(id string) *run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs[id]
}

// missing explains why id has no in-memory run: evicted is returned when
// the store still knows the workflow, ErrWorkflowNotFound otherwise.
func (e *Engine) missing(ctx context.Context, id string, evicted error) error {
	_, err := e.deps.Store.GetWorkflow(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrWorkflowNotFound
	case err != nil:
		return fmt.Errorf("get workflow: %w", err)
	}
	return evicted
}

// retire records r as finished and drops the oldest finished runs beyond
// the retention cap. Active runs are never dropped.
func (e *Engine) retire(r *run) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs[r.id] = r
	e.finished = slices.DeleteFunc(e.finished, func(id string) bool { return id == r.id })
	e.finished = append(e.finished, r.id)
	for len(e.finished) > e.opts.RetainFinished {
		old := e.finished[0]
		e.finished = e.finished[1:]
		if !e.active[old] {
			delete(e.runs, old)
		}
	}
}

// start resolves the request, persists the idle workflow and registers it
// as active.
func (e *Engine) start(ctx context.Context, req Request) (*run, context.Context, error) {
	p, err := e.resolve(req)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	names := make([]string, 0, len(p.wells))
	for _, w := range p.wells {
		if w != nil {
			names = append(names, w.Name)
		}
	}
	r := &run{
		id:   model.NewID(),
		plan: p,
		state: model.WorkflowState{
			Status:    model.StatusIdle,
			Wells:     names,
			Errors:    []model.WorkflowIssue{},
			Warnings:  []model.WorkflowIssue{},
			CreatedAt: now,
			UpdatedAt: now,
		},
		persistCtx: context.WithoutCancel(ctx),
	}
	r.state.ID = r.id

	if err := e.deps.Store.CreateWorkflow(ctx, &r.state); err != nil {
		return nil, nil, fmt.Errorf("create workflow: %w", err)
	}

	e.mu.Lock()
	e.runs[r.id] = r
	e.mu.Unlock()
	runCtx := e.activate(ctx, r)

	e.logger.Info("workflow created", "workflow_id", r.id, "wells", len(p.wells),
		"templates", len(p.templates), "formats", len(p.formats))
	return r, runCtx, nil
}

// activate marks r as running and gives it a cancellable context.
func (e *Engine) activate(ctx context.Context, r *run) context.Context {
	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.cancelled = false
	r.mu.Unlock()

	e.mu.Lock()
	e.active[r.id] = true
	e.mu.Unlock()
	workflowsActive.Inc()

	e.deps.Faults.ShowProgress(r.id, fault.Indicator{
		WorkflowID: r.id,
		Title:      "Running workflow",
		Cancelable: true,
	})
	return runCtx
}

// deactivate releases r from the active set. It reports whether r was
// active.
func (e *Engine) deactivate(r *run) bool {
	e.mu.Lock()
	was := e.active[r.id]
	delete(e.active, r.id)
	e.mu.Unlock()
	if was {
		workflowsActive.Dec()
	}
	return was
}

// finish tears down a run after its goroutine returns.
func (e *Engine) finish(r *run) {
	e.deactivate(r)
	r.mu.Lock()
	cancel := r.cancel
	status := r.state.Status
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.deps.Faults.HideProgress(r.id)
	e.deps.Faults.ResetWorkflowRetries(r.id)
	e.deps.Broker.Close(r.id)
	e.retire(r)
	workflowsTotal.WithLabelValues(status).Inc()
}

// execute runs the workflow phases.
func (e *Engine) execute(ctx context.Context, r *run) (*Result, error) {
	defer e.finish(r)

	ctx, span := e.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.id", r.id),
		attribute.Int("workflow.wells", len(r.plan.wells)),
	))
	defer span.End()

	start := time.Now()
	e.emit(r, 0, model.StatusLoading, "Workflow started")

	phases := []func(context.Context, *run) error{
		e.load,
		e.calculatePhase,
		e.analysePhase,
		e.generate,
	}
	for _, phase := range phases {
		if err := phase(ctx, r); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, e.fail(ctx, r, err)
		}
	}

	e.emit(r, progressComplete, model.StatusComplete, "Workflow complete")
	if err := e.transition(r, model.StatusComplete, "Workflow complete"); err != nil {
		return nil, e.fail(ctx, r, err)
	}

	e.logger.Info("workflow complete", "workflow_id", r.id, "duration_ms", time.Since(start).Milliseconds())
	return r.result(), nil
}

// fail moves the workflow to error. Cancellation, whether by Cancel or by
// the caller's context, is reported as ErrCancelled.
func (e *Engine) fail(ctx context.Context, r *run, err error) error {
	if r.isCancelled() {
		return ErrCancelled
	}
	if ctx.Err() != nil {
		e.abort(r, fmt.Sprintf("workflow cancelled: %v", context.Cause(ctx)))
		return ErrCancelled
	}

	rec, _ := e.deps.Faults.Handle(r.persistCtx, err, fault.Context{
		Operation:  "run_workflow",
		WorkflowID: r.id,
	})
	r.addIssue(false, issueFrom(rec, r.status()))

	e.logger.Error("workflow failed", "workflow_id", r.id, "error", err)
	if terr := e.transition(r, model.StatusError, rec.UserMessage); terr != nil {
		e.logger.Error("failed to record workflow failure", "workflow_id", r.id, "error", terr)
	}
	e.publish(r, events.Event{
		Kind:    events.KindWorkflowError,
		Step:    r.status(),
		Message: err.Error(),
		Data: map[string]any{
			"code":         rec.Code,
			"category":     string(rec.Category),
			"user_message": rec.UserMessage,
		},
	})
	return err
}

// abort marks r cancelled and in error, and releases it. It reports false
// when r had already finished.
func (e *Engine) abort(r *run, msg string) bool {
	r.emitMu.Lock()
	r.mu.Lock()
	if r.cancelled || model.IsTerminal(r.state.Status) {
		r.mu.Unlock()
		r.emitMu.Unlock()
		return false
	}
	now := time.Now().UTC()
	step := r.state.Status
	r.cancelled = true
	r.state.Status = model.StatusError
	r.state.Message = msg
	r.state.UpdatedAt = now
	r.state.FinishedAt = &now
	r.state.Errors = append(r.state.Errors, model.WorkflowIssue{
		Code:      "WORKFLOW_CANCELLED",
		Category:  string(fault.CategoryUserInput),
		Severity:  string(fault.SeverityLow),
		Message:   msg,
		Step:      step,
		Timestamp: now,
	})
	snap := r.state.Snapshot()
	cancel := r.cancel
	r.mu.Unlock()

	if err := e.deps.Store.UpdateWorkflow(r.persistCtx, &snap); err != nil {
		e.logger.Error("failed to persist cancellation", "workflow_id", r.id, "error", err)
	}
	e.publishLocked(r, events.Event{
		Kind:    events.KindWorkflowError,
		Step:    step,
		Message: msg,
		Data:    map[string]any{"code": "WORKFLOW_CANCELLED"},
	})
	r.emitMu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.deactivate(r)
	return true
}

// transition moves r to status to and persists the new state.
func (e *Engine) transition(r *run, to, msg string) error {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return ErrCancelled
	}
	from := r.state.Status
	if !model.ValidTransition(from, to) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, from, to)
	}
	now := time.Now().UTC()
	r.state.Status = to
	r.state.UpdatedAt = now
	if model.IsTerminal(to) {
		r.state.FinishedAt = &now
	} else {
		r.state.FinishedAt = nil
	}
	snap := r.state.Snapshot()
	r.mu.Unlock()

	if err := e.deps.Store.UpdateWorkflow(r.persistCtx, &snap); err != nil {
		return fmt.Errorf("persist %s: %w", to, err)
	}
	e.logger.Info("workflow status changed", "workflow_id", r.id, "from", from, "to", to)
	e.publishLocked(r, events.Event{
		Kind:    events.KindWorkflowUpdated,
		Step:    to,
		Message: msg,
		Data:    map[string]any{"status": to, "previous": from},
	})
	return nil
}

// emit records a progress update. Values lower than the current progress
// are raised to it so the sequence never decreases.
func (e *Engine) emit(r *run, pct float64, step, msg string) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return
	}
	pct = min(max(pct, r.state.Progress), progressComplete)
	r.state.Progress = pct
	r.state.CurrentStep = step
	r.state.Message = msg
	r.state.UpdatedAt = time.Now().UTC()
	r.mu.Unlock()

	e.deps.Faults.UpdateProgress(r.id, pct, msg)
	e.publishLocked(r, events.Event{
		Kind:     events.KindProgress,
		Progress: pct,
		Step:     step,
		Message:  msg,
	})
}

func (e *Engine) publish(r *run, ev events.Event) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	e.publishLocked(r, ev)
}

// publishLocked persists ev as a workflow event and publishes it. The
// caller holds r.emitMu.
func (e *Engine) publishLocked(r *run, ev events.Event) {
	ev.WorkflowID = r.id
	ev.Segment = r.segment
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	r.seq++
	row := &model.WorkflowEvent{
		WorkflowID: r.id,
		Seq:        r.seq,
		Segment:    r.segment,
		Kind:       string(ev.Kind),
		Progress:   ev.Progress,
		Step:       ev.Step,
		Message:    ev.Message,
		CreatedAt:  ev.Time,
	}
	if err := e.deps.Store.InsertEvent(r.persistCtx, row); err != nil {
		e.logger.Error("failed to persist workflow event", "workflow_id", r.id, "seq", r.seq, "error", err)
	}
	e.deps.Broker.Publish(ev)
}

func issueFrom(rec fault.Record, step string) model.WorkflowIssue {
	return model.WorkflowIssue{
		Code:      rec.Code,
		Category:  string(rec.Category),
		Severity:  string(rec.Severity),
		Message:   rec.Message,
		WellName:  rec.Context.WellName,
		Step:      step,
		Timestamp: rec.Timestamp,
	}
}
