package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/seantiz/petroflow/internal/cache"
	"github.com/seantiz/petroflow/internal/calc"
	"github.com/seantiz/petroflow/internal/engine"
	"github.com/seantiz/petroflow/internal/events"
	"github.com/seantiz/petroflow/internal/fault"
	"github.com/seantiz/petroflow/internal/model"
	"github.com/seantiz/petroflow/internal/report"
	"github.com/seantiz/petroflow/internal/store"
	"github.com/seantiz/petroflow/internal/targets"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

type harness struct {
	eng    *engine.Engine
	store  *store.SQLiteStore
	cache  *cache.Cache
	broker *events.Broker
	faults *fault.Handler
	mem    *report.MemoryExporter
	deps   engine.Deps
}

func newHarness(t *testing.T, mutate func(*engine.Deps)) *harness {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	broker := events.NewBroker()
	opts := fault.DefaultOptions()
	opts.BaseDelay = 0
	opts.OnRecord = engine.RecordSink(s, logger)
	faults := fault.NewHandler(opts, broker, logger)

	h := &harness{
		store:  s,
		cache:  cache.New(),
		broker: broker,
		faults: faults,
		mem:    report.NewMemoryExporter(),
	}
	deps := engine.Deps{
		Cache:     h.cache,
		Faults:    faults,
		Broker:    broker,
		Store:     s,
		Validator: report.StructuralValidator{},
		Reports:   report.NewTemplateEngine(),
		Exporter:  report.NewDefaultRegistry(h.mem, t.TempDir()),
		Targets:   targets.NewService(targets.DefaultPerforationOptions(), logger),
		Logger:    logger,
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.deps = deps
	h.eng = engine.New(deps, engine.Options{})
	return h
}

// reservoirWell has a clean sand between 1010 and 1020 ft with shale
// above and below.
func reservoirWell(name string) *model.WellLog {
	const n = 60
	depth := make([]float64, n)
	rhob := make([]float64, n)
	gr := make([]float64, n)
	rt := make([]float64, n)
	for i := range n {
		depth[i] = 1000 + float64(i)*0.5
		if depth[i] >= 1010 && depth[i] < 1020 {
			rhob[i], gr[i], rt[i] = 2.30, 30, 40
		} else {
			rhob[i], gr[i], rt[i] = 2.58, 130, 3
		}
	}
	return &model.WellLog{
		Name:      name,
		NullValue: model.DefaultNullValue,
		Curves: []model.Curve{
			{Mnemonic: "DEPT", Unit: "ft", Values: depth},
			{Mnemonic: "RHOB", Unit: "g/cc", Values: rhob},
			{Mnemonic: "GR", Unit: "API", Values: gr},
			{Mnemonic: "RT", Unit: "ohmm", Values: rt},
		},
	}
}

func brokenWell(name string) *model.WellLog {
	w := reservoirWell(name)
	w.Curves = slices.DeleteFunc(w.Curves, func(c model.Curve) bool { return c.Mnemonic == "RHOB" })
	return w
}

func defaultRequest(wells ...*model.WellLog) engine.Request {
	return engine.Request{
		Wells:     wells,
		Templates: []string{"formation_evaluation"},
		Formats:   []string{"PDF"},
	}
}

func hasIssue(issues []model.WorkflowIssue, code string) bool {
	return slices.ContainsFunc(issues, func(i model.WorkflowIssue) bool { return i.Code == code })
}

func TestRunCompletesTwoWells(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.eng.Run(context.Background(), defaultRequest(reservoirWell("A"), reservoirWell("B")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.State.Status != model.StatusComplete {
		t.Fatalf("status = %q, want complete; errors: %+v", res.State.Status, res.State.Errors)
	}
	if diff := cmp.Diff([]string{"A", "B"}, res.State.Wells); diff != "" {
		t.Errorf("wells mismatch (-want +got):\n%s", diff)
	}
	if res.State.Progress != 100 {
		t.Errorf("progress = %v, want 100", res.State.Progress)
	}
	if len(res.Reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(res.Reports))
	}
	if res.Reports[0].TemplateID != "formation_evaluation" {
		t.Errorf("template = %q", res.Reports[0].TemplateID)
	}
	ref, ok := res.Exports["PDF"]
	if !ok {
		t.Fatalf("exports = %v, want PDF", res.Exports)
	}
	if _, ok := h.mem.Get(ref); !ok {
		t.Errorf("export %q not stored", ref)
	}

	if got, want := len(res.State.Calculations), 2*len(calc.AllTypes()); got != want {
		t.Errorf("calculations = %d, want %d", got, want)
	}
	if len(res.Visualization.Tracks) != len(res.State.Calculations) {
		t.Errorf("tracks = %d, want %d", len(res.Visualization.Tracks), len(res.State.Calculations))
	}
	if len(res.Visualization.DepthRanges) != 2 {
		t.Errorf("depth ranges = %+v", res.Visualization.DepthRanges)
	}
	if res.Visualization.DepthRanges[0].Top != 1000 {
		t.Errorf("top = %v, want 1000", res.Visualization.DepthRanges[0].Top)
	}
	if len(res.State.Targets) == 0 {
		t.Error("expected completion targets in the sand")
	}
	if len(res.Recommendations) != len(res.State.Targets) {
		t.Errorf("recommendations = %d, targets = %d", len(res.Recommendations), len(res.State.Targets))
	}
	if len(h.eng.Active()) != 0 {
		t.Errorf("active = %v, want none", h.eng.Active())
	}

	persisted, err := h.store.GetWorkflow(context.Background(), res.State.ID)
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if persisted.Status != model.StatusComplete || persisted.Progress != 100 {
		t.Errorf("persisted = %s/%v", persisted.Status, persisted.Progress)
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	h := newHarness(t, nil)

	var mu sync.Mutex
	var seen []float64
	stop := h.broker.Observe(func(ev events.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Progress)
	}, events.KindProgress)
	defer stop()

	res, err := h.eng.Run(context.Background(), defaultRequest(reservoirWell("A"), reservoirWell("B")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 5 {
		t.Fatalf("only %d progress events", len(seen))
	}
	if seen[0] != 0 {
		t.Errorf("first progress = %v, want 0", seen[0])
	}
	if last := seen[len(seen)-1]; last != 100 {
		t.Errorf("last progress = %v, want 100", last)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress decreased at %d: %v -> %v", i, seen[i-1], seen[i])
		}
	}

	evs, err := h.store.GetEvents(context.Background(), res.State.ID)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	for i := 1; i < len(evs); i++ {
		if evs[i].Seq <= evs[i-1].Seq {
			t.Fatalf("event seq not increasing at %d", i)
		}
	}
	kinds := map[string]bool{}
	for _, ev := range evs {
		kinds[ev.Kind] = true
	}
	for _, k := range []events.Kind{events.KindProgress, events.KindWorkflowUpdated, events.KindCalculationsUpdated} {
		if !kinds[string(k)] {
			t.Errorf("no persisted %s event", k)
		}
	}
}

func TestNoValidWells(t *testing.T) {
	h := newHarness(t, nil)

	var failures []events.Event
	stop := h.broker.Observe(func(ev events.Event) { failures = append(failures, ev) }, events.KindWorkflowError)
	defer stop()

	_, err := h.eng.Run(context.Background(), defaultRequest(brokenWell("A"), brokenWell("B")))
	var nv *engine.NoValidWellsError
	if !errors.As(err, &nv) {
		t.Fatalf("err = %v, want NoValidWellsError", err)
	}
	if nv.Total != 2 {
		t.Errorf("total = %d, want 2", nv.Total)
	}
	if len(failures) != 1 {
		t.Fatalf("workflow_error events = %d, want 1", len(failures))
	}

	state, err := h.eng.State(context.Background(), failures[0].WorkflowID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Status != model.StatusError {
		t.Errorf("status = %q, want error", state.Status)
	}
	if !hasIssue(state.Errors, "NO_VALID_WELLS") || !hasIssue(state.Errors, "WELL_VALIDATION_FAILED") {
		t.Errorf("errors = %+v", state.Errors)
	}
}

func TestPartiallyValidBatchCompletes(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.eng.Run(context.Background(), defaultRequest(reservoirWell("A"), brokenWell("B")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State.Status != model.StatusComplete {
		t.Fatalf("status = %q", res.State.Status)
	}
	if diff := cmp.Diff([]string{"A"}, res.State.Wells); diff != "" {
		t.Errorf("wells mismatch (-want +got):\n%s", diff)
	}
	i := slices.IndexFunc(res.State.Errors, func(i model.WorkflowIssue) bool { return i.Code == "WELL_VALIDATION_FAILED" })
	if i < 0 || res.State.Errors[i].WellName != "B" {
		t.Errorf("errors = %+v", res.State.Errors)
	}

	recs, err := h.store.ListErrorRecords(context.Background(), res.State.ID, 0)
	if err != nil {
		t.Fatalf("ListErrorRecords: %v", err)
	}
	if !slices.ContainsFunc(recs, func(r store.ErrorRecord) bool {
		return r.WellName == "B" && r.Category == string(fault.CategoryDataValidation)
	}) {
		t.Errorf("records = %+v", recs)
	}
}

func TestCalculationFailureDoesNotAbortSiblings(t *testing.T) {
	h := newHarness(t, nil)

	req := defaultRequest(reservoirWell("A"))
	params := model.DefaultParameters()
	params.FluidDensity = params.MatrixDensity
	req.Parameters = &params

	res, err := h.eng.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State.Status != model.StatusComplete {
		t.Fatalf("status = %q", res.State.Status)
	}

	var types []string
	for _, c := range res.State.Calculations {
		types = append(types, c.Type)
	}
	if diff := cmp.Diff([]string{string(calc.TypeShaleVolume)}, types); diff != "" {
		t.Errorf("calculations mismatch (-want +got):\n%s", diff)
	}
	if !slices.ContainsFunc(res.State.Errors, func(i model.WorkflowIssue) bool {
		return i.Category == string(fault.CategoryCalculation)
	}) {
		t.Errorf("no calculation error recorded: %+v", res.State.Errors)
	}
	if len(res.State.Warnings) == 0 {
		t.Error("expected an analysis warning for the missing curves")
	}
}

func TestExportAndTemplateFailuresAreRecorded(t *testing.T) {
	h := newHarness(t, nil)

	req := defaultRequest(reservoirWell("A"))
	req.Templates = []string{"formation_evaluation", "no_such_template"}
	req.Formats = []string{"PDF", "DOCX", "JSON"}

	res, err := h.eng.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State.Status != model.StatusComplete {
		t.Fatalf("status = %q", res.State.Status)
	}
	if len(res.Reports) != 1 {
		t.Errorf("reports = %d, want 1", len(res.Reports))
	}
	if _, ok := res.Exports["DOCX"]; ok {
		t.Error("unsupported format exported")
	}
	for _, f := range []string{"PDF", "JSON"} {
		if res.Exports[f] == "" {
			t.Errorf("missing export %s: %v", f, res.Exports)
		}
	}
	if !hasIssue(res.State.Errors, "UNSUPPORTED_FORMAT") || !hasIssue(res.State.Errors, "UNKNOWN_TEMPLATE") {
		t.Errorf("errors = %+v", res.State.Errors)
	}
}

func TestCachedResultsAreReused(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, err := h.eng.Run(ctx, defaultRequest(reservoirWell("A")))
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	entries := h.cache.Len()
	if entries != len(calc.AllTypes()) {
		t.Errorf("cache entries = %d, want %d", entries, len(calc.AllTypes()))
	}

	second, err := h.eng.Run(ctx, defaultRequest(reservoirWell("A")))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if h.cache.Len() != entries {
		t.Errorf("cache grew to %d", h.cache.Len())
	}
	for i := range first.State.Calculations {
		a, b := first.State.Calculations[i], second.State.Calculations[i]
		if !a.CalculatedAt.Equal(b.CalculatedAt) {
			t.Errorf("%s recomputed", a.Type)
		}
		if diff := cmp.Diff(a.Values, b.Values); diff != "" {
			t.Errorf("%s values differ:\n%s", a.Type, diff)
		}
	}

	// Same name, different samples: no reuse.
	changed := reservoirWell("A")
	changed.Curves[1].Values[0] = 2.4
	if _, err := h.eng.Run(ctx, defaultRequest(changed)); err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if h.cache.Len() != 2*entries {
		t.Errorf("cache entries = %d, want %d", h.cache.Len(), 2*entries)
	}
}

func TestSelectedCalculationTypes(t *testing.T) {
	h := newHarness(t, nil)

	req := defaultRequest(reservoirWell("A"))
	req.CalculationTypes = []string{"porosity"}
	res, err := h.eng.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.State.Calculations) != 1 || res.State.Calculations[0].Type != "porosity" {
		t.Errorf("calculations = %d", len(res.State.Calculations))
	}
	// Analysis still runs on the inputs it needs.
	if len(res.State.Targets) == 0 {
		t.Error("expected targets from cached analysis inputs")
	}

	req.CalculationTypes = []string{"resistivity"}
	if _, err := h.eng.Run(context.Background(), req); err == nil {
		t.Error("expected error for unknown calculation type")
	}
}

func TestUpdateParameters(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, err := h.eng.Run(ctx, defaultRequest(reservoirWell("A"), reservoirWell("B")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	id := first.State.ID
	swBefore := first.State.Calculations[2]
	if swBefore.Type != string(calc.TypeWaterSaturation) {
		t.Fatalf("unexpected calculation order: %s", swBefore.Type)
	}

	params := model.DefaultParameters()
	params.Rw = 0.05
	updated, err := h.eng.UpdateParameters(ctx, id, params)
	if err != nil {
		t.Fatalf("UpdateParameters: %v", err)
	}
	if updated.State.Status != model.StatusComplete || updated.State.Progress != 100 {
		t.Errorf("state = %s/%v", updated.State.Status, updated.State.Progress)
	}
	if len(updated.Reports) != 1 || updated.Exports["PDF"] == "" {
		t.Errorf("reports/exports not kept: %d %v", len(updated.Reports), updated.Exports)
	}
	swAfter := updated.State.Calculations[2]
	if swAfter.Parameters.Rw != 0.05 {
		t.Errorf("rw = %v, want 0.05", swAfter.Parameters.Rw)
	}
	if swAfter.Statistics.Mean >= swBefore.Statistics.Mean {
		t.Errorf("lower rw should lower sw: %v -> %v", swBefore.Statistics.Mean, swAfter.Statistics.Mean)
	}
	if got, want := h.cache.Len(), 2*len(calc.AllTypes()); got != want {
		t.Errorf("cache entries = %d, want %d after eviction", got, want)
	}

	if _, err := h.eng.UpdateParameters(ctx, "missing", params); !errors.Is(err, engine.ErrWorkflowNotFound) {
		t.Errorf("err = %v, want ErrWorkflowNotFound", err)
	}
}

// gateValidator blocks the first validation until released.
type gateValidator struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gateValidator) Validate(w *model.WellLog) report.ValidationResult {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return report.StructuralValidator{}.Validate(w)
}

func TestCancel(t *testing.T) {
	gate := &gateValidator{entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, func(d *engine.Deps) { d.Validator = gate })
	ctx := context.Background()

	id, err := h.eng.Submit(ctx, defaultRequest(reservoirWell("A"), reservoirWell("B")))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-gate.entered

	if diff := cmp.Diff([]string{id}, h.eng.Active()); diff != "" {
		t.Errorf("active mismatch (-want +got):\n%s", diff)
	}
	if _, err := h.eng.Result(ctx, id); !errors.Is(err, engine.ErrNotComplete) {
		t.Errorf("Result err = %v, want ErrNotComplete", err)
	}
	if _, err := h.eng.UpdateParameters(ctx, id, model.DefaultParameters()); !errors.Is(err, engine.ErrNotComplete) {
		t.Errorf("UpdateParameters err = %v, want ErrNotComplete", err)
	}

	if err := h.eng.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(h.eng.Active()) != 0 {
		t.Errorf("active after cancel = %v", h.eng.Active())
	}
	close(gate.release)
	h.eng.Wait()

	state, err := h.eng.State(ctx, id)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Status != model.StatusError {
		t.Errorf("status = %q, want error", state.Status)
	}
	if !hasIssue(state.Errors, "WORKFLOW_CANCELLED") {
		t.Errorf("errors = %+v", state.Errors)
	}
	if len(state.Calculations) != 0 {
		t.Errorf("calculations kept after cancel: %d", len(state.Calculations))
	}

	persisted, err := h.store.GetWorkflow(ctx, id)
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if persisted.Status != model.StatusError {
		t.Errorf("persisted status = %q", persisted.Status)
	}

	if err := h.eng.Cancel(id); !errors.Is(err, engine.ErrWorkflowFinished) {
		t.Errorf("second Cancel err = %v, want ErrWorkflowFinished", err)
	}
	if err := h.eng.Cancel("missing"); !errors.Is(err, engine.ErrWorkflowNotFound) {
		t.Errorf("Cancel missing err = %v, want ErrWorkflowNotFound", err)
	}
}

func TestSubmitStreamsEvents(t *testing.T) {
	gate := &gateValidator{entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, func(d *engine.Deps) { d.Validator = gate })
	ctx := context.Background()

	id, err := h.eng.Submit(ctx, defaultRequest(reservoirWell("A")))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-gate.entered
	ch, unsubscribe := h.broker.Subscribe(id)
	defer unsubscribe()
	close(gate.release)

	var last events.Event
	progress := 0
	for ev := range ch {
		switch ev.Kind {
		case events.KindWorkflowUpdated:
			last = ev
		case events.KindProgress:
			progress++
		}
	}
	h.eng.Wait()

	if last.Step != model.StatusComplete {
		t.Errorf("last status event = %q, want complete", last.Step)
	}
	if progress == 0 {
		t.Error("no progress events streamed")
	}
	res, err := h.eng.Result(ctx, id)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.State.Status != model.StatusComplete {
		t.Errorf("status = %q", res.State.Status)
	}
}

func TestStateFallsBackToStore(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res, err := h.eng.Run(ctx, defaultRequest(reservoirWell("A")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// A second engine over the same store has no in-memory record.
	other := engine.New(engine.Deps{
		Cache:  h.cache,
		Faults: h.faults,
		Broker: h.broker,
		Store:  h.store,
		Logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}, engine.Options{})
	state, err := other.State(ctx, res.State.ID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Status != model.StatusComplete || len(state.Calculations) != len(res.State.Calculations) {
		t.Errorf("state = %s with %d calculations", state.Status, len(state.Calculations))
	}
	bundle, err := other.Result(ctx, res.State.ID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if len(bundle.Visualization.Tracks) != len(res.State.Calculations) {
		t.Errorf("tracks = %d", len(bundle.Visualization.Tracks))
	}
	if _, err := other.State(ctx, "missing"); !errors.Is(err, engine.ErrWorkflowNotFound) {
		t.Errorf("err = %v, want ErrWorkflowNotFound", err)
	}
}

func TestRejectedSamplesAreWarned(t *testing.T) {
	h := newHarness(t, nil)

	w := reservoirWell("A")
	rt := slices.IndexFunc(w.Curves, func(c model.Curve) bool { return c.Mnemonic == "RT" })
	for i := range 10 {
		w.Curves[rt].Values[i] = 0
	}

	res, err := h.eng.Run(context.Background(), defaultRequest(w))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State.Status != model.StatusComplete {
		t.Fatalf("status = %q; errors: %+v", res.State.Status, res.State.Errors)
	}

	sw := res.State.Calculations[2]
	if sw.Type != string(calc.TypeWaterSaturation) {
		t.Fatalf("unexpected calculation order: %s", sw.Type)
	}
	if sw.Quality.SampleErrors != 10 {
		t.Errorf("sample errors = %d, want 10", sw.Quality.SampleErrors)
	}
	if !hasIssue(res.State.Warnings, "CALCULATION_SAMPLE_ERRORS") {
		t.Errorf("warnings = %+v, want CALCULATION_SAMPLE_ERRORS", res.State.Warnings)
	}
	for _, c := range res.State.Calculations {
		if c.Type != string(calc.TypeWaterSaturation) && c.Quality.SampleErrors != 0 {
			t.Errorf("%s: sample errors = %d, want 0", c.Type, c.Quality.SampleErrors)
		}
	}
}

// nullDensityWell passes validation with a warning but has no usable
// density samples, so every calculation fails.
func nullDensityWell(name string) *model.WellLog {
	w := reservoirWell(name)
	for i, c := range w.Curves {
		if c.Mnemonic == "RHOB" {
			for j := range c.Values {
				w.Curves[i].Values[j] = model.DefaultNullValue
			}
		}
	}
	return w
}

func TestRetryCountersAreScopedToWorkflow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	var attempts []int
	for _, name := range []string{"N1", "N2", "N3"} {
		before := h.faults.Statistics().RetriesAttempted
		res, err := h.eng.Run(ctx, defaultRequest(nullDensityWell(name)))
		if err != nil {
			t.Fatalf("Run %s: %v", name, err)
		}
		if len(res.State.Errors) == 0 {
			t.Fatalf("%s: expected calculation errors", name)
		}
		attempts = append(attempts, h.faults.Statistics().RetriesAttempted-before)

		if left := h.faults.RetryCounters(); len(left) != 0 {
			t.Errorf("%s: retry counters left after run: %v", name, left)
		}
	}

	if attempts[0] == 0 {
		t.Fatal("first workflow made no retry attempts")
	}
	for i, n := range attempts {
		if n != attempts[0] {
			t.Errorf("workflow %d made %d retry attempts, want %d like the first", i, n, attempts[0])
		}
	}
}

func TestParameterRerunStartsNewSegment(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, err := h.eng.Run(ctx, defaultRequest(reservoirWell("A")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	params := model.DefaultParameters()
	params.ArchieM = 1.8
	updated, err := h.eng.UpdateParameters(ctx, first.State.ID, params)
	if err != nil {
		t.Fatalf("UpdateParameters: %v", err)
	}
	if updated.State.Segment != 1 {
		t.Errorf("state segment = %d, want 1", updated.State.Segment)
	}

	evs, err := h.store.GetEvents(ctx, first.State.ID)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	last := map[int]float64{}
	firstProgress := map[int]float64{}
	for _, ev := range evs {
		if ev.Kind != string(events.KindProgress) {
			continue
		}
		if _, ok := firstProgress[ev.Segment]; !ok {
			firstProgress[ev.Segment] = ev.Progress
		}
		if ev.Progress < last[ev.Segment] {
			t.Errorf("segment %d progress went %v -> %v at seq %d", ev.Segment, last[ev.Segment], ev.Progress, ev.Seq)
		}
		last[ev.Segment] = ev.Progress
	}
	if diff := cmp.Diff(map[int]float64{0: 0, 1: 20}, firstProgress); diff != "" {
		t.Errorf("first progress per segment (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[int]float64{0: 100, 1: 100}, last); diff != "" {
		t.Errorf("last progress per segment (-want +got):\n%s", diff)
	}
}

func TestFinishedRunsAreEvicted(t *testing.T) {
	h := newHarness(t, nil)
	eng := engine.New(h.deps, engine.Options{RetainFinished: 1})
	ctx := context.Background()

	old, err := eng.Run(ctx, defaultRequest(reservoirWell("A")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	recent, err := eng.Run(ctx, defaultRequest(reservoirWell("B")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The retained run keeps its reports; the evicted one comes from the store.
	res, err := eng.Result(ctx, recent.State.ID)
	if err != nil || len(res.Reports) != 1 {
		t.Fatalf("recent result = %v, %v", res, err)
	}
	res, err = eng.Result(ctx, old.State.ID)
	if err != nil {
		t.Fatalf("evicted Result: %v", err)
	}
	if res.State.Status != model.StatusComplete || len(res.Reports) != 0 {
		t.Errorf("evicted result = %s with %d reports", res.State.Status, len(res.Reports))
	}

	if _, err := eng.UpdateParameters(ctx, old.State.ID, model.DefaultParameters()); !errors.Is(err, engine.ErrRunEvicted) {
		t.Errorf("UpdateParameters err = %v, want ErrRunEvicted", err)
	}
	if err := eng.Cancel(old.State.ID); !errors.Is(err, engine.ErrWorkflowFinished) {
		t.Errorf("Cancel err = %v, want ErrWorkflowFinished", err)
	}

	// Re-running the retained workflow keeps it retained.
	if _, err := eng.UpdateParameters(ctx, recent.State.ID, model.DefaultParameters()); err != nil {
		t.Errorf("UpdateParameters retained: %v", err)
	}
}
