package report

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/seantiz/petroflow/internal/model"
)

// Built-in template identifiers.
const (
	TemplateFormationEvaluation = "formation_evaluation"
	TemplateCompletionSummary   = "completion_summary"
	TemplateQualityControl      = "quality_control"
)

// Report is a rendered report.
type Report struct {
	ID          string    `json:"id"`
	TemplateID  string    `json:"template_id"`
	Title       string    `json:"title"`
	Sections    []Section `json:"sections"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Section is one ordered block of a report.
type Section struct {
	Heading string `json:"heading"`
	Text    string `json:"text,omitempty"`
	Table   *Table `json:"table,omitempty"`
}

// Table is a rendered table.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Generator renders a report template over a data bundle.
type Generator interface {
	GenerateReport(ctx context.Context, templateID string, data *Data) (*Report, error)
}

// UnknownTemplateError is returned for unregistered template ids.
type UnknownTemplateError struct {
	TemplateID string
}

func (e *UnknownTemplateError) Error() string {
	return fmt.Sprintf("report template %q is not registered", e.TemplateID)
}

// ErrorCode implements fault.Coded.
func (e *UnknownTemplateError) ErrorCode() string { return "UNKNOWN_TEMPLATE" }

// ErrorCategory implements fault.Coded.
func (e *UnknownTemplateError) ErrorCategory() string { return "EXPORT" }

// Template defines a report layout. Section text is a text/template
// executed against *Data.
type Template struct {
	ID       string
	Title    string
	Sections []SectionTemplate
}

// SectionTemplate defines one section of a Template.
type SectionTemplate struct {
	Heading string
	Text    string
	Table   func(*Data) *Table
}

type compiledSection struct {
	heading string
	text    *template.Template
	table   func(*Data) *Table
}

type compiledTemplate struct {
	title    string
	sections []compiledSection
}

var funcs = template.FuncMap{
	"pct":  func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
	"num":  func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"join": strings.Join,
}

// TemplateEngine is the in-process Generator.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]compiledTemplate
}

// NewTemplateEngine creates an engine with the built-in templates.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]compiledTemplate)}
	for _, t := range builtinTemplates() {
		if err := e.Register(t); err != nil {
			panic(err)
		}
	}
	return e
}

// Register compiles and adds a template, replacing any with the same id.
func (e *TemplateEngine) Register(t Template) error {
	ct := compiledTemplate{title: t.Title}
	for _, s := range t.Sections {
		cs := compiledSection{heading: s.Heading, table: s.Table}
		if s.Text != "" {
			tmpl, err := template.New(t.ID + "/" + s.Heading).Funcs(funcs).Parse(s.Text)
			if err != nil {
				return fmt.Errorf("parse template %s section %q: %w", t.ID, s.Heading, err)
			}
			cs.text = tmpl
		}
		ct.sections = append(ct.sections, cs)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = ct
	return nil
}

// Templates returns the registered template ids, sorted.
func (e *TemplateEngine) Templates() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.templates))
	for id := range e.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GenerateReport implements Generator.
func (e *TemplateEngine) GenerateReport(ctx context.Context, templateID string, data *Data) (*Report, error) {
	e.mu.RLock()
	ct, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return nil, &UnknownTemplateError{TemplateID: templateID}
	}

	r := &Report{
		ID:          model.NewID(),
		TemplateID:  templateID,
		Title:       ct.title,
		GeneratedAt: time.Now().UTC(),
	}
	for _, cs := range ct.sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sec := Section{Heading: cs.heading}
		if cs.text != nil {
			var buf bytes.Buffer
			if err := cs.text.Execute(&buf, data); err != nil {
				return nil, fmt.Errorf("render %s section %q: %w", templateID, cs.heading, err)
			}
			sec.Text = strings.TrimSpace(buf.String())
		}
		if cs.table != nil {
			sec.Table = cs.table(data)
		}
		r.Sections = append(r.Sections, sec)
	}
	return r, nil
}

func builtinTemplates() []Template {
	return []Template{
		{
			ID:    TemplateFormationEvaluation,
			Title: "Formation Evaluation Report",
			Sections: []SectionTemplate{
				{Heading: "Summary", Text: `Evaluated {{len .Wells}} well(s) with {{len .Calculations}} calculation result(s). ` +
					`Archie parameters a={{num .Parameters.ArchieA}}, m={{num .Parameters.ArchieM}}, n={{num .Parameters.ArchieN}}, Rw={{num .Parameters.Rw}}.`},
				{Heading: "Wells", Table: wellTable},
				{Heading: "Calculation Statistics", Table: statisticsTable},
				{Heading: "Reservoir Zones", Text: `{{len .Zones}} reservoir zone(s) identified.`, Table: zoneTable},
			},
		},
		{
			ID:    TemplateCompletionSummary,
			Title: "Completion Summary",
			Sections: []SectionTemplate{
				{Heading: "Summary", Text: `{{len .Targets}} completion target(s), {{len .Perforations}} perforation interval(s), ` +
					`{{len .Recommendations}} recommendation(s).`},
				{Heading: "Targets", Table: targetTable},
				{Heading: "Recommendations", Table: recommendationTable},
			},
		},
		{
			ID:    TemplateQualityControl,
			Title: "Data Quality Control",
			Sections: []SectionTemplate{
				{Heading: "Summary", Text: `{{len .Errors}} error(s) and {{len .Warnings}} warning(s) recorded.`},
				{Heading: "Calculation Quality", Table: qualityTable},
				{Heading: "Issues", Table: issueTable},
			},
		},
	}
}

func f2(v float64) string { return fmt.Sprintf("%.2f", v) }
func f4(v float64) string { return fmt.Sprintf("%.4f", v) }

func wellTable(d *Data) *Table {
	t := &Table{Columns: []string{"Well", "Field", "Samples", "Curves"}}
	for _, w := range d.Wells {
		t.Rows = append(t.Rows, []string{w.Name, w.Metadata.Field, fmt.Sprint(w.Samples), strings.Join(w.Curves, ",")})
	}
	return t
}

func statisticsTable(d *Data) *Table {
	t := &Table{Columns: []string{"Well", "Type", "Method", "Count", "Mean", "P10", "P50", "P90"}}
	for _, r := range d.Calculations {
		s := r.Statistics
		t.Rows = append(t.Rows, []string{r.WellName, r.Type, r.Method, fmt.Sprint(s.Count), f4(s.Mean), f4(s.P10), f4(s.P50), f4(s.P90)})
	}
	return t
}

func zoneTable(d *Data) *Table {
	t := &Table{Columns: []string{"Well", "Top", "Bottom", "Thickness", "Porosity", "Sw", "NTG"}}
	for _, z := range d.Zones {
		t.Rows = append(t.Rows, []string{z.WellName, f2(z.Top), f2(z.Bottom), f2(z.Thickness),
			f4(z.Properties.Porosity), f4(z.Properties.WaterSaturation), f4(z.NetToGross)})
	}
	return t
}

func targetTable(d *Data) *Table {
	t := &Table{Columns: []string{"Rank", "Well", "Top", "Bottom", "Thickness", "Quality", "Score"}}
	for _, tg := range d.Targets {
		t.Rows = append(t.Rows, []string{fmt.Sprint(tg.Ranking), tg.WellName, f2(tg.Top), f2(tg.Bottom),
			f2(tg.Thickness), tg.Quality, f2(tg.Score)})
	}
	return t
}

func recommendationTable(d *Data) *Table {
	t := &Table{Columns: []string{"Priority", "Target", "Completion", "Stimulation", "Risk", "Recovery (bbl)", "NPV"}}
	for _, r := range d.Recommendations {
		t.Rows = append(t.Rows, []string{fmt.Sprint(r.Priority), r.Target.ID, r.CompletionType, r.Stimulation,
			r.Risk, fmt.Sprintf("%.0f", r.EstimatedRecoveryBbl), fmt.Sprintf("%.0f", r.Economics.NPV)})
	}
	return t
}

func qualityTable(d *Data) *Table {
	t := &Table{Columns: []string{"Well", "Type", "Completeness", "Confidence", "Invalid"}}
	for _, r := range d.Calculations {
		q := r.Quality
		t.Rows = append(t.Rows, []string{r.WellName, r.Type, f4(q.DataCompleteness), q.Confidence, fmt.Sprint(q.InvalidSamples)})
	}
	return t
}

func issueTable(d *Data) *Table {
	t := &Table{Columns: []string{"Kind", "Step", "Well", "Code", "Message"}}
	for _, e := range d.Errors {
		t.Rows = append(t.Rows, []string{"error", e.Step, e.WellName, e.Code, e.Message})
	}
	for _, w := range d.Warnings {
		t.Rows = append(t.Rows, []string{"warning", w.Step, w.WellName, w.Code, w.Message})
	}
	return t
}
