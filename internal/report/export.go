package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/seantiz/petroflow/internal/model"
)

// Standard export formats.
const (
	FormatPDF   = "PDF"
	FormatExcel = "Excel"
	FormatLAS   = "LAS"
	FormatJSON  = "JSON"
)

// Exporter writes a data bundle in some format and returns a reference to
// the artifact (a path or URI).
type Exporter interface {
	Export(ctx context.Context, format string, data *Data) (string, error)
}

// UnsupportedFormatError is returned when no exporter handles a format.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("export format %q is not supported", e.Format)
}

// ErrorCode implements fault.Coded.
func (e *UnsupportedFormatError) ErrorCode() string { return "UNSUPPORTED_FORMAT" }

// ErrorCategory implements fault.Coded.
func (e *UnsupportedFormatError) ErrorCategory() string { return "EXPORT" }

// Registry maps format names to exporters. Lookups are case-insensitive.
type Registry struct {
	mu        sync.RWMutex
	exporters map[string]registered
}

type registered struct {
	name string
	exp  Exporter
}

// NewRegistry creates an empty exporter registry.
func NewRegistry() *Registry {
	return &Registry{exporters: make(map[string]registered)}
}

// NewDefaultRegistry registers PDF, Excel and LAS against mem, and JSON
// against a FileExporter under dir (or mem when dir is empty).
func NewDefaultRegistry(mem *MemoryExporter, dir string) *Registry {
	r := NewRegistry()
	r.Register(FormatPDF, mem)
	r.Register(FormatExcel, mem)
	r.Register(FormatLAS, mem)
	if dir != "" {
		r.Register(FormatJSON, &FileExporter{Dir: dir})
	} else {
		r.Register(FormatJSON, mem)
	}
	return r
}

// Register adds an exporter under the given format name.
func (r *Registry) Register(format string, e Exporter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exporters[strings.ToLower(format)] = registered{name: format, exp: e}
}

// Resolve returns the exporter for format.
func (r *Registry) Resolve(format string) (Exporter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.exporters[strings.ToLower(format)]
	if !ok {
		return nil, &UnsupportedFormatError{Format: format}
	}
	return reg.exp, nil
}

// Export resolves format and delegates to its exporter.
func (r *Registry) Export(ctx context.Context, format string, data *Data) (string, error) {
	e, err := r.Resolve(format)
	if err != nil {
		return "", err
	}
	return e.Export(ctx, format, data)
}

// Formats returns the registered format names, sorted for a stable API
// response.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.exporters))
	for _, reg := range r.exporters {
		out = append(out, reg.name)
	}
	sort.Strings(out)
	return out
}

// MemoryExporter keeps JSON payloads in memory and returns
// mem://<format>/<id> references.
type MemoryExporter struct {
	mu        sync.RWMutex
	artifacts map[string][]byte
}

// NewMemoryExporter creates an empty in-memory exporter.
func NewMemoryExporter() *MemoryExporter {
	return &MemoryExporter{artifacts: make(map[string][]byte)}
}

// Export implements Exporter.
func (m *MemoryExporter) Export(ctx context.Context, format string, data *Data) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode %s export: %w", format, err)
	}
	ref := fmt.Sprintf("mem://%s/%s", strings.ToLower(format), model.NewID())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[ref] = payload
	return ref, nil
}

// Get returns the payload stored under ref.
func (m *MemoryExporter) Get(ref string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.artifacts[ref]
	return b, ok
}

// Len returns the number of stored artifacts.
func (m *MemoryExporter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.artifacts)
}

// FileExporter writes the bundle as indented JSON under Dir.
type FileExporter struct {
	Dir string
}

// Export implements Exporter.
func (f *FileExporter) Export(ctx context.Context, format string, data *Data) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s export: %w", format, err)
	}

	name := fmt.Sprintf("%s-%s.json", data.WorkflowID, model.NewID())
	path := filepath.Join(f.Dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil { //nolint:gosec // exports are meant to be readable
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}
