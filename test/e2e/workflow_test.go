package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	startupTimeout = 10 * time.Second
	pollInterval   = 100 * time.Millisecond
)

// lockedBuffer is a thread-safe wrapper around bytes.Buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *lockedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(p)
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.String()
}

// serverProc holds the running server subprocess and its output.
type serverProc struct {
	cmd    *exec.Cmd
	stdout *lockedBuffer
	url    string
}

var (
	builtBinary string
	buildOnce   sync.Once
	buildErr    error
)

func getBinary(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "petroflow-e2e-*")
		if err != nil {
			buildErr = err
			return
		}
		binary := filepath.Join(dir, "petroflow")
		cmd := exec.Command("go", "build", "-o", binary, "./cmd/petroflow")
		cmd.Dir = findRepoRoot(t)
		out, err := cmd.CombinedOutput()
		if err != nil {
			buildErr = fmt.Errorf("go build failed: %w\n%s", err, out)
			return
		}
		builtBinary = binary
	})
	if buildErr != nil {
		t.Fatal(buildErr)
	}
	return builtBinary
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find repo root")
		}
		dir = parent
	}
}

func startServer(t *testing.T, binary string) *serverProc {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	tmp := t.TempDir()

	stdout := &lockedBuffer{}
	cmd := exec.Command(binary, "serve")
	cmd.Env = append(os.Environ(),
		"PETROFLOW_LISTEN_ADDR="+addr,
		"PETROFLOW_DB_PATH="+filepath.Join(tmp, "test.db"),
		"PETROFLOW_EXPORT_DIR="+filepath.Join(tmp, "exports"),
		"PETROFLOW_LOG_LEVEL=info",
	)
	cmd.Stdout = stdout
	cmd.Stderr = stdout

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}

	sp := &serverProc{
		cmd:    cmd,
		stdout: stdout,
		url:    "http://" + addr,
	}

	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(sp.url + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				return sp
			}
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("server did not become ready within %v\nstdout:\n%s", startupTimeout, stdout.String())
	return nil
}

// wellJSON builds a well with a clean sand between 1010 and 1020 ft.
func wellJSON(name string) map[string]any {
	const n = 60
	depth := make([]float64, n)
	rhob := make([]float64, n)
	gr := make([]float64, n)
	rt := make([]float64, n)
	for i := range n {
		d := 1000 + float64(i)*0.5
		depth[i] = d
		if d >= 1010 && d < 1020 {
			rhob[i], gr[i], rt[i] = 2.30, 30, 40
		} else {
			rhob[i], gr[i], rt[i] = 2.58, 130, 3
		}
	}
	return map[string]any{
		"name": name,
		"curves": []map[string]any{
			{"mnemonic": "DEPT", "values": depth},
			{"mnemonic": "RHOB", "values": rhob},
			{"mnemonic": "GR", "values": gr},
			{"mnemonic": "RT", "values": rt},
		},
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestBinaryServesHealthAndMetrics(t *testing.T) {
	sp := startServer(t, getBinary(t))

	resp, err := http.Get(sp.url + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "petroflow_workflows_active") {
		t.Error("metrics missing petroflow_workflows_active")
	}
}

func TestSyncWorkflowEndToEnd(t *testing.T) {
	sp := startServer(t, getBinary(t))

	resp := postJSON(t, sp.url+"/v1/workflows/run", map[string]any{
		"wells":     []any{wellJSON("E2E-1")},
		"templates": []string{"completion_summary"},
		"formats":   []string{"JSON", "LAS"},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200\nserver:\n%s", resp.StatusCode, sp.stdout.String())
	}

	var res struct {
		State struct {
			ID           string           `json:"id"`
			Status       string           `json:"status"`
			Progress     float64          `json:"progress"`
			Calculations []map[string]any `json:"calculations"`
			Targets      []map[string]any `json:"targets"`
		} `json:"state"`
		Exports map[string]string `json:"exports"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.State.Status != "complete" || res.State.Progress != 100 {
		t.Errorf("state = %s at %.0f%%", res.State.Status, res.State.Progress)
	}
	if len(res.State.Calculations) != 5 {
		t.Errorf("calculations = %d, want 5", len(res.State.Calculations))
	}
	if len(res.State.Targets) == 0 {
		t.Error("expected at least one completion target")
	}
	if res.Exports["JSON"] == "" || res.Exports["LAS"] == "" {
		t.Errorf("exports = %v", res.Exports)
	}

	// The workflow is persisted and listed.
	lresp, err := http.Get(sp.url + "/v1/workflows")
	if err != nil {
		t.Fatalf("GET /v1/workflows: %v", err)
	}
	defer lresp.Body.Close()
	var list struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(lresp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 {
		t.Errorf("total = %d, want 1", list.Total)
	}
}

func TestAsyncWorkflowStreamsUntilDone(t *testing.T) {
	sp := startServer(t, getBinary(t))

	resp := postJSON(t, sp.url+"/v1/workflows", map[string]any{
		"wells": []any{wellJSON("E2E-A"), wellJSON("E2E-B")},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var sub struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// The workflow may already be finished; either way the stream ends.
	sresp, err := http.Get(sp.url + "/v1/workflows/" + sub.ID + "/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	scanner := bufio.NewScanner(sresp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
	}
	sresp.Body.Close()

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		gresp, err := http.Get(sp.url + "/v1/workflows/" + sub.ID)
		if err != nil {
			t.Fatalf("GET workflow: %v", err)
		}
		var st struct {
			Status string   `json:"status"`
			Wells  []string `json:"wells"`
		}
		err = json.NewDecoder(gresp.Body).Decode(&st)
		gresp.Body.Close()
		if err != nil {
			t.Fatalf("decode state: %v", err)
		}
		if st.Status == "complete" {
			if len(st.Wells) != 2 {
				t.Errorf("wells = %v", st.Wells)
			}
			return
		}
		if st.Status == "error" {
			t.Fatalf("workflow failed\nserver:\n%s", sp.stdout.String())
		}
		time.Sleep(pollInterval)
	}
	t.Fatal("workflow did not complete")
}
