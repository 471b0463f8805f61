// Package e2e drives the scribby binary against in-process fake upstreams.
//
// Build the binary first:
//
//	CGO_ENABLED=0 go build -o scribby . && cd e2e && go test ./...
package e2e

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// Upstream is a fake LLM or passage API. Status and Body are read on every
// request; Calls counts requests served.
type Upstream struct {
	*httptest.Server
	Status atomic.Int32
	Body   atomic.Value // string
	Calls  atomic.Int32
}

func newUpstream(t *testing.T, body string) *Upstream {
	t.Helper()
	u := &Upstream{}
	u.Status.Store(http.StatusOK)
	u.Body.Store(body)
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.Calls.Add(1)
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(u.Status.Load()))
		io.WriteString(w, u.Body.Load().(string))
	}))
	t.Cleanup(u.Close)
	return u
}

// Fail makes the upstream answer every request with status and an error body.
func (u *Upstream) Fail(status int) {
	u.Status.Store(int32(status))
	u.Body.Store(`{"error":{"message":"fake upstream failure"}}`)
}

// TestHarness owns a temp data dir, a config.toml pointing at fake
// upstreams, and runs the scribby binary against them.
type TestHarness struct {
	DataDir    string
	ConfigPath string
	MainDB     string
	MetricsDB  string

	Groq   *Upstream
	Claude *Upstream
	ESV    *Upstream

	binary string
}

// Result is the outcome of one CLI invocation.
type Result struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
}

func NewHarness(t *testing.T) *TestHarness {
	t.Helper()

	wd, _ := os.Getwd()
	binary, _ := filepath.Abs(filepath.Join(wd, "..", "scribby"))
	if _, err := os.Stat(binary); os.IsNotExist(err) {
		t.Skipf("binary not found at %s; run: CGO_ENABLED=0 go build -o scribby .", binary)
	}

	dataDir := t.TempDir()
	h := &TestHarness{
		DataDir:   dataDir,
		MainDB:    filepath.Join(dataDir, "scribby.db"),
		MetricsDB: filepath.Join(dataDir, "metrics.db"),
		Groq:      newUpstream(t, chatCompletion(SampleStudyJSON, "stop")),
		Claude:    newUpstream(t, claudeMessage(SampleStudyJSON, "end_turn")),
		ESV:       newUpstream(t, esvPassage(SamplePassage)),
		binary:    binary,
	}

	config := fmt.Sprintf(`[log]
level = "debug"
format = "json"

[database]
path = %q
metrics_path = %q

[cache]
backend = "sqlite"

[llm]
provider = "auto"
order = ["groq", "claude"]
attempt_timeout_sec = 10

[llm.groq]
api_key = "fake-groq"
base_url = %q

[llm.claude]
api_key = "fake-claude"
base_url = %q

[passage]
api_key = "fake-esv"
base_url = %q
`, h.MainDB, h.MetricsDB, h.Groq.URL+"/openai/v1/", h.Claude.URL, h.ESV.URL+"/v3/passage/text/")

	h.ConfigPath = filepath.Join(dataDir, "config.toml")
	if err := os.WriteFile(h.ConfigPath, []byte(config), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return h
}

// Run executes scribby with args plus --config. The process sees only a
// minimal environment so real API keys never leak into a test run.
func (h *TestHarness) Run(t *testing.T, command string, args ...string) Result {
	t.Helper()

	full := append([]string{command, "--config", h.ConfigPath}, args...)
	cmd := exec.Command(h.binary, full...)
	cmd.Dir = h.DataDir
	cmd.Env = []string{"PATH=" + os.Getenv("PATH"), "HOME=" + h.DataDir}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting scribby: %v", err)
	}
	go func() { done <- cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(60 * time.Second):
		cmd.Process.Kill()
		<-done
		t.Fatalf("scribby %s timed out; stderr:\n%s", command, stderr.String())
	}

	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		t.Fatalf("running scribby %s: %v", command, err)
	}
	return res
}
