// ABOUTME: Tests for the CLI plumbing: sink selection, backend detection, the node catalog,
// ABOUTME: and an end-to-end YAML workflow run.
package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/2389-research/cascade/flow"
	"github.com/2389-research/cascade/llm"
	"github.com/2389-research/cascade/registry"
)

func TestOpenSinkBackends(t *testing.T) {
	for _, store := range []string{"fs", "sqlite"} {
		t.Run(store, func(t *testing.T) {
			sink, err := openSink(config{store: store, dataDir: t.TempDir()})
			if err != nil {
				t.Fatalf("openSink(%s): %v", store, err)
			}
			sink.Close()
		})
	}

	if _, err := openSink(config{store: "papyrus", dataDir: t.TempDir()}); err == nil {
		t.Error("expected error for unknown store")
	}
}

func TestBuildClientFallsBackToFake(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, ok := buildClient(config{}).(*llm.Fake); !ok {
		t.Error("expected the offline fake without an API key")
	}
	if _, ok := buildEmbedder(config{}).(*llm.FakeEmbedder); !ok {
		t.Error("expected the fake embedder without an API key")
	}
}

func TestCompleteStepSubstitutesInput(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	catalog := builtinCatalog(config{})

	node := flow.NewNode(catalog["complete"](), flow.WithName("summarize"))
	node.SetParams(map[string]any{
		"prompt": "Summarize: {input}",
		"read":   "text",
		"write":  "summary",
	})

	s := flow.Seed(map[string]any{"text": "a long document"})
	if err := flow.Run(context.Background(), node, s); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The offline fake echoes the prompt, proving the substitution happened.
	if got := s.GetString("summary", ""); !strings.Contains(got, "Summarize: a long document") {
		t.Errorf("summary = %q", got)
	}
}

func TestRunWorkflowEndToEnd(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	dir := t.TempDir()
	workflow := filepath.Join(dir, "flow.yaml")
	payload := `
name: stamp
nodes:
  - name: stamp
    uses: set
    params:
      write: stamped
      value: done
`
	if err := os.WriteFile(workflow, []byte(payload), 0o644); err != nil {
		t.Fatalf("write workflow: %v", err)
	}

	cfg := config{
		workflowFile: workflow,
		dataDir:      filepath.Join(dir, "data"),
		store:        "fs",
		seedJSON:     "{}",
	}
	if code := runWorkflow(cfg); code != 0 {
		t.Fatalf("exit code = %d", code)
	}

	// The run must have been logged.
	sink, err := openSink(cfg)
	if err != nil {
		t.Fatalf("reopen sink: %v", err)
	}
	defer sink.Close()
	runs, err := sink.Runs()
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs = %v, %v", runs, err)
	}
	if runs[0].Workflow != "stamp" {
		t.Errorf("workflow = %q", runs[0].Workflow)
	}
}

func TestRunWorkflowBadInputs(t *testing.T) {
	if code := runWorkflow(config{workflowFile: "no-such-file.yaml", store: "fs", dataDir: t.TempDir(), seedJSON: "{}"}); code != 1 {
		t.Errorf("missing file exit code = %d", code)
	}
}

func TestRegisterExamples(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	reg := registry.New()
	registerExamples(reg, config{})

	want := []string{"agent", "chat", "mapreduce", "pipeline", "rag"}
	got := reg.Names()
	if len(got) != len(want) {
		t.Fatalf("names = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
