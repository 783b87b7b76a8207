// ABOUTME: HTTP surface over the workflow registry: JSON API for listing and running workflows,
// ABOUTME: browsing persisted runs, and an HTML run report rendered from markdown.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"

	"github.com/2389-research/cascade/flow"
	"github.com/2389-research/cascade/registry"
	"github.com/2389-research/cascade/runlog"
)

// Server exposes a registry of workflows over HTTP. Each run gets its own
// engine wired to a runlog recorder, so every invocation is persisted.
type Server struct {
	router   chi.Router
	registry *registry.Registry
	sink     runlog.Sink
}

// ServerOption configures optional Server behavior.
type ServerOption func(*Server)

// NewServer creates a Server with all routes configured.
func NewServer(reg *registry.Registry, sink runlog.Sink, opts ...ServerOption) *Server {
	s := &Server{registry: reg, sink: sink}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/api/workflows", s.handleListWorkflows)
	r.Post("/api/workflows/{name}/run", s.handleRunWorkflow)
	r.Get("/api/runs", s.handleListRuns)
	r.Get("/api/runs/{id}/events", s.handleRunEvents)
	r.Get("/runs/{id}", s.handleRunReport)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"workflows": s.registry.Names()})
}

// runResponse is the body returned by a workflow run.
type runResponse struct {
	RunID string         `json:"run_id"`
	State map[string]any `json:"state"`
	Error string         `json:"error,omitempty"`
}

func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	start, ok := s.registry.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %q", registry.ErrNotFound, name))
		return
	}

	// An empty body is a valid "no seed state" request; malformed JSON is not.
	seed := make(map[string]any)
	if err := json.NewDecoder(r.Body).Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode seed state: %w", err))
		return
	}

	runID := runlog.NewRunID()
	recorder, err := runlog.NewRecorder(s.sink, runID, name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("begin run: %w", err))
		return
	}

	state := flow.Seed(seed)
	engine := flow.NewEngine(flow.EngineConfig{EventHandler: recorder.Handle})
	if err := engine.Run(r.Context(), start, state); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, runResponse{
			RunID: runID,
			State: state.Snapshot(),
			Error: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, runResponse{RunID: runID, State: state.Snapshot()})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.sink.Runs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	records, err := s.sink.Events(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": records})
}

// handleRunReport renders a human-readable report for one run: the event
// summary and timeline composed as markdown, converted to HTML.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	records, err := s.sink.Events(runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(records) == 0 {
		http.NotFound(w, r)
		return
	}

	html, err := markdownToHTML(reportMarkdown(runID, records))
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("render report: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><title>Run %s</title></head><body>\n%s</body></html>\n", runID, html)
}

// reportMarkdown composes the run report as a markdown document.
func reportMarkdown(runID string, records []runlog.Record) string {
	summary := runlog.Summarize(records)

	var b strings.Builder
	fmt.Fprintf(&b, "# Run %s\n\n", runID)
	fmt.Fprintf(&b, "**%d events**", summary.TotalEvents)
	if summary.FirstEvent != nil && summary.LastEvent != nil {
		fmt.Fprintf(&b, ", %s elapsed", summary.LastEvent.Sub(*summary.FirstEvent).Round(time.Millisecond))
	}
	b.WriteString("\n\n## Activity by node\n\n")
	nodes := make([]string, 0, len(summary.ByNode))
	for node := range summary.ByNode {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		fmt.Fprintf(&b, "- `%s`: %d events\n", node, summary.ByNode[node])
	}
	b.WriteString("\n## Timeline\n\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "- `%s` %s", rec.Timestamp.Format("15:04:05.000"), rec.Type)
		if rec.Node != "" {
			fmt.Fprintf(&b, " (%s)", rec.Node)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// markdownToHTML converts a markdown string to HTML. Raw HTML in the input is
// stripped to prevent XSS.
func markdownToHTML(input string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.New().Convert([]byte(input), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// writeJSON serializes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError serializes an error response.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
