// ABOUTME: CLI entrypoint for the cascade workflow runner with run and serve modes.
// ABOUTME: Wires together the flow engine, YAML workflow loading, run logging, and signal handling.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/2389-research/cascade/flow"
	"github.com/2389-research/cascade/graphfile"
	"github.com/2389-research/cascade/registry"
	"github.com/2389-research/cascade/runlog"
	"github.com/2389-research/cascade/server"
)

var version = "dev"

// config holds all CLI configuration parsed from flags and positional arguments.
type config struct {
	serveMode    bool
	port         int
	dataDir      string
	store        string
	baseURL      string
	model        string
	seedJSON     string
	verbose      bool
	showVersion  bool
	workflowFile string
}

func main() {
	loadDotEnv(".env")

	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("cascade %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

// parseFlags parses command-line flags and returns a populated config.
func parseFlags() config {
	var cfg config

	fs := flag.NewFlagSet("cascade", flag.ContinueOnError)
	fs.BoolVar(&cfg.serveMode, "serve", false, "Start HTTP server mode")
	fs.IntVar(&cfg.port, "port", 8334, "Server port")
	fs.StringVar(&cfg.dataDir, "data-dir", ".cascade", "Directory for run logs")
	fs.StringVar(&cfg.store, "store", "fs", "Run log backend: fs or sqlite")
	fs.StringVar(&cfg.baseURL, "base-url", "", "Custom API base URL for the LLM provider")
	fs.StringVar(&cfg.model, "model", "", "Model override for LLM calls")
	fs.StringVar(&cfg.seedJSON, "seed", "{}", "JSON object used as the initial run state")
	fs.BoolVar(&cfg.verbose, "verbose", false, "Print engine events to stderr")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	fs.Usage = func() { printHelp(os.Stderr) }

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if fs.NArg() > 0 {
		cfg.workflowFile = fs.Arg(0)
	}

	return cfg
}

func printHelp(w *os.File) {
	fmt.Fprintf(w, `cascade - graph workflow runner

Usage:
  cascade [flags] <workflow.yaml>   run one workflow
  cascade -serve [flags]            serve the built-in workflows over HTTP

Flags:
  -serve            start HTTP server mode
  -port int         server port (default 8334)
  -data-dir string  directory for run logs (default ".cascade")
  -store string     run log backend: fs or sqlite (default "fs")
  -base-url string  custom API base URL for the LLM provider
  -model string     model override for LLM calls
  -seed string      JSON object used as the initial run state
  -verbose          print engine events to stderr
  -version          print version and exit

Without OPENAI_API_KEY set, LLM calls are served by an offline echo fake.
`)
}

// run dispatches to the appropriate mode based on the config.
// Returns an exit code: 0 for success, 1 for failure.
func run(cfg config) int {
	if cfg.serveMode {
		return runServe(cfg)
	}
	if cfg.workflowFile == "" {
		printHelp(os.Stderr)
		return 0
	}
	return runWorkflow(cfg)
}

// openSink creates the run log backend selected by flags.
func openSink(cfg config) (runlog.Sink, error) {
	switch cfg.store {
	case "sqlite":
		if err := os.MkdirAll(cfg.dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return runlog.OpenSQLite(filepath.Join(cfg.dataDir, "runs.db"))
	case "fs":
		return runlog.NewFSSink(cfg.dataDir)
	default:
		return nil, fmt.Errorf("unknown store %q (want fs or sqlite)", cfg.store)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()
	return ctx, cancel
}

// verboseEventHandler prints one line per engine event to stderr.
func verboseEventHandler(evt flow.Event) {
	if evt.Node != "" {
		fmt.Fprintf(os.Stderr, "[%s] %s node=%s\n", evt.Timestamp.Format("15:04:05.000"), evt.Type, evt.Node)
		return
	}
	fmt.Fprintf(os.Stderr, "[%s] %s\n", evt.Timestamp.Format("15:04:05.000"), evt.Type)
}

// runWorkflow loads a YAML workflow definition, executes it, and prints the
// final state snapshot as JSON.
func runWorkflow(cfg config) int {
	def, err := graphfile.Load(cfg.workflowFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	start, err := def.Build(builtinCatalog(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	seed := make(map[string]any)
	if err := json.Unmarshal([]byte(cfg.seedJSON), &seed); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid -seed JSON: %v\n", err)
		return 1
	}

	sink, err := openSink(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer sink.Close()

	runID := runlog.NewRunID()
	recorder, err := runlog.NewRecorder(sink, runID, def.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	handler := recorder.Handle
	if cfg.verbose {
		record := recorder.Handle
		handler = func(evt flow.Event) {
			verboseEventHandler(evt)
			record(evt)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	state := flow.Seed(seed)
	engine := flow.NewEngine(flow.EngineConfig{EventHandler: handler})
	runErr := engine.Run(ctx, start, state)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		fmt.Fprintf(os.Stderr, "run id: %s\n", runID)
		return 1
	}

	out, err := json.MarshalIndent(map[string]any{
		"run_id": runID,
		"state":  state.Snapshot(),
	}, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}

// runServe starts the HTTP server with the built-in example workflows
// registered.
func runServe(cfg config) int {
	sink, err := openSink(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer sink.Close()

	reg := registry.New()
	registerExamples(reg, cfg)

	srv := server.NewServer(reg, sink)
	addr := fmt.Sprintf(":%d", cfg.port)

	ctx, cancel := signalContext()
	defer cancel()

	httpServer := &http.Server{Addr: addr, Handler: srv}
	go func() {
		<-ctx.Done()
		_ = httpServer.Shutdown(context.Background())
	}()

	fmt.Fprintf(os.Stderr, "cascade %s listening on %s\n", version, addr)
	fmt.Fprintf(os.Stderr, "workflows: %v\n", reg.Names())

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
