// ABOUTME: LLM backend detection, the YAML node factory catalog, and example workflow registration.
// ABOUTME: OPENAI_API_KEY selects the real provider; without it an offline echo fake serves all calls.
package main

import (
	"context"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/2389-research/cascade/flow"
	"github.com/2389-research/cascade/graphfile"
	"github.com/2389-research/cascade/llm"
	"github.com/2389-research/cascade/registry"
	"github.com/2389-research/cascade/workflows/agent"
	"github.com/2389-research/cascade/workflows/chat"
	"github.com/2389-research/cascade/workflows/mapreduce"
	"github.com/2389-research/cascade/workflows/pipeline"
	"github.com/2389-research/cascade/workflows/rag"
)

// buildClient returns the real OpenAI client when an API key is available and
// the offline fake otherwise.
func buildClient(cfg config) llm.Client {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "OPENAI_API_KEY not set; using offline echo fake for LLM calls")
		return llm.NewFake()
	}

	var opts []llm.OpenAIOption
	if cfg.baseURL != "" {
		opts = append(opts, llm.WithBaseURL(cfg.baseURL))
	}
	if cfg.model != "" {
		opts = append(opts, llm.WithModel(cfg.model))
	}
	return llm.NewOpenAIClient(apiKey, opts...)
}

// buildEmbedder mirrors buildClient for the embeddings backend.
func buildEmbedder(cfg config) llm.Embedder {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return &llm.FakeEmbedder{}
	}

	var opts []llm.OpenAIOption
	if cfg.baseURL != "" {
		opts = append(opts, llm.WithBaseURL(cfg.baseURL))
	}
	return llm.NewOpenAIEmbedder(apiKey, opts...)
}

// completeStep is the generic YAML-configurable LLM node: it reads one state
// key, substitutes it into the prompt template, and writes the completion to
// another state key. Params: prompt (template, "{input}" placeholder), read,
// write.
type completeStep struct {
	client llm.Client
}

func (c *completeStep) Produce(ctx context.Context, n *flow.Node, s *flow.State) iter.Seq2[any, error] {
	readKey := n.ParamString("read", "input")
	input := s.GetString(readKey, "")
	if input == "" {
		return flow.Fail(fmt.Errorf("state key %q is empty", readKey))
	}
	return flow.Emit(input)
}

func (c *completeStep) Compute(ctx context.Context, n *flow.Node, s *flow.State, item any) (any, error) {
	template := n.ParamString("prompt", "{input}")
	prompt := strings.ReplaceAll(template, "{input}", fmt.Sprintf("%v", item))
	resp, err := c.client.Complete(ctx, llm.Prompt(prompt))
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

func (c *completeStep) Decide(ctx context.Context, n *flow.Node, s *flow.State, items, results []any) (flow.Action, error) {
	s.Set(n.ParamString("write", "output"), results[0])
	return flow.Default, nil
}

// builtinCatalog returns the node factories available to YAML workflows.
func builtinCatalog(cfg config) graphfile.Catalog {
	client := buildClient(cfg)
	return graphfile.Catalog{
		"complete": func() flow.Lifecycle {
			return &completeStep{client: client}
		},
		// set writes the literal "value" param to the "write" state key.
		"set": func() flow.Lifecycle {
			return &flow.Steps{
				DecideFunc: func(ctx context.Context, n *flow.Node, s *flow.State, items, results []any) (flow.Action, error) {
					s.Set(n.ParamString("write", "output"), n.ParamString("value", ""))
					return flow.Default, nil
				},
			}
		},
	}
}

// llmSearcher satisfies the agent's Searcher interface with a plain
// completion. A real deployment would swap in a web or vector search backend.
type llmSearcher struct {
	client llm.Client
}

func (l *llmSearcher) Search(ctx context.Context, query string) (string, error) {
	resp, err := l.client.Complete(ctx, llm.Prompt("Give a factual two-sentence briefing on: "+query))
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// registerExamples fills the registry with the example workflows served in
// HTTP mode.
func registerExamples(reg *registry.Registry, cfg config) {
	client := buildClient(cfg)
	embedder := buildEmbedder(cfg)

	reg.Register("pipeline", pipeline.New(client))
	reg.Register("agent", agent.New(client, &llmSearcher{client: client}, agent.DefaultMaxRounds))
	reg.Register("chat", chat.New(client, client,
		"You are a curious interviewer. Keep replies to two sentences.",
		"You are a thoughtful expert. Keep replies to two sentences.",
		chat.DefaultMaxTurns))
	reg.Register("mapreduce", mapreduce.New(client))
	reg.Register("rag", rag.New(client, embedder, rag.DefaultTopK))
}
