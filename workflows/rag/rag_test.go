// ABOUTME: Tests for retrieval-augmented generation: cosine math, top-k selection, full run.
package rag

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/2389-research/cascade/flow"
	"github.com/2389-research/cascade/llm"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
		{"length mismatch", []float64{1}, []float64{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTopKSelection(t *testing.T) {
	ix := &Index{
		Chunks:  []string{"a", "b", "c"},
		Vectors: [][]float64{{1, 0}, {0, 1}, {0.9, 0.1}},
	}
	got := ix.TopK([]float64{1, 0}, 2)
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("TopK = %v", got)
	}

	// k larger than the corpus returns everything.
	if got := ix.TopK([]float64{1, 0}, 10); len(got) != 3 {
		t.Errorf("TopK over-ask = %v", got)
	}
}

func TestRagAnswersFromRetrievedChunks(t *testing.T) {
	chunks := []string{
		"gophers dig extensive burrows",
		"the capital of france is paris",
		"go ships a race detector",
	}
	fake := llm.NewFake("Paris is the capital.")
	embedder := &llm.FakeEmbedder{Dim: 64}

	s := flow.Seed(map[string]any{
		KeyChunks:   chunks,
		KeyQuestion: "what is the capital of france",
	})
	if err := flow.Run(context.Background(), New(fake, embedder, 1), s); err != nil {
		t.Fatalf("Run: %v", err)
	}

	retrieved, _ := s.Get(KeyRetrieved).([]string)
	if len(retrieved) != 1 || retrieved[0] != chunks[1] {
		t.Errorf("retrieved = %v, want the france chunk", retrieved)
	}
	if got := s.GetString(KeyAnswer, ""); got != "Paris is the capital." {
		t.Errorf("answer = %q", got)
	}

	// The generation prompt must contain the retrieved chunk and nothing else
	// from the corpus.
	prompt := fake.Requests[0].Messages[0].Content
	if !strings.Contains(prompt, chunks[1]) {
		t.Errorf("prompt missing retrieved chunk: %q", prompt)
	}
	if strings.Contains(prompt, chunks[0]) {
		t.Errorf("prompt leaked unselected chunk: %q", prompt)
	}
}

func TestRagIndexKeepsChunkOrder(t *testing.T) {
	chunks := []string{"alpha text", "beta text", "gamma text"}
	s := flow.Seed(map[string]any{KeyChunks: chunks, KeyQuestion: "alpha"})
	if err := flow.Run(context.Background(), New(llm.NewFake("ok"), &llm.FakeEmbedder{Dim: 32}, 2), s); err != nil {
		t.Fatalf("Run: %v", err)
	}

	index, ok := s.Get(KeyIndex).(*Index)
	if !ok {
		t.Fatal("index missing from state")
	}
	for i, chunk := range index.Chunks {
		if chunk != chunks[i] {
			t.Errorf("index.Chunks[%d] = %q, want %q", i, chunk, chunks[i])
		}
	}
}

func TestRagRequiresChunksAndQuestion(t *testing.T) {
	embedder := &llm.FakeEmbedder{}
	err := flow.Run(context.Background(), New(llm.NewFake(), embedder, 1), flow.NewState())
	if err == nil || !strings.Contains(err.Error(), `"chunks"`) {
		t.Errorf("expected missing-chunks error, got %v", err)
	}

	s := flow.Seed(map[string]any{KeyChunks: []string{"one"}})
	err = flow.Run(context.Background(), New(llm.NewFake(), embedder, 1), s)
	if err == nil || !strings.Contains(err.Error(), `"question"`) {
		t.Errorf("expected missing-question error, got %v", err)
	}
}
