// ABOUTME: Retrieval-augmented generation: fan out chunk embeddings into an in-state index,
// ABOUTME: retrieve the closest chunks by cosine similarity, then generate a grounded answer.
package rag

import (
	"context"
	"fmt"
	"iter"
	"math"
	"sort"
	"strings"

	"github.com/2389-research/cascade/flow"
	"github.com/2389-research/cascade/llm"
)

// State keys the three stages read and write.
const (
	KeyChunks    = "chunks"    // []string corpus chunks
	KeyQuestion  = "question"  // query text
	KeyIndex     = "index"     // *Index built by the index stage
	KeyRetrieved = "retrieved" // []string chunks selected for the question
	KeyAnswer    = "answer"    // grounded answer
)

// DefaultTopK is how many chunks retrieval selects when no override is given.
const DefaultTopK = 3

// Index pairs each chunk with its embedding vector.
type Index struct {
	Chunks  []string
	Vectors [][]float64
}

// Cosine returns the cosine similarity of two vectors, 0 when either is zero.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK returns the k chunks most similar to the query vector, best first.
func (ix *Index) TopK(query []float64, k int) []string {
	type scored struct {
		chunk string
		score float64
	}
	ranked := make([]scored, len(ix.Chunks))
	for i, chunk := range ix.Chunks {
		ranked[i] = scored{chunk: chunk, score: Cosine(query, ix.Vectors[i])}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]string, k)
	for i := range out {
		out[i] = ranked[i].chunk
	}
	return out
}

// indexNode embeds every chunk concurrently and assembles the Index.
type indexNode struct {
	embedder llm.Embedder
}

func (ix *indexNode) Produce(ctx context.Context, n *flow.Node, s *flow.State) iter.Seq2[any, error] {
	chunks, ok := s.Get(KeyChunks).([]string)
	if !ok || len(chunks) == 0 {
		return flow.Fail(fmt.Errorf("rag: state key %q must hold a non-empty []string", KeyChunks))
	}
	return flow.EmitSlice(chunks)
}

func (ix *indexNode) Compute(ctx context.Context, n *flow.Node, s *flow.State, item any) (any, error) {
	chunk, _ := item.(string)
	vecs, err := ix.embedder.Embed(ctx, []string{chunk})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (ix *indexNode) Decide(ctx context.Context, n *flow.Node, s *flow.State, items, results []any) (flow.Action, error) {
	index := &Index{
		Chunks:  make([]string, len(items)),
		Vectors: make([][]float64, len(results)),
	}
	for i := range items {
		index.Chunks[i], _ = items[i].(string)
		index.Vectors[i], _ = results[i].([]float64)
	}
	s.Set(KeyIndex, index)
	return flow.Default, nil
}

// retrieveNode embeds the question and selects the top-k chunks.
type retrieveNode struct {
	embedder llm.Embedder
	topK     int
}

func (r *retrieveNode) Produce(ctx context.Context, n *flow.Node, s *flow.State) iter.Seq2[any, error] {
	question := s.GetString(KeyQuestion, "")
	if question == "" {
		return flow.Fail(fmt.Errorf("rag: state key %q is empty", KeyQuestion))
	}
	return flow.Emit(question)
}

func (r *retrieveNode) Compute(ctx context.Context, n *flow.Node, s *flow.State, item any) (any, error) {
	question, _ := item.(string)
	vecs, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (r *retrieveNode) Decide(ctx context.Context, n *flow.Node, s *flow.State, items, results []any) (flow.Action, error) {
	index, ok := s.Get(KeyIndex).(*Index)
	if !ok {
		return flow.End, fmt.Errorf("rag: state key %q is missing", KeyIndex)
	}
	query, _ := results[0].([]float64)
	s.Set(KeyRetrieved, index.TopK(query, r.topK))
	return flow.Default, nil
}

// generateNode answers the question using only the retrieved chunks.
type generateNode struct {
	client llm.Client
}

func (g *generateNode) Produce(ctx context.Context, n *flow.Node, s *flow.State) iter.Seq2[any, error] {
	return flow.Emit(s.GetString(KeyQuestion, ""))
}

func (g *generateNode) Compute(ctx context.Context, n *flow.Node, s *flow.State, item any) (any, error) {
	retrieved, _ := s.Get(KeyRetrieved).([]string)
	prompt := fmt.Sprintf(
		"Answer using only the context.\nContext:\n%s\n\nQuestion: %v",
		strings.Join(retrieved, "\n"), item,
	)
	resp, err := g.client.Complete(ctx, llm.Prompt(prompt))
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

func (g *generateNode) Decide(ctx context.Context, n *flow.Node, s *flow.State, items, results []any) (flow.Action, error) {
	s.Set(KeyAnswer, results[0])
	return flow.End, nil
}

// New wires index -> retrieve -> generate and returns the start node. Seed the
// run state with KeyChunks and KeyQuestion; the answer lands under KeyAnswer.
// topK values below 1 fall back to DefaultTopK.
func New(client llm.Client, embedder llm.Embedder, topK int) *flow.Node {
	if topK < 1 {
		topK = DefaultTopK
	}

	index := flow.NewNode(&indexNode{embedder: embedder}, flow.WithName("index"))
	retrieve := flow.NewNode(&retrieveNode{embedder: embedder, topK: topK}, flow.WithName("retrieve"))
	generate := flow.NewNode(&generateNode{client: client}, flow.WithName("generate"))

	index.Then(retrieve)
	retrieve.Then(generate)
	return index
}
