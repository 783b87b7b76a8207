// ABOUTME: Map-reduce summarization: one node fans out a per-document summarize across all
// ABOUTME: inputs concurrently, a second node reduces the ordered summaries into one digest.
package mapreduce

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/2389-research/cascade/flow"
	"github.com/2389-research/cascade/llm"
)

// State keys the map and reduce nodes read and write.
const (
	KeyDocuments = "documents" // []string input corpus
	KeySummaries = "summaries" // []string, one per document, input order
	KeyDigest    = "digest"    // final combined summary
)

// mapNode yields one item per document and summarizes each independently.
// The engine runs the summaries concurrently; result order still matches
// document order.
type mapNode struct {
	client llm.Client
}

func (m *mapNode) Produce(ctx context.Context, n *flow.Node, s *flow.State) iter.Seq2[any, error] {
	docs, ok := s.Get(KeyDocuments).([]string)
	if !ok || len(docs) == 0 {
		return flow.Fail(fmt.Errorf("mapreduce: state key %q must hold a non-empty []string", KeyDocuments))
	}
	return flow.EmitSlice(docs)
}

func (m *mapNode) Compute(ctx context.Context, n *flow.Node, s *flow.State, item any) (any, error) {
	resp, err := m.client.Complete(ctx, llm.Prompt(fmt.Sprintf("Summarize in one sentence:\n%v", item)))
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

func (m *mapNode) Decide(ctx context.Context, n *flow.Node, s *flow.State, items, results []any) (flow.Action, error) {
	summaries := make([]string, len(results))
	for i, r := range results {
		summaries[i], _ = r.(string)
	}
	s.Set(KeySummaries, summaries)
	return flow.Default, nil
}

// reduceNode folds the per-document summaries into a single digest with one
// completion over the joined text.
type reduceNode struct {
	client llm.Client
}

func (r *reduceNode) Produce(ctx context.Context, n *flow.Node, s *flow.State) iter.Seq2[any, error] {
	summaries, ok := s.Get(KeySummaries).([]string)
	if !ok {
		return flow.Fail(fmt.Errorf("mapreduce: state key %q is missing", KeySummaries))
	}
	return flow.Emit(strings.Join(summaries, "\n"))
}

func (r *reduceNode) Compute(ctx context.Context, n *flow.Node, s *flow.State, item any) (any, error) {
	resp, err := r.client.Complete(ctx, llm.Prompt(fmt.Sprintf("Combine these summaries into one digest:\n%v", item)))
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

func (r *reduceNode) Decide(ctx context.Context, n *flow.Node, s *flow.State, items, results []any) (flow.Action, error) {
	s.Set(KeyDigest, results[0])
	return flow.End, nil
}

// New wires map -> reduce and returns the start node. Seed the run state with
// KeyDocuments; the digest lands under KeyDigest.
func New(client llm.Client) *flow.Node {
	mapper := flow.NewNode(&mapNode{client: client}, flow.WithName("summarize"))
	reducer := flow.NewNode(&reduceNode{client: client}, flow.WithName("reduce"))
	mapper.Then(reducer)
	return mapper
}
