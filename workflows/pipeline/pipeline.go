// ABOUTME: Sequential three-stage text pipeline: outline a topic, draft from the outline,
// ABOUTME: polish the draft. Each stage is one LLM call; stages hand off through shared state.
package pipeline

import (
	"context"
	"fmt"
	"iter"

	"github.com/2389-research/cascade/flow"
	"github.com/2389-research/cascade/llm"
)

// State keys the pipeline stages read and write.
const (
	KeyTopic   = "topic"
	KeyOutline = "outline"
	KeyDraft   = "draft"
	KeyFinal   = "final"
)

// stage is the common shape of all three pipeline nodes: read one state key,
// run one completion over it, write the reply to another state key.
type stage struct {
	client  llm.Client
	readKey string
	prompt  string // fmt verb receives the value read from readKey
	writeKy string
}

func (st *stage) Produce(ctx context.Context, n *flow.Node, s *flow.State) iter.Seq2[any, error] {
	input := s.GetString(st.readKey, "")
	if input == "" {
		return flow.Fail(fmt.Errorf("pipeline: state key %q is empty", st.readKey))
	}
	return flow.Emit(input)
}

func (st *stage) Compute(ctx context.Context, n *flow.Node, s *flow.State, item any) (any, error) {
	resp, err := st.client.Complete(ctx, llm.Prompt(fmt.Sprintf(st.prompt, item)))
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

func (st *stage) Decide(ctx context.Context, n *flow.Node, s *flow.State, items, results []any) (flow.Action, error) {
	s.Set(st.writeKy, results[0])
	return flow.Default, nil
}

// New wires outline -> draft -> polish and returns the start node. Seed the
// run state with KeyTopic; the finished text lands under KeyFinal.
func New(client llm.Client) *flow.Node {
	outline := flow.NewNode(&stage{
		client:  client,
		readKey: KeyTopic,
		prompt:  "Write a short bullet outline for an article about: %s",
		writeKy: KeyOutline,
	}, flow.WithName("outline"))

	draft := flow.NewNode(&stage{
		client:  client,
		readKey: KeyOutline,
		prompt:  "Expand this outline into a full draft:\n%s",
		writeKy: KeyDraft,
	}, flow.WithName("draft"))

	polish := flow.NewNode(&stage{
		client:  client,
		readKey: KeyDraft,
		prompt:  "Polish this draft for clarity and tone:\n%s",
		writeKy: KeyFinal,
	}, flow.WithName("polish"))

	outline.Then(draft)
	draft.Then(polish)
	return outline
}
