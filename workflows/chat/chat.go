// ABOUTME: Two-party conversation: a pair of speaker nodes pass messages back and forth
// ABOUTME: through shared state, alternating via mutual labels until the turn budget runs out.
package chat

import (
	"context"
	"fmt"
	"iter"

	"github.com/2389-research/cascade/flow"
	"github.com/2389-research/cascade/llm"
)

// State keys the speakers read and write.
const (
	KeyOpener     = "opener"     // seed message that starts the conversation
	KeyLastLine   = "last_line"  // most recent utterance, read by the other speaker
	KeyTurns      = "turns"      // utterances spoken so far
	KeyTranscript = "transcript" // accumulated conversation
)

// DefaultMaxTurns caps the conversation when no budget is given.
const DefaultMaxTurns = 6

// speaker replies to whatever the other party said last. Both parties are
// instances of this type with different personas and clients.
type speaker struct {
	client   llm.Client
	persona  string
	maxTurns int
}

func (sp *speaker) Produce(ctx context.Context, n *flow.Node, s *flow.State) iter.Seq2[any, error] {
	line := s.GetString(KeyLastLine, s.GetString(KeyOpener, ""))
	if line == "" {
		return flow.Fail(fmt.Errorf("chat: state key %q is empty", KeyOpener))
	}
	return flow.Emit(line)
}

func (sp *speaker) Compute(ctx context.Context, n *flow.Node, s *flow.State, item any) (any, error) {
	resp, err := sp.client.Complete(ctx, llm.SystemPrompt(sp.persona, fmt.Sprintf("%v", item)))
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

func (sp *speaker) Decide(ctx context.Context, n *flow.Node, s *flow.State, items, results []any) (flow.Action, error) {
	line, _ := results[0].(string)
	s.Set(KeyLastLine, line)

	transcript := s.GetString(KeyTranscript, "")
	s.Set(KeyTranscript, transcript+fmt.Sprintf("%s: %s\n", n.Name(), line))

	if s.Add(KeyTurns, 1) >= sp.maxTurns {
		return flow.End, nil
	}
	return flow.Default, nil
}

// New wires two speakers into a mutual loop and returns the start node (the
// first speaker). Seed the run state with KeyOpener; the conversation
// accumulates under KeyTranscript. maxTurns counts total utterances across
// both parties; values below 1 fall back to DefaultMaxTurns.
func New(first, second llm.Client, firstPersona, secondPersona string, maxTurns int) *flow.Node {
	if maxTurns < 1 {
		maxTurns = DefaultMaxTurns
	}

	a := flow.NewNode(&speaker{client: first, persona: firstPersona, maxTurns: maxTurns}, flow.WithName("first"))
	b := flow.NewNode(&speaker{client: second, persona: secondPersona, maxTurns: maxTurns}, flow.WithName("second"))

	a.Then(b)
	b.Then(a)
	return a
}
