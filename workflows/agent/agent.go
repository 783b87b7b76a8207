// ABOUTME: Decision-loop research agent: a decide node routes between searching for more
// ABOUTME: context and answering, with a round budget so a cyclic graph still terminates.
package agent

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/2389-research/cascade/flow"
	"github.com/2389-research/cascade/llm"
)

// State keys the agent nodes read and write.
const (
	KeyQuestion = "question"
	KeyContext  = "context"
	KeyQuery    = "query"
	KeyRounds   = "rounds"
	KeyAnswer   = "answer"
)

// Edge labels the decide node routes on.
const (
	ActionSearch flow.Action = "search"
	ActionAnswer flow.Action = "answer"
)

// DefaultMaxRounds caps search iterations when the node param is absent.
const DefaultMaxRounds = 3

// Searcher is the opaque search client the agent consults. Implementations
// may hit a web API, a vector store, or a test double.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// SearchFunc adapts a function to the Searcher interface.
type SearchFunc func(ctx context.Context, query string) (string, error)

func (f SearchFunc) Search(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

// decideNode asks the model whether the gathered context answers the question.
// It emits either a refined search query or the answer signal.
type decideNode struct {
	client    llm.Client
	maxRounds int
}

func (d *decideNode) Produce(ctx context.Context, n *flow.Node, s *flow.State) iter.Seq2[any, error] {
	question := s.GetString(KeyQuestion, "")
	if question == "" {
		return flow.Fail(fmt.Errorf("agent: state key %q is empty", KeyQuestion))
	}
	return flow.Emit(question)
}

func (d *decideNode) Compute(ctx context.Context, n *flow.Node, s *flow.State, item any) (any, error) {
	prompt := fmt.Sprintf(
		"Question: %s\nContext so far:\n%s\n\nReply SEARCH: <query> to gather more, or ANSWER if the context suffices.",
		item, s.GetString(KeyContext, "(none)"),
	)
	resp, err := d.client.Complete(ctx, llm.Prompt(prompt))
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

func (d *decideNode) Decide(ctx context.Context, n *flow.Node, s *flow.State, items, results []any) (flow.Action, error) {
	verdict, _ := results[0].(string)

	// The round budget wins over the model: a cyclic graph must terminate.
	if s.GetInt(KeyRounds, 0) >= d.maxRounds {
		return ActionAnswer, nil
	}

	if query, ok := strings.CutPrefix(strings.TrimSpace(verdict), "SEARCH:"); ok {
		s.Set(KeyQuery, strings.TrimSpace(query))
		s.Add(KeyRounds, 1)
		return ActionSearch, nil
	}
	return ActionAnswer, nil
}

// searchNode runs the pending query through the Searcher and appends the
// result to the accumulated context.
type searchNode struct {
	searcher Searcher
}

func (sn *searchNode) Produce(ctx context.Context, n *flow.Node, s *flow.State) iter.Seq2[any, error] {
	return flow.Emit(s.GetString(KeyQuery, ""))
}

func (sn *searchNode) Compute(ctx context.Context, n *flow.Node, s *flow.State, item any) (any, error) {
	query, _ := item.(string)
	return sn.searcher.Search(ctx, query)
}

func (sn *searchNode) Decide(ctx context.Context, n *flow.Node, s *flow.State, items, results []any) (flow.Action, error) {
	found, _ := results[0].(string)
	existing := s.GetString(KeyContext, "")
	if existing != "" {
		existing += "\n"
	}
	s.Set(KeyContext, existing+found)
	return flow.Default, nil
}

// answerNode produces the final grounded answer and ends the run.
type answerNode struct {
	client llm.Client
}

func (a *answerNode) Produce(ctx context.Context, n *flow.Node, s *flow.State) iter.Seq2[any, error] {
	return flow.Emit(s.GetString(KeyQuestion, ""))
}

func (a *answerNode) Compute(ctx context.Context, n *flow.Node, s *flow.State, item any) (any, error) {
	prompt := fmt.Sprintf(
		"Answer the question using only the context.\nQuestion: %s\nContext:\n%s",
		item, s.GetString(KeyContext, "(none)"),
	)
	resp, err := a.client.Complete(ctx, llm.Prompt(prompt))
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

func (a *answerNode) Decide(ctx context.Context, n *flow.Node, s *flow.State, items, results []any) (flow.Action, error) {
	s.Set(KeyAnswer, results[0])
	return flow.End, nil
}

// New wires the decide <-> search loop with an answer exit and returns the
// start node. Seed the run state with KeyQuestion; the answer lands under
// KeyAnswer. maxRounds caps how many searches the agent may run; values
// below 1 fall back to DefaultMaxRounds.
func New(client llm.Client, searcher Searcher, maxRounds int) *flow.Node {
	if maxRounds < 1 {
		maxRounds = DefaultMaxRounds
	}

	decide := flow.NewNode(&decideNode{client: client, maxRounds: maxRounds}, flow.WithName("decide"))
	search := flow.NewNode(&searchNode{searcher: searcher}, flow.WithName("search"))
	answer := flow.NewNode(&answerNode{client: client}, flow.WithName("answer"))

	decide.Connect(ActionSearch, search)
	decide.Connect(ActionAnswer, answer)
	search.Then(decide)
	return decide
}
