// ABOUTME: Tests for the research agent: search loop routing, round budget, and final answer.
package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/2389-research/cascade/flow"
	"github.com/2389-research/cascade/llm"
)

func TestAgentSearchesThenAnswers(t *testing.T) {
	fake := llm.NewFake(
		"SEARCH: go generics history", // first decide verdict
		"ANSWER",                      // second decide verdict
		"Generics landed in Go 1.18.", // answer completion
	)
	var queries []string
	searcher := SearchFunc(func(ctx context.Context, query string) (string, error) {
		queries = append(queries, query)
		return "Go 1.18 shipped type parameters in 2022.", nil
	})

	s := flow.Seed(map[string]any{KeyQuestion: "when did Go get generics?"})
	if err := flow.Run(context.Background(), New(fake, searcher, 3), s); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(queries) != 1 || queries[0] != "go generics history" {
		t.Errorf("queries = %v", queries)
	}
	if got := s.GetString(KeyAnswer, ""); got != "Generics landed in Go 1.18." {
		t.Errorf("answer = %q", got)
	}
	// The second decide prompt must include what the search found.
	second := fake.Requests[1].Messages[0].Content
	if !strings.Contains(second, "type parameters") {
		t.Errorf("decide prompt missing gathered context: %q", second)
	}
	// So must the final answer prompt.
	final := fake.Requests[2].Messages[0].Content
	if !strings.Contains(final, "type parameters") {
		t.Errorf("answer prompt missing gathered context: %q", final)
	}
}

func TestAgentRoundBudgetForcesAnswer(t *testing.T) {
	// The model always wants another search; the budget must cut it off.
	fake := llm.NewFake(
		"SEARCH: one", "SEARCH: two", "SEARCH: three",
		"final answer",
	)
	searches := 0
	searcher := SearchFunc(func(ctx context.Context, query string) (string, error) {
		searches++
		return "nothing useful", nil
	})

	s := flow.Seed(map[string]any{KeyQuestion: "unanswerable"})
	if err := flow.Run(context.Background(), New(fake, searcher, 2), s); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if searches != 2 {
		t.Errorf("ran %d searches, want 2", searches)
	}
	if got := s.GetString(KeyAnswer, ""); got != "final answer" {
		t.Errorf("answer = %q", got)
	}
}

func TestAgentSearchErrorFailsRun(t *testing.T) {
	fake := llm.NewFake("SEARCH: anything")
	wantErr := errors.New("search backend down")
	searcher := SearchFunc(func(ctx context.Context, query string) (string, error) {
		return "", wantErr
	})

	s := flow.Seed(map[string]any{KeyQuestion: "q"})
	start := New(fake, searcher, 3)
	// Single attempt so the retry wrapper does not mask the failure with delays.
	if search, ok := start.Edge(ActionSearch); ok {
		search.Configure(flow.WithMaxAttempts(1))
	}
	err := flow.Run(context.Background(), start, s)
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapping %v", err, wantErr)
	}
}

func TestAgentRequiresQuestion(t *testing.T) {
	searcher := SearchFunc(func(ctx context.Context, query string) (string, error) {
		return "", nil
	})
	err := flow.Run(context.Background(), New(llm.NewFake(), searcher, 1), flow.NewState())
	if err == nil || !strings.Contains(err.Error(), `"question"`) {
		t.Errorf("expected missing-question error, got %v", err)
	}
}
