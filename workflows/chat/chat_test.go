// ABOUTME: Tests for the two-party chat: alternation, turn budget, and transcript shape.
package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/2389-research/cascade/flow"
	"github.com/2389-research/cascade/llm"
)

func TestChatAlternatesUntilBudget(t *testing.T) {
	alice := llm.NewFake("hi there", "doing well")
	bob := llm.NewFake("how are you?", "glad to hear it")

	s := flow.Seed(map[string]any{KeyOpener: "hello"})
	start := New(alice, bob, "you are alice", "you are bob", 4)
	if err := flow.Run(context.Background(), start, s); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := s.GetInt(KeyTurns, 0); got != 4 {
		t.Errorf("turns = %d, want 4", got)
	}
	transcript := s.GetString(KeyTranscript, "")
	want := "first: hi there\nsecond: how are you?\nfirst: doing well\nsecond: glad to hear it\n"
	if transcript != want {
		t.Errorf("transcript = %q, want %q", transcript, want)
	}

	// Each party must have heard the other's latest line.
	if len(bob.Requests) != 2 {
		t.Fatalf("bob got %d requests, want 2", len(bob.Requests))
	}
	if got := bob.Requests[0].Messages[1].Content; got != "hi there" {
		t.Errorf("bob heard %q, want alice's line", got)
	}
	if got := alice.Requests[1].Messages[1].Content; got != "how are you?" {
		t.Errorf("alice heard %q, want bob's line", got)
	}
}

func TestChatOddBudgetEndsMidExchange(t *testing.T) {
	s := flow.Seed(map[string]any{KeyOpener: "hello"})
	start := New(llm.NewFake("a1", "a2"), llm.NewFake("b1"), "alice", "bob", 3)
	if err := flow.Run(context.Background(), start, s); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := s.GetInt(KeyTurns, 0); got != 3 {
		t.Errorf("turns = %d, want 3", got)
	}
	if got := s.GetString(KeyLastLine, ""); got != "a2" {
		t.Errorf("last line = %q, want the first speaker's second reply", got)
	}
}

func TestChatRequiresOpener(t *testing.T) {
	start := New(llm.NewFake(), llm.NewFake(), "a", "b", 2)
	err := flow.Run(context.Background(), start, flow.NewState())
	if err == nil || !strings.Contains(err.Error(), `"opener"`) {
		t.Errorf("expected missing-opener error, got %v", err)
	}
}
