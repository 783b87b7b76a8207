// ABOUTME: Tests for the graph-traversal engine covering fan-out, ordering, transitions, and termination.
// ABOUTME: Covers single-item and batch activations, label routing, cycles with counters, params, and failures.
package flow

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"
	"time"
)

// scriptNode is a configurable Lifecycle for testing. It deliberately does not
// implement Fallbacker so exhausted retries propagate their error.
type scriptNode struct {
	produce func(ctx context.Context, n *Node, s *State) iter.Seq2[any, error]
	compute func(ctx context.Context, n *Node, s *State, item any) (any, error)
	decide  func(ctx context.Context, n *Node, s *State, items []any, results []any) (Action, error)
}

func (sn *scriptNode) Produce(ctx context.Context, n *Node, s *State) iter.Seq2[any, error] {
	if sn.produce == nil {
		return Emit(nil)
	}
	return sn.produce(ctx, n, s)
}

func (sn *scriptNode) Compute(ctx context.Context, n *Node, s *State, item any) (any, error) {
	if sn.compute == nil {
		return item, nil
	}
	return sn.compute(ctx, n, s, item)
}

func (sn *scriptNode) Decide(ctx context.Context, n *Node, s *State, items []any, results []any) (Action, error) {
	if sn.decide == nil {
		return End, nil
	}
	return sn.decide(ctx, n, s, items, results)
}

// fallbackNode is a scriptNode with a fallback handler.
type fallbackNode struct {
	scriptNode
	fallback func(ctx context.Context, n *Node, s *State, item any, cause error) (any, error)
}

func (fn *fallbackNode) Fallback(ctx context.Context, n *Node, s *State, item any, cause error) (any, error) {
	return fn.fallback(ctx, n, s, item, cause)
}

// produceInts yields 0..count-1.
func produceInts(count int) func(ctx context.Context, n *Node, s *State) iter.Seq2[any, error] {
	return func(ctx context.Context, n *Node, s *State) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			for i := 0; i < count; i++ {
				if !yield(i, nil) {
					return
				}
			}
		}
	}
}

func TestActivationSingleItemResultCount(t *testing.T) {
	var gotItems, gotResults int
	n := NewNode(&scriptNode{
		produce: func(ctx context.Context, n *Node, s *State) iter.Seq2[any, error] {
			return Emit("only")
		},
		decide: func(ctx context.Context, n *Node, s *State, items, results []any) (Action, error) {
			gotItems = len(items)
			gotResults = len(results)
			return End, nil
		},
	})

	if err := Run(context.Background(), n, NewState()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotItems != 1 || gotResults != 1 {
		t.Errorf("expected 1 item and 1 result, got %d items, %d results", gotItems, gotResults)
	}
}

func TestActivationFanOutResultCount(t *testing.T) {
	const count = 8
	var gotResults int
	n := NewNode(&scriptNode{
		produce: produceInts(count),
		compute: func(ctx context.Context, n *Node, s *State, item any) (any, error) {
			// Stagger latencies so completion order differs from produce order.
			time.Sleep(time.Duration((count-item.(int))%3) * time.Millisecond)
			return item, nil
		},
		decide: func(ctx context.Context, n *Node, s *State, items, results []any) (Action, error) {
			gotResults = len(results)
			return End, nil
		},
	})

	if err := Run(context.Background(), n, NewState()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotResults != count {
		t.Errorf("expected %d results, got %d", count, gotResults)
	}
}

func TestItemResultOrderingUnderStaggeredCompletion(t *testing.T) {
	const count = 10
	var items, results []any
	n := NewNode(&scriptNode{
		produce: produceInts(count),
		compute: func(ctx context.Context, n *Node, s *State, item any) (any, error) {
			i := item.(int)
			// Earlier items finish last: completion order is the reverse of
			// produce order.
			time.Sleep(time.Duration(count-i) * 3 * time.Millisecond)
			return fmt.Sprintf("result-%d", i), nil
		},
		decide: func(ctx context.Context, n *Node, s *State, gotItems, gotResults []any) (Action, error) {
			items = gotItems
			results = gotResults
			return End, nil
		},
	})

	if err := Run(context.Background(), n, NewState()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 0; i < count; i++ {
		if items[i] != i {
			t.Errorf("items[%d] = %v, want %d", i, items[i], i)
		}
		want := fmt.Sprintf("result-%d", i)
		if results[i] != want {
			t.Errorf("results[%d] = %v, want %q", i, results[i], want)
		}
	}
}

func TestProductionOverlapsComputation(t *testing.T) {
	// The second item is only produced after the first item's compute has
	// started, proving production does not wait for prior computes.
	firstComputeStarted := make(chan struct{})
	n := NewNode(&scriptNode{
		produce: func(ctx context.Context, n *Node, s *State) iter.Seq2[any, error] {
			return func(yield func(any, error) bool) {
				if !yield(0, nil) {
					return
				}
				select {
				case <-firstComputeStarted:
				case <-time.After(2 * time.Second):
					yield(nil, errors.New("first compute never started"))
					return
				}
				yield(1, nil)
			}
		},
		compute: func(ctx context.Context, n *Node, s *State, item any) (any, error) {
			if item.(int) == 0 {
				close(firstComputeStarted)
			}
			return item, nil
		},
	})

	if err := Run(context.Background(), n, NewState()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestDecideEndStopsTraversal(t *testing.T) {
	activated := false
	next := NewNode(&scriptNode{
		decide: func(ctx context.Context, n *Node, s *State, items, results []any) (Action, error) {
			activated = true
			return End, nil
		},
	})
	start := NewNode(&scriptNode{})
	start.Then(next)

	if err := Run(context.Background(), start, NewState()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if activated {
		t.Error("End sentinel must stop the run even with edges configured")
	}
}

func TestDanglingLabelEndsRunSuccessfully(t *testing.T) {
	n := NewNode(&scriptNode{
		decide: func(ctx context.Context, n *Node, s *State, items, results []any) (Action, error) {
			return Action("nowhere"), nil
		},
	})

	if err := Run(context.Background(), n, NewState()); err != nil {
		t.Errorf("dangling transition should end the run successfully, got %v", err)
	}
}

func TestUnmatchedLabelFallsBackToDefaultEdge(t *testing.T) {
	reached := false
	fallbackTarget := NewNode(&scriptNode{
		decide: func(ctx context.Context, n *Node, s *State, items, results []any) (Action, error) {
			reached = true
			return End, nil
		},
	})
	start := NewNode(&scriptNode{
		decide: func(ctx context.Context, n *Node, s *State, items, results []any) (Action, error) {
			return Action("unmatched"), nil
		},
	})
	other := NewNode(&scriptNode{})
	start.Connect("other", other).Then(fallbackTarget)

	if err := Run(context.Background(), start, NewState()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reached {
		t.Error("unmatched label should route to the default edge target")
	}
}

func TestLabelRoutesToConnectedTarget(t *testing.T) {
	bActivations := 0
	b := NewNode(&scriptNode{
		decide: func(ctx context.Context, n *Node, s *State, items, results []any) (Action, error) {
			bActivations++
			return Action("anywhere"), nil // b has no outgoing edges
		},
	}, WithName("b"))
	a := NewNode(&scriptNode{
		decide: func(ctx context.Context, n *Node, s *State, items, results []any) (Action, error) {
			return Action("go"), nil
		},
	}, WithName("a"))
	a.Connect("go", b)

	if err := Run(context.Background(), a, NewState()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if bActivations != 1 {
		t.Errorf("expected exactly one activation of b, got %d", bActivations)
	}
}

func TestCycleWithCounterTerminates(t *testing.T) {
	makeCounter := func(next Action) *scriptNode {
		return &scriptNode{
			decide: func(ctx context.Context, n *Node, s *State, items, results []any) (Action, error) {
				if s.Add("counter", 1) >= 3 {
					return End, nil
				}
				return next, nil
			},
		}
	}
	ping := NewNode(makeCounter("pong"), WithName("ping"))
	pong := NewNode(makeCounter("ping"), WithName("pong"))
	ping.Connect("pong", pong)
	pong.Connect("ping", ping)

	s := NewState()
	if err := Run(context.Background(), ping, s); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := s.GetInt("counter", 0); got != 3 {
		t.Errorf("counter = %d, want 3", got)
	}
}

func TestParamsVisibleInProduce(t *testing.T) {
	makeLifecycle := func() *scriptNode {
		return &scriptNode{
			produce: func(ctx context.Context, n *Node, s *State) iter.Seq2[any, error] {
				return Emit(n.ParamString("prefix", "") + "-item")
			},
			decide: func(ctx context.Context, n *Node, s *State, items, results []any) (Action, error) {
				s.Set("item", items[0])
				return End, nil
			},
		}
	}

	withParams := NewNode(makeLifecycle()).SetParams(map[string]any{"prefix": "X"})
	s := NewState()
	if err := Run(context.Background(), withParams, s); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := s.GetString("item", ""); got != "X-item" {
		t.Errorf("item = %q, want %q", got, "X-item")
	}

	// A fresh node instance without SetParams sees an empty parameter map.
	bare := NewNode(makeLifecycle())
	s2 := NewState()
	if err := Run(context.Background(), bare, s2); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := s2.GetString("item", ""); got != "-item" {
		t.Errorf("item = %q, want %q (empty prefix)", got, "-item")
	}
}

func TestProduceErrorFailsRun(t *testing.T) {
	wantErr := errors.New("pagination broke")
	n := NewNode(&scriptNode{
		produce: func(ctx context.Context, n *Node, s *State) iter.Seq2[any, error] {
			return Fail(wantErr)
		},
	})

	err := Run(context.Background(), n, NewState())
	if !errors.Is(err, wantErr) {
		t.Errorf("expected produce error to propagate, got %v", err)
	}
}

func TestDecideErrorFailsRun(t *testing.T) {
	wantErr := errors.New("result did not meet structural contract")
	n := NewNode(&scriptNode{
		decide: func(ctx context.Context, n *Node, s *State, items, results []any) (Action, error) {
			return End, wantErr
		},
	})

	err := Run(context.Background(), n, NewState())
	if !errors.Is(err, wantErr) {
		t.Errorf("expected decide error to propagate, got %v", err)
	}
}

func TestEngineEmitsLifecycleEvents(t *testing.T) {
	var types []EventType
	engine := NewEngine(EngineConfig{
		EventHandler: func(evt Event) { types = append(types, evt.Type) },
	})
	n := NewNode(&scriptNode{}, WithName("solo"))

	if err := engine.Run(context.Background(), n, NewState()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []EventType{EventRunStarted, EventNodeStarted, EventNodeCompleted, EventRunCompleted}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestRunRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := NewNode(&scriptNode{})
	err := NewEngine(EngineConfig{}).Run(ctx, n, NewState())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
