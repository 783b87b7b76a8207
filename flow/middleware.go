// ABOUTME: Decorator-style middleware around node activations, for cross-cutting concerns
// ABOUTME: like logging and panic containment without touching the Lifecycle contract.
package flow

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"time"
)

// StepFunc executes one node activation and returns the label chosen by its
// decide phase.
type StepFunc func(ctx context.Context, n *Node, s *State) (Action, error)

// Middleware wraps a StepFunc, receiving the next step explicitly.
type Middleware func(next StepFunc) StepFunc

// ChainMiddleware composes middleware around a base step. The first middleware
// in the list is outermost.
func ChainMiddleware(base StepFunc, mw ...Middleware) StepFunc {
	step := base
	for i := len(mw) - 1; i >= 0; i-- {
		step = mw[i](step)
	}
	return step
}

// Logging returns middleware that writes one line per activation to w,
// including the chosen label and elapsed time.
func Logging(w io.Writer) Middleware {
	return func(next StepFunc) StepFunc {
		return func(ctx context.Context, n *Node, s *State) (Action, error) {
			start := time.Now()
			label, err := next(ctx, n, s)
			elapsed := time.Since(start).Round(time.Millisecond)
			if err != nil {
				fmt.Fprintf(w, "node=%s elapsed=%s error=%v\n", n.Name(), elapsed, err)
			} else {
				fmt.Fprintf(w, "node=%s elapsed=%s label=%s\n", n.Name(), elapsed, label)
			}
			return label, err
		}
	}
}

// Recovered returns middleware that converts a panic in the produce or decide
// phase into an error, so one misbehaving node fails the run instead of
// crashing the process. Compute panics are already recovered per item by the
// retry wrapper.
func Recovered() Middleware {
	return func(next StepFunc) StepFunc {
		return func(ctx context.Context, n *Node, s *State) (label Action, err error) {
			defer func() {
				if r := recover(); r != nil {
					stack := debug.Stack()
					label = End
					err = fmt.Errorf("activation panic in node %q: %v\n%s", n.Name(), r, stack)
				}
			}()
			return next(ctx, n, s)
		}
	}
}
