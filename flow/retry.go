// ABOUTME: Bounded per-item retry wrapper around a node's compute phase, with fallback on exhaustion.
// ABOUTME: Retries of the same item run sequentially; panics are recovered into errors so they retry too.
package flow

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// computeWithRetry runs one item's compute up to MaxAttempts times, sleeping
// RetryDelay between attempts. On exhaustion it consults the node's optional
// Fallbacker; absent one (or if the fallback itself errors), the failure
// propagates and aborts the enclosing activation. Attempts for one item are
// never parallelized.
func (e *Engine) computeWithRetry(ctx context.Context, n *Node, s *State, item any, index int) (any, error) {
	attempts := n.config.MaxAttempts
	if attempts < 1 {
		// MaxAttempts < 1 is a caller error; run the compute once rather
		// than leave the item unreachable.
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := safeCompute(ctx, n, s, item)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt < attempts {
			e.emit(Event{Type: EventItemRetrying, Node: n.Name(), Data: map[string]any{
				"item":    index,
				"attempt": attempt,
				"error":   err.Error(),
			}})
			sleepWithContext(ctx, n.config.RetryDelay)
		}
	}

	if fb, ok := n.lifecycle.(Fallbacker); ok {
		e.emit(Event{Type: EventItemFallback, Node: n.Name(), Data: map[string]any{
			"item":  index,
			"error": lastErr.Error(),
		}})
		result, err := fb.Fallback(ctx, n, s, item, lastErr)
		if err != nil {
			return nil, fmt.Errorf("item %d failed after %d attempt(s): %w", index, attempts, err)
		}
		return result, nil
	}

	return nil, fmt.Errorf("item %d failed after %d attempt(s): %w", index, attempts, lastErr)
}

// safeCompute wraps Compute with panic recovery, converting panics into errors
// so a misbehaving compute goroutine cannot crash the whole process. The stack
// trace is included to aid debugging.
func safeCompute(ctx context.Context, n *Node, s *State, item any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			err = fmt.Errorf("compute panic in node %q: %v\n%s", n.Name(), r, stack)
			result = nil
		}
	}()
	return n.lifecycle.Compute(ctx, n, s, item)
}

// sleepWithContext sleeps for the given duration, but returns early if the
// context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		return
	}
}
