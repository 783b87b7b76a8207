// ABOUTME: Producer helpers for building the lazy item sequences returned by Produce.
// ABOUTME: Covers the common single-item, fixed-batch, and immediate-failure cases.
package flow

import "iter"

// Emit returns a producer sequence that yields the given values in order.
// Emit(nil) is the canonical single-item sequence for nodes with no fan-out.
func Emit(values ...any) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for _, v := range values {
			if !yield(v, nil) {
				return
			}
		}
	}
}

// EmitSlice returns a producer sequence that yields each element of items.
func EmitSlice[T any](items []T) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for _, v := range items {
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Fail returns a producer sequence that immediately yields the given error,
// aborting the activation before any item is computed.
func Fail(err error) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		yield(nil, err)
	}
}
