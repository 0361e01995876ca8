// Package cursor tracks how much of the flattened event stream has been
// reconciled.
package cursor

import "ai-chat-transcript-service/internal/models"

// Cursor is the number of flattened events already reconciled. It is a value:
// Advance returns the next cursor instead of mutating shared state.
type Cursor struct {
	consumed int
}

// Zero is the cursor of a fresh session.
var Zero = Cursor{}

// At returns a cursor positioned after n events.
func At(n int) Cursor {
	if n < 0 {
		n = 0
	}
	return Cursor{consumed: n}
}

// Position returns the number of events consumed so far.
func (c Cursor) Position() int {
	return c.consumed
}

// Delta is the half-open range [Start, End) of events not yet reconciled.
// Reset is set when the stream shrank below the cursor; nothing is replayed
// in that case.
type Delta struct {
	Start int
	End   int
	Reset bool
}

// Empty reports whether there is nothing to reconcile.
func (d Delta) Empty() bool {
	return d.End <= d.Start
}

// Len returns the number of new events.
func (d Delta) Len() int {
	if d.Empty() {
		return 0
	}
	return d.End - d.Start
}

// Apply returns the new events of flat. It returns nil if flat is shorter
// than the delta.
func (d Delta) Apply(flat []models.StepEvent) []models.StepEvent {
	if d.Empty() || d.End > len(flat) {
		return nil
	}
	return flat[d.Start:d.End]
}

// Advance compares the cursor against a flattened stream of length n. Every
// event in [c, n) is new; all of them are handed to reconciliation in order,
// so a burst of several appends between two snapshots is never skipped.
func Advance(c Cursor, n int) (Delta, Cursor) {
	switch {
	case n == c.consumed:
		return Delta{Start: n, End: n}, c
	case n < c.consumed:
		if n < 0 {
			n = 0
		}
		return Delta{Start: n, End: n, Reset: true}, At(n)
	default:
		return Delta{Start: c.consumed, End: n}, At(n)
	}
}
