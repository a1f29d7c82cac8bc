// Package worker defines the typed adapter contract between the
// Orchestrator and the five specialist callables (Classifier, Narrator,
// Visualizer, Projector, Quality Judge). Adapters are the only place
// worker-specific knowledge lives; the dispatcher stays worker-agnostic
// (spec §4.4).
package worker

import "context"

// Worker is implemented by every adapter. Generic over its input/output
// shape since the five workers share no structural overlap — the teacher's
// gonum-based scorers never needed this, but five distinct I/O contracts
// behind one dispatch loop do.
type Worker[In, Out any] interface {
	// Invoke calls the backend, applies ctx's deadline/cancellation,
	// classifies backend errors, and validates the parsed output before
	// returning it. A non-nil error is always an *errs.Error.
	Invoke(ctx context.Context, in In) (Out, error)
}

// Backend is the transport-level contract each adapter wraps: send a
// request, get a response or a plain error back. Both the in-process stub
// and the httpjson transport implement this per worker kind.
type Backend[In, Out any] interface {
	Call(ctx context.Context, in In) (Out, error)
}
