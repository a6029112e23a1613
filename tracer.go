package dflow

import "context"

// Tracer observes the runtime's two units of work: one span per attempt
// (Runner.Execute) and one child span per effect dispatch inside it. The
// telemetry package provides an OTEL-backed implementation that also
// counts attempts by outcome and effects by kind and replayed/performed.
// A nil Tracer disables observation entirely — Runner and Handlers check
// for nil before every call.
type Tracer interface {
	// StartAttempt opens the observation of one attempt. The returned
	// context carries the span so effect spans nest under it.
	StartAttempt(ctx context.Context, workflowID, attemptID string) (context.Context, AttemptSpan)
	// StartEffect opens the observation of one effect dispatch at the
	// given cursor position.
	StartEffect(ctx context.Context, kind EffectKind, position int) (context.Context, EffectSpan)
}

// AttemptSpan is the open observation of one attempt. End must be called
// exactly once, with the attempt's terminal outcome and its error (nil
// on Committed).
type AttemptSpan interface {
	End(outcome AttemptOutcome, err error)
}

// EffectSpan is the open observation of one effect dispatch. End must be
// called exactly once; replayed reports whether the response came from
// the log instead of a fresh perform.
type EffectSpan interface {
	End(replayed bool, err error)
}
