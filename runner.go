package dflow

import (
	"context"
	"errors"
	"log/slog"
)

// AttemptOutcome names the terminal state of one Runner.Execute call:
// Ready → Running → {Committed | FailedWithID | FailedWithoutID}.
type AttemptOutcome string

const (
	AttemptCommitted       AttemptOutcome = "committed"
	AttemptFailedWithID    AttemptOutcome = "failed_with_id"
	AttemptFailedWithoutID AttemptOutcome = "failed_without_id"
)

// AttemptResult reports how one attempt concluded, for callers (such as a
// retry driver) deciding whether to call Execute again.
type AttemptResult struct {
	Outcome AttemptOutcome
	// Err is the cause of a failed attempt: the guest's WorkflowError for
	// FailedWithID, and for FailedWithoutID either the guest's id-less
	// WorkflowError or the plain error from instantiating or running the
	// instance. Nil on Committed.
	Err error
}

// AuditSink optionally mirrors log entries and attempt outcomes for
// offline inspection. It is never consulted to decide replay vs. perform
// — only the in-memory State and Execution are authoritative. A nil sink
// is valid; Runner treats every call as a no-op in that case.
type AuditSink interface {
	RecordEffect(ctx context.Context, state *State, exec *Execution, position int, entry LogMessage)
	RecordAttempt(ctx context.Context, state *State, exec *Execution, result AttemptResult)
}

// Runner drives successive attempts of a single workflow instance against
// a compiled Component.
type Runner struct {
	Component Component
	State     *State
	Options   InstanceOptions

	Audit  AuditSink
	Logger *slog.Logger
	Tracer Tracer
}

// NewRunner builds a Runner for the given compiled component and workflow
// instance. opts.State and opts.Exec are overwritten by Runner on each
// Execute call and need not be set by the caller.
func NewRunner(component Component, state *State, opts InstanceOptions) *Runner {
	if opts.Handlers == nil {
		opts.Handlers = &Handlers{Logger: slog.Default()}
	}
	return &Runner{Component: component, State: state, Options: opts}
}

// Execute performs exactly one attempt:
//
//  1. state.StartExecution — begin the attempt, seeded with the prior
//     attempt's log if one exists.
//  2. Instantiate the component against that attempt's store, binding the
//     effect handlers.
//  3. Invoke the guest's sole entrypoint and wait for it to return.
//  4. On success: the attempt is Committed, nothing further to mutate.
//     On a WorkflowError carrying a non-empty ID: call state.SetFailure
//     so the next attempt re-performs exactly that effect
//     (FailedWithID). On any other failure (a WorkflowError with an
//     empty ID, or a plain error from the instance itself): FailedWithoutID — the
//     attempt's log is restored to how it started, and the caller must
//     decide policy.
func (r *Runner) Execute(ctx context.Context) (AttemptResult, error) {
	exec := r.State.StartExecution()
	// Snapshot the inherited log so a structural failure can leave the
	// attempt exactly as it started: only Committed and FailedWithID
	// outcomes keep the attempt's progress.
	snapshot := exec.Log.clone()

	var span AttemptSpan
	if r.Tracer != nil {
		ctx, span = r.Tracer.StartAttempt(ctx, r.State.ID, exec.ID)
	}

	opts := r.Options
	opts.State = r.State
	opts.Exec = exec
	if opts.Handlers != nil {
		if opts.Handlers.Audit == nil {
			opts.Handlers.Audit = r.Audit
		}
		if opts.Handlers.Tracer == nil {
			opts.Handlers.Tracer = r.Tracer
		}
	}

	instance, err := r.Component.Instantiate(ctx, opts)
	if err != nil {
		result := AttemptResult{Outcome: AttemptFailedWithoutID, Err: err}
		r.rollback(exec, snapshot)
		r.finish(ctx, exec, result, span)
		return result, err
	}
	defer instance.Close(ctx)

	workflowErr, instanceErr := instance.Execute(ctx)

	switch {
	case instanceErr != nil:
		result := AttemptResult{Outcome: AttemptFailedWithoutID, Err: instanceErr}
		r.rollback(exec, snapshot)
		r.finish(ctx, exec, result, span)
		return result, instanceErr

	case workflowErr != nil:
		var outcome AttemptOutcome
		if workflowErr.ID != "" {
			r.State.SetFailure(workflowErr.ID)
			outcome = AttemptFailedWithID
		} else {
			outcome = AttemptFailedWithoutID
			r.rollback(exec, snapshot)
		}
		result := AttemptResult{Outcome: outcome, Err: workflowErr}
		r.finish(ctx, exec, result, span)
		return result, workflowErr

	default:
		result := AttemptResult{Outcome: AttemptCommitted}
		r.finish(ctx, exec, result, span)
		return result, nil
	}
}

// rollback restores the attempt to its starting log and cursor after a
// failure that carries no effect id: effects the attempt did perform were
// real, but without an id to target there is nothing to mark failed, and
// the next attempt must see the lineage exactly as this one found it.
func (r *Runner) rollback(exec *Execution, snapshot executionLog) {
	exec.Log = snapshot
	exec.Position = 0
}

// finish records the attempt's terminal outcome to both the attempt span
// and the audit sink. Every return path of Execute goes through finish
// exactly once, so the span's End contract holds.
func (r *Runner) finish(ctx context.Context, exec *Execution, result AttemptResult, span AttemptSpan) {
	if span != nil {
		span.End(result.Outcome, result.Err)
	}
	if r.Audit != nil {
		r.Audit.RecordAttempt(ctx, r.State, exec, result)
	}
}

// AsWorkflowError unwraps err into a *WorkflowError if the chain contains
// one, for callers that only have the plain error from Execute.
func AsWorkflowError(err error) (*WorkflowError, bool) {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}
