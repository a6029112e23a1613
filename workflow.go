package dflow

import (
	"context"
	"log/slog"
)

// Workflow is the top-level aggregate: an Engine handle, the guest
// artifact it will compile, and the State of the single workflow
// instance executing against it. The artifact is compiled once, on
// the first Execute call; every Execute after that reuses the compiled
// Component and drives one more attempt through the same Runner.
type Workflow struct {
	engine Engine
	binary []byte
	state  *State
	opts   InstanceOptions

	component Component
	runner    *Runner

	// Audit, Logger, and Tracer are forwarded to the Runner when it is
	// built on first Execute; set them before calling Execute.
	Audit  AuditSink
	Logger *slog.Logger
	Tracer Tracer
}

// NewWorkflow builds a Workflow around an uncompiled guest artifact. The
// binary is opaque here — only the Engine knows how to turn it into an
// instantiable Component.
func NewWorkflow(engine Engine, binary []byte, state *State, opts InstanceOptions) *Workflow {
	return &Workflow{engine: engine, binary: binary, state: state, opts: opts}
}

// State returns the workflow instance's state, shared with the Runner.
func (w *Workflow) State() *State { return w.state }

// Execute compiles the artifact if this is the first attempt, then
// drives exactly one Runner attempt. A compile failure is a structural
// failure: no attempt starts and no log entry is touched.
func (w *Workflow) Execute(ctx context.Context) (AttemptResult, error) {
	if w.component == nil {
		component, err := w.engine.Compile(ctx, w.binary)
		if err != nil {
			result := AttemptResult{Outcome: AttemptFailedWithoutID, Err: err}
			return result, err
		}
		w.component = component
		w.runner = NewRunner(component, w.state, w.opts)
		w.runner.Audit = w.Audit
		w.runner.Logger = w.Logger
		w.runner.Tracer = w.Tracer
	}
	return w.runner.Execute(ctx)
}
