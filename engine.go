package dflow

import "context"

// Engine compiles a component-model binary into a Component. The
// component runtime itself is an external collaborator — this interface,
// and InstanceOptions/Component/GuestInstance below, are its entire
// surface at the Go level. sandbox/container provides a Docker-backed
// adapter; tests use an in-process fake that skips compilation and
// instantiation entirely.
type Engine interface {
	Compile(ctx context.Context, binary []byte) (Component, error)
}

// Component is a compiled guest ready to be instantiated, possibly
// multiple times against different State clones.
type Component interface {
	Instantiate(ctx context.Context, opts InstanceOptions) (GuestInstance, error)
}

// InstanceOptions configures one guest instantiation. FuelLimit and
// YieldInterval carry the fuel-metered cooperative-yield model at the
// interface boundary; a real wasm adapter applies them, the in-process
// fake ignores them (there is no sandboxed guest to meter).
type InstanceOptions struct {
	// FuelLimit bounds the guest's execution budget. Zero means
	// unlimited.
	FuelLimit uint64
	// YieldInterval is how often (in fuel units) the guest cooperatively
	// yields back to the host scheduler.
	YieldInterval uint64
	// Handlers routes effect-ABI host imports to the effect handlers.
	Handlers *Handlers
	// State is the workflow instance the guest's effects are recorded
	// against; Exec is the attempt currently in flight.
	State *State
	Exec  *Execution
}

// GuestInstance is one running instantiation of a compiled guest. Execute
// invokes the guest's sole exported entrypoint and blocks until it
// returns. A non-nil *WorkflowError means the guest classified its own
// run as a failure; a non-nil plain error means the instance itself
// failed structurally (sandbox trap, host import panic) and corresponds
// to AttemptFailedWithoutID — no log mutation follows from it.
type GuestInstance interface {
	Execute(ctx context.Context) (*WorkflowError, error)
	Close(ctx context.Context) error
}
