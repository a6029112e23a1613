package dflow

import (
	"math/rand"
	"sync"
	"time"
)

// RNG is the workflow instance's shared pseudo-random source. It is owned
// by State behind a mutex and shared by pointer across Execution clones,
// so that every attempt of the same State draws from one continuous,
// deterministic sequence — determinism is a property of the workflow
// instance, not of any single attempt.
type RNG struct {
	mu  sync.Mutex
	src *rand.Rand
}

// NewRNG seeds a new RNG. Two RNGs built from the same seed produce the
// same draw sequence, which is what lets Scenario tests assert exact
// outcomes across attempts.
func NewRNG(seed int64) *RNG {
	return &RNG{src: rand.New(rand.NewSource(seed))}
}

func (r *RNG) Bool() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Int63()&1 == 1
}

func (r *RNG) Int32() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Int31()
}

func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Float32()
}

// Execution is one attempt at running a workflow instance to completion.
type Execution struct {
	ID       string
	Created  time.Time
	Position int
	Log      executionLog
}

// newExecution starts a fresh attempt. If prior is non-nil, the new
// attempt's log is initialized as a full copy of prior's log, success
// flags included — the mechanism that carries prior outcomes forward for
// replay.
func newExecution(prior *Execution) *Execution {
	e := &Execution{ID: NewID(), Created: Now()}
	if prior != nil {
		e.Log = prior.Log.clone()
	}
	return e
}

// State is a single workflow instance: a stable identity, its RNG, and the
// ordered sequence of attempts made against it (oldest first).
type State struct {
	ID         string
	Created    time.Time
	RNG        *RNG
	Executions []*Execution
}

// StateOption configures NewState.
type StateOption func(*State)

// WithSeed sets the RNG seed explicitly. Without it, NewState seeds from
// the current time, which is appropriate for production use but makes
// tests nondeterministic — tests should always pass WithSeed.
func WithSeed(seed int64) StateOption {
	return func(s *State) { s.RNG = NewRNG(seed) }
}

// NewState creates a fresh workflow instance with no attempts yet.
func NewState(opts ...StateOption) *State {
	s := &State{
		ID:      NewID(),
		Created: Now(),
		RNG:     NewRNG(Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the most recent attempt, or nil if none has started yet.
func (s *State) Current() *Execution {
	if len(s.Executions) == 0 {
		return nil
	}
	return s.Executions[len(s.Executions)-1]
}

// StartExecution begins a new attempt, seeded with the prior attempt's log
// if one exists, and returns it. The returned Execution is also appended
// to s.Executions and becomes Current().
func (s *State) StartExecution() *Execution {
	e := newExecution(s.Current())
	s.Executions = append(s.Executions, e)
	return e
}

// SetFailure flips every log entry in the current attempt whose
// correlation id matches id to failed, so the next attempt re-performs
// exactly that effect. Called by the Runner when a guest entrypoint
// returns a WorkflowError carrying a non-empty ID.
func (s *State) SetFailure(id string) {
	cur := s.Current()
	if cur == nil {
		return
	}
	cur.Log.markFailed(id)
}
