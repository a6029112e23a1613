package dflow_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/arclight/dflow"
	"github.com/arclight/dflow/effect/httpfx"
)

type failingEngine struct{}

func (failingEngine) Compile(ctx context.Context, binary []byte) (dflow.Component, error) {
	return nil, errors.New("malformed component binary")
}

func TestWorkflowCompilesOnceAndCommits(t *testing.T) {
	srv := newThreeRouteServer(t, alwaysOK)
	defer srv.Close()

	seed := seedWithBranch(t, true)
	state := dflow.NewState(dflow.WithSeed(seed))
	handlers := &dflow.Handlers{HTTP: httpfx.New(srv.URL)}
	workflow := dflow.NewWorkflow(&fakeEngine{program: exampleProgram}, nil, state,
		dflow.InstanceOptions{Handlers: handlers})

	result, err := workflow.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != dflow.AttemptCommitted {
		t.Fatalf("expected committed, got %v", result.Outcome)
	}
	if workflow.State() != state {
		t.Fatalf("State() should return the instance the workflow was built with")
	}
}

func TestWorkflowCompileFailureIsStructural(t *testing.T) {
	state := dflow.NewState(dflow.WithSeed(1))
	workflow := dflow.NewWorkflow(failingEngine{}, []byte("junk"), state, dflow.InstanceOptions{})

	result, err := workflow.Execute(context.Background())
	if result.Outcome != dflow.AttemptFailedWithoutID {
		t.Fatalf("expected failed_without_id on compile failure, got %v", result.Outcome)
	}
	if err == nil {
		t.Fatalf("expected a non-nil error")
	}
	if len(state.Executions) != 0 {
		t.Fatalf("a compile failure must not start an attempt, got %d executions", len(state.Executions))
	}
}

// Log growth is monotonic non-decreasing across attempts of one instance,
// even as attempts fail and retry.
func TestWorkflowLogGrowthMonotonicAcrossAttempts(t *testing.T) {
	var issCalls int32
	srv := newThreeRouteServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&issCalls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})
	defer srv.Close()

	seed := seedWithBranch(t, false)
	state := dflow.NewState(dflow.WithSeed(seed))
	handlers := &dflow.Handlers{HTTP: httpfx.New(srv.URL)}
	workflow := dflow.NewWorkflow(&fakeEngine{program: exampleProgram}, nil, state,
		dflow.InstanceOptions{Handlers: handlers})

	prevLen := 0
	for attempt := 0; attempt < 10; attempt++ {
		result, _ := workflow.Execute(context.Background())
		cur := len(state.Current().Log)
		if cur < prevLen {
			t.Fatalf("log shrank from %d to %d at attempt %d", prevLen, cur, attempt)
		}
		prevLen = cur
		if result.Outcome == dflow.AttemptCommitted {
			return
		}
	}
	t.Fatalf("workflow did not converge within 10 attempts")
}

// Replay determinism across attempts: every position recorded successful
// in attempt k returns a bytewise-identical response in attempt k+1, with
// no external call behind it.
func TestWorkflowReplayedResponsesAreStable(t *testing.T) {
	var dbCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/iss/now", alwaysOK)
	mux.HandleFunc("/email/send", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("email queued"))
	})
	srv, dbFail := newFlippingRoute(t, mux, &dbCalls)
	defer srv.Close()

	*dbFail = true
	seed := seedWithBranch(t, true)
	state := dflow.NewState(dflow.WithSeed(seed))
	handlers := &dflow.Handlers{HTTP: httpfx.New(srv.URL)}
	workflow := dflow.NewWorkflow(&fakeEngine{program: exampleProgram}, nil, state,
		dflow.InstanceOptions{Handlers: handlers})

	result1, _ := workflow.Execute(context.Background())
	if result1.Outcome != dflow.AttemptFailedWithID {
		t.Fatalf("expected first attempt failed on db update, got %v", result1.Outcome)
	}
	attempt1 := state.Current()
	recorded := make([]dflow.HostToGuest, 0, len(attempt1.Log))
	for _, entry := range attempt1.Log {
		if entry.Success {
			recorded = append(recorded, entry.Message)
		}
	}

	*dbFail = false
	result2, err := workflow.Execute(context.Background())
	if err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if result2.Outcome != dflow.AttemptCommitted {
		t.Fatalf("expected second attempt committed, got %v", result2.Outcome)
	}

	attempt2 := state.Current()
	i := 0
	for pos, entry := range attempt2.Log {
		if i >= len(recorded) {
			break
		}
		if entry.Message.ID == recorded[i].ID {
			if fmt.Sprintf("%+v", entry.Message) != fmt.Sprintf("%+v", recorded[i]) {
				t.Fatalf("replayed response diverged at position %d", pos)
			}
			i++
		}
	}
	if i != len(recorded) {
		t.Fatalf("expected all %d recorded responses replayed, matched %d", len(recorded), i)
	}
	if atomic.LoadInt32(&dbCalls) != 2 {
		t.Fatalf("expected exactly 2 real db calls (failed then retried), got %d", dbCalls)
	}
}

// newFlippingRoute mounts /database/update on mux, failing with 507 while
// *fail is true, and returns the started server plus the flag.
func newFlippingRoute(t *testing.T, mux *http.ServeMux, calls *int32) (srv *httptest.Server, fail *bool) {
	t.Helper()
	fail = new(bool)
	mux.HandleFunc("/database/update", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if *fail {
			w.WriteHeader(http.StatusInsufficientStorage)
			return
		}
		w.Write([]byte("db updated"))
	})
	return httptest.NewServer(mux), fail
}
