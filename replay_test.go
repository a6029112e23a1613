package dflow

import (
	"context"
	"errors"
	"testing"
)

func performer(msg HostToGuest) EffectPerformer {
	return func(ctx context.Context) (HostToGuest, error) {
		return msg, nil
	}
}

func TestRetrieveOrElseFreshAppends(t *testing.T) {
	exec := &Execution{ID: NewID()}
	msg := HostToGuest{ID: "x", Content: Content{Kind: ContentUnit}}

	got, err := RetrieveOrElse(context.Background(), exec, performer(msg))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "x" {
		t.Fatalf("expected performed message returned, got %+v", got)
	}
	if len(exec.Log) != 1 {
		t.Fatalf("expected log to grow to 1 entry, got %d", len(exec.Log))
	}
	if exec.Position != 1 {
		t.Fatalf("expected cursor to advance to 1, got %d", exec.Position)
	}
}

func TestRetrieveOrElseReplaysSuccessfulEntryWithoutInvokingPerformer(t *testing.T) {
	exec := &Execution{
		Log: executionLog{{Success: true, Message: HostToGuest{ID: "cached"}}},
	}
	called := false
	f := func(ctx context.Context) (HostToGuest, error) {
		called = true
		return HostToGuest{ID: "fresh"}, nil
	}

	got, err := RetrieveOrElse(context.Background(), exec, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("performer must not be invoked for a successful cached entry")
	}
	if got.ID != "cached" {
		t.Fatalf("expected cached message returned unchanged, got %+v", got)
	}
	if exec.Position != 1 {
		t.Fatalf("expected cursor to advance even on replay, got %d", exec.Position)
	}
}

func TestRetrieveOrElseRetriesFailedEntryAndOverwrites(t *testing.T) {
	exec := &Execution{
		Log: executionLog{{Success: false, Message: HostToGuest{ID: "old"}}},
	}
	msg := HostToGuest{ID: "new"}

	got, err := RetrieveOrElse(context.Background(), exec, performer(msg))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "new" {
		t.Fatalf("expected performer's message returned, got %+v", got)
	}
	entry, _ := exec.Log.get(0)
	if !entry.Success || entry.Message.ID != "new" {
		t.Fatalf("expected log entry overwritten with new success, got %+v", entry)
	}
	if len(exec.Log) != 1 {
		t.Fatalf("retry must overwrite in place, not append; got length %d", len(exec.Log))
	}
}

func TestRetrieveOrElseLeavesCursorAndLogUntouchedOnError(t *testing.T) {
	exec := &Execution{}
	wantErr := errors.New("boom")
	f := func(ctx context.Context) (HostToGuest, error) {
		return HostToGuest{}, wantErr
	}

	_, err := RetrieveOrElse(context.Background(), exec, f)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected performer's error propagated, got %v", err)
	}
	if exec.Position != 0 {
		t.Fatalf("expected no cursor advance on performer error, got %d", exec.Position)
	}
	if len(exec.Log) != 0 {
		t.Fatalf("expected log untouched on failure, got length %d", len(exec.Log))
	}
}

func TestRetrieveOrElseCursorMonotonicAcrossCalls(t *testing.T) {
	exec := &Execution{}
	for i := 0; i < 5; i++ {
		before := exec.Position
		_, err := RetrieveOrElse(context.Background(), exec, performer(HostToGuest{ID: NewID()}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if exec.Position != before+1 {
			t.Fatalf("cursor did not advance by exactly 1 at step %d", i)
		}
	}
	if len(exec.Log) != 5 {
		t.Fatalf("expected log to grow monotonically to 5, got %d", len(exec.Log))
	}
}
