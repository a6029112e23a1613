package dflow

import "testing"

func TestExecutionLogAppendAndGet(t *testing.T) {
	var l executionLog
	l = l.append(LogMessage{Success: true, Message: HostToGuest{ID: "a"}})
	l = l.append(LogMessage{Success: false, Message: HostToGuest{ID: "b"}})

	entry, ok := l.get(0)
	if !ok || entry.Message.ID != "a" || !entry.Success {
		t.Fatalf("get(0) = %+v, %v", entry, ok)
	}
	entry, ok = l.get(1)
	if !ok || entry.Message.ID != "b" || entry.Success {
		t.Fatalf("get(1) = %+v, %v", entry, ok)
	}
	if _, ok := l.get(2); ok {
		t.Fatalf("get(2) should not exist")
	}
	if _, ok := l.get(-1); ok {
		t.Fatalf("get(-1) should not exist")
	}
}

func TestExecutionLogReplace(t *testing.T) {
	l := executionLog{{Success: false, Message: HostToGuest{ID: "a"}}}
	l.replace(0, LogMessage{Success: true, Message: HostToGuest{ID: "a"}})

	entry, ok := l.get(0)
	if !ok || !entry.Success {
		t.Fatalf("replace did not take effect: %+v", entry)
	}
}

func TestExecutionLogMarkFailed(t *testing.T) {
	l := executionLog{
		{Success: true, Message: HostToGuest{ID: "a"}},
		{Success: true, Message: HostToGuest{ID: "b"}},
	}
	l.markFailed("b")

	if e, _ := l.get(0); !e.Success {
		t.Fatalf("entry a should be untouched")
	}
	if e, _ := l.get(1); e.Success {
		t.Fatalf("entry b should be marked failed")
	}
}

func TestExecutionLogClone(t *testing.T) {
	orig := executionLog{{Success: true, Message: HostToGuest{ID: "a"}}}
	clone := orig.clone()
	clone.replace(0, LogMessage{Success: false, Message: HostToGuest{ID: "a"}})

	if e, _ := orig.get(0); !e.Success {
		t.Fatalf("mutating clone must not affect original, got %+v", e)
	}
}
