package session

import (
	"testing"
	"time"
)

func TestInterruptFIFO(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	id := r.CreateSession()

	for _, msg := range []string{"first", "second", "third"} {
		if err := r.EnqueueInterrupt(id, msg); err != nil {
			t.Fatalf("EnqueueInterrupt(%q): %v", msg, err)
		}
	}
	if got := r.PendingInterrupts(id); got != 3 {
		t.Fatalf("expected 3 queued interrupts, got %d", got)
	}

	for _, want := range []string{"first", "second", "third"} {
		got, ok := r.DrainInterrupt(id)
		if !ok || got != want {
			t.Fatalf("expected %q, got %q (ok=%v)", want, got, ok)
		}
	}

	if _, ok := r.DrainInterrupt(id); ok {
		t.Fatal("drained from empty queue")
	}
}

func TestInterruptUnknownSession(t *testing.T) {
	r := newTestRegistry(t, time.Second)

	if err := r.EnqueueInterrupt("ghost", "hello"); err == nil {
		t.Fatal("expected error for unknown session")
	}
	if _, ok := r.DrainInterrupt("ghost"); ok {
		t.Fatal("unknown session should drain nothing")
	}
}

func TestIsManagedTool(t *testing.T) {
	for _, name := range []string{"Read", "Write", "Edit", "MultiEdit", "Bash", "Glob", "Grep"} {
		if !IsManagedTool(name) {
			t.Errorf("%s should be managed", name)
		}
	}
	for _, name := range []string{"WebFetch", "", "bash"} {
		if IsManagedTool(name) {
			t.Errorf("%s should not be managed", name)
		}
	}
}
