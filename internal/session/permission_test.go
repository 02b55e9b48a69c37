package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/TRob9/claude-github-buddy/internal/transport/wire"
)

func TestPermissionAutoApprove(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	id := r.CreateSession()
	sock := &fakeSocket{}
	r.BindSocket(id, sock)

	if err := r.SetSettings(id, wire.Settings{Permissions: map[string]bool{"Read": true}}); err != nil {
		t.Fatalf("SetSettings: %v", err)
	}

	input := json.RawMessage(`{"file_path":"/tmp/x"}`)
	res := r.RequestPermission(context.Background(), id, PermissionQuery{RequestID: "req-1", ToolName: "Read", Input: input})
	if res.Behavior != BehaviorAllow {
		t.Fatalf("expected allow, got %+v", res)
	}
	if string(res.UpdatedInput) != string(input) {
		t.Fatalf("auto-approve should echo input unchanged, got %s", res.UpdatedInput)
	}

	// Auto-approval must not round-trip to the client and must not
	// leave a pending entry or timer behind.
	for _, m := range sock.messages() {
		if _, ok := m.(*wire.PermissionRequest); ok {
			t.Fatal("auto-approved request should not reach the socket")
		}
	}
	sess := r.get(id)
	sess.mu.Lock()
	pending := len(sess.pending)
	sess.mu.Unlock()
	if pending != 0 {
		t.Fatalf("expected no pending entries, found %d", pending)
	}
}

func TestPermissionClientAllow(t *testing.T) {
	r := newTestRegistry(t, 5*time.Second)
	id := r.CreateSession()
	sock := &fakeSocket{}
	r.BindSocket(id, sock)
	r.SetSettings(id, wire.Settings{Permissions: map[string]bool{}})

	done := make(chan wire.PermissionResult, 1)
	go func() {
		done <- r.RequestPermission(context.Background(), id, PermissionQuery{RequestID: "req-2", ToolName: "Bash", Input: json.RawMessage(`{"command":"ls"}`)})
	}()

	// Wait for the request to reach the socket before resolving.
	waitForPermissionRequest(t, sock, "req-2")

	updated := json.RawMessage(`{"command":"ls -la"}`)
	if err := r.ResolvePermission(id, "req-2", wire.PermissionResult{Behavior: BehaviorAllow, UpdatedInput: updated}); err != nil {
		t.Fatalf("ResolvePermission: %v", err)
	}

	res := <-done
	if res.Behavior != BehaviorAllow {
		t.Fatalf("expected allow, got %+v", res)
	}
	if string(res.UpdatedInput) != string(updated) {
		t.Fatalf("expected updated input to pass through, got %s", res.UpdatedInput)
	}
}

func TestPermissionTimeoutDenies(t *testing.T) {
	r := newTestRegistry(t, 30*time.Millisecond)
	id := r.CreateSession()
	r.BindSocket(id, &fakeSocket{})

	res := r.RequestPermission(context.Background(), id, PermissionQuery{RequestID: "req-3", ToolName: "Write", Input: nil})
	if res.Behavior != BehaviorDeny {
		t.Fatalf("expected deny on timeout, got %+v", res)
	}
	if res.Message == "" {
		t.Fatal("timeout deny should carry a reason")
	}

	// The entry is gone as soon as the caller observes resolution.
	sess := r.get(id)
	sess.mu.Lock()
	_, stillPending := sess.pending["req-3"]
	sess.mu.Unlock()
	if stillPending {
		t.Fatal("timed-out request should be removed from the pending map")
	}

	// Late response after the timeout already won is a silent no-op.
	if err := r.ResolvePermission(id, "req-3", wire.PermissionResult{Behavior: BehaviorAllow}); err != nil {
		t.Fatalf("late ResolvePermission: %v", err)
	}
}

func TestPermissionSingleWinner(t *testing.T) {
	r := newTestRegistry(t, 5*time.Second)
	id := r.CreateSession()
	sock := &fakeSocket{}
	r.BindSocket(id, sock)

	done := make(chan wire.PermissionResult, 1)
	go func() {
		done <- r.RequestPermission(context.Background(), id, PermissionQuery{RequestID: "req-4", ToolName: "Edit", Input: nil})
	}()
	waitForPermissionRequest(t, sock, "req-4")

	// Race many resolvers; exactly one decision must land.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		behavior := BehaviorDeny
		if i%2 == 0 {
			behavior = BehaviorAllow
		}
		wg.Add(1)
		go func(b string) {
			defer wg.Done()
			r.ResolvePermission(id, "req-4", wire.PermissionResult{Behavior: b})
		}(behavior)
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("request never resolved")
	}
}

func TestPermissionDeniedWithoutSocket(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	id := r.CreateSession()

	res := r.RequestPermission(context.Background(), id, PermissionQuery{RequestID: "req-5", ToolName: "Bash", Input: nil})
	if res.Behavior != BehaviorDeny {
		t.Fatalf("expected deny with no client, got %+v", res)
	}
}

func TestPermissionDeniedOnTeardown(t *testing.T) {
	r := newTestRegistry(t, 5*time.Second)
	id := r.CreateSession()
	sock := &fakeSocket{}
	r.BindSocket(id, sock)

	done := make(chan wire.PermissionResult, 1)
	go func() {
		done <- r.RequestPermission(context.Background(), id, PermissionQuery{RequestID: "req-6", ToolName: "Bash", Input: nil})
	}()
	waitForPermissionRequest(t, sock, "req-6")

	r.Teardown(id)

	select {
	case res := <-done:
		if res.Behavior != BehaviorDeny {
			t.Fatalf("expected deny after teardown, got %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("pending request not resolved by teardown")
	}
}

func TestPermissionUnknownBehaviorCoercedToDeny(t *testing.T) {
	r := newTestRegistry(t, 5*time.Second)
	id := r.CreateSession()
	sock := &fakeSocket{}
	r.BindSocket(id, sock)

	done := make(chan wire.PermissionResult, 1)
	go func() {
		done <- r.RequestPermission(context.Background(), id, PermissionQuery{RequestID: "req-7", ToolName: "Glob", Input: nil})
	}()
	waitForPermissionRequest(t, sock, "req-7")

	r.ResolvePermission(id, "req-7", wire.PermissionResult{Behavior: "maybe"})

	res := <-done
	if res.Behavior != BehaviorDeny {
		t.Fatalf("unknown behavior should resolve deny, got %+v", res)
	}
}

func TestPermissionCancelledContext(t *testing.T) {
	r := newTestRegistry(t, 5*time.Second)
	id := r.CreateSession()
	sock := &fakeSocket{}
	r.BindSocket(id, sock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan wire.PermissionResult, 1)
	go func() {
		done <- r.RequestPermission(ctx, id, PermissionQuery{RequestID: "req-8", ToolName: "Grep", Input: nil})
	}()
	waitForPermissionRequest(t, sock, "req-8")

	cancel()

	select {
	case res := <-done:
		if res.Behavior != BehaviorDeny {
			t.Fatalf("expected deny on cancellation, got %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("cancellation did not resolve the request")
	}
}

func waitForPermissionRequest(t *testing.T, sock *fakeSocket, requestID string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, m := range sock.messages() {
			if req, ok := m.(*wire.PermissionRequest); ok && req.RequestID == requestID {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("permission_request %s never sent", requestID)
}
