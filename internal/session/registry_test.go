package session

import (
	"sync"
	"testing"
	"time"

	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	"github.com/TRob9/claude-github-buddy/internal/transport/wire"
	v1 "github.com/TRob9/claude-github-buddy/pkg/api/v1"
)

type fakeSocket struct {
	mu     sync.Mutex
	sent   []interface{}
	closed bool
}

func (f *fakeSocket) Send(payload interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.sent = append(f.sent, payload)
	return true
}

func (f *fakeSocket) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSocket) messages() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]interface{}, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestRegistry(t *testing.T, timeout time.Duration) *Registry {
	t.Helper()
	return NewRegistry(Options{PermissionTimeout: timeout}, logger.Default())
}

func TestCreateAndStatus(t *testing.T) {
	r := newTestRegistry(t, time.Second)

	id := r.CreateSession()
	if id == "" {
		t.Fatal("expected non-empty session id")
	}

	status := r.GetStatus(id)
	if !status.Exists || status.Connected || status.HasSettings {
		t.Fatalf("unexpected status for fresh session: %+v", status)
	}

	if got := r.GetStatus("nope"); got.Exists {
		t.Fatalf("expected missing session, got %+v", got)
	}
}

func TestBindSocketLazyCreate(t *testing.T) {
	r := newTestRegistry(t, time.Second)

	sock := &fakeSocket{}
	r.BindSocket("adhoc-id", sock)

	status := r.GetStatus("adhoc-id")
	if !status.Exists || !status.Connected {
		t.Fatalf("expected lazily created connected session, got %+v", status)
	}

	msgs := sock.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one connected message, got %d", len(msgs))
	}
	connected, ok := msgs[0].(*wire.Connected)
	if !ok || connected.SessionID != "adhoc-id" {
		t.Fatalf("unexpected first message: %#v", msgs[0])
	}
}

func TestRebindReplaysRecentNotifications(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	id := r.CreateSession()

	first := &fakeSocket{}
	r.BindSocket(id, first)
	r.Send(id, wire.NewProgress("working", ""))
	r.Send(id, wire.NewThinking("pondering"))

	second := &fakeSocket{}
	r.BindSocket(id, second)

	msgs := second.messages()
	// connected frame, then the two replayed notifications in order.
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages on reattach, got %d", len(msgs))
	}
	p, ok := msgs[1].(*wire.Progress)
	if !ok || p.Message != "working" {
		t.Fatalf("unexpected replayed message: %#v", msgs[1])
	}
}

func TestSetSettingsSignalsWaiters(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	id := r.CreateSession()

	ready := r.SettingsReady(id)
	select {
	case <-ready:
		t.Fatal("settings channel closed before settings arrived")
	default:
	}

	if err := r.SetSettings(id, wire.Settings{Permissions: map[string]bool{"Read": true}}); err != nil {
		t.Fatalf("SetSettings: %v", err)
	}

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("settings channel not closed")
	}

	// A later settings message replaces the snapshot without panicking
	// on the already-closed channel.
	if err := r.SetSettings(id, wire.Settings{Permissions: map[string]bool{"Write": true}}); err != nil {
		t.Fatalf("second SetSettings: %v", err)
	}

	if !r.GetStatus(id).HasSettings {
		t.Fatal("expected HasSettings after settings message")
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	id := r.CreateSession()
	sock := &fakeSocket{}
	r.BindSocket(id, sock)

	r.Teardown(id)
	r.Teardown(id)
	r.Teardown("never-existed")

	if r.GetStatus(id).Exists {
		t.Fatal("session should be gone after teardown")
	}
	if !sock.closed {
		t.Fatal("socket should be closed on teardown")
	}
	if !r.IsAborted(id) {
		t.Fatal("torn-down session should read as aborted")
	}
}

func TestMarkWorkflowDoneOnce(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	id := r.CreateSession()

	if !r.MarkWorkflowDone(id, v1.WorkflowQuestions) {
		t.Fatal("first mark should succeed")
	}
	if r.MarkWorkflowDone(id, v1.WorkflowQuestions) {
		t.Fatal("second mark should report already done")
	}
	if !r.MarkWorkflowDone(id, v1.WorkflowActions) {
		t.Fatal("other workflow should be independent")
	}
}

func TestSendWithoutSocketRecordsForReplay(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	id := r.CreateSession()

	if r.Send(id, wire.NewProgress("early", "")) {
		t.Fatal("send without socket should report false")
	}

	sock := &fakeSocket{}
	r.BindSocket(id, sock)

	msgs := sock.messages()
	if len(msgs) != 1 {
		// Only the connected frame: first bind does not replay.
		t.Fatalf("expected no replay on first bind, got %d messages", len(msgs))
	}
}

func TestCloseSocketStaleVsCurrent(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	id := r.CreateSession()

	old := &fakeSocket{}
	r.BindSocket(id, old)
	replacement := &fakeSocket{}
	r.BindSocket(id, replacement)

	if !old.closed {
		t.Fatal("replaced socket should be closed on rebind")
	}

	// The replaced connection closing must not kill the session.
	r.CloseSocket(id, old)
	if !r.GetStatus(id).Exists {
		t.Fatal("stale close must not tear the session down")
	}

	r.CloseSocket(id, replacement)
	if r.GetStatus(id).Exists {
		t.Fatal("current socket close should tear the session down")
	}
}

func TestDetachSocketOnlyClearsMatching(t *testing.T) {
	r := newTestRegistry(t, time.Second)
	id := r.CreateSession()

	old := &fakeSocket{}
	r.BindSocket(id, old)
	replacement := &fakeSocket{}
	r.BindSocket(id, replacement)

	// Stale close notification from the replaced connection must not
	// disconnect the live one.
	r.DetachSocket(id, old)
	if !r.GetStatus(id).Connected {
		t.Fatal("live socket should survive stale detach")
	}

	r.DetachSocket(id, replacement)
	if r.GetStatus(id).Connected {
		t.Fatal("detach of current socket should disconnect")
	}
}
