// Package session owns the per-session state shared by the transport,
// the permission gate, and the conversation driver: the registry of live
// sessions, the pending permission map, and the interrupt queue.
package session

import (
	"sync"
	"time"

	"github.com/TRob9/claude-github-buddy/internal/transport/wire"
	v1 "github.com/TRob9/claude-github-buddy/pkg/api/v1"
)

// Socket is the live client connection bound to a session. Send reports
// whether the payload was accepted for delivery; it must not block.
type Socket interface {
	Send(payload interface{}) bool
	Close()
}

// Session is the state of one agent run bound to one client connection.
// All access goes through the Registry so teardown-from-anywhere is
// immediately visible everywhere.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu sync.Mutex

	socket    Socket
	settings  *wire.Settings
	workspace string

	// settingsReady is closed when the first settings message arrives.
	settingsReady chan struct{}

	// aborted is closed exactly once; terminal for permission grants.
	aborted   chan struct{}
	abortOnce sync.Once

	interrupts []string
	pending    map[string]*pendingPermission

	// completion slots, one per workflow; marked done before the
	// terminating transition so re-entrant ticks cannot double-fire
	workflowDone map[v1.Workflow]bool

	// recent server→client notifications, replayed on socket reattach
	recent      []interface{}
	replayLimit int
}

func newSession(id string, replayLimit int) *Session {
	return &Session{
		ID:            id,
		CreatedAt:     time.Now().UTC(),
		settingsReady: make(chan struct{}),
		aborted:       make(chan struct{}),
		pending:       make(map[string]*pendingPermission),
		workflowDone:  make(map[v1.Workflow]bool),
		replayLimit:   replayLimit,
	}
}

// abort closes the aborted channel at most once.
func (s *Session) abort() {
	s.abortOnce.Do(func() {
		close(s.aborted)
	})
}

func (s *Session) isAborted() bool {
	select {
	case <-s.aborted:
		return true
	default:
		return false
	}
}

// record appends a notification to the bounded replay ring.
// Caller must hold s.mu.
func (s *Session) record(payload interface{}) {
	if s.replayLimit <= 0 {
		return
	}
	s.recent = append(s.recent, payload)
	if len(s.recent) > s.replayLimit {
		s.recent = s.recent[len(s.recent)-s.replayLimit:]
	}
}
