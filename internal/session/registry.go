package session

import (
	"time"

	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	"github.com/TRob9/claude-github-buddy/internal/transport/wire"
	v1 "github.com/TRob9/claude-github-buddy/pkg/api/v1"
)

const defaultReplayLimit = 100

// Options configures registry behavior.
type Options struct {
	// PermissionTimeout bounds how long a permission request waits for
	// a client response before resolving to deny.
	PermissionTimeout time.Duration

	// ReplayLimit caps the per-session notification replay buffer.
	ReplayLimit int
}

// Registry owns the process-wide map from session identifier to session
// state. Every component operates on sessions by id lookup through the
// registry rather than holding private copies.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	permissionTimeout time.Duration
	replayLimit       int
	logger            *logger.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(opts Options, log *logger.Logger) *Registry {
	if opts.PermissionTimeout <= 0 {
		opts.PermissionTimeout = 30 * time.Second
	}
	if opts.ReplayLimit <= 0 {
		opts.ReplayLimit = defaultReplayLimit
	}
	return &Registry{
		sessions:          make(map[string]*Session),
		permissionTimeout: opts.PermissionTimeout,
		replayLimit:       opts.ReplayLimit,
		logger:            log.WithFields(zap.String("component", "session-registry")),
	}
}

// CreateSession allocates a fresh identifier and installs an empty
// session record. No side effects beyond registry mutation.
func (r *Registry) CreateSession() string {
	id := uuid.New().String()

	r.mu.Lock()
	r.sessions[id] = newSession(id, r.replayLimit)
	r.mu.Unlock()

	r.logger.Info("session created", zap.String("session_id", id))
	return id
}

// BindSocket attaches a socket to a session, creating the record lazily
// if the client connected without an explicit create call. Reattaching
// under the same id replaces the socket reference without disturbing
// in-flight permission requests or queued interrupts, and replays the
// recent notification buffer to the new connection.
func (r *Registry) BindSocket(sessionID string, socket Socket) {
	r.mu.Lock()
	sess, exists := r.sessions[sessionID]
	if !exists {
		sess = newSession(sessionID, r.replayLimit)
		r.sessions[sessionID] = sess
	}
	r.mu.Unlock()

	sess.mu.Lock()
	replaced := sess.socket
	reattach := replaced != nil
	sess.socket = socket
	replay := make([]interface{}, len(sess.recent))
	copy(replay, sess.recent)
	sess.mu.Unlock()

	// A replaced connection is closed so its pumps wind down; its close
	// must not tear the session down, see CloseSocket.
	if replaced != nil && replaced != socket {
		replaced.Close()
	}

	socket.Send(wire.NewConnected(sessionID))
	if reattach {
		for _, payload := range replay {
			socket.Send(payload)
		}
	}

	r.logger.Info("socket bound",
		zap.String("session_id", sessionID),
		zap.Bool("created", !exists),
		zap.Bool("reattach", reattach))
}

// GetStatus is a pure read of a session's connection state.
func (r *Registry) GetStatus(sessionID string) v1.SessionStatus {
	sess := r.get(sessionID)
	if sess == nil {
		return v1.SessionStatus{}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return v1.SessionStatus{
		Exists:      true,
		Connected:   sess.socket != nil,
		HasSettings: sess.settings != nil,
	}
}

// Teardown triggers the abort signal, denies every still-pending
// permission request, and removes the record. Idempotent: tearing down
// a nonexistent or already-torn-down session is a no-op.
func (r *Registry) Teardown(sessionID string) {
	r.mu.Lock()
	sess, exists := r.sessions[sessionID]
	if exists {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if !exists {
		return
	}

	sess.abort()

	sess.mu.Lock()
	pending := sess.pending
	sess.pending = make(map[string]*pendingPermission)
	socket := sess.socket
	sess.socket = nil
	sess.mu.Unlock()

	// Deny outstanding requests and clear their timers before the
	// record is dropped, so no timer fires against a dead session.
	for id, p := range pending {
		p.timer.Stop()
		p.deliver(wire.PermissionResult{Behavior: BehaviorDeny, Message: "session closed"})
		r.logger.Debug("denied pending permission on teardown",
			zap.String("session_id", sessionID),
			zap.String("request_id", id))
	}

	if socket != nil {
		socket.Close()
	}

	r.logger.Info("session torn down",
		zap.String("session_id", sessionID),
		zap.Int("denied_pending", len(pending)))
}

// SetSettings installs the client's settings snapshot and signals any
// waiter. Later settings messages replace the snapshot.
func (r *Registry) SetSettings(sessionID string, settings wire.Settings) error {
	sess := r.get(sessionID)
	if sess == nil {
		return errSessionNotFound(sessionID)
	}

	sess.mu.Lock()
	first := sess.settings == nil
	sess.settings = &settings
	sess.mu.Unlock()

	if first {
		close(sess.settingsReady)
	}
	r.logger.Debug("settings updated",
		zap.String("session_id", sessionID),
		zap.Int("permissions", len(settings.Permissions)))
	return nil
}

// SettingsReady returns a channel closed once settings have arrived,
// or nil for an unknown session.
func (r *Registry) SettingsReady(sessionID string) <-chan struct{} {
	sess := r.get(sessionID)
	if sess == nil {
		return nil
	}
	return sess.settingsReady
}

// SetWorkspace records the prepared working copy path.
func (r *Registry) SetWorkspace(sessionID, path string) {
	sess := r.get(sessionID)
	if sess == nil {
		return
	}
	sess.mu.Lock()
	sess.workspace = path
	sess.mu.Unlock()
}

// Workspace returns the prepared working copy path, if any.
func (r *Registry) Workspace(sessionID string) string {
	sess := r.get(sessionID)
	if sess == nil {
		return ""
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.workspace
}

// Aborted returns the session's abort channel, or a closed channel for
// an unknown session so callers observe "aborted" uniformly.
func (r *Registry) Aborted(sessionID string) <-chan struct{} {
	sess := r.get(sessionID)
	if sess == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return sess.aborted
}

// IsAborted reports whether the session's abort signal has fired.
// Unknown sessions count as aborted.
func (r *Registry) IsAborted(sessionID string) bool {
	sess := r.get(sessionID)
	if sess == nil {
		return true
	}
	return sess.isAborted()
}

// MarkWorkflowDone marks a workflow slot complete, returning false if
// it was already marked. State is set before the caller branches on it
// so re-entrant ticks cannot double-fire the terminating transition.
func (r *Registry) MarkWorkflowDone(sessionID string, workflow v1.Workflow) bool {
	sess := r.get(sessionID)
	if sess == nil {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.workflowDone[workflow] {
		return false
	}
	sess.workflowDone[workflow] = true
	return true
}

// Send delivers a notification to the session's socket if one is bound,
// recording it in the replay buffer either way. Returns false when the
// session is unknown or has no connection.
func (r *Registry) Send(sessionID string, payload interface{}) bool {
	sess := r.get(sessionID)
	if sess == nil {
		return false
	}

	sess.mu.Lock()
	sess.record(payload)
	socket := sess.socket
	sess.mu.Unlock()

	if socket == nil {
		return false
	}
	return socket.Send(payload)
}

// CloseSocket handles a transport disconnect: if the given socket is
// still the session's current one the whole session is torn down;
// a stale close from an already-replaced connection is ignored.
func (r *Registry) CloseSocket(sessionID string, socket Socket) {
	sess := r.get(sessionID)
	if sess == nil {
		return
	}
	sess.mu.Lock()
	current := sess.socket == socket
	sess.mu.Unlock()
	if current {
		r.Teardown(sessionID)
	}
}

// DetachSocket clears the socket reference if it still is the given
// one. Used by the transport when a connection closes after a newer
// connection already replaced it.
func (r *Registry) DetachSocket(sessionID string, socket Socket) {
	sess := r.get(sessionID)
	if sess == nil {
		return
	}
	sess.mu.Lock()
	if sess.socket == socket {
		sess.socket = nil
	}
	sess.mu.Unlock()
}

func (r *Registry) get(sessionID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}
