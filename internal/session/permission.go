package session

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/TRob9/claude-github-buddy/internal/common/errors"
	"github.com/TRob9/claude-github-buddy/internal/transport/wire"
)

// Permission behaviors on the client protocol.
const (
	BehaviorAllow = "allow"
	BehaviorDeny  = "deny"
)

// pendingPermission is one outstanding permission round-trip. The
// result channel is buffered so the winner never blocks on delivery;
// removal from the session's pending map under the lock is the
// single-winner arbiter between client response, timeout, and
// teardown.
type pendingPermission struct {
	result chan wire.PermissionResult
	timer  *time.Timer
}

func (p *pendingPermission) deliver(res wire.PermissionResult) {
	select {
	case p.result <- res:
	default:
	}
}

// PermissionQuery describes one tool invocation awaiting approval.
// Reason and Suggestions come through from the agent when it offers
// context for the decision; both may be empty.
type PermissionQuery struct {
	RequestID   string
	ToolName    string
	Input       json.RawMessage
	Reason      string
	Suggestions []string
}

// RequestPermission gates one tool invocation. When the session's
// settings pre-approve the tool the call resolves allow without any
// client traffic. Otherwise a permission_request is pushed to the
// client and the call blocks until a response, the timeout, session
// abort, or context cancellation, whichever comes first. Every
// non-allow path resolves to an explicit deny so the agent is never
// left hanging.
func (r *Registry) RequestPermission(ctx context.Context, sessionID string, q PermissionQuery) wire.PermissionResult {
	requestID, toolName, input := q.RequestID, q.ToolName, q.Input
	sess := r.get(sessionID)
	if sess == nil {
		return wire.PermissionResult{Behavior: BehaviorDeny, Message: "session not found"}
	}

	sess.mu.Lock()
	if sess.settings != nil && sess.settings.Permissions[toolName] {
		sess.mu.Unlock()
		r.logger.Debug("permission auto-approved",
			zap.String("session_id", sessionID),
			zap.String("tool", toolName))
		return wire.PermissionResult{Behavior: BehaviorAllow, UpdatedInput: input}
	}
	if sess.socket == nil {
		sess.mu.Unlock()
		return wire.PermissionResult{Behavior: BehaviorDeny, Message: "no client connected"}
	}
	sess.mu.Unlock()

	if sess.isAborted() {
		return wire.PermissionResult{Behavior: BehaviorDeny, Message: "session closed"}
	}

	pending := &pendingPermission{result: make(chan wire.PermissionResult, 1)}
	pending.timer = time.AfterFunc(r.permissionTimeout, func() {
		if r.takePending(sessionID, requestID) != nil {
			pending.deliver(wire.PermissionResult{Behavior: BehaviorDeny, Message: "permission request timed out"})
			r.logger.Warn("permission request timed out",
				zap.String("session_id", sessionID),
				zap.String("request_id", requestID),
				zap.String("tool", toolName))
		}
	})

	sess.mu.Lock()
	sess.pending[requestID] = pending
	sess.mu.Unlock()

	if !r.Send(sessionID, wire.NewPermissionRequest(requestID, toolName, input, q.Reason, q.Suggestions)) {
		// Socket went away between the check above and the send. Claim
		// the slot back so the timer cannot double-resolve.
		if r.takePending(sessionID, requestID) != nil {
			pending.timer.Stop()
			return wire.PermissionResult{Behavior: BehaviorDeny, Message: "no client connected"}
		}
	}

	select {
	case res := <-pending.result:
		return res
	case <-sess.aborted:
		if r.takePending(sessionID, requestID) != nil {
			pending.timer.Stop()
		}
		return wire.PermissionResult{Behavior: BehaviorDeny, Message: "session closed"}
	case <-ctx.Done():
		if r.takePending(sessionID, requestID) != nil {
			pending.timer.Stop()
		}
		return wire.PermissionResult{Behavior: BehaviorDeny, Message: "request cancelled"}
	}
}

// ResolvePermission applies a client's permission_response. Exactly one
// resolver wins per request id; duplicate or late responses are silent
// no-ops. Unknown behaviors are coerced to deny.
func (r *Registry) ResolvePermission(sessionID, requestID string, result wire.PermissionResult) error {
	sess := r.get(sessionID)
	if sess == nil {
		return apperrors.SessionNotFound(sessionID)
	}

	pending := r.takePending(sessionID, requestID)
	if pending == nil {
		r.logger.Debug("permission response for unknown or settled request",
			zap.String("session_id", sessionID),
			zap.String("request_id", requestID))
		return nil
	}
	pending.timer.Stop()

	if result.Behavior != BehaviorAllow {
		result.Behavior = BehaviorDeny
	}
	pending.deliver(result)
	return nil
}

// takePending removes and returns the pending entry for requestID, or
// nil when another resolver already claimed it.
func (r *Registry) takePending(sessionID, requestID string) *pendingPermission {
	sess := r.get(sessionID)
	if sess == nil {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	pending, ok := sess.pending[requestID]
	if !ok {
		return nil
	}
	delete(sess.pending, requestID)
	return pending
}

func errSessionNotFound(sessionID string) error {
	return apperrors.SessionNotFound(sessionID)
}
