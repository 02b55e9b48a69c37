package session

import "go.uber.org/zap"

// EnqueueInterrupt appends an interrupt instruction to the session's
// queue. Interrupts are drained in arrival order, one per agent turn.
func (r *Registry) EnqueueInterrupt(sessionID, content string) error {
	sess := r.get(sessionID)
	if sess == nil {
		return errSessionNotFound(sessionID)
	}

	sess.mu.Lock()
	sess.interrupts = append(sess.interrupts, content)
	depth := len(sess.interrupts)
	sess.mu.Unlock()

	r.logger.Debug("interrupt queued",
		zap.String("session_id", sessionID),
		zap.Int("queue_depth", depth))
	return nil
}

// DrainInterrupt pops the oldest queued interrupt. Returns false when
// the queue is empty or the session is unknown.
func (r *Registry) DrainInterrupt(sessionID string) (string, bool) {
	sess := r.get(sessionID)
	if sess == nil {
		return "", false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.interrupts) == 0 {
		return "", false
	}
	content := sess.interrupts[0]
	sess.interrupts = sess.interrupts[1:]
	return content, true
}

// PendingInterrupts reports the current queue depth.
func (r *Registry) PendingInterrupts(sessionID string) int {
	sess := r.get(sessionID)
	if sess == nil {
		return 0
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return len(sess.interrupts)
}
