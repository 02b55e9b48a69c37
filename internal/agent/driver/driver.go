// Package driver runs the conversation loop that feeds the agent: one
// priming turn with the task text, then a poll loop that forwards
// queued interrupts and watches the tracking file for completion.
package driver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	"github.com/TRob9/claude-github-buddy/internal/session"
	v1 "github.com/TRob9/claude-github-buddy/pkg/api/v1"
)

// Outcome is why the drive loop stopped.
type Outcome string

const (
	// OutcomeCompleted means the tracking file reported every work
	// item resolved. Graceful exhaustion, not a cancellation.
	OutcomeCompleted Outcome = "completed"

	// OutcomeAborted means the session's abort signal fired (stop,
	// socket close, or teardown).
	OutcomeAborted Outcome = "aborted"
)

// CompletionChecker reports whether a workflow's tracking file is done.
type CompletionChecker interface {
	IsWorkComplete(path string, workflow v1.Workflow) bool
}

// PromptSink receives user turns for the agent conversation.
type PromptSink interface {
	Prompt(ctx context.Context, text string) error
}

// Driver is the sole producer feeding the agent conversation. Its
// termination ends the run from the driver's side; it never cancels
// in-flight tool calls itself, that is the abort signal's job.
type Driver struct {
	registry *session.Registry
	checker  CompletionChecker
	interval time.Duration
	logger   *logger.Logger
}

// New creates a driver polling at the given interval.
func New(registry *session.Registry, checker CompletionChecker, interval time.Duration, log *logger.Logger) *Driver {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Driver{
		registry: registry,
		checker:  checker,
		interval: interval,
		logger:   log.WithFields(zap.String("component", "driver")),
	}
}

// Drive emits the priming turn and then polls until the workflow
// completes or the session aborts. The poll interval governs how fast
// an interrupt or a file edit is observed.
func (d *Driver) Drive(ctx context.Context, sessionID, task, trackingFile string, workflow v1.Workflow, sink PromptSink) (Outcome, error) {
	log := d.logger.WithSessionID(sessionID)

	if d.registry.IsAborted(sessionID) {
		return OutcomeAborted, nil
	}
	if err := sink.Prompt(ctx, task); err != nil {
		return OutcomeAborted, err
	}
	log.Debug("priming turn sent", zap.String("workflow", string(workflow)))

	aborted := d.registry.Aborted(sessionID)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return OutcomeAborted, ctx.Err()
		case <-aborted:
			log.Info("drive loop aborted")
			return OutcomeAborted, nil
		case <-ticker.C:
		}

		// Mark done before branching so a re-entrant tick cannot fire
		// the terminating transition twice for the same workflow.
		if d.checker.IsWorkComplete(trackingFile, workflow) {
			if d.registry.MarkWorkflowDone(sessionID, workflow) {
				log.Info("workflow complete", zap.String("workflow", string(workflow)))
				return OutcomeCompleted, nil
			}
			return OutcomeCompleted, nil
		}

		if msg, ok := d.registry.DrainInterrupt(sessionID); ok {
			log.Debug("forwarding interrupt")
			if err := sink.Prompt(ctx, msg); err != nil {
				return OutcomeAborted, err
			}
		}
	}
}
