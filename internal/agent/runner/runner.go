// Package runner orchestrates one agent task run end to end: workspace
// preparation, the settings wait, the agent process, event relaying,
// permission mediation, and run history.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TRob9/claude-github-buddy/internal/agent/driver"
	"github.com/TRob9/claude-github-buddy/internal/agent/relay"
	"github.com/TRob9/claude-github-buddy/internal/agent/runtime"
	"github.com/TRob9/claude-github-buddy/internal/common/config"
	apperrors "github.com/TRob9/claude-github-buddy/internal/common/errors"
	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	"github.com/TRob9/claude-github-buddy/internal/events/bus"
	"github.com/TRob9/claude-github-buddy/internal/gitprep"
	"github.com/TRob9/claude-github-buddy/internal/history"
	"github.com/TRob9/claude-github-buddy/internal/session"
	"github.com/TRob9/claude-github-buddy/internal/transport/wire"
	"github.com/TRob9/claude-github-buddy/pkg/agent/protocol"
	v1 "github.com/TRob9/claude-github-buddy/pkg/api/v1"
)

// Preparator readies a working copy for a run.
type Preparator interface {
	Prepare(ctx context.Context, repo, branch string) gitprep.Result
}

// Runner executes task runs against live sessions.
type Runner struct {
	registry *session.Registry
	prep     Preparator
	checker  driver.CompletionChecker
	factory  runtime.Factory
	store    history.Store
	events   bus.EventBus
	cfg      config.SessionConfig
	logger   *logger.Logger
}

// New assembles a runner.
func New(
	registry *session.Registry,
	prep Preparator,
	checker driver.CompletionChecker,
	factory runtime.Factory,
	store history.Store,
	events bus.EventBus,
	cfg config.SessionConfig,
	log *logger.Logger,
) *Runner {
	return &Runner{
		registry: registry,
		prep:     prep,
		checker:  checker,
		factory:  factory,
		store:    store,
		events:   events,
		cfg:      cfg,
		logger:   log.WithFields(zap.String("component", "runner")),
	}
}

// RunTask drives one agent run for the session. The session is torn
// down when the run finishes, regardless of outcome. On failure the
// client is notified on the socket before the error is returned, so it
// learns of the failure even if the HTTP response path fails.
func (r *Runner) RunTask(ctx context.Context, sessionID string, task v1.TaskDescriptor) (*v1.RunResult, error) {
	log := r.logger.WithSessionID(sessionID)

	if !r.registry.GetStatus(sessionID).Exists {
		return nil, apperrors.SessionNotFound(sessionID)
	}
	defer r.registry.Teardown(sessionID)

	record := &v1.RunRecord{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Workflow:   task.Workflow,
		Repository: task.Repository,
		Branch:     task.Branch,
		StartedAt:  time.Now().UTC(),
	}
	if err := r.store.RecordStart(ctx, record); err != nil {
		log.Warn("failed to record run start", zap.Error(err))
	}
	r.publish(ctx, bus.SubjectRunStarted, "run.started", record)

	result, err := r.run(ctx, sessionID, task, log)

	if err != nil {
		record.Outcome = v1.RunOutcomeFailed
		record.Detail = err.Error()
		r.registry.Send(sessionID, wire.NewError(err.Error()))
	} else {
		record.Outcome = v1.RunOutcomeCompleted
		if !result.Success {
			record.Outcome = v1.RunOutcomeStopped
		}
		record.Usage = result.Usage
	}
	if ferr := r.store.RecordFinish(context.WithoutCancel(ctx), record); ferr != nil {
		log.Warn("failed to record run finish", zap.Error(ferr))
	}
	r.publish(context.WithoutCancel(ctx), bus.SubjectRunFinished, "run.finished", record)

	return result, err
}

func (r *Runner) run(ctx context.Context, sessionID string, task v1.TaskDescriptor, log *logger.Logger) (*v1.RunResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Tie the run to the session's single cancellation path.
	go func() {
		select {
		case <-r.registry.Aborted(sessionID):
			cancel()
		case <-runCtx.Done():
		}
	}()

	prep := r.prepareWorkspace(runCtx, sessionID, task)

	r.waitForSettings(runCtx, sessionID, log)

	rt, err := r.factory(sessionID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to build agent runtime")
	}
	if err := rt.Start(runCtx, prep.Path); err != nil {
		return nil, apperrors.Wrap(err, "failed to start agent")
	}
	defer rt.Stop(context.WithoutCancel(ctx))

	resultCh := make(chan *protocol.Result, 1)
	consumeDone := make(chan struct{})
	go func() {
		defer close(consumeDone)
		r.consume(runCtx, sessionID, rt, resultCh, log)
	}()

	prompt := buildPrompt(task, prep)
	outcome, err := driver.New(r.registry, r.checker, r.pollInterval(), r.logger).
		Drive(runCtx, sessionID, prompt, task.TrackingFile, task.Workflow, rt)
	if err != nil && runCtx.Err() == nil {
		return nil, apperrors.Wrap(err, "conversation driver failed")
	}

	// Ask the agent to wrap up, then wait for its terminal result.
	rt.Stop(context.WithoutCancel(ctx))
	<-consumeDone

	res := &v1.RunResult{}
	select {
	case final := <-resultCh:
		res.Success = final.Success && outcome == driver.OutcomeCompleted
		res.Content = final.Content
		res.Usage = v1.Usage(final.Usage)
	default:
		res.Success = outcome == driver.OutcomeCompleted
	}

	if outcome == driver.OutcomeCompleted {
		r.registry.Send(sessionID, wire.NewComplete(fmt.Sprintf("%s workflow finished", task.Workflow)))
	}
	log.Info("run finished",
		zap.String("outcome", string(outcome)),
		zap.Bool("success", res.Success))
	return res, nil
}

// prepareWorkspace readies the working copy and records it on the
// session. Preparation failure degrades the run, it never fails it.
func (r *Runner) prepareWorkspace(ctx context.Context, sessionID string, task v1.TaskDescriptor) gitprep.Result {
	if task.Repository == "" {
		return gitprep.Result{}
	}
	prep := r.prep.Prepare(ctx, task.Repository, task.Branch)
	if prep.Prepared {
		r.registry.SetWorkspace(sessionID, prep.Path)
		r.registry.Send(sessionID, wire.NewProgress(
			fmt.Sprintf("workspace ready at %s", prep.Path), "prepared"))
	} else {
		r.registry.Send(sessionID, wire.NewProgress(
			fmt.Sprintf("repository preparation failed (%s), the agent will prepare it itself", prep.Error),
			"degraded"))
	}
	return prep
}

// waitForSettings blocks until the client's settings arrive, bounded by
// the configured timeout. Proceeding without settings is allowed; every
// permission then goes through the interactive gate.
func (r *Runner) waitForSettings(ctx context.Context, sessionID string, log *logger.Logger) {
	ready := r.registry.SettingsReady(sessionID)
	if ready == nil {
		return
	}
	select {
	case <-ready:
	case <-time.After(r.settingsTimeout()):
		log.Warn("no settings received, proceeding with defaults")
		r.registry.Send(sessionID, wire.NewProgress(
			"no settings received, all tool use will require explicit approval", ""))
	case <-ctx.Done():
	}
}

// consume drains the agent event stream until it closes, relaying
// display events and mediating permission requests.
func (r *Runner) consume(ctx context.Context, sessionID string, rt runtime.Runtime, resultCh chan<- *protocol.Result, log *logger.Logger) {
	rel := relay.New(func(payload interface{}) {
		r.registry.Send(sessionID, payload)
	}, r.logger)

	for ev := range rt.Events() {
		switch ev.Type {
		case protocol.EventResult:
			select {
			case resultCh <- ev.Result:
			default:
			}
		case protocol.EventControlRequest:
			req := ev.Control
			go r.answerControlRequest(ctx, sessionID, rt, req, log)
		default:
			rel.Consume(ev)
		}
	}
}

// answerControlRequest checks the managed allow-list, runs the gate,
// and writes the decision back to the agent. Runs off the consumption
// goroutine so a 30 second wait cannot stall the event stream.
func (r *Runner) answerControlRequest(ctx context.Context, sessionID string, rt runtime.Runtime, req *protocol.ControlRequest, log *logger.Logger) {
	var reply protocol.PermissionReply
	if !session.IsManagedTool(req.ToolName) {
		reply = protocol.PermissionReply{
			Behavior: session.BehaviorDeny,
			Message:  fmt.Sprintf("tool %s is not permitted", req.ToolName),
		}
	} else {
		res := r.registry.RequestPermission(ctx, sessionID, session.PermissionQuery{
			RequestID:   req.RequestID,
			ToolName:    req.ToolName,
			Input:       req.Input,
			Reason:      req.Reason,
			Suggestions: req.Suggestions,
		})
		reply = protocol.PermissionReply{
			Behavior:     res.Behavior,
			UpdatedInput: res.UpdatedInput,
			Message:      res.Message,
		}
	}

	if err := rt.Respond(req.RequestID, reply); err != nil {
		log.Warn("failed to answer control request",
			zap.String("request_id", req.RequestID),
			zap.Error(err))
	}
}

func (r *Runner) publish(ctx context.Context, subject, eventType string, record *v1.RunRecord) {
	if r.events == nil {
		return
	}
	err := r.events.Publish(ctx, subject, bus.NewEvent(eventType, map[string]interface{}{
		"run_id":     record.ID,
		"session_id": record.SessionID,
		"workflow":   string(record.Workflow),
		"repository": record.Repository,
		"outcome":    record.Outcome,
	}))
	if err != nil {
		r.logger.Warn("failed to publish run event", zap.Error(err))
	}
}

func (r *Runner) settingsTimeout() time.Duration {
	if r.cfg.SettingsTimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.cfg.SettingsTimeoutSec) * time.Second
}

func (r *Runner) pollInterval() time.Duration {
	if r.cfg.PollIntervalMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(r.cfg.PollIntervalMs) * time.Millisecond
}
