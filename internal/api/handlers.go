package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/TRob9/claude-github-buddy/internal/common/errors"
	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	"github.com/TRob9/claude-github-buddy/internal/events/bus"
	"github.com/TRob9/claude-github-buddy/internal/history"
	"github.com/TRob9/claude-github-buddy/internal/session"
	v1 "github.com/TRob9/claude-github-buddy/pkg/api/v1"
)

// Runner is the run entry point consumed by the HTTP layer.
type Runner interface {
	RunTask(ctx context.Context, sessionID string, task v1.TaskDescriptor) (*v1.RunResult, error)
}

// Handler contains the HTTP handlers for the session API.
type Handler struct {
	registry *session.Registry
	runner   Runner
	store    history.Store
	events   bus.EventBus
	logger   *logger.Logger
}

// NewHandler creates the API handler.
func NewHandler(registry *session.Registry, runner Runner, store history.Store, events bus.EventBus, log *logger.Logger) *Handler {
	return &Handler{
		registry: registry,
		runner:   runner,
		store:    store,
		events:   events,
		logger:   log,
	}
}

// CreateSession allocates a session id for a client about to connect.
// POST /api/v1/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	id := h.registry.CreateSession()
	h.publish(c.Request.Context(), bus.SubjectSessionCreated, "session.created", id)
	c.JSON(http.StatusCreated, CreateSessionResponse{SessionID: id})
}

// GetSession reports a session's connection state.
// GET /api/v1/sessions/:id
func (h *Handler) GetSession(c *gin.Context) {
	status := h.registry.GetStatus(c.Param("id"))
	if !status.Exists {
		appErr := errors.SessionNotFound(c.Param("id"))
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	c.JSON(http.StatusOK, status)
}

// DeleteSession tears a session down. Idempotent.
// DELETE /api/v1/sessions/:id
func (h *Handler) DeleteSession(c *gin.Context) {
	h.registry.Teardown(c.Param("id"))
	h.publish(c.Request.Context(), bus.SubjectSessionClosed, "session.closed", c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *Handler) publish(ctx context.Context, subject, eventType, sessionID string) {
	if h.events == nil {
		return
	}
	event := bus.NewEvent(eventType, map[string]interface{}{"session_id": sessionID})
	if err := h.events.Publish(ctx, subject, event); err != nil {
		h.logger.Warn("failed to publish session event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// RunTask runs one workflow for a session, blocking until the run ends.
// POST /api/v1/sessions/:id/run
func (h *Handler) RunTask(c *gin.Context) {
	sessionID := c.Param("id")

	var req RunTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	workflow := v1.Workflow(req.Workflow)
	if workflow != v1.WorkflowQuestions && workflow != v1.WorkflowActions {
		appErr := errors.ValidationError("workflow", "must be questions or actions")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	task := v1.TaskDescriptor{
		Repository:   req.Repository,
		Branch:       req.Branch,
		Workflow:     workflow,
		TrackingFile: req.TrackingFile,
		Task:         req.Task,
	}

	result, err := h.runner.RunTask(c.Request.Context(), sessionID, task)
	if err != nil {
		h.logger.Error("task run failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		status := errors.GetHTTPStatus(err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, RunTaskResponse{
		Success: result.Success,
		Content: result.Content,
		Usage:   result.Usage,
	})
}

// ListRuns returns run history, newest first.
// GET /api/v1/runs
func (h *Handler) ListRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			appErr := errors.BadRequest("limit must be an integer")
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		limit = parsed
	}

	runs, err := h.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", zap.Error(err))
		appErr := errors.InternalError("failed to list runs", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	if runs == nil {
		runs = []*v1.RunRecord{}
	}
	c.JSON(http.StatusOK, ListRunsResponse{Runs: runs})
}

// GetRun returns one run record.
// GET /api/v1/runs/:runId
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.store.GetRun(c.Request.Context(), c.Param("runId"))
	if err != nil {
		status := errors.GetHTTPStatus(err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// Health reports liveness.
// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
