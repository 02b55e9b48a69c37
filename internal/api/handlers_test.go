package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/TRob9/claude-github-buddy/internal/common/errors"
	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	"github.com/TRob9/claude-github-buddy/internal/events/bus"
	"github.com/TRob9/claude-github-buddy/internal/history"
	"github.com/TRob9/claude-github-buddy/internal/session"
	v1 "github.com/TRob9/claude-github-buddy/pkg/api/v1"
)

// stubRunner returns a canned result, or session-not-found for ids the
// registry does not know.
type stubRunner struct {
	registry *session.Registry
	result   *v1.RunResult
	lastTask v1.TaskDescriptor
}

func (s *stubRunner) RunTask(_ context.Context, sessionID string, task v1.TaskDescriptor) (*v1.RunResult, error) {
	if !s.registry.GetStatus(sessionID).Exists {
		return nil, apperrors.SessionNotFound(sessionID)
	}
	s.lastTask = task
	return s.result, nil
}

func setupTestRouter(t *testing.T) (*gin.Engine, *session.Registry, *stubRunner, *history.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, _ := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	registry := session.NewRegistry(session.Options{PermissionTimeout: time.Second}, log)
	store := history.NewMemoryStore()
	runner := &stubRunner{
		registry: registry,
		result:   &v1.RunResult{Success: true, Content: "done"},
	}
	router := SetupRouter(registry, runner, store, bus.NewMemoryEventBus(log), log)
	return router, registry, runner, store
}

func TestCreateAndGetSession(t *testing.T) {
	router, _, _, _ := setupTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created CreateSessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil || created.SessionID == "" {
		t.Fatalf("bad create response: %s (%v)", w.Body.String(), err)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+created.SessionID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}

	var status v1.SessionStatus
	json.Unmarshal(w.Body.Bytes(), &status)
	if !status.Exists || status.Connected {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	router, _, _, _ := setupTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/ghost", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDeleteSessionIdempotent(t *testing.T) {
	router, registry, _, _ := setupTestRouter(t)
	id := registry.CreateSession()

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+id, nil))
		if w.Code != http.StatusNoContent {
			t.Fatalf("delete #%d: expected 204, got %d", i+1, w.Code)
		}
	}
	if registry.GetStatus(id).Exists {
		t.Fatal("session should be gone")
	}
}

func TestRunTask(t *testing.T) {
	router, registry, runner, _ := setupTestRouter(t)
	id := registry.CreateSession()

	body, _ := json.Marshal(RunTaskRequest{
		Repository:   "owner/repo",
		Branch:       "main",
		Workflow:     "questions",
		TrackingFile: "/tmp/review.md",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/run", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp RunTaskResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Success || resp.Content != "done" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if runner.lastTask.Workflow != v1.WorkflowQuestions {
		t.Fatalf("task descriptor not forwarded: %+v", runner.lastTask)
	}
}

func TestRunTaskValidation(t *testing.T) {
	router, registry, _, _ := setupTestRouter(t)
	id := registry.CreateSession()

	cases := []struct {
		name string
		body string
	}{
		{"missing tracking file", `{"workflow":"questions"}`},
		{"bad workflow", `{"workflow":"sideways","tracking_file":"/tmp/x.md"}`},
		{"not json", `nope`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/run", bytes.NewReader([]byte(tc.body)))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestRunTaskUnknownSession(t *testing.T) {
	router, _, _, _ := setupTestRouter(t)

	body := []byte(`{"workflow":"actions","tracking_file":"/tmp/a.md"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/ghost/run", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListRuns(t *testing.T) {
	router, _, _, store := setupTestRouter(t)

	for i := 0; i < 3; i++ {
		store.RecordStart(context.Background(), &v1.RunRecord{
			SessionID: "s", Workflow: v1.WorkflowQuestions,
		})
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ListRunsResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(resp.Runs))
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=zzz", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit should 400, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	router, _, _, _ := setupTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
