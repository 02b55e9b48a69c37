package history

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/TRob9/claude-github-buddy/internal/common/errors"
	v1 "github.com/TRob9/claude-github-buddy/pkg/api/v1"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	record := &v1.RunRecord{
		SessionID:  "sess-1",
		Workflow:   v1.WorkflowQuestions,
		Repository: "owner/repo",
		Branch:     "main",
	}
	if err := s.RecordStart(ctx, record); err != nil {
		t.Fatalf("RecordStart: %v", err)
	}
	if record.ID == "" {
		t.Fatal("RecordStart should assign an id")
	}
	if record.StartedAt.IsZero() {
		t.Fatal("RecordStart should stamp started_at")
	}

	record.Outcome = v1.RunOutcomeCompleted
	record.Usage = v1.Usage{InputTokens: 120, OutputTokens: 50}
	if err := s.RecordFinish(ctx, record); err != nil {
		t.Fatalf("RecordFinish: %v", err)
	}

	got, err := s.GetRun(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Outcome != v1.RunOutcomeCompleted || got.Usage.InputTokens != 120 {
		t.Fatalf("unexpected stored run: %+v", got)
	}
	if got.FinishedAt == nil {
		t.Fatal("finish should stamp finished_at")
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.GetRun(ctx, "missing"); !apperrors.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
	err := s.RecordFinish(ctx, &v1.RunRecord{ID: "missing"})
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected not-found on finish, got %v", err)
	}
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		err := s.RecordStart(ctx, &v1.RunRecord{
			SessionID: "sess",
			Workflow:  v1.WorkflowActions,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordStart: %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, 3)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected limit applied, got %d runs", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if runs[i].StartedAt.After(runs[i-1].StartedAt) {
			t.Fatal("runs not sorted newest first")
		}
	}
}
