package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/TRob9/claude-github-buddy/internal/common/errors"
	v1 "github.com/TRob9/claude-github-buddy/pkg/api/v1"
)

// MemoryStore keeps run history in process memory. The default when no
// database is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*v1.RunRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*v1.RunRecord)}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) RecordStart(ctx context.Context, record *v1.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = time.Now().UTC()
	}
	stored := *record
	s.runs[record.ID] = &stored
	return nil
}

func (s *MemoryStore) RecordFinish(ctx context.Context, record *v1.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.runs[record.ID]
	if !ok {
		return apperrors.NotFound("run", record.ID)
	}
	existing.Outcome = record.Outcome
	existing.Detail = record.Detail
	existing.Usage = record.Usage
	if record.FinishedAt != nil {
		existing.FinishedAt = record.FinishedAt
	} else {
		now := time.Now().UTC()
		existing.FinishedAt = &now
	}
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*v1.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, apperrors.NotFound("run", id)
	}
	copied := *run
	return &copied, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, limit int) ([]*v1.RunRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	s.mu.RLock()
	runs := make([]*v1.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		copied := *run
		runs = append(runs, &copied)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
