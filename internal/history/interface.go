// Package history persists completed agent runs so past review
// activity can be listed after the sessions themselves are gone.
package history

import (
	"context"

	v1 "github.com/TRob9/claude-github-buddy/pkg/api/v1"
)

// Store defines run history storage operations.
type Store interface {
	// RecordStart inserts a run in its started state and returns its id.
	RecordStart(ctx context.Context, record *v1.RunRecord) error

	// RecordFinish sets the outcome, detail, usage, and finish time.
	RecordFinish(ctx context.Context, record *v1.RunRecord) error

	// GetRun retrieves one run by id.
	GetRun(ctx context.Context, id string) (*v1.RunRecord, error)

	// ListRuns returns runs newest first, capped at limit. A limit of
	// zero or less applies a default cap.
	ListRuns(ctx context.Context, limit int) ([]*v1.RunRecord, error)

	// Close releases any underlying connections.
	Close() error
}

const defaultListLimit = 50
