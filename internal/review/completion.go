package review

import (
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	v1 "github.com/TRob9/claude-github-buddy/pkg/api/v1"
)

// Placeholder sentinels the agent leaves until an item is resolved.
const (
	sentinelPending = "_Pending_"
	sentinelTBD     = "_TBD_"
)

const defaultMinFieldLength = 10

// Monitor decides whether every work item in a tracking file has been
// resolved. It is queried on a poll loop: the agent edits the file
// out-of-process, so the file itself is the authoritative state.
type Monitor struct {
	minFieldLength int
	logger         *logger.Logger
}

// NewMonitor creates a completion monitor. minFieldLength below 1
// falls back to the default.
func NewMonitor(minFieldLength int, log *logger.Logger) *Monitor {
	if minFieldLength < 1 {
		minFieldLength = defaultMinFieldLength
	}
	return &Monitor{
		minFieldLength: minFieldLength,
		logger:         log.WithFields(zap.String("component", "completion-monitor")),
	}
}

// IsWorkComplete reports whether every work item in the tracking file
// has a filled-in field. A file that does not exist yet is not
// complete. Read failures are logged and report not complete, never an
// error: this runs on an uninterrupted poll loop and must not crash
// the driver.
func (m *Monitor) IsWorkComplete(path string, workflow v1.Workflow) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("failed to read tracking file",
				zap.String("path", path),
				zap.Error(err))
		}
		return false
	}

	f := FormatFor(workflow)
	blocks := strings.Split(string(data), f.BlockMarker)
	sawItem := false
	for _, block := range blocks {
		if !strings.Contains(block, f.ItemMarker) {
			continue
		}
		sawItem = true
		if !m.fieldResolved(f.fieldValue(block)) {
			return false
		}
	}
	// A file with no recognizable work items is not a finished review.
	return sawItem
}

func (m *Monitor) fieldResolved(value string) bool {
	if value == "" || len(value) < m.minFieldLength {
		return false
	}
	if value == sentinelPending || value == sentinelTBD {
		return false
	}
	// Bracketed placeholders like "[agent fills this in]".
	if strings.HasPrefix(value, "[") {
		return false
	}
	return true
}
