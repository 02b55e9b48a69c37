package review

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	v1 "github.com/TRob9/claude-github-buddy/pkg/api/v1"
)

func writeTracking(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "review.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIsWorkCompleteMissingFile(t *testing.T) {
	m := NewMonitor(10, logger.Default())
	if m.IsWorkComplete("/nonexistent/review.md", v1.WorkflowQuestions) {
		t.Fatal("missing file should not be complete")
	}
}

func TestIsWorkCompleteQuestions(t *testing.T) {
	m := NewMonitor(10, logger.Default())

	cases := []struct {
		name    string
		content string
		want    bool
	}{
		{
			name: "all answered",
			content: "## Review Questions\n\n" +
				"### Question 1\n\n**Q:** Why this approach?\n\n**Answer:** Because it simplifies the retry logic considerably.\n\n" +
				"### Question 2\n\n**Q:** Is this safe?\n\n**Answer:** Yes, the lock ordering prevents the deadlock.\n",
			want: true,
		},
		{
			name: "pending sentinel",
			content: "### Question 1\n\n**Q:** Why?\n\n**Answer:** Because of the cache invalidation rules here.\n\n" +
				"### Question 2\n\n**Q:** How?\n\n**Answer:** _Pending_\n",
			want: false,
		},
		{
			name:    "tbd sentinel",
			content: "### Question 1\n\n**Q:** Why?\n\n**Answer:** _TBD_\n",
			want:    false,
		},
		{
			name:    "bracket placeholder",
			content: "### Question 1\n\n**Q:** Why?\n\n**Answer:** [agent fills this in with a detailed answer]\n",
			want:    false,
		},
		{
			name:    "too short",
			content: "### Question 1\n\n**Q:** Why?\n\n**Answer:** ok\n",
			want:    false,
		},
		{
			name:    "missing field",
			content: "### Question 1\n\n**Q:** Why?\n",
			want:    false,
		},
		{
			name:    "no work items",
			content: "## Review Questions\n\nNothing recorded yet.\n",
			want:    false,
		},
		{
			name: "preamble block without item marker ignored",
			content: "intro text\n\n" +
				"### Question 1\n\n**Q:** Why?\n\n**Answer:** The answer spans enough characters to pass.\n",
			want: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTracking(t, tc.content)
			if got := m.IsWorkComplete(path, v1.WorkflowQuestions); got != tc.want {
				t.Errorf("IsWorkComplete = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsWorkCompleteActions(t *testing.T) {
	m := NewMonitor(10, logger.Default())

	done := writeTracking(t, "### Action 1\n\n**Instruction:** Rename the helper.\n\n**Summary:** Renamed prepareRepo to prepareWorkspace across the package.\n")
	if !m.IsWorkComplete(done, v1.WorkflowActions) {
		t.Fatal("summarized action should be complete")
	}

	open := writeTracking(t, "### Action 1\n\n**Instruction:** Rename the helper.\n\n**Summary:** _Pending_\n")
	if m.IsWorkComplete(open, v1.WorkflowActions) {
		t.Fatal("pending action should not be complete")
	}

	// Multi-line summaries stop at the next bold marker.
	mixed := writeTracking(t, "### Action 1\n\n**Instruction:** Fix the race.\n\n**Summary:** Guarded the map\nwith the registry mutex.\n\n**Instruction:** leftover\n")
	if !m.IsWorkComplete(mixed, v1.WorkflowActions) {
		t.Fatal("multi-line summary should count")
	}
}

func TestRenderRoundTrip(t *testing.T) {
	items := []Item{
		{Title: "1", Body: "Why is the cache keyed by branch?"},
		{Title: "2", Body: "Should teardown flush the queue?"},
	}
	content := Render(v1.WorkflowQuestions, items)

	path := writeTracking(t, content)
	m := NewMonitor(10, logger.Default())
	if m.IsWorkComplete(path, v1.WorkflowQuestions) {
		t.Fatal("freshly rendered file should not be complete")
	}
}
