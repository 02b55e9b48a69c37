package runner

import (
	"fmt"
	"strings"

	"github.com/TRob9/claude-github-buddy/internal/gitprep"
	v1 "github.com/TRob9/claude-github-buddy/pkg/api/v1"
)

// buildPrompt assembles the priming turn: what the run is about, where
// the tracking file lives, and how completion is judged.
func buildPrompt(task v1.TaskDescriptor, prep gitprep.Result) string {
	var b strings.Builder

	switch task.Workflow {
	case v1.WorkflowActions:
		b.WriteString("You are working through code review actions.\n\n")
		fmt.Fprintf(&b, "The tracking file %s lists the reviewer's instructions, one per \"### Action\" block. ", task.TrackingFile)
		b.WriteString("For each block, carry out the instruction in the repository, then replace the block's **Summary:** placeholder with a short description of what you changed. ")
	default:
		b.WriteString("You are answering code review questions.\n\n")
		fmt.Fprintf(&b, "The tracking file %s lists the reviewer's questions, one per \"### Question\" block. ", task.TrackingFile)
		b.WriteString("For each block, investigate the code and replace the block's **Answer:** placeholder with a substantive answer. ")
	}
	b.WriteString("Leave the rest of the file's structure untouched. The run ends once every block is filled in.\n")

	if task.Repository != "" {
		fmt.Fprintf(&b, "\nRepository: %s", task.Repository)
		if task.Branch != "" {
			fmt.Fprintf(&b, " (branch %s)", task.Branch)
		}
		b.WriteString("\n")
		if prep.Prepared {
			fmt.Fprintf(&b, "A working copy is checked out in the current directory (%s).\n", prep.Path)
		} else {
			fmt.Fprintf(&b, "The working copy could not be prepared automatically (%s). Clone the repository and check out the branch yourself before starting.\n", prep.Error)
		}
	}

	if task.Task != "" {
		b.WriteString("\n")
		b.WriteString(task.Task)
		b.WriteString("\n")
	}

	return b.String()
}
