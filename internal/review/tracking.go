// Package review defines the markdown tracking-file conventions shared
// between the service and the agent: one file per review, one block per
// work item, with a designated field the agent must fill in.
package review

import (
	"fmt"
	"strings"

	v1 "github.com/TRob9/claude-github-buddy/pkg/api/v1"
)

// Format describes the structural markers of one workflow's tracking
// file. Blocks open with BlockMarker; a block is a real work item only
// if it contains ItemMarker; FieldMarker introduces the field the agent
// fills in.
type Format struct {
	BlockMarker string
	ItemMarker  string
	FieldMarker string
}

var (
	questionsFormat = Format{
		BlockMarker: "### Question",
		ItemMarker:  "**Q:**",
		FieldMarker: "**Answer:**",
	}
	actionsFormat = Format{
		BlockMarker: "### Action",
		ItemMarker:  "**Instruction:**",
		FieldMarker: "**Summary:**",
	}
)

// FormatFor returns the tracking-file format for a workflow. Unknown
// workflows fall back to the questions format.
func FormatFor(workflow v1.Workflow) Format {
	if workflow == v1.WorkflowActions {
		return actionsFormat
	}
	return questionsFormat
}

// Item is one work item to be written into a tracking file.
type Item struct {
	Title string
	Body  string
}

// Render produces the initial tracking-file content for a set of work
// items, with every field left as the pending placeholder.
func Render(workflow v1.Workflow, items []Item) string {
	f := FormatFor(workflow)
	var b strings.Builder
	if workflow == v1.WorkflowActions {
		b.WriteString("## Review Actions\n\n")
	} else {
		b.WriteString("## Review Questions\n\n")
	}
	for i, item := range items {
		title := item.Title
		if title == "" {
			title = fmt.Sprintf("%d", i+1)
		}
		fmt.Fprintf(&b, "%s %s\n\n", f.BlockMarker, title)
		fmt.Fprintf(&b, "%s %s\n\n", f.ItemMarker, item.Body)
		fmt.Fprintf(&b, "%s %s\n\n", f.FieldMarker, sentinelPending)
	}
	return b.String()
}

// fieldValue extracts the text of the format's field inside one block:
// everything after the marker up to the next bold marker or heading,
// whitespace-trimmed. Returns "" when the field is absent.
func (f Format) fieldValue(block string) string {
	idx := strings.Index(block, f.FieldMarker)
	if idx < 0 {
		return ""
	}
	rest := block[idx+len(f.FieldMarker):]

	var out []string
	for _, line := range strings.Split(rest, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "**") || strings.HasPrefix(trimmed, "#") {
			break
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
