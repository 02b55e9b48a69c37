package relay

import (
	"strings"
	"testing"

	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	"github.com/TRob9/claude-github-buddy/internal/transport/wire"
	"github.com/TRob9/claude-github-buddy/pkg/agent/protocol"
)

func collector() (Notifier, *[]interface{}) {
	var got []interface{}
	return func(payload interface{}) { got = append(got, payload) }, &got
}

func TestTextBlockFlushedAsOneThinking(t *testing.T) {
	notify, got := collector()
	r := New(notify, logger.Default())

	r.Consume(&protocol.Event{Type: protocol.EventContentBlockStart, Index: 0,
		Block: &protocol.ContentBlock{Type: protocol.BlockTypeText}})
	for _, frag := range []string{"Let me look ", "at the tracking ", "file first."} {
		r.Consume(&protocol.Event{Type: protocol.EventContentBlockDelta, Index: 0,
			Delta: &protocol.Delta{Type: protocol.DeltaTypeText, Text: frag}})
	}

	if len(*got) != 0 {
		t.Fatalf("deltas must not emit anything before block close, got %v", *got)
	}

	r.Consume(&protocol.Event{Type: protocol.EventContentBlockStop, Index: 0})

	if len(*got) != 1 {
		t.Fatalf("expected one thinking message, got %d", len(*got))
	}
	th, ok := (*got)[0].(*wire.Thinking)
	if !ok || th.Message != "Let me look at the tracking file first." {
		t.Fatalf("unexpected notification: %#v", (*got)[0])
	}
}

func TestToolInputPreviewAtBlockClose(t *testing.T) {
	notify, got := collector()
	r := New(notify, logger.Default())

	r.Consume(&protocol.Event{Type: protocol.EventContentBlockStart, Index: 1,
		Block: &protocol.ContentBlock{Type: protocol.BlockTypeToolUse, ID: "tu_1", Name: "Read"}})
	r.Consume(&protocol.Event{Type: protocol.EventContentBlockDelta, Index: 1,
		Delta: &protocol.Delta{Type: protocol.DeltaTypeInputJSON, PartialJSON: `{"file_pa`}})
	r.Consume(&protocol.Event{Type: protocol.EventContentBlockDelta, Index: 1,
		Delta: &protocol.Delta{Type: protocol.DeltaTypeInputJSON, PartialJSON: `th":"/tmp/x"}`}})
	r.Consume(&protocol.Event{Type: protocol.EventContentBlockStop, Index: 1})

	if len(*got) != 1 {
		t.Fatalf("expected one progress message, got %d", len(*got))
	}
	p, ok := (*got)[0].(*wire.Progress)
	if !ok || p.Status != "tool_use" {
		t.Fatalf("unexpected notification: %#v", (*got)[0])
	}
	if !strings.Contains(p.Message, "Read:") || !strings.Contains(p.Message, "/tmp/x") {
		t.Fatalf("preview missing tool name or input: %q", p.Message)
	}
}

func TestMalformedToolInputFallsBackToRaw(t *testing.T) {
	notify, got := collector()
	r := New(notify, logger.Default())

	r.Consume(&protocol.Event{Type: protocol.EventContentBlockStart, Index: 0,
		Block: &protocol.ContentBlock{Type: protocol.BlockTypeToolUse, ID: "tu_2", Name: "Bash"}})
	r.Consume(&protocol.Event{Type: protocol.EventContentBlockDelta, Index: 0,
		Delta: &protocol.Delta{Type: protocol.DeltaTypeInputJSON, PartialJSON: `{"command": "ls`}})
	// Stream cut off mid-fragment; close must still produce a preview.
	r.Consume(&protocol.Event{Type: protocol.EventContentBlockStop, Index: 0})

	if len(*got) != 1 {
		t.Fatalf("expected one progress message, got %d", len(*got))
	}
	p := (*got)[0].(*wire.Progress)
	if !strings.Contains(p.Message, `{"command": "ls`) {
		t.Fatalf("expected raw fallback preview, got %q", p.Message)
	}
}

func TestLongToolInputTruncated(t *testing.T) {
	notify, got := collector()
	r := New(notify, logger.Default())

	big := strings.Repeat("a", 2*toolInputPreviewLimit)
	r.Consume(&protocol.Event{Type: protocol.EventContentBlockStart, Index: 0,
		Block: &protocol.ContentBlock{Type: protocol.BlockTypeToolUse, ID: "tu_3", Name: "Write"}})
	r.Consume(&protocol.Event{Type: protocol.EventContentBlockDelta, Index: 0,
		Delta: &protocol.Delta{Type: protocol.DeltaTypeInputJSON, PartialJSON: `{"content":"` + big + `"}`}})
	r.Consume(&protocol.Event{Type: protocol.EventContentBlockStop, Index: 0})

	p := (*got)[0].(*wire.Progress)
	// "Write: " prefix plus capped preview plus ellipsis.
	if len(p.Message) > len("Write: ")+toolInputPreviewLimit+3 {
		t.Fatalf("preview not truncated: %d chars", len(p.Message))
	}
}

func TestToolResultUsesRecordedName(t *testing.T) {
	notify, got := collector()
	r := New(notify, logger.Default())

	r.Consume(&protocol.Event{Type: protocol.EventContentBlockStart, Index: 0,
		Block: &protocol.ContentBlock{Type: protocol.BlockTypeToolUse, ID: "tu_4", Name: "Grep"}})
	r.Consume(&protocol.Event{Type: protocol.EventContentBlockStop, Index: 0})

	long := strings.Repeat("match\n", 200)
	r.Consume(&protocol.Event{Type: protocol.EventToolResult,
		ToolResult: &protocol.ToolResult{ToolUseID: "tu_4", Content: long, IsError: false}})

	last := (*got)[len(*got)-1]
	tr, ok := last.(*wire.ToolResult)
	if !ok {
		t.Fatalf("expected tool_result, got %#v", last)
	}
	if tr.ToolName != "Grep" || !tr.Success {
		t.Fatalf("unexpected tool result: %+v", tr)
	}
	if len(tr.Result) > toolResultLimit+3 {
		t.Fatalf("result not truncated: %d chars", len(tr.Result))
	}
}

func TestStatusBecomesProgress(t *testing.T) {
	notify, got := collector()
	r := New(notify, logger.Default())

	r.Consume(&protocol.Event{Type: protocol.EventStatus, Status: "init (model opus)"})

	if len(*got) != 1 {
		t.Fatalf("expected one progress, got %d", len(*got))
	}
	if p := (*got)[0].(*wire.Progress); p.Message != "init (model opus)" {
		t.Fatalf("unexpected progress: %+v", p)
	}
}

func TestMessageStopFlushesOpenBlocks(t *testing.T) {
	notify, got := collector()
	r := New(notify, logger.Default())

	r.Consume(&protocol.Event{Type: protocol.EventContentBlockStart, Index: 0,
		Block: &protocol.ContentBlock{Type: protocol.BlockTypeText}})
	r.Consume(&protocol.Event{Type: protocol.EventContentBlockDelta, Index: 0,
		Delta: &protocol.Delta{Type: protocol.DeltaTypeText, Text: "trailing thought"}})
	r.Consume(&protocol.Event{Type: protocol.EventMessageStop})

	if len(*got) != 1 {
		t.Fatalf("expected flushed thinking at message stop, got %d", len(*got))
	}
}
