// Package relay reduces the agent's raw event stream to the small set
// of client notifications the browser understands.
package relay

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	"github.com/TRob9/claude-github-buddy/internal/transport/wire"
	"github.com/TRob9/claude-github-buddy/pkg/agent/protocol"
)

// Display caps so the client never receives unbounded payloads.
const (
	toolInputPreviewLimit = 200
	toolResultLimit       = 500
)

// Notifier delivers one reduced notification to the client.
type Notifier func(payload interface{})

// Relay buffers per-block delta fragments and flushes them as whole
// units: a text block becomes one thinking message at block close, a
// tool input becomes one progress preview at block close. One relay
// serves one agent run and is not safe for concurrent use.
type Relay struct {
	notify Notifier
	logger *logger.Logger

	blocks    map[int]*blockState
	toolNames map[string]string // tool use id -> tool name
}

type blockState struct {
	kind     string
	toolID   string
	toolName string
	buf      strings.Builder
}

// New creates a relay pushing notifications through notify.
func New(notify Notifier, log *logger.Logger) *Relay {
	return &Relay{
		notify:    notify,
		logger:    log.WithFields(zap.String("component", "relay")),
		blocks:    make(map[int]*blockState),
		toolNames: make(map[string]string),
	}
}

// Consume folds one agent event into client notifications.
func (r *Relay) Consume(ev *protocol.Event) {
	switch ev.Type {
	case protocol.EventStatus:
		if ev.Status != "" {
			r.notify(wire.NewProgress(ev.Status, ""))
		}

	case protocol.EventContentBlockStart:
		if ev.Block == nil {
			return
		}
		state := &blockState{kind: ev.Block.Type}
		if ev.Block.Type == protocol.BlockTypeToolUse {
			state.toolID = ev.Block.ID
			state.toolName = ev.Block.Name
			r.toolNames[ev.Block.ID] = ev.Block.Name
		}
		r.blocks[ev.Index] = state

	case protocol.EventContentBlockDelta:
		state, ok := r.blocks[ev.Index]
		if !ok || ev.Delta == nil {
			return
		}
		switch ev.Delta.Type {
		case protocol.DeltaTypeText:
			state.buf.WriteString(ev.Delta.Text)
		case protocol.DeltaTypeInputJSON:
			state.buf.WriteString(ev.Delta.PartialJSON)
		}

	case protocol.EventContentBlockStop:
		state, ok := r.blocks[ev.Index]
		if !ok {
			return
		}
		delete(r.blocks, ev.Index)
		r.flush(state)

	case protocol.EventMessageStop:
		// Leftover open blocks at message end are flushed rather than
		// dropped; the stream occasionally omits a block_stop.
		for idx, state := range r.blocks {
			delete(r.blocks, idx)
			r.flush(state)
		}

	case protocol.EventToolResult:
		tr := ev.ToolResult
		if tr == nil {
			return
		}
		name := r.toolNames[tr.ToolUseID]
		if name == "" {
			name = "tool"
		}
		r.notify(wire.NewToolResult(name, truncate(tr.Content, toolResultLimit), !tr.IsError))
	}
}

// flush emits the buffered content of a closed block.
func (r *Relay) flush(state *blockState) {
	switch state.kind {
	case protocol.BlockTypeText:
		text := strings.TrimSpace(state.buf.String())
		if text != "" {
			r.notify(wire.NewThinking(text))
		}
	case protocol.BlockTypeToolUse:
		r.notify(wire.NewProgress(
			fmt.Sprintf("%s: %s", state.toolName, r.renderToolInput(state)),
			"tool_use"))
	}
}

// renderToolInput pretty-prints the concatenated input fragments. When
// they do not form valid JSON the raw text is previewed instead; this
// path must never fail.
func (r *Relay) renderToolInput(state *blockState) string {
	raw := state.buf.String()
	if raw == "" {
		return "{}"
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		r.logger.Debug("tool input fragments did not parse",
			zap.String("tool", state.toolName),
			zap.Error(err))
		return truncate(raw, toolInputPreviewLimit)
	}
	compact, err := json.Marshal(decoded)
	if err != nil {
		return truncate(raw, toolInputPreviewLimit)
	}
	return truncate(string(compact), toolInputPreviewLimit)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
