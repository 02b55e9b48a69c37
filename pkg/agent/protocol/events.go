// Package protocol defines the event model for the agent CLI's
// line-delimited stream-json output, reduced to the event kinds the
// service reacts to.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType classifies a decoded stream event.
type EventType string

const (
	EventMessageStart      EventType = "message_start"
	EventContentBlockStart EventType = "content_block_start"
	EventContentBlockDelta EventType = "content_block_delta"
	EventContentBlockStop  EventType = "content_block_stop"
	EventMessageStop       EventType = "message_stop"
	EventToolResult        EventType = "tool_result"
	EventResult            EventType = "result"
	EventControlRequest    EventType = "control_request"
	EventStatus            EventType = "status"
)

// Block kinds within a message.
const (
	BlockTypeText    = "text"
	BlockTypeToolUse = "tool_use"
)

// Delta kinds within a content block.
const (
	DeltaTypeText      = "text_delta"
	DeltaTypeInputJSON = "input_json_delta"
)

// ContentBlock describes the opening of a content block.
type ContentBlock struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`   // tool use id for tool_use blocks
	Name string `json:"name,omitempty"` // tool name for tool_use blocks
}

// Delta is an incremental update to an open content block.
type Delta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// Usage reports token counts attached to a message or result.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolResult is the outcome of one tool invocation echoed back by the agent.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error"`
}

// ControlRequest is an out-of-band request from the agent process that
// requires a response on its stdin, currently tool-use authorization.
type ControlRequest struct {
	RequestID   string          `json:"request_id"`
	Subtype     string          `json:"subtype"` // can_use_tool
	ToolName    string          `json:"tool_name"`
	Input       json.RawMessage `json:"input"`
	Reason      string          `json:"decision_reason,omitempty"`
	Suggestions []string        `json:"suggestions,omitempty"`
}

// Result is the agent's terminal message for a run.
type Result struct {
	Success   bool   `json:"success"`
	Content   string `json:"content"`
	Error     string `json:"error,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Usage     Usage  `json:"usage"`
}

// Event is one decoded line of agent output.
type Event struct {
	Type       EventType
	Index      int
	Block      *ContentBlock
	Delta      *Delta
	Usage      *Usage
	ToolResult *ToolResult
	Control    *ControlRequest
	Result     *Result
	Status     string
}

// streamLine mirrors the agent CLI's top-level stream-json shape. Only
// the fields the service consumes are declared.
type streamLine struct {
	Type    string `json:"type"` // system, assistant, user, result, stream_event, control_request
	Subtype string `json:"subtype,omitempty"`
	Event   *struct {
		Type         string        `json:"type"`
		Index        int           `json:"index,omitempty"`
		ContentBlock *ContentBlock `json:"content_block,omitempty"`
		Delta        *Delta        `json:"delta,omitempty"`
		Usage        *Usage        `json:"usage,omitempty"`
	} `json:"event,omitempty"`
	Message *struct {
		Content []struct {
			Type      string          `json:"type"`
			ToolUseID string          `json:"tool_use_id,omitempty"`
			Content   json.RawMessage `json:"content,omitempty"`
			IsError   bool            `json:"is_error,omitempty"`
		} `json:"content"`
		Usage *Usage `json:"usage,omitempty"`
	} `json:"message,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Request   *ControlRequest `json:"request,omitempty"`
	Result    string          `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Usage     *Usage          `json:"usage,omitempty"`
	Model     string          `json:"model,omitempty"`
}

// ParseLine decodes one line of agent output into zero or more events.
// Unknown line and event types are skipped without error so protocol
// additions never break consumption.
func ParseLine(line []byte) ([]*Event, error) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return nil, nil
	}

	var sl streamLine
	if err := json.Unmarshal([]byte(trimmed), &sl); err != nil {
		return nil, fmt.Errorf("malformed stream line: %w", err)
	}

	switch sl.Type {
	case "stream_event":
		if sl.Event == nil {
			return nil, nil
		}
		ev := &Event{
			Type:  EventType(sl.Event.Type),
			Index: sl.Event.Index,
			Block: sl.Event.ContentBlock,
			Delta: sl.Event.Delta,
			Usage: sl.Event.Usage,
		}
		switch ev.Type {
		case EventMessageStart, EventContentBlockStart, EventContentBlockDelta,
			EventContentBlockStop, EventMessageStop:
			return []*Event{ev}, nil
		}
		return nil, nil

	case "user":
		// Tool results arrive as content blocks of user messages.
		if sl.Message == nil {
			return nil, nil
		}
		var events []*Event
		for _, block := range sl.Message.Content {
			if block.Type != "tool_result" {
				continue
			}
			events = append(events, &Event{
				Type: EventToolResult,
				ToolResult: &ToolResult{
					ToolUseID: block.ToolUseID,
					Content:   flattenResultContent(block.Content),
					IsError:   block.IsError,
				},
			})
		}
		return events, nil

	case "result":
		res := &Result{
			Success:   sl.Subtype == "success",
			Content:   sl.Result,
			Error:     sl.Error,
			SessionID: sl.SessionID,
		}
		if sl.Usage != nil {
			res.Usage = *sl.Usage
		}
		return []*Event{{Type: EventResult, Result: res}}, nil

	case "control_request":
		if sl.Request == nil {
			return nil, nil
		}
		req := *sl.Request
		if req.RequestID == "" {
			req.RequestID = sl.RequestID
		}
		return []*Event{{Type: EventControlRequest, Control: &req}}, nil

	case "system":
		status := sl.Subtype
		if sl.Model != "" {
			status = fmt.Sprintf("%s (model %s)", status, sl.Model)
		}
		return []*Event{{Type: EventStatus, Status: status}}, nil
	}

	return nil, nil
}

// flattenResultContent renders a tool_result content payload as plain
// text. The agent emits either a bare string or an array of typed parts.
func flattenResultContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var b strings.Builder
		for _, p := range parts {
			if p.Type == "text" {
				b.WriteString(p.Text)
			}
		}
		return b.String()
	}
	return string(raw)
}

// ControlResponse is the reply written to the agent's stdin for a
// control request.
type ControlResponse struct {
	Type      string       `json:"type"` // control_response
	Response  controlReply `json:"response"`
	Timestamp time.Time    `json:"timestamp"`
}

type controlReply struct {
	RequestID string      `json:"request_id"`
	Subtype   string      `json:"subtype"` // success, error
	Response  interface{} `json:"response,omitempty"`
}

// PermissionReply is the behavior payload of a tool-use control response.
type PermissionReply struct {
	Behavior     string          `json:"behavior"` // allow, deny
	UpdatedInput json.RawMessage `json:"updatedInput,omitempty"`
	Message      string          `json:"message,omitempty"`
}

// NewControlResponse builds the control response envelope for a request.
func NewControlResponse(requestID string, reply PermissionReply) *ControlResponse {
	return &ControlResponse{
		Type: "control_response",
		Response: controlReply{
			RequestID: requestID,
			Subtype:   "success",
			Response:  reply,
		},
		Timestamp: time.Now().UTC(),
	}
}
