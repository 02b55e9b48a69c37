// Package wire defines the JSON message shapes exchanged with the
// browser client over a session's websocket.
package wire

import "encoding/json"

// Client → server message types.
const (
	TypeSettings           = "settings"
	TypeInterrupt          = "interrupt"
	TypeStop               = "stop"
	TypePermissionResponse = "permission_response"
	TypePing               = "ping"
)

// Server → client message types.
const (
	TypeConnected         = "connected"
	TypePong              = "pong"
	TypeProgress          = "progress"
	TypeThinking          = "thinking"
	TypeToolResult        = "tool_result"
	TypePermissionRequest = "permission_request"
	TypeError             = "error"
	TypeComplete          = "complete"
)

// ClientMessage is the envelope for every client → server message.
// Only the fields for the given type are populated.
type ClientMessage struct {
	Type      string            `json:"type"`
	Settings  *Settings         `json:"settings,omitempty"`
	Message   string            `json:"message,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	Result    *PermissionResult `json:"result,omitempty"`
}

// Settings is the client's per-session configuration snapshot.
type Settings struct {
	Permissions map[string]bool `json:"permissions"`
}

// PermissionResult is the client's decision for one permission request.
type PermissionResult struct {
	Behavior     string          `json:"behavior"` // allow, deny
	UpdatedInput json.RawMessage `json:"updatedInput,omitempty"`
	Message      string          `json:"message,omitempty"`
}

// Connected acknowledges a socket binding.
type Connected struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// Pong answers a client ping.
type Pong struct {
	Type string `json:"type"`
}

// Progress is a plain status line, optionally tagged.
type Progress struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// Thinking carries one flushed block of the agent's free-text output.
type Thinking struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ToolResult echoes the outcome of one tool invocation.
type ToolResult struct {
	Type     string `json:"type"`
	ToolName string `json:"toolName"`
	Result   string `json:"result"`
	Success  bool   `json:"success"`
}

// PermissionRequest asks the client to authorize one tool invocation.
type PermissionRequest struct {
	Type           string          `json:"type"`
	RequestID      string          `json:"requestId"`
	ToolName       string          `json:"toolName"`
	Input          json.RawMessage `json:"input"`
	DecisionReason string          `json:"decisionReason,omitempty"`
	Suggestions    []string        `json:"suggestions,omitempty"`
}

// InterruptAck acknowledges that an interrupt was queued (not that the
// agent has seen it).
type InterruptAck struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Error reports a run failure to the client.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Complete reports graceful run completion.
type Complete struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewConnected acknowledges a fresh socket binding.
func NewConnected(sessionID string) *Connected {
	return &Connected{Type: TypeConnected, SessionID: sessionID}
}

// NewPong answers a client ping.
func NewPong() *Pong {
	return &Pong{Type: TypePong}
}

// NewPermissionRequest asks the client to authorize one tool call.
func NewPermissionRequest(requestID, toolName string, input json.RawMessage, reason string, suggestions []string) *PermissionRequest {
	return &PermissionRequest{
		Type:           TypePermissionRequest,
		RequestID:      requestID,
		ToolName:       toolName,
		Input:          input,
		DecisionReason: reason,
		Suggestions:    suggestions,
	}
}

// NewInterruptAck confirms an interrupt was queued.
func NewInterruptAck(message string) *InterruptAck {
	return &InterruptAck{Type: TypeInterrupt, Message: message}
}

// NewProgress builds a progress notification.
func NewProgress(message, status string) *Progress {
	return &Progress{Type: TypeProgress, Message: message, Status: status}
}

// NewThinking builds a thinking notification.
func NewThinking(message string) *Thinking {
	return &Thinking{Type: TypeThinking, Message: message}
}

// NewToolResult builds a tool_result notification.
func NewToolResult(toolName, result string, success bool) *ToolResult {
	return &ToolResult{Type: TypeToolResult, ToolName: toolName, Result: result, Success: success}
}

// NewError builds an error notification.
func NewError(message string) *Error {
	return &Error{Type: TypeError, Message: message}
}

// NewComplete builds a complete notification.
func NewComplete(message string) *Complete {
	return &Complete{Type: TypeComplete, Message: message}
}
