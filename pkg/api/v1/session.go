package v1

import "time"

// Workflow identifies which review workflow a task run is executing.
type Workflow string

const (
	// WorkflowQuestions answers reviewer questions recorded in the
	// questions tracking file.
	WorkflowQuestions Workflow = "questions"

	// WorkflowActions implements reviewer instructions recorded in the
	// actions tracking file.
	WorkflowActions Workflow = "actions"
)

// SessionStatus is the read-only view of a session record.
type SessionStatus struct {
	Exists      bool `json:"exists"`
	Connected   bool `json:"connected"`
	HasSettings bool `json:"has_settings"`
}

// TaskDescriptor supplies everything a task run needs: repository
// identity, branch, active workflow, and the tracking file the agent
// must resolve.
type TaskDescriptor struct {
	Repository   string   `json:"repository"`
	Branch       string   `json:"branch"`
	Workflow     Workflow `json:"workflow"`
	TrackingFile string   `json:"tracking_file"`
	Task         string   `json:"task,omitempty"` // extra task text appended to the built prompt
}

// Usage reports token consumption for a completed run.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// RunResult is the terminal outcome of a task run.
type RunResult struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// RunRecord is one persisted agent run in the history store.
type RunRecord struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	Workflow   Workflow   `json:"workflow"`
	Repository string     `json:"repository"`
	Branch     string     `json:"branch"`
	Outcome    string     `json:"outcome"` // completed, failed, stopped
	Detail     string     `json:"detail,omitempty"`
	Usage      Usage      `json:"usage"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Run outcomes.
const (
	RunOutcomeCompleted = "completed"
	RunOutcomeFailed    = "failed"
	RunOutcomeStopped   = "stopped"
)
