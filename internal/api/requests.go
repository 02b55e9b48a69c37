package api

import v1 "github.com/TRob9/claude-github-buddy/pkg/api/v1"

// RunTaskRequest starts an agent run against a session.
type RunTaskRequest struct {
	Repository   string `json:"repository"`
	Branch       string `json:"branch"`
	Workflow     string `json:"workflow" binding:"required"`
	TrackingFile string `json:"tracking_file" binding:"required"`
	Task         string `json:"task"`
}

// CreateSessionResponse returns the fresh session identifier.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// RunTaskResponse wraps the run outcome.
type RunTaskResponse struct {
	Success bool     `json:"success"`
	Content string   `json:"content"`
	Usage   v1.Usage `json:"usage"`
}

// ListRunsResponse wraps the run history listing.
type ListRunsResponse struct {
	Runs []*v1.RunRecord `json:"runs"`
}
