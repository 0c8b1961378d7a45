package rest

import (
	"github.com/paperforge/orchestrator/pkg/types"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadyResponse is the body of GET /ready.
type ReadyResponse struct {
	Ready     bool   `json:"ready"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// TaskSubmitRequest is the body of POST /api/v1/tasks.
type TaskSubmitRequest struct {
	Task *types.Task `json:"task"`
}

// TaskSubmitResponse is the body returned for a submitted task.
type TaskSubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// TaskResponse is the body of GET /api/v1/tasks/:id.
type TaskResponse struct {
	TaskID        string                     `json:"task_id"`
	Status        types.TaskStatus           `json:"status"`
	AssignedAgent types.AgentRole            `json:"assigned_agent,omitempty"`
	Result        *types.EnhancedAgentResult `json:"result,omitempty"`
}

// WorkflowSubmitRequest is the body of POST /api/v1/workflows.
type WorkflowSubmitRequest struct {
	WorkflowID string        `json:"workflow_id,omitempty"`
	UserIntent string        `json:"user_intent,omitempty"`
	Tasks      []*types.Task `json:"tasks"`
}

// AgentsResponse is the body of GET /api/v1/agents.
type AgentsResponse struct {
	Agents []types.AgentInfo `json:"agents"`
}
