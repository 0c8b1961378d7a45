package types

import "time"

// EventKind tags an orchestration lifecycle event.
type EventKind string

const (
	EventAgentRegistered     EventKind = "agent_registered"
	EventAgentUnregistered   EventKind = "agent_unregistered"
	EventTaskSubmitted       EventKind = "task_submitted"
	EventTaskCompleted       EventKind = "task_completed"
	EventTaskFailed          EventKind = "task_failed"
	EventTaskDeadLettered    EventKind = "task_dead_lettered"
	EventWorkflowSynthesized EventKind = "workflow_synthesized"
	EventSchedulerStarted    EventKind = "scheduler_started"
	EventSchedulerStopped    EventKind = "scheduler_stopped"
)

// Event is the tagged union delivered to orchestration observers. Kind
// determines which of the optional fields are populated.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	AgentRole  AgentRole            `json:"agent_role,omitempty"`
	TaskID     string               `json:"task_id,omitempty"`
	WorkflowID string               `json:"workflow_id,omitempty"`
	Result     *EnhancedAgentResult `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
}
