package types

import "time"

// MessageType classifies workflow messages routed between agents.
type MessageType string

const (
	MessageTypeTaskAssignment MessageType = "task_assignment"
	MessageTypeResultDelivery MessageType = "result_delivery"
	MessageTypeContextShare   MessageType = "context_share"
)

// AgentMessage is an enriched message routed between two agents within one
// workflow run. The broker may reshape Payload through a registered
// transformer before delivery.
type AgentMessage struct {
	ID         string      `json:"id"`
	WorkflowID string      `json:"workflow_id"`
	From       AgentRole   `json:"from"`
	To         AgentRole   `json:"to"`
	Type       MessageType `json:"type"`

	// Step is the 1-based position of this message in the workflow.
	Step int `json:"step"`

	Payload map[string]any `json:"payload,omitempty"`

	// SharedKnowledge carries context entries merged last-write-wins into
	// the workflow context when the message is routed.
	SharedKnowledge map[string]any `json:"shared_knowledge,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// WorkflowContext accumulates shared state for one workflow run.
type WorkflowContext struct {
	WorkflowID string `json:"workflow_id"`

	// UserIntent is the caller-supplied description of what the workflow
	// should accomplish.
	UserIntent string `json:"user_intent,omitempty"`

	// ParticipatingAgents lists every agent that has sent a message, in
	// first-seen order.
	ParticipatingAgents []AgentRole `json:"participating_agents"`

	// SharedKnowledge is the last-write-wins merge of all message knowledge.
	SharedKnowledge map[string]any `json:"shared_knowledge"`

	// CurrentStep is the maximum step number observed so far.
	CurrentStep int `json:"current_step"`

	StartedAt time.Time `json:"started_at"`
}
