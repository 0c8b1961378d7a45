package types

import "time"

// TaskStatus represents the scheduling state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task is a unit of work submitted to the orchestrator. A task is immutable
// once submitted; callers may fill fields (for example, injecting a prior
// task's output into Input) only before submission.
type Task struct {
	// ID uniquely identifies the task. The scheduler assigns one if empty.
	ID string `json:"id" yaml:"id"`

	// Type is a free-form task type string (e.g. "parse_document").
	Type string `json:"type" yaml:"type"`

	// Priority orders tasks of equal readiness; higher runs sooner.
	Priority int `json:"priority" yaml:"priority"`

	// Input is the opaque task payload handed to the executing agent.
	Input map[string]any `json:"input" yaml:"input"`

	// RequiredCapabilities is the set of agent roles allowed to run the task.
	RequiredCapabilities []AgentRole `json:"required_capabilities" yaml:"required_capabilities"`

	// Deadline, when set, bounds the task's useful lifetime. A task whose
	// deadline has already elapsed fails validation.
	Deadline *time.Time `json:"deadline,omitempty" yaml:"deadline,omitempty"`

	// Dependencies lists task ids that must reach a terminal state before
	// this task may start.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// TaskNode wraps a Task with scheduling metadata. Nodes are mutated only by
// the scheduler and supervisor, and never after reaching a terminal status.
type TaskNode struct {
	Task *Task `json:"task"`

	Status        TaskStatus `json:"status"`
	AssignedAgent AgentRole  `json:"assigned_agent,omitempty"`
	StartTime     time.Time  `json:"start_time,omitempty"`
	EndTime       time.Time  `json:"end_time,omitempty"`

	// Result is set exactly once, when the node reaches a terminal status.
	Result *EnhancedAgentResult `json:"result,omitempty"`
}

// NewTaskNode wraps a task in a pending node.
func NewTaskNode(task *Task) *TaskNode {
	return &TaskNode{Task: task, Status: TaskStatusPending}
}

// Terminal reports whether the node has reached a terminal status.
func (n *TaskNode) Terminal() bool {
	return n.Status == TaskStatusCompleted || n.Status == TaskStatusFailed
}

// ExecutionPlan is a DAG of tasks executed as one batch.
type ExecutionPlan struct {
	Tasks []*TaskNode `json:"tasks"`

	// Dependencies maps a task id to the ids of its prerequisites. The map
	// must be acyclic; a cycle aborts the whole plan before any task runs.
	Dependencies map[string][]string `json:"dependencies"`

	// RequiredAgents lists the roles the plan needs registered.
	RequiredAgents []AgentRole `json:"required_agents,omitempty"`
}

// Node returns the plan node with the given task id, or nil.
func (p *ExecutionPlan) Node(taskID string) *TaskNode {
	for _, n := range p.Tasks {
		if n.Task != nil && n.Task.ID == taskID {
			return n
		}
	}
	return nil
}
