package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoEligibleAgent signals that no registered agent can handle a task.
// The scheduler requeues such tasks instead of failing them.
var ErrNoEligibleAgent = errors.New("no eligible agent for task")

// CircularDependencyError reports a cycle in an execution plan's dependency
// map. It is fatal to the whole plan and raised before any task executes.
type CircularDependencyError struct {
	// Cycle holds the task ids along the detected cycle.
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Cycle, " -> "))
}

// TaskValidationError reports a malformed task or an already-elapsed
// deadline. It is always localized to a failure result.
type TaskValidationError struct {
	TaskID string
	Reason string
}

func (e *TaskValidationError) Error() string {
	return fmt.Sprintf("task %q failed validation: %s", e.TaskID, e.Reason)
}

// TaskTimeoutError reports that a task attempt exceeded its deadline. The
// attempt's context is cancelled so the agent's work is aborted, not merely
// ignored.
type TaskTimeoutError struct {
	TaskID  string
	Timeout time.Duration
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("task %q timed out after %s", e.TaskID, e.Timeout)
}

// SynthesisRuleError reports a failed synthesis rule. It is logged per rule
// and never aborts synthesis of the remaining rules.
type SynthesisRuleError struct {
	RuleID string
	Err    error
}

func (e *SynthesisRuleError) Error() string {
	return fmt.Sprintf("synthesis rule %q failed: %v", e.RuleID, e.Err)
}

func (e *SynthesisRuleError) Unwrap() error { return e.Err }
