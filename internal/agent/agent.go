// Package agent defines the contract every worker agent satisfies and a
// BaseAgent that handles the shared lifecycle plumbing: initialization
// guarding, task validation, status transitions and rolling metrics.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paperforge/orchestrator/pkg/types"
)

// Agent is the contract the orchestrator requires of every worker. The
// orchestrator makes no assumptions about agent-internal logic.
type Agent interface {
	// Role returns the agent's role from the closed role enumeration.
	Role() types.AgentRole

	// Capabilities returns the agent's free-form capability tags.
	Capabilities() []string

	// Status returns the agent's current lifecycle status.
	Status() types.AgentStatus

	// Metrics returns a snapshot of the agent's rolling metrics.
	Metrics() types.AgentMetrics

	// Initialize performs one-time setup. Repeated calls are no-ops.
	Initialize(ctx context.Context) error

	// CanHandle reports whether the agent can run the task right now.
	CanHandle(task *types.Task) bool

	// Execute runs the task. Faults are converted into failure results;
	// the returned error is reserved for contract violations (nil task).
	// Cancelling ctx aborts the attempt.
	Execute(ctx context.Context, task *types.Task) (*types.EnhancedAgentResult, error)

	// Shutdown releases agent resources.
	Shutdown(ctx context.Context) error
}

// Handler is the agent-specific execution logic wrapped by BaseAgent.
type Handler func(ctx context.Context, task *types.Task) (*types.EnhancedAgentResult, error)

// Predicate is an optional agent-specific eligibility check consulted by
// CanHandle in addition to the role and status checks.
type Predicate func(task *types.Task) bool

// Option configures a BaseAgent.
type Option func(*BaseAgent)

// WithPredicate sets the agent-specific CanHandle predicate.
func WithPredicate(p Predicate) Option {
	return func(a *BaseAgent) { a.predicate = p }
}

// WithInitializer sets a hook run once inside Initialize.
func WithInitializer(f func(ctx context.Context) error) Option {
	return func(a *BaseAgent) { a.initFn = f }
}

// WithFinalizer sets a hook run inside Shutdown.
func WithFinalizer(f func(ctx context.Context) error) Option {
	return func(a *BaseAgent) { a.shutdownFn = f }
}

// BaseAgent implements the Agent contract around a Handler. Concrete agents
// either embed it or construct one with New.
type BaseAgent struct {
	role         types.AgentRole
	capabilities []string
	handler      Handler
	predicate    Predicate
	initFn       func(ctx context.Context) error
	shutdownFn   func(ctx context.Context) error

	mu          sync.Mutex
	status      types.AgentStatus
	initialized bool
	metrics     *metricsTracker
}

// New constructs a BaseAgent for the given role, capability tags and handler.
func New(role types.AgentRole, capabilities []string, handler Handler, opts ...Option) *BaseAgent {
	a := &BaseAgent{
		role:         role,
		capabilities: capabilities,
		handler:      handler,
		status:       types.AgentStatusIdle,
		metrics:      newMetricsTracker(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Role returns the agent's role.
func (a *BaseAgent) Role() types.AgentRole { return a.role }

// Capabilities returns the agent's capability tags.
func (a *BaseAgent) Capabilities() []string { return a.capabilities }

// Status returns the agent's current status.
func (a *BaseAgent) Status() types.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Metrics returns a snapshot of the agent's rolling metrics.
func (a *BaseAgent) Metrics() types.AgentMetrics {
	return a.metrics.snapshot()
}

// Initialize performs one-time setup; repeated calls are no-ops.
func (a *BaseAgent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}
	if a.initFn != nil {
		if err := a.initFn(ctx); err != nil {
			a.status = types.AgentStatusError
			return fmt.Errorf("agent %s initialization failed: %w", a.role, err)
		}
	}
	a.initialized = true
	a.status = types.AgentStatusIdle
	return nil
}

// CanHandle reports whether the agent can run the task right now: its role
// must be in the task's required capabilities, its status idle or waiting,
// and the agent-specific predicate (if any) must hold.
func (a *BaseAgent) CanHandle(task *types.Task) bool {
	if task == nil {
		return false
	}

	roleAllowed := false
	for _, r := range task.RequiredCapabilities {
		if r == a.role {
			roleAllowed = true
			break
		}
	}
	if !roleAllowed {
		return false
	}

	status := a.Status()
	if status != types.AgentStatusIdle && status != types.AgentStatusWaiting {
		return false
	}

	if a.predicate != nil && !a.predicate(task) {
		return false
	}
	return true
}

// Execute validates and runs the task. The agent always returns to idle,
// whatever the handler does; handler panics become failure results.
func (a *BaseAgent) Execute(ctx context.Context, task *types.Task) (result *types.EnhancedAgentResult, err error) {
	if task == nil {
		return nil, fmt.Errorf("agent %s: task cannot be nil", a.role)
	}

	start := time.Now()

	if verr := a.validate(task); verr != nil {
		// Validation faults are localized to a failure result; they do not
		// count as an execution sample.
		a.metrics.recordFailure(0)
		return a.failureResult(task, start, types.ErrorKindValidation, verr), nil
	}

	a.setStatus(types.AgentStatusProcessing)
	a.metrics.enter()

	defer func() {
		if r := recover(); r != nil {
			result = a.failureResult(task, start, types.ErrorKindExecution, fmt.Errorf("agent panic: %v", r))
			err = nil
		}
		duration := time.Since(start)
		if result != nil && result.Status != types.ResultStatusFailure {
			a.metrics.recordSuccess(duration)
		} else {
			a.metrics.recordFailure(duration)
		}
		a.metrics.leave()
		a.setStatus(types.AgentStatusIdle)
	}()

	res, herr := a.handler(ctx, task)
	if herr != nil {
		return a.failureResult(task, start, types.ErrorKindExecution, herr), nil
	}
	if res == nil {
		return a.failureResult(task, start, types.ErrorKindExecution, fmt.Errorf("agent %s returned no result", a.role)), nil
	}

	res.TaskID = task.ID
	res.AgentRole = a.role
	res.Duration = time.Since(start)
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now()
	}
	if res.Status == "" {
		res.Status = types.ResultStatusSuccess
	}
	return res, nil
}

// Shutdown releases agent resources.
func (a *BaseAgent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.shutdownFn != nil {
		if err := a.shutdownFn(ctx); err != nil {
			return fmt.Errorf("agent %s shutdown failed: %w", a.role, err)
		}
	}
	a.initialized = false
	return nil
}

func (a *BaseAgent) validate(task *types.Task) error {
	if task.ID == "" {
		return &types.TaskValidationError{TaskID: task.ID, Reason: "missing task id"}
	}
	if task.Type == "" {
		return &types.TaskValidationError{TaskID: task.ID, Reason: "missing task type"}
	}
	if task.Deadline != nil && time.Now().After(*task.Deadline) {
		return &types.TaskValidationError{TaskID: task.ID, Reason: "deadline already elapsed"}
	}
	return nil
}

func (a *BaseAgent) failureResult(task *types.Task, start time.Time, kind types.ErrorKind, cause error) *types.EnhancedAgentResult {
	return &types.EnhancedAgentResult{
		AgentResult: types.AgentResult{
			TaskID:    task.ID,
			AgentRole: a.role,
			Status:    types.ResultStatusFailure,
			Error:     cause.Error(),
			ErrorKind: kind,
			Duration:  time.Since(start),
			Timestamp: time.Now(),
		},
	}
}

func (a *BaseAgent) setStatus(status types.AgentStatus) {
	a.mu.Lock()
	a.status = status
	a.mu.Unlock()
}
