package orchestrator

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/paperforge/orchestrator/internal/agent"
	"github.com/paperforge/orchestrator/internal/config"
	"github.com/paperforge/orchestrator/pkg/types"
)

// ExecutionSupervisor runs a single task on a single agent under a timeout,
// retrying timed-out and faulted attempts with exponential backoff.
// Validation failures are permanent and never retried.
type ExecutionSupervisor struct {
	timeout time.Duration
	retry   config.RetryConfig
	log     *zap.Logger
}

// NewExecutionSupervisor creates a supervisor with the given per-attempt
// timeout and retry policy.
func NewExecutionSupervisor(timeout time.Duration, retry config.RetryConfig, log *zap.Logger) *ExecutionSupervisor {
	return &ExecutionSupervisor{
		timeout: timeout,
		retry:   retry,
		log:     log,
	}
}

// Run executes the task on the agent, retrying per the retry policy. It
// always returns a terminal result; faults are folded into failure results.
func (s *ExecutionSupervisor) Run(ctx context.Context, ag agent.Agent, task *types.Task) *types.EnhancedAgentResult {
	var result *types.EnhancedAgentResult

	for attempt := 0; ; attempt++ {
		result = s.runOnce(ctx, ag, task)
		if !s.shouldRetry(ctx, result, attempt) {
			return result
		}

		backoff := s.backoff(attempt)
		s.log.Warn("retrying task",
			zap.String("task_id", task.ID),
			zap.String("agent_role", string(ag.Role())),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.String("error", result.Error))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return result
		}
	}
}

// runOnce executes a single attempt under the effective timeout. The
// per-task deadline, when earlier, tightens the configured timeout. On
// timeout the attempt context is cancelled, so a context-aware agent stops
// doing work.
func (s *ExecutionSupervisor) runOnce(ctx context.Context, ag agent.Agent, task *types.Task) *types.EnhancedAgentResult {
	timeout := s.timeout
	if task.Deadline != nil {
		until := time.Until(*task.Deadline)
		if until <= 0 {
			// An already-elapsed deadline is a permanent validation fault,
			// not a timeout; attempting it would only burn the retry budget.
			verr := &types.TaskValidationError{TaskID: task.ID, Reason: "deadline already elapsed"}
			return s.failure(ag, task, time.Now(), types.ErrorKindValidation, verr.Error())
		}
		if until < timeout {
			timeout = until
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *types.EnhancedAgentResult
		err    error
	}
	done := make(chan outcome, 1)

	start := time.Now()
	go func() {
		res, err := ag.Execute(attemptCtx, task)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		// A context-aware agent may surface the expired deadline as its own
		// failure; classify that as a timeout, not an execution fault. A
		// validation failure is permanent and keeps its kind.
		failed := out.err != nil || out.result == nil || out.result.Failed()
		if out.result != nil && out.result.ErrorKind == types.ErrorKindValidation {
			return out.result
		}
		if failed && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			terr := &types.TaskTimeoutError{TaskID: task.ID, Timeout: timeout}
			return s.failure(ag, task, start, types.ErrorKindTimeout, terr.Error())
		}
		if out.err != nil {
			return s.failure(ag, task, start, types.ErrorKindExecution, out.err.Error())
		}
		if out.result == nil {
			return s.failure(ag, task, start, types.ErrorKindExecution, "agent returned no result")
		}
		return out.result

	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			terr := &types.TaskTimeoutError{TaskID: task.ID, Timeout: timeout}
			return s.failure(ag, task, start, types.ErrorKindTimeout, terr.Error())
		}
		return s.failure(ag, task, start, types.ErrorKindExecution, attemptCtx.Err().Error())
	}
}

func (s *ExecutionSupervisor) shouldRetry(ctx context.Context, result *types.EnhancedAgentResult, attempt int) bool {
	if ctx.Err() != nil {
		return false
	}
	if !result.Failed() {
		return false
	}
	if result.ErrorKind == types.ErrorKindValidation {
		return false
	}
	return attempt < s.retry.MaxRetries
}

// backoff returns InitialBackoff * Multiplier^attempt.
func (s *ExecutionSupervisor) backoff(attempt int) time.Duration {
	d := float64(s.retry.InitialBackoff) * math.Pow(s.retry.BackoffMultiplier, float64(attempt))
	return time.Duration(d)
}

func (s *ExecutionSupervisor) failure(ag agent.Agent, task *types.Task, start time.Time, kind types.ErrorKind, msg string) *types.EnhancedAgentResult {
	return &types.EnhancedAgentResult{
		AgentResult: types.AgentResult{
			TaskID:    task.ID,
			AgentRole: ag.Role(),
			Status:    types.ResultStatusFailure,
			Error:     msg,
			ErrorKind: kind,
			Duration:  time.Since(start),
			Timestamp: time.Now(),
		},
	}
}
