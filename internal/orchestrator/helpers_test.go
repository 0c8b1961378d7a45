package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/paperforge/orchestrator/internal/agent"
	"github.com/paperforge/orchestrator/internal/config"
	"github.com/paperforge/orchestrator/pkg/types"
)

// testOrchestratorConfig is tuned for fast tests: short dispatch interval,
// low dead-letter threshold.
func testOrchestratorConfig() config.OrchestratorConfig {
	return config.OrchestratorConfig{
		MaxConcurrentTasks:  5,
		TaskTimeout:         2 * time.Second,
		DispatchInterval:    10 * time.Millisecond,
		LoadBalancing:       config.PolicyCapabilityBased,
		DeadLetterThreshold: 3,
	}
}

func newTestScheduler(cfg config.OrchestratorConfig, retry config.RetryConfig) (*TaskScheduler, *AgentRegistry, *EventBus) {
	events := NewEventBus()
	registry := NewAgentRegistry(events)
	supervisor := NewExecutionSupervisor(cfg.TaskTimeout, retry, zap.NewNop())
	scheduler := NewTaskScheduler(cfg, registry, supervisor, events, zap.NewNop())
	return scheduler, registry, events
}

func echoAgent(role types.AgentRole) agent.Agent {
	return agent.New(role, nil, func(ctx context.Context, task *types.Task) (*types.EnhancedAgentResult, error) {
		return &types.EnhancedAgentResult{
			AgentResult: types.AgentResult{
				Status: types.ResultStatusSuccess,
				Output: task.Input,
			},
		}, nil
	})
}

func taskFor(id string, roles ...types.AgentRole) *types.Task {
	return &types.Task{
		ID:                   id,
		Type:                 "test_task",
		RequiredCapabilities: roles,
	}
}

func waitResult(scheduler *TaskScheduler, taskID string, timeout time.Duration) (*types.EnhancedAgentResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return scheduler.Future(taskID).Wait(ctx)
}
