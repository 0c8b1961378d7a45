package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paperforge/orchestrator/internal/agent"
	"github.com/paperforge/orchestrator/internal/broker"
	"github.com/paperforge/orchestrator/internal/config"
	"github.com/paperforge/orchestrator/internal/synthesis"
	"github.com/paperforge/orchestrator/pkg/types"
)

// Status is the orchestrator-level status snapshot.
type Status struct {
	Agents    int             `json:"agents"`
	Scheduler SchedulerStatus `json:"scheduler"`
}

// Orchestrator is the facade over the registry, scheduler, supervisor,
// broker and synthesis engine. All dependencies are constructed explicitly;
// there is no package-level state.
type Orchestrator struct {
	cfg *config.Config
	log *zap.Logger

	events     *EventBus
	registry   *AgentRegistry
	supervisor *ExecutionSupervisor
	scheduler  *TaskScheduler
	broker     *broker.Broker
	synthesis  *synthesis.Engine

	mu      sync.Mutex
	started bool
}

// New wires up an orchestrator from the configuration. A nil config uses
// defaults.
func New(cfg *config.Config, log *zap.Logger) *Orchestrator {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	events := NewEventBus()
	registry := NewAgentRegistry(events)
	supervisor := NewExecutionSupervisor(cfg.Orchestrator.TaskTimeout, cfg.Retry, log.Named("supervisor"))
	scheduler := NewTaskScheduler(cfg.Orchestrator, registry, supervisor, events, log.Named("scheduler"))

	return &Orchestrator{
		cfg:        cfg,
		log:        log,
		events:     events,
		registry:   registry,
		supervisor: supervisor,
		scheduler:  scheduler,
		broker:     broker.NewBroker(log.Named("broker")),
		synthesis:  synthesis.NewEngine(log.Named("synthesis")),
	}
}

// Registry exposes the agent registry.
func (o *Orchestrator) Registry() *AgentRegistry { return o.registry }

// Broker exposes the communication broker.
func (o *Orchestrator) Broker() *broker.Broker { return o.broker }

// Synthesis exposes the synthesis engine.
func (o *Orchestrator) Synthesis() *synthesis.Engine { return o.synthesis }

// Subscribe registers an event observer; see EventBus.Subscribe.
func (o *Orchestrator) Subscribe(ctx context.Context) <-chan types.Event {
	return o.events.Subscribe(ctx)
}

// RegisterAgent initializes and registers an agent.
func (o *Orchestrator) RegisterAgent(ctx context.Context, ag agent.Agent) error {
	return o.registry.Register(ctx, ag)
}

// UnregisterAgent shuts down and removes the agent for the role.
func (o *Orchestrator) UnregisterAgent(ctx context.Context, role types.AgentRole) error {
	return o.registry.Unregister(ctx, role)
}

// Start launches the scheduler. Starting twice is an error.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return fmt.Errorf("orchestrator already started")
	}
	o.scheduler.Start()
	o.started = true
	return nil
}

// Stop drains in-flight tasks (bounded by ctx) and shuts down all agents.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = false
	o.mu.Unlock()

	err := o.scheduler.Stop(ctx)
	if serr := o.registry.Shutdown(ctx); serr != nil && err == nil {
		err = serr
	}
	return err
}

// SubmitTask enqueues a single task and returns its id.
func (o *Orchestrator) SubmitTask(ctx context.Context, task *types.Task) (string, error) {
	return o.scheduler.Submit(ctx, task)
}

// TaskFuture returns the handle to a submitted task's result, or nil.
func (o *Orchestrator) TaskFuture(taskID string) *Future {
	return o.scheduler.Future(taskID)
}

// Task returns the scheduling state of a known task.
func (o *Orchestrator) Task(taskID string) (*types.TaskNode, bool) {
	return o.scheduler.Node(taskID)
}

// GetStatus returns agent and queue depth counts.
func (o *Orchestrator) GetStatus() Status {
	return Status{
		Agents:    o.registry.Count(),
		Scheduler: o.scheduler.Status(),
	}
}

// ExecutePlan runs a task DAG as one batch. The plan is validated and
// topologically sorted up front; a cycle or an unknown dependency aborts the
// plan before any task runs. Tasks are submitted only once all their
// prerequisites have reached a terminal state, and the plan fails fast: the
// first failure stops further submissions while in-flight tasks drain.
// Returned results are keyed by task id and cover every task that reached a
// terminal state.
func (o *Orchestrator) ExecutePlan(ctx context.Context, plan *types.ExecutionPlan) (map[string]*types.EnhancedAgentResult, error) {
	sorted, err := TopologicalSort(plan)
	if err != nil {
		return nil, err
	}

	for _, role := range plan.RequiredAgents {
		if _, ok := o.registry.Get(role); !ok {
			return nil, fmt.Errorf("plan requires unregistered agent: %s", role)
		}
	}

	planCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Each task gets a plan-local promise, created before any goroutine
	// starts so dependents always have something to wait on. The promise is
	// closed when the task reaches a terminal state or the plan aborts; a
	// nil result behind a closed promise means the task never ran.
	type promise struct {
		done   chan struct{}
		result *types.EnhancedAgentResult
	}
	promises := make(map[string]*promise, len(sorted))
	for _, node := range sorted {
		promises[node.Task.ID] = &promise{done: make(chan struct{})}
	}

	var (
		mu       sync.Mutex
		results  = make(map[string]*types.EnhancedAgentResult, len(sorted))
		firstErr error
		wg       sync.WaitGroup
	)

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel()
	}

	for _, node := range sorted {
		node := node
		deps := dependenciesOf(node, plan)
		pr := promises[node.Task.ID]

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(pr.done)
			taskID := node.Task.ID

			for _, dep := range deps {
				depPr := promises[dep]
				select {
				case <-depPr.done:
				case <-planCtx.Done():
					return
				}
				if depPr.result == nil {
					// Prerequisite never ran; the plan is already aborting.
					return
				}
			}

			if planCtx.Err() != nil {
				return
			}

			if _, err := o.scheduler.Submit(planCtx, node.Task); err != nil {
				fail(fmt.Errorf("failed to submit task %s: %w", taskID, err))
				return
			}

			result, err := o.scheduler.Future(taskID).Wait(planCtx)
			if err != nil {
				return
			}
			pr.result = result

			mu.Lock()
			results[taskID] = result
			mu.Unlock()

			if result.Failed() {
				fail(fmt.Errorf("task %s failed: %s", taskID, result.Error))
			}
		}()
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return results, firstErr
}

// ExecuteWorkflow runs an ordered pipeline of tasks as one workflow: each
// task's invocation is wrapped in a broker message carrying the accumulated
// shared knowledge, the delivered payload becomes the task input, and the
// collected per-role results are synthesized into a single output. The
// workflow fails fast on the first failed task.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, workflowID string, tasks []*types.Task, userIntent string) (*types.SynthesizedOutput, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("workflow has no tasks")
	}
	if workflowID == "" {
		workflowID = uuid.NewString()
	}

	o.broker.EnsureContext(workflowID, userIntent)

	results := make(map[types.AgentRole]*types.EnhancedAgentResult, len(tasks))
	var prevRole types.AgentRole

	for i, task := range tasks {
		if task == nil || len(task.RequiredCapabilities) == 0 {
			return nil, &types.TaskValidationError{Reason: fmt.Sprintf("workflow step %d has no required capabilities", i+1)}
		}
		role := task.RequiredCapabilities[0]

		// The first step's message is self-addressed so the entry agent
		// joins the participant list too.
		from := prevRole
		if from == "" {
			from = role
		}

		var knowledge map[string]any
		if prevRole != "" {
			if prev := results[prevRole]; prev != nil {
				knowledge = map[string]any{
					string(prevRole) + "_output":     prev.Output,
					fmt.Sprintf("step_%d_output", i): prev.Output,
				}
			}
		}

		delivered, err := o.broker.Route(&types.AgentMessage{
			WorkflowID:      workflowID,
			From:            from,
			To:              role,
			Type:            types.MessageTypeTaskAssignment,
			Step:            i + 1,
			Payload:         task.Input,
			SharedKnowledge: knowledge,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to route workflow step %d: %w", i+1, err)
		}

		// Late field filling: the enriched payload becomes the task input
		// before submission.
		task.Input = delivered.Payload

		taskID, err := o.scheduler.Submit(ctx, task)
		if err != nil {
			return nil, fmt.Errorf("failed to submit workflow step %d: %w", i+1, err)
		}

		result, err := o.scheduler.Future(taskID).Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("workflow step %d interrupted: %w", i+1, err)
		}

		// A multi-capability task may have been picked up by a different
		// eligible role; key the result by the role that actually ran it.
		resultRole := role
		if result.AgentRole != "" {
			resultRole = result.AgentRole
		}
		results[resultRole] = result
		if result.Failed() {
			return nil, fmt.Errorf("workflow step %d (%s) failed: %s", i+1, resultRole, result.Error)
		}

		prevRole = resultRole
	}

	// The final step's agent only ever received messages; deliver its result
	// back through the broker so it joins the participant list and its
	// output lands in the shared knowledge.
	if final := results[prevRole]; final != nil {
		_, _ = o.broker.Route(&types.AgentMessage{
			WorkflowID:      workflowID,
			From:            prevRole,
			To:              prevRole,
			Type:            types.MessageTypeResultDelivery,
			Step:            len(tasks),
			SharedKnowledge: map[string]any{string(prevRole) + "_output": final.Output},
		})
	}

	var participants []types.AgentRole
	if wctx, ok := o.broker.Context(workflowID); ok {
		participants = wctx.ParticipatingAgents
	}

	output, err := o.synthesis.Synthesize(workflowID, results, participants)
	if err != nil {
		return nil, err
	}

	o.events.Publish(types.Event{
		Kind:       types.EventWorkflowSynthesized,
		WorkflowID: workflowID,
	})
	o.log.Info("workflow synthesized",
		zap.String("workflow_id", workflowID),
		zap.Int("results", len(results)),
		zap.Strings("rules_applied", output.Metadata.RulesApplied))

	return output, nil
}
