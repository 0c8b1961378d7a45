package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paperforge/orchestrator/internal/agent"
	"github.com/paperforge/orchestrator/internal/config"
	"github.com/paperforge/orchestrator/pkg/types"
)

// SchedulerStatus is a point-in-time snapshot of scheduler queue depths.
type SchedulerStatus struct {
	Queued       int  `json:"queued"`
	Executing    int  `json:"executing"`
	Completed    int  `json:"completed"`
	DeadLettered int  `json:"dead_lettered"`
	Running      bool `json:"running"`
}

// TaskScheduler owns the task queue. Tasks are dispatched in FIFO order
// (higher priority first among equals), head-of-line: a queue head with no
// eligible agent blocks the tasks behind it until an agent frees up, or, if
// no agent for its role is registered at all, until the dead-letter
// threshold trips.
type TaskScheduler struct {
	cfg        config.OrchestratorConfig
	registry   *AgentRegistry
	supervisor *ExecutionSupervisor
	events     *EventBus
	log        *zap.Logger

	mu         sync.Mutex
	queue      []*types.TaskNode
	executing  map[string]*types.TaskNode
	completed  map[string]*types.TaskNode
	deadLetter map[string]*types.TaskNode
	attempts   map[string]int
	futures    map[string]*Future
	reserved   map[types.AgentRole]bool
	rrCursor   int
	running    bool

	stopCh chan struct{}
	kickCh chan struct{}
	loopWG sync.WaitGroup
	taskWG sync.WaitGroup
}

// NewTaskScheduler creates a stopped scheduler.
func NewTaskScheduler(cfg config.OrchestratorConfig, registry *AgentRegistry, supervisor *ExecutionSupervisor, events *EventBus, log *zap.Logger) *TaskScheduler {
	return &TaskScheduler{
		cfg:        cfg,
		registry:   registry,
		supervisor: supervisor,
		events:     events,
		log:        log,
		queue:      make([]*types.TaskNode, 0),
		executing:  make(map[string]*types.TaskNode),
		completed:  make(map[string]*types.TaskNode),
		deadLetter: make(map[string]*types.TaskNode),
		attempts:   make(map[string]int),
		futures:    make(map[string]*Future),
		reserved:   make(map[types.AgentRole]bool),
		kickCh:     make(chan struct{}, 1),
	}
}

// Start launches the dispatch loop. Starting a running scheduler is a no-op.
func (s *TaskScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.loopWG.Add(1)
	go s.run()

	s.events.Publish(types.Event{Kind: types.EventSchedulerStarted})
	s.log.Info("scheduler started",
		zap.Int("max_concurrent_tasks", s.cfg.MaxConcurrentTasks),
		zap.String("load_balancing", s.cfg.LoadBalancing))
}

// Stop halts dispatching and waits for in-flight tasks to drain, bounded by
// ctx. Queued tasks that never started stay pending.
func (s *TaskScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.loopWG.Wait()

	drained := make(chan struct{})
	go func() {
		s.taskWG.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = fmt.Errorf("scheduler stop: %w", ctx.Err())
	}

	s.events.Publish(types.Event{Kind: types.EventSchedulerStopped})
	s.log.Info("scheduler stopped")
	return err
}

// Submit enqueues a task and returns its id. An empty id is replaced with a
// generated UUID; a duplicate id is rejected.
func (s *TaskScheduler) Submit(ctx context.Context, task *types.Task) (string, error) {
	if task == nil {
		return "", fmt.Errorf("task cannot be nil")
	}
	if len(task.RequiredCapabilities) == 0 {
		return "", &types.TaskValidationError{TaskID: task.ID, Reason: "no required capabilities"}
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return "", fmt.Errorf("scheduler is not running")
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if _, dup := s.futures[task.ID]; dup {
		s.mu.Unlock()
		return "", fmt.Errorf("duplicate task id: %s", task.ID)
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	node := types.NewTaskNode(task)
	s.enqueueLocked(node)
	s.futures[task.ID] = newFuture()
	s.mu.Unlock()

	s.events.Publish(types.Event{
		Kind:   types.EventTaskSubmitted,
		TaskID: task.ID,
	})
	s.log.Debug("task submitted",
		zap.String("task_id", task.ID),
		zap.String("type", task.Type))

	s.kick()
	return task.ID, nil
}

// Future returns the handle to the task's terminal result, or nil for an
// unknown task id.
func (s *TaskScheduler) Future(taskID string) *Future {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.futures[taskID]
}

// Node returns the scheduling state of a known task.
func (s *TaskScheduler) Node(taskID string) (*types.TaskNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.executing[taskID]; ok {
		return n, true
	}
	if n, ok := s.completed[taskID]; ok {
		return n, true
	}
	if n, ok := s.deadLetter[taskID]; ok {
		return n, true
	}
	for _, n := range s.queue {
		if n.Task.ID == taskID {
			return n, true
		}
	}
	return nil, false
}

// Status returns a snapshot of queue depths.
func (s *TaskScheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SchedulerStatus{
		Queued:       len(s.queue),
		Executing:    len(s.executing),
		Completed:    len(s.completed),
		DeadLettered: len(s.deadLetter),
		Running:      s.running,
	}
}

// enqueueLocked inserts the node keeping the queue sorted by priority,
// stable within a priority band. Callers hold s.mu.
func (s *TaskScheduler) enqueueLocked(node *types.TaskNode) {
	i := len(s.queue)
	for i > 0 && s.queue[i-1].Task.Priority < node.Task.Priority {
		i--
	}
	s.queue = append(s.queue, nil)
	copy(s.queue[i+1:], s.queue[i:])
	s.queue[i] = node
}

// kick nudges the dispatch loop without waiting for the next tick.
func (s *TaskScheduler) kick() {
	select {
	case s.kickCh <- struct{}{}:
	default:
	}
}

func (s *TaskScheduler) run() {
	defer s.loopWG.Done()

	interval := s.cfg.DispatchInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.kickCh:
			s.dispatch()
		case <-ticker.C:
			s.dispatch()
		}
	}
}

// dispatch assigns queued tasks to agents until the concurrency gate is full,
// the queue is empty, or the head has no eligible agent.
func (s *TaskScheduler) dispatch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.running && len(s.queue) > 0 && len(s.executing) < s.cfg.MaxConcurrentTasks {
		node := s.queue[0]
		task := node.Task

		eligible := s.availableLocked(task)
		if len(eligible) == 0 {
			if s.registry.HasRoleFor(task) {
				// An agent for this role exists but is busy; hold the head
				// until a completion frees it.
				return
			}
			s.attempts[task.ID]++
			if s.attempts[task.ID] < s.cfg.DeadLetterThreshold {
				return
			}
			s.deadLetterLocked(node)
			continue
		}

		selected := s.selectAgent(eligible)
		s.queue = s.queue[1:]
		delete(s.attempts, task.ID)

		// Reserve the agent before releasing s.mu: the agent's own status
		// only flips on the execute goroutine, so without the reservation a
		// dispatch pass racing ahead of that flip would hand the same agent
		// a second task.
		s.reserved[selected.Role()] = true

		node.Status = types.TaskStatusRunning
		node.AssignedAgent = selected.Role()
		node.StartTime = time.Now()
		s.executing[task.ID] = node

		s.taskWG.Add(1)
		go s.execute(node, selected)
	}
}

// deadLetterLocked parks a starved queue head. Its future resolves with a
// failure result so dependents never block forever. Callers hold s.mu.
func (s *TaskScheduler) deadLetterLocked(node *types.TaskNode) {
	task := node.Task
	s.queue = s.queue[1:]
	delete(s.attempts, task.ID)

	node.Status = types.TaskStatusFailed
	node.EndTime = time.Now()
	node.Result = &types.EnhancedAgentResult{
		AgentResult: types.AgentResult{
			TaskID:    task.ID,
			Status:    types.ResultStatusFailure,
			Error:     types.ErrNoEligibleAgent.Error(),
			ErrorKind: types.ErrorKindExecution,
			Timestamp: time.Now(),
		},
	}
	s.deadLetter[task.ID] = node

	if f := s.futures[task.ID]; f != nil {
		f.resolve(node.Result)
	}

	s.events.Publish(types.Event{
		Kind:   types.EventTaskDeadLettered,
		TaskID: task.ID,
		Result: node.Result,
		Error:  types.ErrNoEligibleAgent.Error(),
	})
	s.log.Warn("task dead-lettered, no eligible agent",
		zap.String("task_id", task.ID),
		zap.Int("dispatch_attempts", s.cfg.DeadLetterThreshold))
}

func (s *TaskScheduler) execute(node *types.TaskNode, ag agent.Agent) {
	defer s.taskWG.Done()

	result := s.supervisor.Run(context.Background(), ag, node.Task)
	s.complete(node, result)
}

// complete records a terminal result, resolves the future and kicks the
// dispatch loop so the freed slot is reused immediately.
func (s *TaskScheduler) complete(node *types.TaskNode, result *types.EnhancedAgentResult) {
	task := node.Task

	s.mu.Lock()
	delete(s.executing, task.ID)
	delete(s.reserved, node.AssignedAgent)
	node.EndTime = time.Now()
	node.Result = result
	if result.Failed() {
		node.Status = types.TaskStatusFailed
	} else {
		node.Status = types.TaskStatusCompleted
	}
	s.completed[task.ID] = node
	future := s.futures[task.ID]
	s.mu.Unlock()

	if future != nil {
		future.resolve(result)
	}

	if result.Failed() {
		s.events.Publish(types.Event{
			Kind:      types.EventTaskFailed,
			TaskID:    task.ID,
			AgentRole: node.AssignedAgent,
			Result:    result,
			Error:     result.Error,
		})
		s.log.Warn("task failed",
			zap.String("task_id", task.ID),
			zap.String("agent_role", string(node.AssignedAgent)),
			zap.String("error", result.Error))
	} else {
		s.events.Publish(types.Event{
			Kind:      types.EventTaskCompleted,
			TaskID:    task.ID,
			AgentRole: node.AssignedAgent,
			Result:    result,
		})
		s.log.Debug("task completed",
			zap.String("task_id", task.ID),
			zap.String("agent_role", string(node.AssignedAgent)),
			zap.Duration("duration", result.Duration))
	}

	s.kick()
}

// availableLocked returns the agents eligible for the task that are not
// reserved by an in-flight assignment. Callers hold s.mu.
func (s *TaskScheduler) availableLocked(task *types.Task) []agent.Agent {
	var available []agent.Agent
	for _, ag := range s.registry.Eligible(task) {
		if !s.reserved[ag.Role()] {
			available = append(available, ag)
		}
	}
	return available
}

// selectAgent applies the configured load-balancing policy to a non-empty
// eligible set. Callers hold s.mu.
func (s *TaskScheduler) selectAgent(eligible []agent.Agent) agent.Agent {
	switch s.cfg.LoadBalancing {
	case config.PolicyRoundRobin:
		selected := eligible[s.rrCursor%len(eligible)]
		s.rrCursor++
		return selected

	case config.PolicyLeastLoaded:
		return leastLoaded(eligible)

	case config.PolicyCapabilityBased:
		fallthrough
	default:
		return bestCapability(eligible)
	}
}

func leastLoaded(eligible []agent.Agent) agent.Agent {
	selected := eligible[0]
	best := selected.Metrics().CurrentLoad
	for _, ag := range eligible[1:] {
		if load := ag.Metrics().CurrentLoad; load < best {
			selected, best = ag, load
		}
	}
	return selected
}

// bestCapability scores each agent by its success rate weighted against its
// current load; ties go to the lower load, then to registration order.
func bestCapability(eligible []agent.Agent) agent.Agent {
	selected := eligible[0]
	bestScore, bestLoad := capabilityScore(selected)
	for _, ag := range eligible[1:] {
		score, load := capabilityScore(ag)
		if score > bestScore || (score == bestScore && load < bestLoad) {
			selected, bestScore, bestLoad = ag, score, load
		}
	}
	return selected
}

func capabilityScore(ag agent.Agent) (float64, int) {
	m := ag.Metrics()
	total := m.TasksCompleted + m.TasksFailed
	successRate := 1.0
	if total > 0 {
		successRate = float64(m.TasksCompleted) / float64(total)
	}
	return successRate / float64(m.CurrentLoad+1), m.CurrentLoad
}
