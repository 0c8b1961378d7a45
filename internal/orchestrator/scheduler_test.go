package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperforge/orchestrator/internal/agent"
	"github.com/paperforge/orchestrator/internal/config"
	"github.com/paperforge/orchestrator/pkg/types"
)

func TestSubmitAssignsID(t *testing.T) {
	scheduler, registry, _ := newTestScheduler(testOrchestratorConfig(), config.RetryConfig{})
	require.NoError(t, registry.Register(context.Background(), echoAgent(types.RoleDocumentParser)))
	scheduler.Start()
	defer func() { _ = scheduler.Stop(context.Background()) }()

	task := &types.Task{
		Type:                 "parse",
		RequiredCapabilities: []types.AgentRole{types.RoleDocumentParser},
	}
	id, err := scheduler.Submit(context.Background(), task)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, task.ID)
	assert.False(t, task.CreatedAt.IsZero())

	result, err := waitResult(scheduler, id, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.ResultStatusSuccess, result.Status)
}

func TestSubmitDuplicateID(t *testing.T) {
	scheduler, registry, _ := newTestScheduler(testOrchestratorConfig(), config.RetryConfig{})
	require.NoError(t, registry.Register(context.Background(), echoAgent(types.RoleDocumentParser)))
	scheduler.Start()
	defer func() { _ = scheduler.Stop(context.Background()) }()

	_, err := scheduler.Submit(context.Background(), taskFor("same", types.RoleDocumentParser))
	require.NoError(t, err)

	_, err = scheduler.Submit(context.Background(), taskFor("same", types.RoleDocumentParser))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate task id")
}

func TestSubmitRequiresRunningScheduler(t *testing.T) {
	scheduler, _, _ := newTestScheduler(testOrchestratorConfig(), config.RetryConfig{})

	_, err := scheduler.Submit(context.Background(), taskFor("t1", types.RoleDocumentParser))
	assert.Error(t, err)
}

func TestSubmitRequiresCapabilities(t *testing.T) {
	scheduler, _, _ := newTestScheduler(testOrchestratorConfig(), config.RetryConfig{})
	scheduler.Start()
	defer func() { _ = scheduler.Stop(context.Background()) }()

	_, err := scheduler.Submit(context.Background(), &types.Task{ID: "t1", Type: "x"})
	assert.Error(t, err)
}

func TestFIFOOrderSingleAgent(t *testing.T) {
	scheduler, registry, _ := newTestScheduler(testOrchestratorConfig(), config.RetryConfig{})

	var mu sync.Mutex
	var order []string
	recording := agent.New(types.RoleDocumentParser, nil, func(ctx context.Context, task *types.Task) (*types.EnhancedAgentResult, error) {
		mu.Lock()
		order = append(order, task.ID)
		mu.Unlock()
		return &types.EnhancedAgentResult{}, nil
	})
	require.NoError(t, registry.Register(context.Background(), recording))
	scheduler.Start()
	defer func() { _ = scheduler.Stop(context.Background()) }()

	ids := []string{"first", "second", "third"}
	for _, id := range ids {
		_, err := scheduler.Submit(context.Background(), taskFor(id, types.RoleDocumentParser))
		require.NoError(t, err)
	}

	for _, id := range ids {
		_, err := waitResult(scheduler, id, 2*time.Second)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ids, order)
}

func TestPriorityOrdersQueue(t *testing.T) {
	scheduler, registry, _ := newTestScheduler(testOrchestratorConfig(), config.RetryConfig{})

	var mu sync.Mutex
	var order []string
	gate := make(chan struct{})
	blocking := agent.New(types.RoleDocumentParser, nil, func(ctx context.Context, task *types.Task) (*types.EnhancedAgentResult, error) {
		if task.ID == "blocker" {
			<-gate
		}
		mu.Lock()
		order = append(order, task.ID)
		mu.Unlock()
		return &types.EnhancedAgentResult{}, nil
	})
	require.NoError(t, registry.Register(context.Background(), blocking))
	scheduler.Start()
	defer func() { _ = scheduler.Stop(context.Background()) }()

	// The blocker occupies the agent while the rest queue up.
	_, err := scheduler.Submit(context.Background(), taskFor("blocker", types.RoleDocumentParser))
	require.NoError(t, err)

	low := taskFor("low", types.RoleDocumentParser)
	high := taskFor("high", types.RoleDocumentParser)
	high.Priority = 10
	_, err = scheduler.Submit(context.Background(), low)
	require.NoError(t, err)
	_, err = scheduler.Submit(context.Background(), high)
	require.NoError(t, err)

	close(gate)
	for _, id := range []string{"blocker", "low", "high"} {
		_, err := waitResult(scheduler, id, 2*time.Second)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"blocker", "high", "low"}, order)
}

func TestSingleAgentRunsOneTaskAtATime(t *testing.T) {
	scheduler, registry, _ := newTestScheduler(testOrchestratorConfig(), config.RetryConfig{})

	// The agent only flips to processing on the execute goroutine, so the
	// scheduler must reserve it at assignment time; otherwise back-to-back
	// submissions all land on the same still-idle agent.
	var current, peak int64
	busy := agent.New(types.RoleDocumentParser, nil, func(ctx context.Context, task *types.Task) (*types.EnhancedAgentResult, error) {
		c := atomic.AddInt64(&current, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if c <= p || atomic.CompareAndSwapInt64(&peak, p, c) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&current, -1)
		return &types.EnhancedAgentResult{}, nil
	})
	require.NoError(t, registry.Register(context.Background(), busy))
	scheduler.Start()
	defer func() { _ = scheduler.Stop(context.Background()) }()

	ids := []string{"one", "two", "three"}
	for _, id := range ids {
		_, err := scheduler.Submit(context.Background(), taskFor(id, types.RoleDocumentParser))
		require.NoError(t, err)
	}
	for _, id := range ids {
		_, err := waitResult(scheduler, id, 5*time.Second)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), atomic.LoadInt64(&peak))
}

func TestConcurrencyCap(t *testing.T) {
	cfg := testOrchestratorConfig()
	cfg.MaxConcurrentTasks = 2
	scheduler, registry, _ := newTestScheduler(cfg, config.RetryConfig{})

	var current, peak int64
	handler := func(ctx context.Context, task *types.Task) (*types.EnhancedAgentResult, error) {
		c := atomic.AddInt64(&current, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if c <= p || atomic.CompareAndSwapInt64(&peak, p, c) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt64(&current, -1)
		return &types.EnhancedAgentResult{}, nil
	}

	roles := []types.AgentRole{
		types.RoleDocumentParser,
		types.RoleAlgorithmExtractor,
		types.RoleCodeGenerator,
		types.RoleLiteratureReviewer,
	}
	for _, role := range roles {
		require.NoError(t, registry.Register(context.Background(), agent.New(role, nil, handler)))
	}
	scheduler.Start()
	defer func() { _ = scheduler.Stop(context.Background()) }()

	for i, role := range roles {
		_, err := scheduler.Submit(context.Background(), taskFor(string(rune('a'+i)), role))
		require.NoError(t, err)
	}
	for i := range roles {
		_, err := waitResult(scheduler, string(rune('a'+i)), 5*time.Second)
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
	assert.Greater(t, atomic.LoadInt64(&peak), int64(0))
}

func TestDeadLetterAfterThreshold(t *testing.T) {
	cfg := testOrchestratorConfig()
	cfg.DeadLetterThreshold = 3
	scheduler, _, events := newTestScheduler(cfg, config.RetryConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := events.Subscribe(ctx)

	scheduler.Start()
	defer func() { _ = scheduler.Stop(context.Background()) }()

	// No agent is registered for the role, so dispatch attempts accumulate
	// until the threshold trips.
	id, err := scheduler.Submit(context.Background(), taskFor("starved", types.RoleQualityAssurance))
	require.NoError(t, err)

	result, err := waitResult(scheduler, id, 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.ResultStatusFailure, result.Status)
	assert.Contains(t, result.Error, "no eligible agent")

	node, ok := scheduler.Node(id)
	require.True(t, ok)
	assert.Equal(t, types.TaskStatusFailed, node.Status)
	assert.Equal(t, 1, scheduler.Status().DeadLettered)

	deadLettered := false
	deadline := time.After(time.Second)
	for !deadLettered {
		select {
		case ev := <-ch:
			if ev.Kind == types.EventTaskDeadLettered {
				assert.Equal(t, id, ev.TaskID)
				deadLettered = true
			}
		case <-deadline:
			t.Fatal("expected task_dead_lettered event")
		}
	}
}

func TestBusyAgentDoesNotDeadLetter(t *testing.T) {
	cfg := testOrchestratorConfig()
	cfg.DeadLetterThreshold = 2
	scheduler, registry, _ := newTestScheduler(cfg, config.RetryConfig{})

	gate := make(chan struct{})
	slow := agent.New(types.RoleDocumentParser, nil, func(ctx context.Context, task *types.Task) (*types.EnhancedAgentResult, error) {
		if task.ID == "holder" {
			<-gate
		}
		return &types.EnhancedAgentResult{}, nil
	})
	require.NoError(t, registry.Register(context.Background(), slow))
	scheduler.Start()
	defer func() { _ = scheduler.Stop(context.Background()) }()

	_, err := scheduler.Submit(context.Background(), taskFor("holder", types.RoleDocumentParser))
	require.NoError(t, err)
	_, err = scheduler.Submit(context.Background(), taskFor("waiter", types.RoleDocumentParser))
	require.NoError(t, err)

	// Give the dispatch loop several ticks while the agent is busy; the
	// waiting task must stay queued, not dead-letter.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, scheduler.Status().DeadLettered)

	close(gate)
	result, err := waitResult(scheduler, "waiter", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.ResultStatusSuccess, result.Status)
}

func TestRoundRobinRotation(t *testing.T) {
	cfg := testOrchestratorConfig()
	cfg.LoadBalancing = config.PolicyRoundRobin
	scheduler, registry, _ := newTestScheduler(cfg, config.RetryConfig{})

	require.NoError(t, registry.Register(context.Background(), echoAgent(types.RoleDocumentParser)))
	require.NoError(t, registry.Register(context.Background(), echoAgent(types.RoleAlgorithmExtractor)))
	scheduler.Start()
	defer func() { _ = scheduler.Stop(context.Background()) }()

	both := []types.AgentRole{types.RoleDocumentParser, types.RoleAlgorithmExtractor}
	var assigned []types.AgentRole
	for i := 0; i < 4; i++ {
		id, err := scheduler.Submit(context.Background(), taskFor(string(rune('a'+i)), both...))
		require.NoError(t, err)
		result, err := waitResult(scheduler, id, 2*time.Second)
		require.NoError(t, err)
		assigned = append(assigned, result.AgentRole)
	}

	want := []types.AgentRole{
		types.RoleDocumentParser,
		types.RoleAlgorithmExtractor,
		types.RoleDocumentParser,
		types.RoleAlgorithmExtractor,
	}
	assert.Equal(t, want, assigned)
}

func TestLeastLoadedTieBreaksByRegistrationOrder(t *testing.T) {
	cfg := testOrchestratorConfig()
	cfg.LoadBalancing = config.PolicyLeastLoaded
	scheduler, registry, _ := newTestScheduler(cfg, config.RetryConfig{})

	require.NoError(t, registry.Register(context.Background(), echoAgent(types.RoleCodeGenerator)))
	require.NoError(t, registry.Register(context.Background(), echoAgent(types.RoleDocumentParser)))
	scheduler.Start()
	defer func() { _ = scheduler.Stop(context.Background()) }()

	both := []types.AgentRole{types.RoleCodeGenerator, types.RoleDocumentParser}
	for i := 0; i < 3; i++ {
		id, err := scheduler.Submit(context.Background(), taskFor(string(rune('a'+i)), both...))
		require.NoError(t, err)
		result, err := waitResult(scheduler, id, 2*time.Second)
		require.NoError(t, err)
		// Idle agents tie at load zero; the earlier registration wins.
		assert.Equal(t, types.RoleCodeGenerator, result.AgentRole)
	}
}

func TestCapabilityBasedPrefersHigherSuccessRate(t *testing.T) {
	cfg := testOrchestratorConfig()
	cfg.LoadBalancing = config.PolicyCapabilityBased
	scheduler, registry, _ := newTestScheduler(cfg, config.RetryConfig{})

	flaky := agent.New(types.RoleDocumentParser, nil, func(ctx context.Context, task *types.Task) (*types.EnhancedAgentResult, error) {
		return &types.EnhancedAgentResult{}, nil
	})
	steady := echoAgent(types.RoleAlgorithmExtractor)
	require.NoError(t, registry.Register(context.Background(), flaky))
	require.NoError(t, registry.Register(context.Background(), steady))
	scheduler.Start()
	defer func() { _ = scheduler.Stop(context.Background()) }()

	// Hand the flaky agent a failure history.
	for i := 0; i < 3; i++ {
		bad := taskFor(string(rune('x'+i)), types.RoleDocumentParser)
		bad.Type = ""
		id, err := scheduler.Submit(context.Background(), bad)
		require.NoError(t, err)
		_, err = waitResult(scheduler, id, 2*time.Second)
		require.NoError(t, err)
	}

	both := []types.AgentRole{types.RoleDocumentParser, types.RoleAlgorithmExtractor}
	id, err := scheduler.Submit(context.Background(), taskFor("pick", both...))
	require.NoError(t, err)
	result, err := waitResult(scheduler, id, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAlgorithmExtractor, result.AgentRole)
}

func TestStopDrainsInFlightTasks(t *testing.T) {
	scheduler, registry, _ := newTestScheduler(testOrchestratorConfig(), config.RetryConfig{})

	var finished atomic.Bool
	slow := agent.New(types.RoleDocumentParser, nil, func(ctx context.Context, task *types.Task) (*types.EnhancedAgentResult, error) {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return &types.EnhancedAgentResult{}, nil
	})
	require.NoError(t, registry.Register(context.Background(), slow))
	scheduler.Start()

	id, err := scheduler.Submit(context.Background(), taskFor("slow", types.RoleDocumentParser))
	require.NoError(t, err)

	// Let the task start before stopping.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, scheduler.Stop(context.Background()))

	assert.True(t, finished.Load())
	result := scheduler.Future(id).Result()
	require.NotNil(t, result)
	assert.Equal(t, types.ResultStatusSuccess, result.Status)
}
