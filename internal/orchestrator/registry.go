package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/paperforge/orchestrator/internal/agent"
	"github.com/paperforge/orchestrator/pkg/types"
)

// AgentRegistry tracks registered agents by role. Exactly one agent per role
// may be registered at a time; registering a second agent for an occupied
// role is an error.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[types.AgentRole]agent.Agent
	order  []types.AgentRole

	events *EventBus
}

// NewAgentRegistry creates an empty agent registry.
func NewAgentRegistry(events *EventBus) *AgentRegistry {
	return &AgentRegistry{
		agents: make(map[types.AgentRole]agent.Agent),
		order:  make([]types.AgentRole, 0),
		events: events,
	}
}

// Register initializes the agent and attaches it to the registry.
func (r *AgentRegistry) Register(ctx context.Context, ag agent.Agent) error {
	if ag == nil {
		return fmt.Errorf("agent cannot be nil")
	}
	role := ag.Role()
	if !types.ValidRole(role) {
		return fmt.Errorf("unknown agent role: %s", role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[role]; exists {
		return fmt.Errorf("agent already registered for role: %s", role)
	}

	if err := ag.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize agent %s: %w", role, err)
	}

	r.agents[role] = ag
	r.order = append(r.order, role)

	r.events.Publish(types.Event{
		Kind:      types.EventAgentRegistered,
		AgentRole: role,
	})

	return nil
}

// Unregister shuts the agent down and removes it from the registry.
func (r *AgentRegistry) Unregister(ctx context.Context, role types.AgentRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ag, exists := r.agents[role]
	if !exists {
		return fmt.Errorf("no agent registered for role: %s", role)
	}

	if err := ag.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down agent %s: %w", role, err)
	}

	delete(r.agents, role)
	for i, o := range r.order {
		if o == role {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.events.Publish(types.Event{
		Kind:      types.EventAgentUnregistered,
		AgentRole: role,
	})

	return nil
}

// Get returns the agent registered for the role.
func (r *AgentRegistry) Get(role types.AgentRole) (agent.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ag, ok := r.agents[role]
	return ag, ok
}

// List returns all registered agents in registration order.
func (r *AgentRegistry) List() []agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]agent.Agent, 0, len(r.order))
	for _, role := range r.order {
		agents = append(agents, r.agents[role])
	}
	return agents
}

// Infos returns a status snapshot of every registered agent.
func (r *AgentRegistry) Infos() []types.AgentInfo {
	agents := r.List()
	infos := make([]types.AgentInfo, 0, len(agents))
	for _, ag := range agents {
		infos = append(infos, types.AgentInfo{
			Role:         ag.Role(),
			Capabilities: ag.Capabilities(),
			Status:       ag.Status(),
			Metrics:      ag.Metrics(),
		})
	}
	return infos
}

// Count returns the number of registered agents.
func (r *AgentRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Eligible returns, in registration order, the agents whose CanHandle
// accepts the task.
func (r *AgentRegistry) Eligible(task *types.Task) []agent.Agent {
	eligible := make([]agent.Agent, 0)
	for _, ag := range r.List() {
		if ag.CanHandle(task) {
			eligible = append(eligible, ag)
		}
	}
	return eligible
}

// HasRoleFor reports whether any registered agent's role appears in the
// task's required capabilities, regardless of the agent's current status.
// Used to tell a temporarily busy agent apart from a role that was never
// registered.
func (r *AgentRegistry) HasRoleFor(task *types.Task) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, role := range task.RequiredCapabilities {
		if _, ok := r.agents[role]; ok {
			return true
		}
	}
	return false
}

// Shutdown shuts down and removes every registered agent.
func (r *AgentRegistry) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, ag := range r.List() {
		if err := r.Unregister(ctx, ag.Role()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
