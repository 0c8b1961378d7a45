// Package broker routes enriched messages between agents within a workflow
// run and maintains the per-workflow shared context.
package broker

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paperforge/orchestrator/pkg/types"
)

// Broker is the communication hub for workflow runs. It keeps one
// WorkflowContext per workflow id, applies registered payload transformers,
// and queues delivered messages per destination agent.
type Broker struct {
	mu           sync.RWMutex
	contexts     map[string]*types.WorkflowContext
	transformers map[string]Transformer
	queues       map[string][]*types.AgentMessage

	log *zap.Logger
}

// NewBroker creates an empty broker.
func NewBroker(log *zap.Logger) *Broker {
	return &Broker{
		contexts:     make(map[string]*types.WorkflowContext),
		transformers: make(map[string]Transformer),
		queues:       make(map[string][]*types.AgentMessage),
		log:          log,
	}
}

// RegisterTransformer installs a payload transformer for the sender/receiver
// pair. At most one transformer per pair; later registrations replace
// earlier ones.
func (b *Broker) RegisterTransformer(from, to types.AgentRole, t Transformer) {
	b.mu.Lock()
	b.transformers[transformKey(from, to)] = t
	b.mu.Unlock()
}

// EnsureContext returns the workflow's context, creating it on first use.
func (b *Broker) EnsureContext(workflowID, userIntent string) *types.WorkflowContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ensureContextLocked(workflowID, userIntent)
}

func (b *Broker) ensureContextLocked(workflowID, userIntent string) *types.WorkflowContext {
	if wctx, ok := b.contexts[workflowID]; ok {
		return wctx
	}
	wctx := &types.WorkflowContext{
		WorkflowID:          workflowID,
		UserIntent:          userIntent,
		ParticipatingAgents: make([]types.AgentRole, 0),
		SharedKnowledge:     make(map[string]any),
		StartedAt:           time.Now(),
	}
	b.contexts[workflowID] = wctx
	return wctx
}

// Context returns a snapshot of the workflow's context.
func (b *Broker) Context(workflowID string) (*types.WorkflowContext, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	wctx, ok := b.contexts[workflowID]
	if !ok {
		return nil, false
	}
	return snapshotContext(wctx), true
}

// Route updates the workflow context from the message, enriches and (when a
// transformer is registered for the sender/receiver pair) reshapes the
// payload, and queues the message for the destination agent. The enriched
// message is returned. A transformer failure is logged and the original
// payload delivered unchanged.
func (b *Broker) Route(msg *types.AgentMessage) (*types.AgentMessage, error) {
	if msg == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}
	if msg.WorkflowID == "" {
		return nil, fmt.Errorf("message has no workflow id")
	}
	if msg.To == "" {
		return nil, fmt.Errorf("message has no destination")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	wctx := b.ensureContextLocked(msg.WorkflowID, "")

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	// Context updates: knowledge merges last-write-wins, the sender joins
	// the participant list, the step counter never goes backwards.
	for k, v := range msg.SharedKnowledge {
		wctx.SharedKnowledge[k] = v
	}
	if msg.From != "" {
		addParticipant(wctx, msg.From)
	}
	if msg.Step > wctx.CurrentStep {
		wctx.CurrentStep = msg.Step
	}

	delivered := &types.AgentMessage{
		ID:              msg.ID,
		WorkflowID:      msg.WorkflowID,
		From:            msg.From,
		To:              msg.To,
		Type:            msg.Type,
		Step:            msg.Step,
		Payload:         copyMap(msg.Payload),
		SharedKnowledge: copyMap(wctx.SharedKnowledge),
		Timestamp:       msg.Timestamp,
	}

	if t, ok := b.transformers[transformKey(msg.From, msg.To)]; ok {
		transformed, err := t.Transform(msg.Payload)
		if err != nil {
			b.log.Warn("payload transform failed, delivering original payload",
				zap.String("workflow_id", msg.WorkflowID),
				zap.String("from", string(msg.From)),
				zap.String("to", string(msg.To)),
				zap.Error(err))
		} else {
			delivered.Payload = transformed
		}
	}

	// Enrichment: the receiver sees the accumulated workflow knowledge under
	// the payload's context key.
	if delivered.Payload == nil {
		delivered.Payload = make(map[string]any)
	}
	delivered.Payload["context"] = copyMap(wctx.SharedKnowledge)

	key := queueKey(msg.WorkflowID, msg.To)
	b.queues[key] = append(b.queues[key], delivered)

	return delivered, nil
}

// Drain removes and returns all messages queued for the agent in the
// workflow, oldest first.
func (b *Broker) Drain(workflowID string, role types.AgentRole) []*types.AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := queueKey(workflowID, role)
	msgs := b.queues[key]
	delete(b.queues, key)
	return msgs
}

// Pending returns the number of undelivered messages for the agent in the
// workflow.
func (b *Broker) Pending(workflowID string, role types.AgentRole) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.queues[queueKey(workflowID, role)])
}

// CloseWorkflow discards the workflow's context and queued messages.
func (b *Broker) CloseWorkflow(workflowID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.contexts, workflowID)
	prefix := workflowID + "/"
	for key := range b.queues {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(b.queues, key)
		}
	}
}

func addParticipant(wctx *types.WorkflowContext, role types.AgentRole) {
	for _, p := range wctx.ParticipatingAgents {
		if p == role {
			return
		}
	}
	wctx.ParticipatingAgents = append(wctx.ParticipatingAgents, role)
}

func snapshotContext(wctx *types.WorkflowContext) *types.WorkflowContext {
	snap := &types.WorkflowContext{
		WorkflowID:          wctx.WorkflowID,
		UserIntent:          wctx.UserIntent,
		ParticipatingAgents: append([]types.AgentRole(nil), wctx.ParticipatingAgents...),
		SharedKnowledge:     copyMap(wctx.SharedKnowledge),
		CurrentStep:         wctx.CurrentStep,
		StartedAt:           wctx.StartedAt,
	}
	return snap
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func transformKey(from, to types.AgentRole) string {
	return string(from) + "-" + string(to)
}

func queueKey(workflowID string, role types.AgentRole) string {
	return workflowID + "/" + string(role)
}
