package orchestrator

import (
	"context"
	"sync"

	"github.com/paperforge/orchestrator/pkg/types"
)

// Future is a push-based handle to a task's terminal result. It is resolved
// exactly once, by the scheduler, when the task reaches a terminal state;
// dependents subscribe instead of polling.
type Future struct {
	done   chan struct{}
	once   sync.Once
	result *types.EnhancedAgentResult
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(result *types.EnhancedAgentResult) {
	f.once.Do(func() {
		f.result = result
		close(f.done)
	})
}

// Done returns a channel closed when the task reaches a terminal state.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task reaches a terminal state or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (*types.EnhancedAgentResult, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the terminal result, or nil if not yet resolved.
func (f *Future) Result() *types.EnhancedAgentResult {
	select {
	case <-f.done:
		return f.result
	default:
		return nil
	}
}
