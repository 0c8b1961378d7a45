package orchestrator

import (
	"fmt"

	"github.com/paperforge/orchestrator/pkg/types"
)

// TopologicalSort orders the plan's tasks so that every task appears after
// all of its dependencies. The order is deterministic: ties are broken by
// the task's position in plan.Tasks. A dependency cycle or a reference to an
// unknown task id is an error; no partial order is returned.
func TopologicalSort(plan *types.ExecutionPlan) ([]*types.TaskNode, error) {
	if plan == nil || len(plan.Tasks) == 0 {
		return nil, fmt.Errorf("execution plan has no tasks")
	}

	index := make(map[string]*types.TaskNode, len(plan.Tasks))
	for _, node := range plan.Tasks {
		if node == nil || node.Task == nil {
			return nil, fmt.Errorf("execution plan contains a nil task")
		}
		if _, dup := index[node.Task.ID]; dup {
			return nil, fmt.Errorf("duplicate task id in plan: %s", node.Task.ID)
		}
		index[node.Task.ID] = node
	}

	for taskID, deps := range plan.Dependencies {
		if _, ok := index[taskID]; !ok {
			return nil, fmt.Errorf("dependency map references unknown task: %s", taskID)
		}
		for _, dep := range deps {
			if _, ok := index[dep]; !ok {
				return nil, fmt.Errorf("task %s depends on unknown task: %s", taskID, dep)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)

	state := make(map[string]int, len(plan.Tasks))
	sorted := make([]*types.TaskNode, 0, len(plan.Tasks))
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visited:
			return nil
		case visiting:
			return &types.CircularDependencyError{Cycle: cyclePath(stack, id)}
		}

		state[id] = visiting
		stack = append(stack, id)

		for _, dep := range dependenciesOf(index[id], plan) {
			if err := visit(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = visited
		sorted = append(sorted, index[id])
		return nil
	}

	for _, node := range plan.Tasks {
		if err := visit(node.Task.ID); err != nil {
			return nil, err
		}
	}

	return sorted, nil
}

// dependenciesOf merges the plan-level dependency map with the task's own
// Dependencies field, de-duplicated, preserving first occurrence order.
func dependenciesOf(node *types.TaskNode, plan *types.ExecutionPlan) []string {
	seen := make(map[string]struct{})
	deps := make([]string, 0)
	for _, dep := range plan.Dependencies[node.Task.ID] {
		if _, ok := seen[dep]; !ok {
			seen[dep] = struct{}{}
			deps = append(deps, dep)
		}
	}
	for _, dep := range node.Task.Dependencies {
		if _, ok := seen[dep]; !ok {
			seen[dep] = struct{}{}
			deps = append(deps, dep)
		}
	}
	return deps
}

// cyclePath trims the DFS stack down to the cycle that closes at id.
func cyclePath(stack []string, id string) []string {
	for i, v := range stack {
		if v == id {
			cycle := make([]string, 0, len(stack)-i+1)
			cycle = append(cycle, stack[i:]...)
			cycle = append(cycle, id)
			return cycle
		}
	}
	return []string{id, id}
}
