package orchestrator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperforge/orchestrator/pkg/types"
)

func planOf(deps map[string][]string, ids ...string) *types.ExecutionPlan {
	nodes := make([]*types.TaskNode, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, types.NewTaskNode(taskFor(id, types.RoleDocumentParser)))
	}
	return &types.ExecutionPlan{Tasks: nodes, Dependencies: deps}
}

func sortedIDs(nodes []*types.TaskNode) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.Task.ID)
	}
	return ids
}

func TestTopologicalSortLinear(t *testing.T) {
	plan := planOf(map[string][]string{
		"b": {"a"},
		"c": {"b"},
	}, "c", "b", "a")

	sorted, err := TopologicalSort(plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, sortedIDs(sorted))
}

func TestTopologicalSortDiamond(t *testing.T) {
	plan := planOf(map[string][]string{
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	}, "a", "b", "c", "d")

	sorted, err := TopologicalSort(plan)
	require.NoError(t, err)

	pos := make(map[string]int)
	for i, id := range sortedIDs(sorted) {
		pos[id] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["a"], pos["c"])
	assert.Less(t, pos["b"], pos["d"])
	assert.Less(t, pos["c"], pos["d"])
}

func TestTopologicalSortCycle(t *testing.T) {
	plan := planOf(map[string][]string{
		"a": {"c"},
		"b": {"a"},
		"c": {"b"},
	}, "a", "b", "c")

	_, err := TopologicalSort(plan)
	require.Error(t, err)

	var cycleErr *types.CircularDependencyError
	require.True(t, errors.As(err, &cycleErr))
	assert.NotEmpty(t, cycleErr.Cycle)
	// The cycle closes on its first element.
	assert.Equal(t, cycleErr.Cycle[0], cycleErr.Cycle[len(cycleErr.Cycle)-1])
}

func TestTopologicalSortSelfCycle(t *testing.T) {
	plan := planOf(map[string][]string{"a": {"a"}}, "a")

	_, err := TopologicalSort(plan)
	var cycleErr *types.CircularDependencyError
	require.True(t, errors.As(err, &cycleErr))
}

func TestTopologicalSortUnknownDependency(t *testing.T) {
	plan := planOf(map[string][]string{"a": {"ghost"}}, "a")

	_, err := TopologicalSort(plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")
}

func TestTopologicalSortDuplicateID(t *testing.T) {
	plan := planOf(nil, "a", "a")

	_, err := TopologicalSort(plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate task id")
}

func TestTopologicalSortEmptyPlan(t *testing.T) {
	_, err := TopologicalSort(&types.ExecutionPlan{})
	assert.Error(t, err)

	_, err = TopologicalSort(nil)
	assert.Error(t, err)
}

func TestTopologicalSortTaskLevelDependencies(t *testing.T) {
	// Dependencies declared on the task itself count the same as the
	// plan-level map.
	b := taskFor("b", types.RoleDocumentParser)
	b.Dependencies = []string{"a"}
	plan := &types.ExecutionPlan{
		Tasks: []*types.TaskNode{
			types.NewTaskNode(b),
			types.NewTaskNode(taskFor("a", types.RoleDocumentParser)),
		},
	}

	sorted, err := TopologicalSort(plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, sortedIDs(sorted))
}
