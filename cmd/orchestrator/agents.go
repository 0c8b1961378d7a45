package main

import (
	"context"

	"github.com/paperforge/orchestrator/internal/agent"
	"github.com/paperforge/orchestrator/pkg/types"
)

// capabilityTags maps each role to its descriptive capability tags.
var capabilityTags = map[types.AgentRole][]string{
	types.RoleDocumentParser:     {"pdf", "latex", "section_extraction"},
	types.RoleAlgorithmExtractor: {"pseudocode", "complexity_analysis"},
	types.RoleCodeGenerator:      {"python", "go", "implementation"},
	types.RoleLiteratureReviewer: {"related_work", "novelty_assessment"},
	types.RoleQualityAssurance:   {"testing", "validation"},
	types.RoleCitationManager:    {"bibtex", "reference_resolution"},
}

// builtinAgents constructs one echo agent per role. The echo handler mirrors
// the task input back as structured output, which is enough for standalone
// plan runs and for exercising the full pipeline end to end.
func builtinAgents() []agent.Agent {
	agents := make([]agent.Agent, 0, len(types.AllRoles()))
	for _, role := range types.AllRoles() {
		role := role
		agents = append(agents, agent.New(role, capabilityTags[role], echoHandler(role)))
	}
	return agents
}

func echoHandler(role types.AgentRole) agent.Handler {
	return func(ctx context.Context, task *types.Task) (*types.EnhancedAgentResult, error) {
		return &types.EnhancedAgentResult{
			AgentResult: types.AgentResult{
				Status: types.ResultStatusSuccess,
				Output: task.Input,
			},
			Structured: &types.StructuredOutput{
				Primary: task.Input,
				Auxiliary: map[string]any{
					"task_type": task.Type,
					"role":      string(role),
				},
			},
			Quality: &types.QualityMetrics{
				Accuracy:     0.8,
				Completeness: 0.8,
				Relevance:    0.8,
				Coherence:    0.8,
			},
		}, nil
	}
}
