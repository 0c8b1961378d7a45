package types

import "time"

// RuleOutput is what a synthesis rule's merge function produces.
type RuleOutput struct {
	// Data is shallow-merged into the synthesized data accumulator; later
	// rules overwrite earlier keys on collision.
	Data map[string]any `json:"data,omitempty"`

	Insights        []string `json:"insights,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`

	// Quality is the rule's own confidence score in [0, 1]. The synthesis
	// engine tracks the running maximum across applied rules.
	Quality float64 `json:"quality"`
}

// MergeFunc merges the results of a fixed set of agent roles. It must be
// pure: same inputs, same output, no retained references.
type MergeFunc func(results map[AgentRole]*EnhancedAgentResult) (*RuleOutput, error)

// SynthesisRule merges the outputs of a fixed set of agent roles. Rules are
// registered once at engine start and are stateless thereafter.
type SynthesisRule struct {
	ID string

	// RequiredAgents is the set of roles that must all have produced a
	// result for the rule to fire.
	RequiredAgents []AgentRole

	Merge MergeFunc
}

// SynthesisMetadata records provenance for a synthesized output.
type SynthesisMetadata struct {
	// RulesApplied lists applied rule ids in application order.
	RulesApplied []string `json:"rules_applied"`

	// TotalResults is the number of participating agent results.
	TotalResults int `json:"total_results"`

	SynthesizedAt time.Time `json:"synthesized_at"`
}

// SynthesizedOutput is the workflow-level terminal artifact: the merged data
// of every applied rule plus aggregate quality metrics.
type SynthesizedOutput struct {
	WorkflowID string `json:"workflow_id"`

	SynthesizedData map[string]any `json:"synthesized_data"`
	Insights        []string       `json:"insights"`
	Recommendations []string       `json:"recommendations"`

	// QualityMetrics is the arithmetic mean of each metric across all
	// participating results, not only those touched by an applied rule.
	QualityMetrics QualityMetrics `json:"quality_metrics"`

	// RuleQuality is the maximum per-rule quality score among applied rules.
	RuleQuality float64 `json:"rule_quality"`

	ParticipatingAgents []AgentRole       `json:"participating_agents"`
	Metadata            SynthesisMetadata `json:"metadata"`
}
