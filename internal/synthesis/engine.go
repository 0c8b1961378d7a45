// Package synthesis merges the results of a workflow's agents into a single
// output through registered synthesis rules.
package synthesis

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paperforge/orchestrator/pkg/types"
)

// Engine applies registered synthesis rules to a set of agent results. Rules
// are isolated from each other: a failing or panicking rule is logged and
// skipped, never aborting the synthesis.
type Engine struct {
	mu    sync.RWMutex
	rules []types.SynthesisRule

	log *zap.Logger
}

// NewEngine creates an engine with no rules.
func NewEngine(log *zap.Logger) *Engine {
	return &Engine{rules: make([]types.SynthesisRule, 0), log: log}
}

// RegisterRule adds a synthesis rule. Rules are applied in registration
// order; rule ids must be unique.
func (e *Engine) RegisterRule(rule types.SynthesisRule) error {
	if rule.ID == "" {
		return fmt.Errorf("synthesis rule has no id")
	}
	if rule.Merge == nil {
		return fmt.Errorf("synthesis rule %s has no merge function", rule.ID)
	}
	if len(rule.RequiredAgents) == 0 {
		return fmt.Errorf("synthesis rule %s requires no agents", rule.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range e.rules {
		if r.ID == rule.ID {
			return fmt.Errorf("synthesis rule already registered: %s", rule.ID)
		}
	}
	e.rules = append(e.rules, rule)
	return nil
}

// RuleIDs returns the registered rule ids in application order.
func (e *Engine) RuleIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		ids = append(ids, r.ID)
	}
	return ids
}

// Synthesize merges the workflow's agent results. A rule fires only when
// every one of its required roles has a successful result; applied rule
// outputs are shallow-merged later-wins. Zero applied rules still yields a
// valid output carrying the aggregate quality metrics.
func (e *Engine) Synthesize(workflowID string, results map[types.AgentRole]*types.EnhancedAgentResult, participants []types.AgentRole) (*types.SynthesizedOutput, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("no results to synthesize for workflow %s", workflowID)
	}

	e.mu.RLock()
	rules := append([]types.SynthesisRule(nil), e.rules...)
	e.mu.RUnlock()

	out := &types.SynthesizedOutput{
		WorkflowID:          workflowID,
		SynthesizedData:     make(map[string]any),
		Insights:            make([]string, 0),
		Recommendations:     make([]string, 0),
		ParticipatingAgents: participantsOrDefault(participants, results),
	}

	for _, rule := range rules {
		subset, ok := ruleInput(rule, results)
		if !ok {
			continue
		}

		ruleOut, err := e.applyRule(rule, subset)
		if err != nil {
			e.log.Warn("synthesis rule skipped",
				zap.String("workflow_id", workflowID),
				zap.String("rule_id", rule.ID),
				zap.Error(err))
			continue
		}

		for k, v := range ruleOut.Data {
			out.SynthesizedData[k] = v
		}
		out.Insights = append(out.Insights, ruleOut.Insights...)
		out.Recommendations = append(out.Recommendations, ruleOut.Recommendations...)
		if ruleOut.Quality > out.RuleQuality {
			out.RuleQuality = ruleOut.Quality
		}
		out.Metadata.RulesApplied = append(out.Metadata.RulesApplied, rule.ID)
	}

	out.QualityMetrics = meanQuality(results)
	out.Metadata.TotalResults = len(results)
	out.Metadata.SynthesizedAt = time.Now()

	return out, nil
}

// applyRule invokes the rule's merge function, converting a panic into a
// SynthesisRuleError.
func (e *Engine) applyRule(rule types.SynthesisRule, subset map[types.AgentRole]*types.EnhancedAgentResult) (ruleOut *types.RuleOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			ruleOut = nil
			err = &types.SynthesisRuleError{RuleID: rule.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	ruleOut, err = rule.Merge(subset)
	if err != nil {
		return nil, &types.SynthesisRuleError{RuleID: rule.ID, Err: err}
	}
	if ruleOut == nil {
		return nil, &types.SynthesisRuleError{RuleID: rule.ID, Err: fmt.Errorf("rule produced no output")}
	}
	return ruleOut, nil
}

// ruleInput collects the rule's required results; the rule fires only when
// every required role has a successful result.
func ruleInput(rule types.SynthesisRule, results map[types.AgentRole]*types.EnhancedAgentResult) (map[types.AgentRole]*types.EnhancedAgentResult, bool) {
	subset := make(map[types.AgentRole]*types.EnhancedAgentResult, len(rule.RequiredAgents))
	for _, role := range rule.RequiredAgents {
		res, ok := results[role]
		if !ok || res == nil || res.Failed() {
			return nil, false
		}
		subset[role] = res
	}
	return subset, true
}

// meanQuality averages each quality axis across every result that carries
// quality metrics. Results without metrics are excluded from the mean.
func meanQuality(results map[types.AgentRole]*types.EnhancedAgentResult) types.QualityMetrics {
	var sum types.QualityMetrics
	var n int
	for _, res := range results {
		if res == nil || res.Quality == nil {
			continue
		}
		sum.Accuracy += res.Quality.Accuracy
		sum.Completeness += res.Quality.Completeness
		sum.Relevance += res.Quality.Relevance
		sum.Coherence += res.Quality.Coherence
		n++
	}
	if n == 0 {
		return types.QualityMetrics{}
	}
	f := float64(n)
	return types.QualityMetrics{
		Accuracy:     sum.Accuracy / f,
		Completeness: sum.Completeness / f,
		Relevance:    sum.Relevance / f,
		Coherence:    sum.Coherence / f,
	}
}

func participantsOrDefault(participants []types.AgentRole, results map[types.AgentRole]*types.EnhancedAgentResult) []types.AgentRole {
	if len(participants) > 0 {
		return append([]types.AgentRole(nil), participants...)
	}
	roles := make([]types.AgentRole, 0, len(results))
	for role := range results {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
