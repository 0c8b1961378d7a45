package synthesis

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/paperforge/orchestrator/pkg/types"
)

// TestQualityMeanProperty checks that for any set of per-result quality
// scores in [0, 1], every aggregated metric stays within the minimum and
// maximum of its inputs.
func TestQualityMeanProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	roles := types.AllRoles()

	properties.Property("mean quality bounded by inputs", prop.ForAll(
		func(scores []float64) bool {
			if len(scores) == 0 {
				return true
			}
			if len(scores) > len(roles) {
				scores = scores[:len(roles)]
			}

			results := make(map[types.AgentRole]*types.EnhancedAgentResult, len(scores))
			minScore, maxScore := scores[0], scores[0]
			for i, score := range scores {
				if score < minScore {
					minScore = score
				}
				if score > maxScore {
					maxScore = score
				}
				results[roles[i]] = successResult(roles[i], nil, &types.QualityMetrics{
					Accuracy:     score,
					Completeness: score,
					Relevance:    score,
					Coherence:    score,
				})
			}

			out, err := newTestEngine().Synthesize("wf", results, nil)
			if err != nil {
				return false
			}

			const eps = 1e-9
			q := out.QualityMetrics
			for _, v := range []float64{q.Accuracy, q.Completeness, q.Relevance, q.Coherence} {
				if v < minScore-eps || v > maxScore+eps {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0, 1)),
	))

	properties.Property("rule quality is the maximum applied", prop.ForAll(
		func(qualities []float64) bool {
			if len(qualities) == 0 {
				return true
			}

			e := newTestEngine()
			maxQuality := 0.0
			for i, q := range qualities {
				if q > maxQuality {
					maxQuality = q
				}
				rule := mergeRule(
					string(rune('a'+i%26))+string(rune('0'+i/26)),
					[]types.AgentRole{types.RoleDocumentParser},
					&types.RuleOutput{Quality: q},
				)
				if err := e.RegisterRule(rule); err != nil {
					return false
				}
			}

			results := map[types.AgentRole]*types.EnhancedAgentResult{
				types.RoleDocumentParser: successResult(types.RoleDocumentParser, nil, nil),
			}
			out, err := e.Synthesize("wf", results, nil)
			if err != nil {
				return false
			}
			return out.RuleQuality == maxQuality
		},
		gen.SliceOfN(10, gen.Float64Range(0, 1)),
	))

	properties.TestingRun(t)
}
