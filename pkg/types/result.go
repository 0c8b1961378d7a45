package types

import "time"

// ResultStatus classifies the outcome of one task attempt.
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusFailure ResultStatus = "failure"
	ResultStatusPartial ResultStatus = "partial"
)

// ErrorKind classifies a failure result. Retry policy keys off the kind:
// validation failures are permanent, timeouts and execution faults are not.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindExecution  ErrorKind = "execution"
)

// AgentResult is the outcome of a single task attempt. Results are created
// exactly once per attempt and never mutated afterwards.
type AgentResult struct {
	TaskID    string        `json:"task_id"`
	AgentRole AgentRole     `json:"agent_role"`
	Status    ResultStatus  `json:"status"`
	Output    any           `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// StructuredOutput is the richer output shape an agent may produce in place
// of a bare Output value.
type StructuredOutput struct {
	Primary         any            `json:"primary,omitempty"`
	Auxiliary       map[string]any `json:"auxiliary,omitempty"`
	Insights        []string       `json:"insights,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

// QualityMetrics scores a result on four axes, each in [0, 1].
type QualityMetrics struct {
	Accuracy     float64 `json:"accuracy"`
	Completeness float64 `json:"completeness"`
	Relevance    float64 `json:"relevance"`
	Coherence    float64 `json:"coherence"`
}

// EnhancedAgentResult extends AgentResult with structured output and
// per-result quality metrics.
type EnhancedAgentResult struct {
	AgentResult

	Structured *StructuredOutput `json:"structured,omitempty"`
	Quality    *QualityMetrics   `json:"quality,omitempty"`
}

// Failed reports whether the result carries a failure status.
func (r *EnhancedAgentResult) Failed() bool {
	return r != nil && r.Status == ResultStatusFailure
}
