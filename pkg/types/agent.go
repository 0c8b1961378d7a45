package types

import "time"

// AgentRole identifies the kind of work an agent performs. The set of roles
// is closed: every agent must declare exactly one of these.
type AgentRole string

const (
	RoleDocumentParser     AgentRole = "document_parser"
	RoleAlgorithmExtractor AgentRole = "algorithm_extractor"
	RoleCodeGenerator      AgentRole = "code_generator"
	RoleLiteratureReviewer AgentRole = "literature_reviewer"
	RoleQualityAssurance   AgentRole = "quality_assurance"
	RoleCitationManager    AgentRole = "citation_manager"
)

// AllRoles lists every valid agent role.
func AllRoles() []AgentRole {
	return []AgentRole{
		RoleDocumentParser,
		RoleAlgorithmExtractor,
		RoleCodeGenerator,
		RoleLiteratureReviewer,
		RoleQualityAssurance,
		RoleCitationManager,
	}
}

// ValidRole reports whether role is a member of the closed role enumeration.
func ValidRole(role AgentRole) bool {
	for _, r := range AllRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// AgentStatus represents the lifecycle state of an agent.
type AgentStatus string

const (
	AgentStatusIdle       AgentStatus = "idle"
	AgentStatusProcessing AgentStatus = "processing"
	AgentStatusWaiting    AgentStatus = "waiting"
	AgentStatusError      AgentStatus = "error"
)

// AgentMetrics is a point-in-time snapshot of an agent's rolling metrics.
type AgentMetrics struct {
	TasksCompleted int64 `json:"tasks_completed"`
	TasksFailed    int64 `json:"tasks_failed"`

	// AverageResponseTime is an exponential moving average over the last
	// 100 execution samples.
	AverageResponseTime time.Duration `json:"average_response_time"`

	// Response-time percentiles from the agent's histogram.
	P50ResponseTime time.Duration `json:"p50_response_time"`
	P95ResponseTime time.Duration `json:"p95_response_time"`
	P99ResponseTime time.Duration `json:"p99_response_time"`

	CurrentLoad int       `json:"current_load"`
	LastActive  time.Time `json:"last_active"`
}

// AgentInfo describes a registered agent for status reporting.
type AgentInfo struct {
	Role         AgentRole    `json:"role"`
	Capabilities []string     `json:"capabilities"`
	Status       AgentStatus  `json:"status"`
	Metrics      AgentMetrics `json:"metrics"`
}
