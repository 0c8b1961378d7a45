// Package types defines the shared data model for the orchestration engine:
// agents, tasks, execution plans, results, workflow messages, synthesis rules
// and the typed event stream.
package types
