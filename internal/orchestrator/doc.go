// Package orchestrator implements the multi-agent task orchestration core:
// the agent registry, the FIFO task scheduler with a concurrency gate, the
// dependency resolver, the execution supervisor and the orchestrator facade
// that ties them to the communication broker and the synthesis engine.
package orchestrator
