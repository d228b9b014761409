// Package worker runs the computation side of a calcflow deployment: a
// process that consumes task requests for one task type, executes a
// user-supplied task function and reports progress and results back to
// the orchestrator.
package worker
