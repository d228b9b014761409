package calcflow

import (
	"github.com/google/uuid"

	"github.com/calcflow/calcflow-go/contracts"
)

// Queue and routing-key layout shared with the orchestrator. The broker
// core treats all of these as opaque strings.
const (
	// calcflowExchange is the direct exchange all SDK traffic flows over.
	calcflowExchange = "calcflow"

	// availableWorkflowsRoutingKey is the routing key the orchestrator
	// broadcasts its workflow catalog on.
	availableWorkflowsRoutingKey = "available_workflows"

	// requestAvailableWorkflowsQueue receives catalog requests.
	requestAvailableWorkflowsQueue = "request_available_workflows"

	// jobCancelQueue receives cancellation requests for any job.
	jobCancelQueue = "jobs.cancellations"
)

func jobResultsQueueName(jobID uuid.UUID) string {
	return "jobs." + jobID.String() + ".result"
}

func jobProgressQueueName(jobID uuid.UUID) string {
	return "jobs." + jobID.String() + ".progress"
}

func jobStatusQueueName(jobID uuid.UUID) string {
	return "jobs." + jobID.String() + ".status"
}

func jobSubmissionQueueName(workflowType contracts.WorkflowType) string {
	return "job_submissions." + workflowType.Name
}

// availableWorkflowsQueueName is per-client so every SDK instance gets its
// own copy of each catalog broadcast.
func availableWorkflowsQueueName(clientID string) string {
	return "available_workflows." + clientID
}
