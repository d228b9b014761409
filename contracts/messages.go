package contracts

import (
	"encoding/json"
	"fmt"
)

// Encode renders a contract message in its wire form.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", msg, err)
	}
	return data, nil
}

// Decode parses wire bytes into msg, which must be a pointer.
func Decode(data []byte, msg any) error {
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("failed to decode %T: %w", msg, err)
	}
	return nil
}

// JobSubmission asks the orchestrator to run a job.
type JobSubmission struct {
	JobID        string          `json:"jobId"`
	WorkflowType string          `json:"workflowType"`
	TimeoutMs    *int64          `json:"timeoutMs,omitempty"`
	Input        string          `json:"input"`
	Params       json.RawMessage `json:"params,omitempty"`
}

// JobResultType classifies how a job ended.
type JobResultType string

const (
	JobResultSucceeded JobResultType = "SUCCEEDED"
	JobResultTimeout   JobResultType = "TIMEOUT"
	JobResultError     JobResultType = "ERROR"
	JobResultCancelled JobResultType = "CANCELLED"
)

// JobResult is the final outcome of a job.
type JobResult struct {
	JobID      string        `json:"jobId"`
	ResultType JobResultType `json:"resultType"`
	Output     string        `json:"output,omitempty"`
	Logs       string        `json:"logs,omitempty"`
}

// JobStatus is the lifecycle state of a job as reported by the
// orchestrator.
type JobStatus string

const (
	JobStatusRegistered JobStatus = "REGISTERED"
	JobStatusEnqueued   JobStatus = "ENQUEUED"
	JobStatusRunning    JobStatus = "RUNNING"
	JobStatusFinished   JobStatus = "FINISHED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// JobStatusUpdate reports a job lifecycle transition.
type JobStatusUpdate struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

// JobProgressUpdate reports job progress as a fraction in [0, 1].
type JobProgressUpdate struct {
	JobID    string  `json:"jobId"`
	Fraction float64 `json:"fraction"`
	Message  string  `json:"message,omitempty"`
}

// JobCancel asks the orchestrator to cancel a job.
type JobCancel struct {
	JobID string `json:"jobId"`
}

// RequestAvailableWorkflows asks the orchestrator to publish its current
// workflow catalog.
type RequestAvailableWorkflows struct{}

// AvailableWorkflows is the orchestrator's workflow catalog.
type AvailableWorkflows struct {
	Workflows []WorkflowType `json:"workflows"`
}

// TaskRequest hands one unit of work to a worker process.
type TaskRequest struct {
	JobID string `json:"jobId"`
	Input string `json:"input"`
	// WorkflowConfig carries workflow-level settings for the task, as
	// resolved by the orchestrator.
	WorkflowConfig map[string]any `json:"workflowConfig,omitempty"`
}

// TaskResultType classifies how a worker task ended.
type TaskResultType string

const (
	TaskResultSucceeded TaskResultType = "SUCCEEDED"
	TaskResultError     TaskResultType = "ERROR"
)

// TaskResult reports a finished worker task back to the orchestrator.
type TaskResult struct {
	JobID      string         `json:"jobId"`
	TaskType   string         `json:"taskType"`
	ResultType TaskResultType `json:"resultType"`
	Output     string         `json:"output,omitempty"`
	Logs       string         `json:"logs,omitempty"`
}

// TaskProgressUpdate reports worker task progress to the orchestrator.
type TaskProgressUpdate struct {
	JobID    string  `json:"jobId"`
	TaskType string  `json:"taskType"`
	Fraction float64 `json:"fraction"`
	Message  string  `json:"message,omitempty"`
}
