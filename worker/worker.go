package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	calcflow "github.com/calcflow/calcflow-go"
	"github.com/calcflow/calcflow-go/contracts"
	"github.com/calcflow/calcflow-go/internal/rabbitmq"
)

// Default queue names for reporting back to the orchestrator.
const (
	defaultTaskResultQueue   = "task_results"
	defaultTaskProgressQueue = "task_progress"
)

var (
	// ErrNoTaskType indicates the worker config lacks a task type.
	ErrNoTaskType = errors.New("worker: task type must not be empty")
	// ErrNoTaskFunction indicates the worker config lacks a task function.
	ErrNoTaskFunction = errors.New("worker: task function must not be nil")
)

// ProgressReporter lets a running task publish progress updates.
type ProgressReporter interface {
	// Update reports progress as a fraction in [0, 1] with an optional
	// human-readable message.
	Update(fraction float64, message string) error
}

// TaskFunction is the computation a worker performs for each task
// request. It receives the job input document and the workflow config,
// and returns the output document. The context is cancelled when the
// worker stops.
type TaskFunction func(ctx context.Context, input string, workflowConfig map[string]any, progress ProgressReporter) (string, error)

// Config describes one worker process.
type Config struct {
	// RabbitMQ is the broker to consume task requests from.
	RabbitMQ calcflow.RabbitMQConfig
	// TaskType names the task this worker performs. It is also the queue
	// the worker consumes.
	TaskType string
	// TaskFunction is the computation to run per task request.
	TaskFunction TaskFunction
	// TaskResultQueue overrides where task results are published.
	TaskResultQueue string
	// TaskProgressQueue overrides where progress updates are published.
	TaskProgressQueue string
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// taskBroker is the slice of the broker core the worker uses. Tests
// substitute a fake.
type taskBroker interface {
	Start() error
	Stop()
	AddQueueSubscription(sub rabbitmq.QueueSubscription) error
	Publish(exchangeName, routingKey string, body []byte) error
}

// Worker consumes task requests for one task type. Task requests are
// processed one at a time (prefetch 1); a failure to decode or publish
// requeues the message, while a task function error is reported to the
// orchestrator as an ERROR result.
type Worker struct {
	config Config
	logger *slog.Logger
	broker taskBroker
	ctx    context.Context
	cancel context.CancelFunc
}

// New validates the config and creates a worker. Call Start to begin
// consuming.
func New(config Config) (*Worker, error) {
	if config.TaskType == "" {
		return nil, ErrNoTaskType
	}
	if config.TaskFunction == nil {
		return nil, ErrNoTaskFunction
	}
	if config.TaskResultQueue == "" {
		config.TaskResultQueue = defaultTaskResultQueue
	}
	if config.TaskProgressQueue == "" {
		config.TaskProgressQueue = defaultTaskProgressQueue
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		config: config,
		logger: logger,
		broker: rabbitmq.NewBrokerInterface(rabbitmq.Config{
			Host:        config.RabbitMQ.Host,
			Port:        config.RabbitMQ.Port,
			Username:    config.RabbitMQ.Username,
			Password:    config.RabbitMQ.Password,
			VirtualHost: config.RabbitMQ.VirtualHost,
		}, rabbitmq.WithLogger(logger)),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start connects to the broker and begins consuming task requests from
// the queue named after the task type.
func (w *Worker) Start() error {
	if err := w.broker.Start(); err != nil {
		return err
	}
	w.logger.Info("starting worker", "task_type", w.config.TaskType)
	return w.broker.AddQueueSubscription(rabbitmq.QueueSubscription{
		QueueName: w.config.TaskType,
		Callback:  w.handleTaskRequest,
		QueueType: rabbitmq.QueueTypeDurable,
	})
}

// Stop cancels the running task context and shuts down the broker
// interface.
func (w *Worker) Stop() {
	w.cancel()
	w.broker.Stop()
}

func (w *Worker) handleTaskRequest(body []byte) error {
	var request contracts.TaskRequest
	if err := contracts.Decode(body, &request); err != nil {
		return err
	}
	w.logger.Info("worker started new task", "job_id", request.JobID)

	progress := &progressReporter{worker: w, jobID: request.JobID}
	if err := progress.Update(0, "job calculation started"); err != nil {
		return err
	}

	output, err := w.config.TaskFunction(w.ctx, request.Input, request.WorkflowConfig, progress)
	if err != nil {
		w.logger.Error("task failed", "job_id", request.JobID, "error", err)
		return w.publishResult(contracts.TaskResult{
			JobID:      request.JobID,
			TaskType:   w.config.TaskType,
			ResultType: contracts.TaskResultError,
			Logs:       err.Error(),
		})
	}

	if err := progress.Update(1.0, "calculation finished"); err != nil {
		return err
	}
	return w.publishResult(contracts.TaskResult{
		JobID:      request.JobID,
		TaskType:   w.config.TaskType,
		ResultType: contracts.TaskResultSucceeded,
		Output:     output,
	})
}

func (w *Worker) publishResult(result contracts.TaskResult) error {
	body, err := contracts.Encode(result)
	if err != nil {
		return err
	}
	if err := w.broker.Publish("", w.config.TaskResultQueue, body); err != nil {
		return fmt.Errorf("could not publish result for job %s: %w", result.JobID, err)
	}
	return nil
}

// progressReporter publishes task progress over default routing.
type progressReporter struct {
	worker *Worker
	jobID  string
}

func (p *progressReporter) Update(fraction float64, message string) error {
	p.worker.logger.Debug("sending progress update",
		"job_id", p.jobID, "fraction", fraction, "message", message)
	body, err := contracts.Encode(contracts.TaskProgressUpdate{
		JobID:    p.jobID,
		TaskType: p.worker.config.TaskType,
		Fraction: fraction,
		Message:  message,
	})
	if err != nil {
		return err
	}
	return p.worker.broker.Publish("", p.worker.config.TaskProgressQueue, body)
}
