// Package calcflow is the client SDK for submitting computational jobs to
// a calcflow cluster over RabbitMQ.
//
// A Client wraps a broker interface (see internal/rabbitmq), learns the
// orchestrator's workflow catalog on Start, and exposes synchronous job
// operations: submit, reconnect, disconnect, cancel. Job results, progress
// and status updates are delivered through per-job callbacks running on
// consumer goroutines.
package calcflow

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calcflow/calcflow-go/contracts"
	"github.com/calcflow/calcflow-go/internal/rabbitmq"
)

var (
	// ErrWorkflowsNotReceived indicates the orchestrator's workflow catalog
	// has not arrived yet.
	ErrWorkflowsNotReceived = errors.New("calcflow: workflow catalog not received yet")
	// ErrUnknownWorkflow indicates a job was submitted for a workflow type
	// the orchestrator does not offer.
	ErrUnknownWorkflow = errors.New("calcflow: unknown workflow type")
	// ErrCatalogTimeout indicates the orchestrator did not publish its
	// workflow catalog within the configured timeout.
	ErrCatalogTimeout = errors.New("calcflow: timed out waiting for the workflow catalog")
	// ErrNilResultHandler indicates a job was submitted without a result
	// callback.
	ErrNilResultHandler = errors.New("calcflow: result handler must not be nil")
)

// defaultCatalogTimeout bounds the wait for the first workflow catalog
// during Start.
const defaultCatalogTimeout = time.Minute

// RabbitMQConfig is the connection configuration for the calcflow broker.
// Zero fields fall back to the standard AMQP defaults.
type RabbitMQConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	VirtualHost string
}

func (c RabbitMQConfig) toInternal() rabbitmq.Config {
	return rabbitmq.Config{
		Host:        c.Host,
		Port:        c.Port,
		Username:    c.Username,
		Password:    c.Password,
		VirtualHost: c.VirtualHost,
	}
}

// Job is the handle for one submitted job. Persist it to reconnect to a
// running job after a restart.
type Job struct {
	ID           uuid.UUID
	WorkflowType contracts.WorkflowType
}

// JobResultHandler is called once when a job finishes.
type JobResultHandler func(job Job, result contracts.JobResult)

// JobProgressHandler is called on every progress update for a job.
type JobProgressHandler func(job Job, update contracts.JobProgressUpdate)

// JobStatusHandler is called on every lifecycle transition of a job.
type JobStatusHandler func(job Job, update contracts.JobStatusUpdate)

// JobHandlers bundles the callbacks for one submitted job. OnFinished is
// required, the others are optional.
type JobHandlers struct {
	// OnFinished receives the job result. The result queue removes itself
	// after this one message.
	OnFinished JobResultHandler
	// OnProgressUpdate receives progress fractions, when set.
	OnProgressUpdate JobProgressHandler
	// OnStatusUpdate receives lifecycle transitions, when set.
	OnStatusUpdate JobStatusHandler
	// AutoDisconnectOnResult removes the progress and status queues once
	// the result has been handled without error.
	AutoDisconnectOnResult bool
}

// brokerInterface is the slice of the broker core the client uses. Tests
// substitute a fake.
type brokerInterface interface {
	Start() error
	Stop()
	DeclareExchange(name string) error
	AddQueueSubscription(sub rabbitmq.QueueSubscription) error
	RemoveQueueSubscription(queueName string) error
	Publish(exchangeName, routingKey string, body []byte) error
}

// Client is the SDK entry point. Create one with NewClient, call Start
// before use and Stop when done. All methods are safe for concurrent use.
type Client struct {
	broker         brokerInterface
	clientID       string
	logger         *slog.Logger
	catalogTimeout time.Duration

	mu        sync.RWMutex
	workflows *contracts.WorkflowTypeManager

	catalogOnce     sync.Once
	catalogReceived chan struct{}
}

// NewClient creates a client for the given broker. The clientID must be
// unique among SDK instances sharing a broker; when empty a random one is
// generated.
func NewClient(cfg RabbitMQConfig, clientID string, opts ...ClientOption) *Client {
	if clientID == "" {
		clientID = uuid.NewString()
	}
	c := &Client{
		clientID:        clientID,
		logger:          slog.Default(),
		catalogTimeout:  defaultCatalogTimeout,
		catalogReceived: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.broker = rabbitmq.NewBrokerInterface(cfg.toInternal(), rabbitmq.WithLogger(c.logger))
	return c
}

// Start connects to the broker, declares the calcflow exchange, subscribes
// to workflow catalog broadcasts and blocks until the orchestrator's
// catalog arrives or the catalog timeout expires. On timeout the broker
// stays connected; call Stop to release it.
func (c *Client) Start() error {
	if err := c.broker.Start(); err != nil {
		return err
	}
	if err := c.broker.DeclareExchange(calcflowExchange); err != nil {
		return err
	}
	if err := c.connectToAvailableWorkflows(); err != nil {
		return err
	}
	if err := c.requestAvailableWorkflows(); err != nil {
		return err
	}

	c.logger.Info("waiting for workflow definitions from the orchestrator")
	select {
	case <-c.catalogReceived:
		return nil
	case <-time.After(c.catalogTimeout):
		return fmt.Errorf("%w after %s: is the orchestrator online and connected to the broker?",
			ErrCatalogTimeout, c.catalogTimeout)
	}
}

// Stop shuts down the broker interface. Safe to call multiple times.
func (c *Client) Stop() {
	c.broker.Stop()
}

// WorkflowTypeManager returns the most recent workflow catalog received
// from the orchestrator.
func (c *Client) WorkflowTypeManager() (*contracts.WorkflowTypeManager, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.workflows == nil {
		return nil, ErrWorkflowsNotReceived
	}
	return c.workflows, nil
}

// SubmitJob submits a new job and connects its callbacks. The input string
// carries the workflow's primary document; params hold any additional
// workflow-specific configuration. A zero jobTimeout exempts the job from
// timeout cancellation by the orchestrator.
//
// The returned Job handle should be persisted by the caller so a restarted
// application can reconnect with ConnectToSubmittedJob.
func (c *Client) SubmitJob(
	input string,
	params contracts.ParamsDict,
	workflowType contracts.WorkflowType,
	jobTimeout time.Duration,
	handlers JobHandlers,
) (Job, error) {
	c.mu.RLock()
	manager := c.workflows
	c.mu.RUnlock()
	if manager == nil {
		return Job{}, ErrWorkflowsNotReceived
	}
	if !manager.WorkflowExists(workflowType) {
		return Job{}, fmt.Errorf("%w: %q", ErrUnknownWorkflow, workflowType.Name)
	}

	encodedParams, err := contracts.EncodeParams(params)
	if err != nil {
		return Job{}, err
	}

	job := Job{ID: uuid.New(), WorkflowType: workflowType}
	submission := contracts.JobSubmission{
		JobID:        job.ID.String(),
		WorkflowType: workflowType.Name,
		Input:        input,
		Params:       encodedParams,
	}
	if jobTimeout > 0 {
		timeoutMs := jobTimeout.Milliseconds()
		submission.TimeoutMs = &timeoutMs
	}
	body, err := contracts.Encode(submission)
	if err != nil {
		return Job{}, err
	}

	c.logger.Info("submitting job", "job_id", job.ID, "workflow_type", workflowType.Name)
	if err := c.ConnectToSubmittedJob(job, handlers); err != nil {
		return Job{}, err
	}
	if err := c.broker.Publish(calcflowExchange, jobSubmissionQueueName(workflowType), body); err != nil {
		return Job{}, errors.Join(err, c.DisconnectFromSubmittedJob(job))
	}
	return job, nil
}

// ConnectToSubmittedJob (re)attaches callbacks to an existing job. Useful
// after an application restart. The job must still exist on the
// orchestrator side, otherwise the callbacks are never called.
func (c *Client) ConnectToSubmittedJob(job Job, handlers JobHandlers) error {
	if handlers.OnFinished == nil {
		return ErrNilResultHandler
	}
	if handlers.AutoDisconnectOnResult {
		c.logger.Info("connecting to job updates with auto disconnect on result", "job_id", job.ID)
	} else {
		c.logger.Info("connecting to job updates, expecting manual disconnect", "job_id", job.ID)
	}

	err := c.broker.AddQueueSubscription(rabbitmq.QueueSubscription{
		QueueName:               jobResultsQueueName(job.ID),
		Callback:                c.resultCallback(job, handlers),
		QueueType:               rabbitmq.QueueTypeDurable,
		ExchangeName:            calcflowExchange,
		DisconnectAfterMessages: 1,
	})
	if err != nil {
		return err
	}
	if handlers.OnProgressUpdate != nil {
		err := c.broker.AddQueueSubscription(rabbitmq.QueueSubscription{
			QueueName:    jobProgressQueueName(job.ID),
			Callback:     c.progressCallback(job, handlers.OnProgressUpdate),
			QueueType:    rabbitmq.QueueTypeDurable,
			ExchangeName: calcflowExchange,
		})
		if err != nil {
			return err
		}
	}
	if handlers.OnStatusUpdate != nil {
		err := c.broker.AddQueueSubscription(rabbitmq.QueueSubscription{
			QueueName:    jobStatusQueueName(job.ID),
			Callback:     c.statusCallback(job, handlers.OnStatusUpdate),
			QueueType:    rabbitmq.QueueTypeDurable,
			ExchangeName: calcflowExchange,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// DisconnectFromSubmittedJob removes all queues for the job from the
// broker. Call this when no longer interested in a job that has not
// auto-disconnected.
func (c *Client) DisconnectFromSubmittedJob(job Job) error {
	return errors.Join(
		c.broker.RemoveQueueSubscription(jobResultsQueueName(job.ID)),
		c.broker.RemoveQueueSubscription(jobProgressQueueName(job.ID)),
		c.broker.RemoveQueueSubscription(jobStatusQueueName(job.ID)),
	)
}

// CancelJob asks the orchestrator to cancel a job. The outcome arrives as
// a status update; this does not disconnect from the job's queues.
func (c *Client) CancelJob(job Job) error {
	c.logger.Info("cancelling job", "job_id", job.ID)
	body, err := contracts.Encode(contracts.JobCancel{JobID: job.ID.String()})
	if err != nil {
		return err
	}
	return c.broker.Publish(calcflowExchange, jobCancelQueue, body)
}

func (c *Client) resultCallback(job Job, handlers JobHandlers) rabbitmq.MessageCallback {
	return func(body []byte) error {
		var result contracts.JobResult
		if err := contracts.Decode(body, &result); err != nil {
			return err
		}
		handlers.OnFinished(job, result)
		if handlers.AutoDisconnectOnResult {
			// Runs on the consumer goroutine; the result queue itself is
			// already winding down via its message limit.
			if err := errors.Join(
				c.broker.RemoveQueueSubscription(jobProgressQueueName(job.ID)),
				c.broker.RemoveQueueSubscription(jobStatusQueueName(job.ID)),
			); err != nil {
				c.logger.Warn("could not auto disconnect from job queues",
					"job_id", job.ID, "error", err)
			}
		}
		return nil
	}
}

func (c *Client) progressCallback(job Job, handler JobProgressHandler) rabbitmq.MessageCallback {
	return func(body []byte) error {
		var update contracts.JobProgressUpdate
		if err := contracts.Decode(body, &update); err != nil {
			return err
		}
		handler(job, update)
		return nil
	}
}

func (c *Client) statusCallback(job Job, handler JobStatusHandler) rabbitmq.MessageCallback {
	return func(body []byte) error {
		var update contracts.JobStatusUpdate
		if err := contracts.Decode(body, &update); err != nil {
			return err
		}
		handler(job, update)
		return nil
	}
}

func (c *Client) connectToAvailableWorkflows() error {
	return c.broker.AddQueueSubscription(rabbitmq.QueueSubscription{
		QueueName:        availableWorkflowsQueueName(c.clientID),
		Callback:         c.onAvailableWorkflows,
		QueueType:        rabbitmq.QueueTypeExclusive,
		BindToRoutingKey: availableWorkflowsRoutingKey,
		ExchangeName:     calcflowExchange,
	})
}

func (c *Client) requestAvailableWorkflows() error {
	body, err := contracts.Encode(contracts.RequestAvailableWorkflows{})
	if err != nil {
		return err
	}
	return c.broker.Publish(calcflowExchange, requestAvailableWorkflowsQueue, body)
}

// onAvailableWorkflows replaces the catalog on every broadcast, not just
// the first one.
func (c *Client) onAvailableWorkflows(body []byte) error {
	var catalog contracts.AvailableWorkflows
	if err := contracts.Decode(body, &catalog); err != nil {
		return err
	}
	c.mu.Lock()
	c.workflows = contracts.NewWorkflowTypeManager(catalog.Workflows)
	c.mu.Unlock()
	c.catalogOnce.Do(func() { close(c.catalogReceived) })
	c.logger.Info("updated the available workflows", "count", len(catalog.Workflows))
	return nil
}
