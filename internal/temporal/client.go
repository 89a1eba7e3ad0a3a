package temporal

import (
	"context"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/cvtailor/cvtailor/internal/config"
	"github.com/cvtailor/cvtailor/internal/workflows"
)

// BatchWorkflowPrefix prefixes the workflow id of every batch scan
const BatchWorkflowPrefix = "batch-"

// Client wraps the Temporal SDK client with the batch scan operations
type Client struct {
	client.Client
	logger    *zap.Logger
	namespace string
	taskQueue string
}

// NewClient creates a new Temporal client
func NewClient(cfg config.TemporalConfig, logger *zap.Logger) (*Client, error) {
	options := client.Options{
		HostPort:  cfg.Address(),
		Namespace: cfg.Namespace,
		Logger:    NewZapAdapter(logger),
	}

	c, err := client.Dial(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create Temporal client: %w", err)
	}

	return &Client{
		Client:    c,
		logger:    logger,
		namespace: cfg.Namespace,
		taskQueue: cfg.TaskQueue,
	}, nil
}

// TaskQueue returns the configured task queue name
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Namespace returns the configured namespace
func (c *Client) Namespace() string {
	return c.namespace
}

// StartBatchScan starts a batch scan workflow on the configured task queue
func (c *Client) StartBatchScan(ctx context.Context, input workflows.BatchScanInput) (client.WorkflowRun, error) {
	options := client.StartWorkflowOptions{
		ID:        BatchWorkflowPrefix + input.BatchID,
		TaskQueue: c.taskQueue,
	}

	run, err := c.ExecuteWorkflow(ctx, options, workflows.BatchScanWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("starting batch scan %s: %w", input.BatchID, err)
	}
	return run, nil
}

// WaitBatchScan blocks until the batch finishes and returns its output
func (c *Client) WaitBatchScan(ctx context.Context, run client.WorkflowRun) (*workflows.BatchScanOutput, error) {
	var out workflows.BatchScanOutput
	if err := run.Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("batch scan %s: %w", run.GetID(), err)
	}
	return &out, nil
}

// BatchProgress queries the progress of a running or finished batch
func (c *Client) BatchProgress(ctx context.Context, batchID string) (*workflows.BatchProgress, error) {
	value, err := c.QueryWorkflow(ctx, BatchWorkflowPrefix+batchID, "", workflows.ProgressQuery)
	if err != nil {
		return nil, fmt.Errorf("querying batch %s: %w", batchID, err)
	}
	var progress workflows.BatchProgress
	if err := value.Get(&progress); err != nil {
		return nil, fmt.Errorf("decoding batch %s progress: %w", batchID, err)
	}
	return &progress, nil
}

// GetWorkflowStatus returns the current status of a workflow
func (c *Client) GetWorkflowStatus(ctx context.Context, workflowID, runID string) (*WorkflowStatus, error) {
	desc, err := c.DescribeWorkflowExecution(ctx, workflowID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to describe workflow: %w", err)
	}

	info := desc.WorkflowExecutionInfo
	status := &WorkflowStatus{
		WorkflowID: info.Execution.WorkflowId,
		RunID:      info.Execution.RunId,
		Status:     info.Status,
		StartTime:  info.StartTime.AsTime(),
	}

	if info.CloseTime != nil {
		closeTime := info.CloseTime.AsTime()
		status.CloseTime = &closeTime
	}

	return status, nil
}

// WorkflowStatus represents the status of a workflow execution
type WorkflowStatus struct {
	WorkflowID string
	RunID      string
	Status     enumspb.WorkflowExecutionStatus
	StartTime  time.Time
	CloseTime  *time.Time
}

// IsRunning returns true if the workflow is still running
func (s *WorkflowStatus) IsRunning() bool {
	return s.Status == enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING
}

// IsCompleted returns true if the workflow completed successfully
func (s *WorkflowStatus) IsCompleted() bool {
	return s.Status == enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED
}

// IsFailed returns true if the workflow failed or timed out
func (s *WorkflowStatus) IsFailed() bool {
	return s.Status == enumspb.WORKFLOW_EXECUTION_STATUS_FAILED ||
		s.Status == enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT
}

// ZapAdapter adapts zap.Logger to Temporal's log interface
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter creates a new Temporal logger adapter
func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapAdapter{logger: logger.Named("temporal")}
}

func (z *ZapAdapter) Debug(msg string, keyvals ...interface{}) {
	z.logger.Debug(msg, toZapFields(keyvals)...)
}

func (z *ZapAdapter) Info(msg string, keyvals ...interface{}) {
	z.logger.Info(msg, toZapFields(keyvals)...)
}

func (z *ZapAdapter) Warn(msg string, keyvals ...interface{}) {
	z.logger.Warn(msg, toZapFields(keyvals)...)
}

func (z *ZapAdapter) Error(msg string, keyvals ...interface{}) {
	z.logger.Error(msg, toZapFields(keyvals)...)
}

// toZapFields pairs up keyvals. Non-string keys and a trailing odd value
// are dropped.
func toZapFields(keyvals []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals)-1; i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		if err, ok := keyvals[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	return fields
}
