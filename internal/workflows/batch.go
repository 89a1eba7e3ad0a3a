package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/cvtailor/cvtailor/internal/domain"
)

// Activity names - must match registered activity names
const (
	ScanPageActivityName = "ScanPageActivity"
)

// ProgressQuery is the query type answered by BatchScanWorkflow
const ProgressQuery = "progress"

// BatchScanWorkflow scans each URL in order. Pages are scanned one at a
// time so no page is ever scanned twice concurrently. A page that fails is
// recorded in the output and the batch moves on.
func BatchScanWorkflow(ctx workflow.Context, input BatchScanInput) (*BatchScanOutput, error) {
	logger := workflow.GetLogger(ctx)
	startTime := workflow.Now(ctx)

	output := &BatchScanOutput{
		BatchID:   input.BatchID,
		Pages:     []ScanPageOutput{},
		StartedAt: startTime,
	}

	progress := BatchProgress{Total: len(input.URLs)}
	if err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (BatchProgress, error) {
		return progress, nil
	}); err != nil {
		return nil, err
	}

	logger.Info("Starting batch scan workflow",
		"batch_id", input.BatchID,
		"urls", len(input.URLs),
	)

	if len(input.URLs) == 0 {
		output.Status = BatchStatusEmpty
		output.CompletedAt = workflow.Now(ctx)
		return output, nil
	}

	for _, pageURL := range input.URLs {
		progress.Current = pageURL

		page, err := scanPage(ctx, ScanPageInput{
			BatchID:  input.BatchID,
			URL:      pageURL,
			ResumeID: input.ResumeID,
		})
		if err != nil {
			logger.Warn("Page scan failed", "url", pageURL, "error", err)
			page = &ScanPageOutput{
				URL:     pageURL,
				Outcome: domain.OutcomeError,
				Error:   err.Error(),
			}
		}

		output.Pages = append(output.Pages, *page)
		progress.Done++
		if page.Error != "" {
			output.Failed++
			progress.Failed++
		} else {
			output.Scanned++
			output.FormsFound += page.FormCount
		}
	}
	progress.Current = ""

	output.Status = BatchStatusCompleted
	if output.Failed > 0 {
		output.Status = BatchStatusCompletedWithErrors
	}
	output.CompletedAt = workflow.Now(ctx)
	output.TotalDuration = output.CompletedAt.Sub(startTime)

	logger.Info("Batch scan workflow completed",
		"batch_id", input.BatchID,
		"scanned", output.Scanned,
		"failed", output.Failed,
		"forms_found", output.FormsFound,
	)

	return output, nil
}

// scanPage runs the scan activity for one page
func scanPage(ctx workflow.Context, input ScanPageInput) (*ScanPageOutput, error) {
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var output ScanPageOutput
	err := workflow.ExecuteActivity(ctx, ScanPageActivityName, input).Get(ctx, &output)
	if err != nil {
		return nil, err
	}
	return &output, nil
}
