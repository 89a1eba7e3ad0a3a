package scan

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"

	"github.com/cvtailor/cvtailor/internal/workflows"
)

// RegisterActivities registers the scan activity with the Temporal worker
func RegisterActivities(w worker.Worker, a *Activity) {
	w.RegisterActivityWithOptions(a.Execute, activity.RegisterOptions{
		Name: workflows.ScanPageActivityName,
	})
}
