package app

import (
	"context"
	"fmt"

	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/model"
)

// Run executes a single workflow to completion and reports its outcome.
// It is the one-shot mode of the application: the run is created, executed
// synchronously, and the final job states are printed to the App's output.
func (a *App) Run(ctx context.Context, workflowName, ref, actor string, inputs map[string]any) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "workflow", workflowName)

	run, err := a.svc.RunWorkflow(ctx, workflowName, ref, actor, inputs)
	if err != nil {
		return err
	}
	a.logger.Info("🚀 Run started.", "workflow", workflowName, "runID", run.ID, "runNumber", run.RunNumber)

	// DispatchWorkflow launches the run in the background; block until it
	// drains so the process can report the final state.
	a.svc.Wait()

	final, err := a.store.GetRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("run finished but its record could not be read: %w", err)
	}
	jobs, err := a.store.GetJobRuns(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("run finished but its job records could not be read: %w", err)
	}

	for _, jr := range jobs {
		line := fmt.Sprintf("  %-12s %s", jr.Status, jr.Name)
		if jr.Error != "" {
			line += ": " + jr.Error
		}
		fmt.Fprintln(a.outW, line)
	}

	switch final.Status {
	case model.StatusSucceeded:
		a.logger.Info("🏁 Run succeeded.", "runID", run.ID)
		return nil
	case model.StatusCancelled:
		return fmt.Errorf("run %d was cancelled", run.ID)
	default:
		return fmt.Errorf("run %d finished with status %s", run.ID, final.Status)
	}
}
