// Package notify fans run and job state transitions out to interested
// listeners: the application log by default, and optionally a socket.io
// dashboard endpoint.
package notify

import (
	"context"

	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/model"
)

// Notifier receives every run and job transition the executor persists.
// Implementations must be safe for concurrent use and must not block the
// executor on slow consumers.
type Notifier interface {
	RunTransition(ctx context.Context, run *model.Run)
	JobTransition(ctx context.Context, jr *model.JobRun)
}

// LogNotifier is the default Notifier; it logs transitions on the
// contextual logger.
type LogNotifier struct{}

// RunTransition implements Notifier.
func (LogNotifier) RunTransition(ctx context.Context, run *model.Run) {
	ctxlog.FromContext(ctx).Info("Run transition.",
		"runID", run.ID,
		"workflow", run.WorkflowName,
		"status", run.Status,
	)
}

// JobTransition implements Notifier.
func (LogNotifier) JobTransition(ctx context.Context, jr *model.JobRun) {
	logger := ctxlog.FromContext(ctx).With(
		"runID", jr.RunID,
		"job", jr.Name,
		"status", jr.Status,
	)
	if jr.Error != "" {
		logger.Warn("Job transition.", "error", jr.Error)
		return
	}
	logger.Info("Job transition.")
}

// Multi fans transitions out to several notifiers in order.
type Multi []Notifier

// RunTransition implements Notifier.
func (m Multi) RunTransition(ctx context.Context, run *model.Run) {
	for _, n := range m {
		n.RunTransition(ctx, run)
	}
}

// JobTransition implements Notifier.
func (m Multi) JobTransition(ctx context.Context, jr *model.JobRun) {
	for _, n := range m {
		n.JobTransition(ctx, jr)
	}
}
