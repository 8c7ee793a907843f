package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/expr"
	"github.com/vk/gridci/internal/model"
)

// Run executes the whole graph and returns the run's terminal status. Job
// failures are reported through the returned error with the first real
// failure as the root cause; skip and cancellation symptoms are not causes.
func (e *Executor) Run(ctx context.Context) (model.Status, error) {
	logger := ctxlog.FromContext(ctx)

	if err := e.createJobRuns(ctx); err != nil {
		return model.StatusFailed, err
	}

	readyChan := make(chan *node, len(e.nodes))

	logger.Debug("Seeding ready queue with root jobs.")
	rootCount := 0
	for _, n := range e.nodes {
		if n.depCount.Load() == 0 {
			readyChan <- n
			rootCount++
		}
	}
	logger.Debug("Found all root jobs.", "count", rootCount)

	e.wg.Add(len(e.nodes))

	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(ctx, readyChan, i)
	}

	e.wg.Wait()
	close(readyChan)
	logger.Debug("All jobs reached a terminal state.")

	return e.summarize(ctx)
}

// createJobRuns persists one pending job run per graph node before any
// execution starts, so observers see the whole run shape immediately.
func (e *Executor) createJobRuns(ctx context.Context) error {
	for _, name := range e.wf.JobNames() {
		n := e.nodes[name]
		rec := &model.JobRun{
			RunID:   e.run.ID,
			Name:    name,
			Status:  model.StatusPending,
			UsesRef: n.job.Uses,
		}
		if err := e.store.CreateJobRun(ctx, rec); err != nil {
			return fmt.Errorf("creating job run %q: %w", name, err)
		}
		n.rec = rec
		e.notifier.JobTransition(ctx, rec)
	}
	return nil
}

// worker is the processing loop for one concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *node, workerID int) {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID)
	logger.Debug("Worker started.")

	for n := range readyChan {
		jobLogger := logger.With("job", n.name)

		final, err := e.executeNode(ctx, n)
		if err != nil {
			jobLogger.Error("Job failed.", "error", err)
		} else {
			jobLogger.Debug("Job reached terminal state.", "status", final.status())
		}

		n.mu.Lock()
		n.err = err
		n.mu.Unlock()
		n.setState(final)
		e.persist(ctx, n)

		for _, depName := range n.dependents {
			dependent := e.nodes[depName]
			if dependent.depCount.Add(-1) == 0 {
				jobLogger.Debug("Unlocking dependent job.", "dependent", depName)
				readyChan <- dependent
			}
		}

		e.wg.Done()
	}
	logger.Debug("Worker finished.")
}

// executeNode decides whether a ready node runs, then runs it. All of the
// node's dependencies are terminal by the time it is dequeued.
func (e *Executor) executeNode(ctx context.Context, n *node) (nodeState, error) {
	needs, status := e.needsOutcome(n)
	cancelled := ctx.Err() != nil
	status.Cancelled = cancelled

	scope := e.scope.WithNeeds(needs)

	shouldRun := status.NeedsSucceeded && !cancelled
	if n.job.If != "" {
		ok, err := expr.EvalCondition(n.job.If, scope.WithStatus(status))
		if err != nil {
			return stateFailed, fmt.Errorf("job %q: %w", n.name, err)
		}
		shouldRun = ok
	}

	if !shouldRun {
		if cancelled {
			return stateCancelled, nil
		}
		if status.NeedFailed {
			return stateSkippedUpstream, nil
		}
		return stateSkipped, nil
	}

	// Admitted: transition to running before invoking.
	n.setState(stateRunning)
	e.persist(ctx, n)

	params, err := e.resolveParams(n, scope)
	if err != nil {
		return stateFailed, err
	}

	n.mu.Lock()
	n.rec.Params = params
	n.mu.Unlock()

	spec := InvokeSpec{
		Workflow:       e.wf.Name,
		Job:            n.name,
		UsesRef:        n.job.Uses,
		Script:         n.job.Run,
		Params:         params,
		InheritSecrets: n.job.Secrets.Inherit,
		Timeout:        n.job.Timeout.Std(),
		RunID:          e.run.ID,
		RunNumber:      e.run.RunNumber,
	}

	outputs, err := e.invoker.Invoke(ctx, spec)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return stateCancelled, err
		}
		return stateFailed, fmt.Errorf("job %q: %w", n.name, err)
	}

	n.mu.Lock()
	n.outputs = outputs
	n.mu.Unlock()
	return stateSucceeded, nil
}

// needsOutcome folds the terminal states of a node's dependencies into the
// need results exposed to expressions and the status the `if` predicates
// see.
func (e *Executor) needsOutcome(n *node) (map[string]expr.NeedResult, expr.JobStatus) {
	needs := make(map[string]expr.NeedResult, len(n.deps))
	status := expr.JobStatus{NeedsSucceeded: true}

	for _, depName := range n.deps {
		dep := e.nodes[depName]
		depState := dep.getState()

		dep.mu.Lock()
		outputs := dep.outputs
		dep.mu.Unlock()

		needs[depName] = expr.NeedResult{
			Result:  string(depState.status()),
			Outputs: outputs,
		}

		if depState != stateSucceeded {
			status.NeedsSucceeded = false
		}
		// Only failure-driven terminal states count as failed needs; a
		// dependency skipped by its own false condition fails nothing.
		if depState == stateFailed || depState == stateSkippedUpstream {
			status.NeedFailed = true
		}
	}
	return needs, status
}

// resolveParams renders every `with` value against the job's scope.
func (e *Executor) resolveParams(n *node, scope *expr.Scope) (map[string]string, error) {
	if len(n.job.With) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(n.job.With))
	for key, tmpl := range n.job.With {
		val, err := expr.EvalTemplate(tmpl, scope)
		if err != nil {
			return nil, fmt.Errorf("job %q: with.%s: %w", n.name, key, err)
		}
		params[key] = val
	}
	return params, nil
}

// persist writes the node's current state through the store and the
// notifier. Persistence failures are logged, not fatal: losing a status
// update must not take the run down with it.
func (e *Executor) persist(ctx context.Context, n *node) {
	n.mu.Lock()
	state := n.getState()
	n.rec.Status = state.status()
	now := time.Now().UTC()
	if state == stateRunning && n.rec.StartedAt == nil {
		n.rec.StartedAt = &now
		n.rec.Attempts++
	}
	if state.status().Terminal() && n.rec.FinishedAt == nil {
		n.rec.FinishedAt = &now
	}
	if n.err != nil {
		n.rec.Error = n.err.Error()
	}
	n.rec.Outputs = n.outputs
	rec := *n.rec
	n.mu.Unlock()

	if err := e.store.UpdateJobRun(ctx, &rec); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to persist job transition.", "job", n.name, "error", err)
	}
	e.notifier.JobTransition(ctx, &rec)
}

// summarize folds all terminal job states into the run's terminal status
// and a root-cause error.
func (e *Executor) summarize(ctx context.Context) (model.Status, error) {
	var failedJobs []string
	var rootCause error
	cancelled := false

	for _, name := range e.wf.JobNames() {
		n := e.nodes[name]
		switch n.getState() {
		case stateFailed:
			failedJobs = append(failedJobs, name)
			n.mu.Lock()
			if rootCause == nil && n.err != nil && !errors.Is(n.err, context.Canceled) {
				rootCause = n.err
			}
			n.mu.Unlock()
		case stateCancelled:
			cancelled = true
		}
	}

	if len(failedJobs) > 0 {
		if rootCause == nil {
			rootCause = fmt.Errorf("job(s) failed")
		}
		return model.StatusFailed, fmt.Errorf("execution failed for %s: %w", strings.Join(failedJobs, ", "), rootCause)
	}
	if cancelled || ctx.Err() != nil {
		return model.StatusCancelled, nil
	}
	return model.StatusSucceeded, nil
}
