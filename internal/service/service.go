// Package service coordinates the run lifecycle: matching triggers to
// workflows, creating runs, admitting them through their concurrency
// groups, and driving the executor. The HTTP server and the CLI are thin
// shells over this package.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/gridci/internal/concurrency"
	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/event"
	"github.com/vk/gridci/internal/executor"
	"github.com/vk/gridci/internal/expr"
	"github.com/vk/gridci/internal/model"
	"github.com/vk/gridci/internal/notify"
	"github.com/vk/gridci/internal/store"
	"github.com/vk/gridci/internal/workflow"
)

// ErrUnknownWorkflow is returned for dispatches against undeclared names.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// ErrCancelledByAPI is the cancellation cause for explicit cancel requests.
var ErrCancelledByAPI = errors.New("cancelled via API")

// Service owns the loaded workflows and runs them.
type Service struct {
	store     store.Store
	notifier  notify.Notifier
	invoker   executor.Invoker
	groups    *concurrency.Manager
	workflows map[string]*workflow.Workflow
	workers   int

	// runWG tracks asynchronously launched runs so Serve can drain them
	// on shutdown.
	runWG sync.WaitGroup
}

// New builds a Service over already validated workflows.
func New(st store.Store, notifier notify.Notifier, invoker executor.Invoker, workflows []*workflow.Workflow, workers int) *Service {
	byName := make(map[string]*workflow.Workflow, len(workflows))
	for _, wf := range workflows {
		byName[wf.Name] = wf
	}
	return &Service{
		store:     st,
		notifier:  notifier,
		invoker:   invoker,
		groups:    concurrency.NewManager(),
		workflows: byName,
		workers:   workers,
	}
}

// Workflow returns a loaded workflow by name.
func (s *Service) Workflow(name string) (*workflow.Workflow, bool) {
	wf, ok := s.workflows[name]
	return wf, ok
}

// HandlePush matches the push event against every loaded workflow's
// on.push trigger and creates one run per match. Runs execute
// asynchronously; the created records are returned immediately.
func (s *Service) HandlePush(ctx context.Context, ev event.PushEvent) ([]*model.Run, error) {
	logger := ctxlog.FromContext(ctx)
	branch := ev.Branch()
	if branch == "" {
		logger.Debug("Ignoring push to non-branch ref.", "ref", ev.Ref)
		return nil, nil
	}

	var created []*model.Run
	for _, name := range sortedNames(s.workflows) {
		wf := s.workflows[name]
		if wf.On.Push == nil {
			continue
		}
		matched, err := workflow.MatchBranch(wf.On.Push.Branches, branch)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", name, err)
		}
		if !matched {
			continue
		}

		run, scope, err := s.createRun(ctx, wf, event.Push, ev.Ref, ev.After, ev.Sender, ev.Repository, nil)
		if err != nil {
			return nil, err
		}
		logger.Info("Push matched workflow, run created.", "workflow", name, "runID", run.ID, "branch", branch)
		created = append(created, run)
		s.launch(ctx, wf, run, scope)
	}
	return created, nil
}

// DispatchWorkflow creates a run for a manual workflow_dispatch trigger
// with the given inputs. The run executes asynchronously.
func (s *Service) DispatchWorkflow(ctx context.Context, name, ref, actor string, inputs map[string]any) (*model.Run, error) {
	wf, ok := s.workflows[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflow, name)
	}
	if wf.On.WorkflowDispatch == nil {
		return nil, fmt.Errorf("workflow %q does not accept workflow_dispatch", name)
	}

	resolved, err := workflow.ResolveInputs(wf.On.WorkflowDispatch, inputs)
	if err != nil {
		return nil, err
	}

	run, scope, err := s.createRun(ctx, wf, event.WorkflowDispatch, ref, "", actor, "", resolved)
	if err != nil {
		return nil, err
	}
	s.launch(ctx, wf, run, scope)
	return run, nil
}

// RunWorkflow creates and immediately executes a run for a workflow,
// regardless of its declared triggers. This is the one-shot CLI path: a
// push-triggered workflow can be exercised locally without a webhook.
// Inputs are only accepted when the workflow declares workflow_dispatch.
func (s *Service) RunWorkflow(ctx context.Context, name, ref, actor string, inputs map[string]any) (*model.Run, error) {
	wf, ok := s.workflows[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflow, name)
	}

	resolved, err := workflow.ResolveInputs(wf.On.WorkflowDispatch, inputs)
	if err != nil {
		return nil, err
	}

	run, scope, err := s.createRun(ctx, wf, event.WorkflowDispatch, ref, "", actor, "", resolved)
	if err != nil {
		return nil, err
	}
	s.launch(ctx, wf, run, scope)
	return run, nil
}

// ExecuteRun drives one already created run to completion, synchronously.
// It is the single run path: the async launches and the one-shot CLI both
// end up here.
func (s *Service) ExecuteRun(ctx context.Context, wf *workflow.Workflow, run *model.Run, scope *expr.Scope) (model.Status, error) {
	logger := ctxlog.FromContext(ctx).With("workflow", wf.Name, "runID", run.ID)

	cancelInProgress := false
	if wf.Concurrency != nil {
		cancelInProgress = wf.Concurrency.CancelInProgress
	}

	if cancelInProgress {
		// Pending runs parked behind the group are stale now too.
		if ids, err := s.store.CancelPendingRuns(ctx, run.ConcurrencyGroup, run.ID); err != nil {
			logger.Warn("Failed to cancel pending runs in group.", "error", err)
		} else if len(ids) > 0 {
			logger.Info("Superseded pending runs cancelled.", "runIDs", ids)
		}
	}

	runCtx, release, err := s.groups.Acquire(ctx, run.ID, run.ConcurrencyGroup, cancelInProgress)
	if err != nil {
		if errors.Is(err, concurrency.ErrSuperseded) {
			s.transitionRun(ctx, run, model.StatusCancelled)
			return model.StatusCancelled, nil
		}
		s.transitionRun(ctx, run, model.StatusCancelled)
		return model.StatusCancelled, err
	}
	defer release()

	s.transitionRun(ctx, run, model.StatusRunning)

	graph, err := workflow.Graph(wf)
	if err != nil {
		s.transitionRun(ctx, run, model.StatusFailed)
		return model.StatusFailed, err
	}

	exec, err := executor.New(wf, graph, run, scope, s.store, s.notifier, s.invoker, s.workers)
	if err != nil {
		s.transitionRun(ctx, run, model.StatusFailed)
		return model.StatusFailed, err
	}

	logger.Info("Starting concurrent execution.", "jobs", graph.Len(), "workers", s.workers)
	status, execErr := exec.Run(runCtx)

	// A run displaced mid-flight ends cancelled regardless of how far the
	// executor got.
	if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		if errors.Is(cause, concurrency.ErrSuperseded) || errors.Is(cause, ErrCancelledByAPI) {
			status = model.StatusCancelled
			execErr = nil
		}
	}

	s.transitionRun(ctx, run, status)
	logger.Info("Execution finished.", "status", status)
	return status, execErr
}

// CancelRun cancels a run: a live run's context is cancelled, a pending
// run is cancelled in the store.
func (s *Service) CancelRun(ctx context.Context, runID int64) error {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("run %d already %s", runID, run.Status)
	}

	if s.groups.Cancel(runID, ErrCancelledByAPI) {
		return nil
	}
	// Not admitted yet; flip it directly.
	s.transitionRun(ctx, run, model.StatusCancelled)
	return nil
}

// Wait blocks until every asynchronously launched run has finished.
func (s *Service) Wait() {
	s.runWG.Wait()
}

// launch runs the executor in the background. The run keeps the logger of
// the launching context but is detached from its cancellation: an HTTP
// request finishing must not cancel the run it created.
func (s *Service) launch(ctx context.Context, wf *workflow.Workflow, run *model.Run, scope *expr.Scope) {
	logger := ctxlog.FromContext(ctx)
	runCtx := ctxlog.WithLogger(context.Background(), logger)

	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		if _, err := s.ExecuteRun(runCtx, wf, run, scope); err != nil {
			logger.Error("Run failed.", "runID", run.ID, "error", err)
		}
	}()
}

// createRun allocates a run number, evaluates the concurrency group, and
// persists the pending run.
func (s *Service) createRun(ctx context.Context, wf *workflow.Workflow, eventName, ref, sha, actor, repository string, inputs map[string]cty.Value) (*model.Run, *expr.Scope, error) {
	number, err := s.store.NextRunNumber(ctx, wf.Name)
	if err != nil {
		return nil, nil, err
	}

	meta := expr.RunMeta{
		Workflow:   wf.Name,
		Ref:        ref,
		RefName:    refName(ref),
		SHA:        sha,
		Event:      eventName,
		Repository: repository,
		RunNumber:  number,
		Actor:      actor,
	}
	scope := expr.NewScope(meta, inputs)

	group, err := concurrencyGroup(wf, meta, scope)
	if err != nil {
		return nil, nil, err
	}

	run := &model.Run{
		WorkflowName:     wf.Name,
		RunNumber:        number,
		Event:            eventName,
		Ref:              ref,
		SHA:              sha,
		ConcurrencyGroup: group,
		Status:           model.StatusPending,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, nil, err
	}
	s.notifier.RunTransition(ctx, run)

	// The scope was built before the store assigned the ID; rebuild with
	// the final identifiers.
	meta.RunID = run.ID
	scope = expr.NewScope(meta, inputs)

	return run, scope, nil
}

// concurrencyGroup evaluates the declared group expression, defaulting to
// workflow name + ref when the workflow declares none.
func concurrencyGroup(wf *workflow.Workflow, meta expr.RunMeta, scope *expr.Scope) (string, error) {
	if wf.Concurrency == nil {
		return fmt.Sprintf("%s-%s", meta.Workflow, meta.Ref), nil
	}
	group, err := expr.EvalTemplate(wf.Concurrency.Group, scope)
	if err != nil {
		return "", fmt.Errorf("concurrency group: %w", err)
	}
	return group, nil
}

func refName(ref string) string {
	const prefix = "refs/heads/"
	if len(ref) > len(prefix) && ref[:len(prefix)] == prefix {
		return ref[len(prefix):]
	}
	return ref
}

func (s *Service) transitionRun(ctx context.Context, run *model.Run, status model.Status) {
	run.Status = status
	if err := s.store.UpdateRunStatus(ctx, run.ID, status); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to persist run transition.", "runID", run.ID, "error", err)
	}
	s.notifier.RunTransition(ctx, run)
}

func sortedNames(workflows map[string]*workflow.Workflow) []string {
	names := make([]string, 0, len(workflows))
	for name := range workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
