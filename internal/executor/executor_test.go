package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/expr"
	"github.com/vk/gridci/internal/model"
	"github.com/vk/gridci/internal/notify"
	"github.com/vk/gridci/internal/store"
	"github.com/vk/gridci/internal/workflow"
)

// fakeInvoker scripts per-job outcomes and records invocation order.
type fakeInvoker struct {
	mu      sync.Mutex
	calls   []InvokeSpec
	outputs map[string]map[string]string
	errs    map[string]error
	delays  map[string]time.Duration
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{
		outputs: make(map[string]map[string]string),
		errs:    make(map[string]error),
		delays:  make(map[string]time.Duration),
	}
}

func (f *fakeInvoker) Invoke(ctx context.Context, spec InvokeSpec) (map[string]string, error) {
	if d, ok := f.delays[spec.Job]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, spec)
	f.mu.Unlock()

	if err, ok := f.errs[spec.Job]; ok {
		return nil, err
	}
	return f.outputs[spec.Job], nil
}

func (f *fakeInvoker) invoked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		names = append(names, c.Job)
	}
	return names
}

func (f *fakeInvoker) spec(job string) (InvokeSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.Job == job {
			return c, true
		}
	}
	return InvokeSpec{}, false
}

type harness struct {
	wf      *workflow.Workflow
	run     *model.Run
	store   *store.MemoryStore
	invoker *fakeInvoker
	exec    *Executor
	ctx     context.Context
}

func newHarness(t *testing.T, src string, invoker *fakeInvoker) *harness {
	t.Helper()

	wf, err := workflow.Parse([]byte(src))
	require.NoError(t, err)
	require.NoError(t, workflow.Validate(wf))
	graph, err := workflow.Graph(wf)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	run := &model.Run{
		WorkflowName: wf.Name,
		RunNumber:    1,
		Event:        "push",
		Ref:          "refs/heads/pull-request/12",
		Status:       model.StatusRunning,
	}
	require.NoError(t, st.CreateRun(ctx, run))

	scope := expr.NewScope(expr.RunMeta{
		Workflow:  wf.Name,
		Ref:       run.Ref,
		RefName:   "pull-request/12",
		Event:     run.Event,
		RunID:     run.ID,
		RunNumber: run.RunNumber,
	}, nil)

	exec, err := New(wf, graph, run, scope, st, notify.LogNotifier{}, invoker, 4)
	require.NoError(t, err)

	return &harness{wf: wf, run: run, store: st, invoker: invoker, exec: exec, ctx: ctx}
}

func (h *harness) jobStatus(t *testing.T, name string) model.Status {
	t.Helper()
	jobRuns, err := h.store.GetJobRuns(h.ctx, h.run.ID)
	require.NoError(t, err)
	for _, jr := range jobRuns {
		if jr.Name == name {
			return jr.Status
		}
	}
	t.Fatalf("job run %q not found", name)
	return ""
}

const diamondWorkflow = `
name: pr
on:
  push:
    branches: ["pull-request/[0-9]+"]
jobs:
  checks:
    uses: rapidsai/shared-workflows/checks.yaml@cuda-118
  conda-cpp-build:
    needs: [checks]
    uses: rapidsai/shared-workflows/conda-cpp-build.yaml@cuda-118
    with:
      build_type: pull-request
      node_type: cpu16
  conda-cpp-tests:
    needs: [conda-cpp-build]
    uses: rapidsai/shared-workflows/conda-cpp-tests.yaml@cuda-118
    with:
      artifact: "${ needs[\"conda-cpp-build\"].outputs.artifact }"
  pr-builder:
    needs: [checks, conda-cpp-build, conda-cpp-tests]
    if: "${ always() }"
    uses: rapidsai/shared-workflows/pr-builder.yaml@cuda-118
`

func TestRunAllSucceed(t *testing.T) {
	invoker := newFakeInvoker()
	invoker.outputs["conda-cpp-build"] = map[string]string{"artifact": "libcugraph.tar"}

	h := newHarness(t, diamondWorkflow, invoker)
	status, err := h.exec.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, status)

	for _, name := range []string{"checks", "conda-cpp-build", "conda-cpp-tests", "pr-builder"} {
		assert.Equal(t, model.StatusSucceeded, h.jobStatus(t, name), name)
	}

	// Upstream outputs flow into dependent params.
	spec, ok := invoker.spec("conda-cpp-tests")
	require.True(t, ok)
	assert.Equal(t, "libcugraph.tar", spec.Params["artifact"])

	// Dependency order: checks strictly before its dependents.
	order := invoker.invoked()
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	assert.Less(t, pos["checks"], pos["conda-cpp-build"])
	assert.Less(t, pos["conda-cpp-build"], pos["conda-cpp-tests"])
}

func TestFailureSkipsDependents(t *testing.T) {
	invoker := newFakeInvoker()
	invoker.errs["conda-cpp-build"] = errors.New("compiler exploded")

	h := newHarness(t, diamondWorkflow, invoker)
	status, err := h.exec.Run(h.ctx)
	require.Error(t, err)
	assert.Equal(t, model.StatusFailed, status)
	assert.ErrorContains(t, err, "conda-cpp-build")
	assert.ErrorContains(t, err, "compiler exploded")

	assert.Equal(t, model.StatusSucceeded, h.jobStatus(t, "checks"))
	assert.Equal(t, model.StatusFailed, h.jobStatus(t, "conda-cpp-build"))
	assert.Equal(t, model.StatusSkipped, h.jobStatus(t, "conda-cpp-tests"))

	// The aggregation job declares if: always(), so it still ran.
	assert.Equal(t, model.StatusSucceeded, h.jobStatus(t, "pr-builder"))
	assert.Contains(t, invoker.invoked(), "pr-builder")
	assert.NotContains(t, invoker.invoked(), "conda-cpp-tests")
}

func TestSkippedNeedSkipsDependentByDefault(t *testing.T) {
	src := `
name: pr
jobs:
  gate:
    run: "true"
    if: "${ 1 == 2 }"
  downstream:
    needs: [gate]
    run: "true"
`
	invoker := newFakeInvoker()
	h := newHarness(t, src, invoker)

	status, err := h.exec.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, status)

	assert.Equal(t, model.StatusSkipped, h.jobStatus(t, "gate"))
	assert.Equal(t, model.StatusSkipped, h.jobStatus(t, "downstream"))
	assert.Empty(t, invoker.invoked())
}

func TestFailureConditionIgnoresConditionSkips(t *testing.T) {
	src := `
name: pr
jobs:
  gate:
    run: "true"
    if: "${ 1 == 2 }"
  report-failure:
    needs: [gate]
    if: "${ failure() }"
    run: "notify"
`
	invoker := newFakeInvoker()
	h := newHarness(t, src, invoker)

	status, err := h.exec.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, status)

	// The gate was skipped by its own condition; nothing failed, so the
	// failure handler must not fire.
	assert.Equal(t, model.StatusSkipped, h.jobStatus(t, "gate"))
	assert.Equal(t, model.StatusSkipped, h.jobStatus(t, "report-failure"))
	assert.NotContains(t, invoker.invoked(), "report-failure")
}

func TestFailurePropagatesThroughSkippedChain(t *testing.T) {
	src := `
name: pr
jobs:
  build:
    run: "make"
  tests:
    needs: [build]
    run: "make test"
  report-failure:
    needs: [tests]
    if: "${ failure() }"
    run: "notify"
`
	invoker := newFakeInvoker()
	invoker.errs["build"] = errors.New("boom")

	h := newHarness(t, src, invoker)
	status, err := h.exec.Run(h.ctx)
	require.Error(t, err)
	assert.Equal(t, model.StatusFailed, status)

	// tests was skipped by the build failure, and that failure is still
	// visible one hop further down.
	assert.Equal(t, model.StatusSkipped, h.jobStatus(t, "tests"))
	assert.Equal(t, model.StatusSucceeded, h.jobStatus(t, "report-failure"))
	assert.Contains(t, invoker.invoked(), "report-failure")
}

func TestFailureConditionRunsOnUpstreamFailure(t *testing.T) {
	src := `
name: pr
jobs:
  build:
    run: "make"
  report-failure:
    needs: [build]
    if: "${ failure() }"
    run: "notify"
  celebrate:
    needs: [build]
    if: "${ success() }"
    run: "party"
`
	invoker := newFakeInvoker()
	invoker.errs["build"] = errors.New("boom")

	h := newHarness(t, src, invoker)
	status, err := h.exec.Run(h.ctx)
	require.Error(t, err)
	assert.Equal(t, model.StatusFailed, status)

	assert.Equal(t, model.StatusSucceeded, h.jobStatus(t, "report-failure"))
	assert.Equal(t, model.StatusSkipped, h.jobStatus(t, "celebrate"))
}

func TestIndependentBranchesRunDespiteFailure(t *testing.T) {
	src := `
name: pr
jobs:
  flaky:
    run: "false"
  solid:
    run: "true"
  solid-child:
    needs: [solid]
    run: "true"
`
	invoker := newFakeInvoker()
	invoker.errs["flaky"] = errors.New("flaked")

	h := newHarness(t, src, invoker)
	status, err := h.exec.Run(h.ctx)
	require.Error(t, err)
	assert.Equal(t, model.StatusFailed, status)

	// The failure in one branch never blocks the independent branch.
	assert.Equal(t, model.StatusSucceeded, h.jobStatus(t, "solid"))
	assert.Equal(t, model.StatusSucceeded, h.jobStatus(t, "solid-child"))
}

func TestCancellationMarksRemainingJobsCancelled(t *testing.T) {
	src := `
name: pr
jobs:
  slow:
    run: "sleep 60"
  after:
    needs: [slow]
    run: "true"
`
	invoker := newFakeInvoker()
	invoker.delays["slow"] = 10 * time.Second

	h := newHarness(t, src, invoker)

	ctx, cancel := context.WithCancel(h.ctx)
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	status, err := h.exec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, status)

	assert.Equal(t, model.StatusCancelled, h.jobStatus(t, "slow"))
	assert.Equal(t, model.StatusCancelled, h.jobStatus(t, "after"))
}

func TestInvalidConditionFailsJob(t *testing.T) {
	src := `
name: pr
jobs:
  broken:
    run: "true"
    if: "${ no_such_var }"
`
	invoker := newFakeInvoker()
	h := newHarness(t, src, invoker)

	status, err := h.exec.Run(h.ctx)
	require.Error(t, err)
	assert.Equal(t, model.StatusFailed, status)
	assert.Equal(t, model.StatusFailed, h.jobStatus(t, "broken"))
}

func TestWideFanOutCompletes(t *testing.T) {
	var sb []byte
	sb = append(sb, "name: wide\njobs:\n  seed:\n    run: \"true\"\n"...)
	for i := 0; i < 20; i++ {
		sb = append(sb, fmt.Sprintf("  leaf-%02d:\n    needs: [seed]\n    run: \"true\"\n", i)...)
	}

	invoker := newFakeInvoker()
	h := newHarness(t, string(sb), invoker)

	status, err := h.exec.Run(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, status)
	assert.Len(t, invoker.invoked(), 21)
}
