package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/gridci/internal/dag"
	"github.com/vk/gridci/internal/expr"
	"github.com/vk/gridci/internal/model"
	"github.com/vk/gridci/internal/notify"
	"github.com/vk/gridci/internal/store"
	"github.com/vk/gridci/internal/workflow"
)

// InvokeSpec is everything an Invoker needs to run one admitted job.
// Params are already fully resolved; no expression evaluation happens past
// this boundary.
type InvokeSpec struct {
	Workflow       string
	Job            string
	UsesRef        string
	Script         string
	Params         map[string]string
	InheritSecrets bool
	Timeout        time.Duration
	RunID          int64
	RunNumber      int64
}

// Invoker executes one job and returns its outputs. The production
// implementation dispatches `uses` jobs over HTTP and `run` jobs through
// the shell; tests substitute fakes.
type Invoker interface {
	Invoke(ctx context.Context, spec InvokeSpec) (map[string]string, error)
}

// nodeState mirrors model.Status as an atomic-friendly enum.
type nodeState int32

const (
	statePending nodeState = iota
	stateRunning
	stateSucceeded
	stateFailed
	stateCancelled
	// stateSkipped marks a job whose own condition (or a merely skipped
	// dependency) kept it from running; nothing failed upstream.
	stateSkipped
	// stateSkippedUpstream marks a job skipped because a dependency
	// failed. The distinction feeds failure() in dependent conditions.
	stateSkippedUpstream
)

func (s nodeState) status() model.Status {
	switch s {
	case stateRunning:
		return model.StatusRunning
	case stateSucceeded:
		return model.StatusSucceeded
	case stateFailed:
		return model.StatusFailed
	case stateCancelled:
		return model.StatusCancelled
	case stateSkipped, stateSkippedUpstream:
		return model.StatusSkipped
	default:
		return model.StatusPending
	}
}

// node is the executor's per-job bookkeeping.
type node struct {
	name string
	job  *workflow.Job
	rec  *model.JobRun

	deps       []string
	dependents []string

	// depCount holds the number of dependencies that have not yet reached
	// a terminal state. The job becomes ready when it hits zero.
	depCount atomic.Int32
	state    atomic.Int32

	// mu guards err and outputs, which workers write once and readers
	// consume only after the node is terminal.
	mu      sync.Mutex
	err     error
	outputs map[string]string
}

func (n *node) setState(s nodeState) { n.state.Store(int32(s)) }
func (n *node) getState() nodeState  { return nodeState(n.state.Load()) }

// Executor runs one instantiated run to completion.
type Executor struct {
	wf         *workflow.Workflow
	run        *model.Run
	scope      *expr.Scope
	store      store.Store
	notifier   notify.Notifier
	invoker    Invoker
	numWorkers int

	nodes map[string]*node
	wg    sync.WaitGroup
}

// New builds an executor over the workflow's validated graph.
func New(wf *workflow.Workflow, graph *dag.Graph, run *model.Run, scope *expr.Scope,
	st store.Store, notifier notify.Notifier, invoker Invoker, numWorkers int) (*Executor, error) {

	if numWorkers <= 0 {
		numWorkers = 4
	}

	e := &Executor{
		wf:         wf,
		run:        run,
		scope:      scope,
		store:      st,
		notifier:   notifier,
		invoker:    invoker,
		numWorkers: numWorkers,
		nodes:      make(map[string]*node, len(wf.Jobs)),
	}

	for _, name := range wf.JobNames() {
		deps, err := graph.Dependencies(name)
		if err != nil {
			return nil, fmt.Errorf("building executor: %w", err)
		}
		dependents, err := graph.Dependents(name)
		if err != nil {
			return nil, fmt.Errorf("building executor: %w", err)
		}

		n := &node{
			name:       name,
			job:        wf.Jobs[name],
			deps:       deps,
			dependents: dependents,
		}
		n.depCount.Store(int32(len(deps)))
		e.nodes[name] = n
	}

	return e, nil
}

// JobError is the recorded failure of one job, if any. Exposed for tests
// and for run summaries.
func (e *Executor) JobError(name string) error {
	n, ok := e.nodes[name]
	if !ok {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}
