package service

import (
	"context"
	"fmt"

	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/dispatch"
	"github.com/vk/gridci/internal/executor"
)

// JobInvoker is the production executor.Invoker: `uses` jobs go to the
// dispatch endpoint, `run` jobs through the local shell.
type JobInvoker struct {
	client *dispatch.Client
}

// NewJobInvoker wraps a dispatch client. A nil client is allowed for
// deployments that only run local script jobs; dispatching a `uses` job
// then fails with a configuration error.
func NewJobInvoker(client *dispatch.Client) *JobInvoker {
	return &JobInvoker{client: client}
}

// Invoke implements executor.Invoker.
func (i *JobInvoker) Invoke(ctx context.Context, spec executor.InvokeSpec) (map[string]string, error) {
	if spec.UsesRef != "" {
		return i.invokeRemote(ctx, spec)
	}
	out, err := dispatch.RunScript(ctx, spec.Script, spec.Timeout)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Script output captured.", "job", spec.Job, "bytes", len(out))
	return map[string]string{"output": out}, nil
}

func (i *JobInvoker) invokeRemote(ctx context.Context, spec executor.InvokeSpec) (map[string]string, error) {
	if i.client == nil {
		return nil, fmt.Errorf("job %q uses %q but no dispatch endpoint is configured", spec.Job, spec.UsesRef)
	}

	ref, err := dispatch.ParseRef(spec.UsesRef)
	if err != nil {
		return nil, err
	}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	result, err := i.client.Dispatch(ctx, ref, dispatch.Request{
		Workflow:  spec.Workflow,
		Job:       spec.Job,
		RunID:     spec.RunID,
		RunNumber: spec.RunNumber,
		Inputs:    spec.Params,
	}, spec.InheritSecrets)
	if err != nil {
		return nil, err
	}
	if result.Result != "succeeded" && result.Result != "success" {
		return result.Outputs, fmt.Errorf("callee reported result %q", result.Result)
	}
	return result.Outputs, nil
}
