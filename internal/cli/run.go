package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vk/gridci/internal/app"
	"github.com/vk/gridci/internal/workflow"
)

func newRunCmd(outW io.Writer, flags *rootFlags) *cobra.Command {
	var (
		workflowName string
		ref          string
		actor        string
		inputs       []string
		workers      int
		dispatchURL  string
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute one workflow locally with an in-memory store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.NewConfig(app.Config{
				WorkflowPath: args[0],
				DispatchURL:  dispatchURL,
				LogFormat:    flags.logFormat,
				LogLevel:     flags.logLevel,
				WorkerCount:  workers,
			})
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}

			a := app.NewApp(outW, cfg)
			defer a.Close()

			wf, err := selectWorkflow(a.Workflows(), workflowName)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}

			typed, err := coerceInputs(wf, inputs)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}

			if err := a.Run(cmd.Context(), wf.Name, ref, actor, typed); err != nil {
				return &ExitError{Code: 1, Message: err.Error()}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowName, "workflow", "", "Workflow to run when the file declares more than one.")
	cmd.Flags().StringVar(&ref, "ref", "refs/heads/main", "Git ref the run is attributed to.")
	cmd.Flags().StringVar(&actor, "actor", "local", "Actor recorded on the run.")
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "Workflow input as key=value. Repeatable.")
	cmd.Flags().IntVar(&workers, "workers", 4, "Number of concurrent workers for the executor.")
	cmd.Flags().StringVar(&dispatchURL, "dispatch-url", "", "Base URL of the runner endpoint for 'uses' jobs.")

	return cmd
}

// selectWorkflow picks the workflow to run. An explicit name wins; with no
// name the file must declare exactly one workflow.
func selectWorkflow(workflows []*workflow.Workflow, name string) (*workflow.Workflow, error) {
	if name != "" {
		for _, wf := range workflows {
			if wf.Name == name {
				return wf, nil
			}
		}
		return nil, fmt.Errorf("workflow %q not found (loaded: %s)", name, workflowNames(workflows))
	}
	if len(workflows) != 1 {
		return nil, fmt.Errorf("path declares %d workflows, pick one with --workflow (loaded: %s)",
			len(workflows), workflowNames(workflows))
	}
	return workflows[0], nil
}

func workflowNames(workflows []*workflow.Workflow) string {
	names := make([]string, 0, len(workflows))
	for _, wf := range workflows {
		names = append(names, wf.Name)
	}
	return strings.Join(names, ", ")
}

// coerceInputs converts --input key=value pairs to the types the workflow
// declares for them, so "42" becomes a number input and "true" a boolean.
func coerceInputs(wf *workflow.Workflow, pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	declared := map[string]*workflow.Input{}
	if wf.On.WorkflowDispatch != nil {
		declared = wf.On.WorkflowDispatch.Inputs
	}

	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("input %q is not of the form key=value", pair)
		}

		input, ok := declared[key]
		if !ok {
			return nil, fmt.Errorf("undeclared input %q", key)
		}

		switch input.Type {
		case "number":
			num, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("input %q: %q is not a number", key, raw)
			}
			out[key] = num
		case "boolean":
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("input %q: %q is not a boolean", key, raw)
			}
			out[key] = b
		default:
			out[key] = raw
		}
	}
	return out, nil
}
