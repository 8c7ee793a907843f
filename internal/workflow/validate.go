package workflow

import (
	"errors"
	"fmt"

	"github.com/vk/gridci/internal/dag"
	"github.com/vk/gridci/internal/dispatch"
	"github.com/vk/gridci/internal/expr"
)

// dispatchInputTypes are the accepted workflow_dispatch input types.
var dispatchInputTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
}

// Validate checks the structural integrity of a parsed workflow. All
// problems are accumulated and reported together, so a broken file surfaces
// everything wrong with it in one pass:
//
//   - every name in a `needs` list resolves to a declared job;
//   - the `needs` graph is acyclic;
//   - every `uses` reference parses as owner/repo/path@version with a pin;
//   - the concurrency group and every embedded expression parse;
//   - each job declares exactly one of `uses` / `run`;
//   - trigger branch patterns compile and dispatch inputs are well typed.
func Validate(wf *Workflow) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(wf.Jobs) == 0 {
		fail("workflow %q declares no jobs", wf.Name)
	}

	names := wf.JobNames()

	// Jobs and needs references.
	for _, name := range names {
		job := wf.Jobs[name]
		if job == nil {
			fail("job %q: empty definition", name)
			continue
		}

		switch {
		case job.Uses == "" && job.Run == "":
			fail("job %q: one of 'uses' or 'run' is required", name)
		case job.Uses != "" && job.Run != "":
			fail("job %q: 'uses' and 'run' are mutually exclusive", name)
		}

		if job.Uses != "" {
			if _, err := dispatch.ParseRef(job.Uses); err != nil {
				fail("job %q: %v", name, err)
			}
		}
		if job.Run != "" && len(job.With) > 0 {
			fail("job %q: 'with' is only valid together with 'uses'", name)
		}
		if job.Run != "" && job.Secrets.Inherit {
			fail("job %q: 'secrets: inherit' is only valid together with 'uses'", name)
		}
		if job.Timeout < 0 {
			fail("job %q: negative timeout", name)
		}

		for _, dep := range job.Needs {
			if _, ok := wf.Jobs[dep]; !ok {
				fail("job %q: needs unknown job %q", name, dep)
			}
			if dep == name {
				fail("job %q: cannot need itself", name)
			}
		}

		for key, val := range job.With {
			if err := expr.ParseTemplate(val); err != nil {
				fail("job %q: with.%s: %v", name, key, err)
			}
		}
		if job.If != "" {
			if err := expr.ParseCondition(job.If); err != nil {
				fail("job %q: if: %v", name, err)
			}
		}
	}

	// Dependency graph acyclicity, only meaningful once names resolve.
	if graphErr := validateGraph(wf); graphErr != nil {
		errs = append(errs, graphErr)
	}

	// Concurrency group expression.
	if wf.Concurrency != nil {
		if wf.Concurrency.Group == "" {
			fail("concurrency: group expression is required")
		} else if err := expr.ParseTemplate(wf.Concurrency.Group); err != nil {
			fail("concurrency group: %v", err)
		}
	}

	// Triggers.
	if wf.On.Push != nil {
		for _, pattern := range wf.On.Push.Branches {
			if _, err := CompilePattern(pattern); err != nil {
				fail("on.push: %v", err)
			}
		}
	}
	if wf.On.WorkflowDispatch != nil {
		for name, input := range wf.On.WorkflowDispatch.Inputs {
			if input == nil {
				fail("on.workflow_dispatch: input %q: empty definition", name)
				continue
			}
			typ := input.Type
			if typ == "" {
				typ = "string"
			}
			if !dispatchInputTypes[typ] {
				fail("on.workflow_dispatch: input %q: unknown type %q", name, input.Type)
			}
			if input.Default != nil {
				if err := checkInputDefault(typ, input.Default); err != nil {
					fail("on.workflow_dispatch: input %q: %v", name, err)
				}
			}
		}
	}

	return errors.Join(errs...)
}

// validateGraph builds the needs graph and runs cycle detection. Unresolved
// needs references are reported separately, so unknown names are skipped
// here rather than double-reported.
func validateGraph(wf *Workflow) error {
	g := dag.New()
	for name := range wf.Jobs {
		g.AddNode(name)
	}
	for name, job := range wf.Jobs {
		if job == nil {
			continue
		}
		for _, dep := range job.Needs {
			if dep == name {
				continue
			}
			if _, ok := wf.Jobs[dep]; !ok {
				continue
			}
			if err := g.AddEdge(dep, name); err != nil {
				return err
			}
		}
	}
	return g.DetectCycles()
}

func checkInputDefault(typ string, def any) error {
	switch typ {
	case "string":
		if _, ok := def.(string); !ok {
			return fmt.Errorf("default %v is not a string", def)
		}
	case "number":
		switch def.(type) {
		case int, int64, float64:
		default:
			return fmt.Errorf("default %v is not a number", def)
		}
	case "boolean":
		if _, ok := def.(bool); !ok {
			return fmt.Errorf("default %v is not a boolean", def)
		}
	}
	return nil
}

// Graph builds the validated dependency graph for execution. It assumes
// Validate has passed.
func Graph(wf *Workflow) (*dag.Graph, error) {
	g := dag.New()
	for name := range wf.Jobs {
		g.AddNode(name)
	}
	for name, job := range wf.Jobs {
		for _, dep := range job.Needs {
			if err := g.AddEdge(dep, name); err != nil {
				return nil, fmt.Errorf("building job graph: %w", err)
			}
		}
	}
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}
	return g, nil
}
