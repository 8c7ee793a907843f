package expr

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// RunMeta is the flattened event/run context expressions evaluate against.
type RunMeta struct {
	Workflow   string
	Ref        string
	RefName    string
	SHA        string
	Event      string
	Repository string
	RunID      int64
	RunNumber  int64
	Actor      string
}

// NeedResult is the visible outcome of one upstream job, exposed to
// dependent jobs as needs.<name>.result and needs.<name>.outputs.<key>.
type NeedResult struct {
	Result  string
	Outputs map[string]string
}

// Scope holds the variables and functions one evaluation sees. Scopes are
// built per run and narrowed per job; they are immutable once built.
type Scope struct {
	variables map[string]cty.Value
	functions map[string]function.Function
}

// NewScope builds the base evaluation scope for a run. The run metadata is
// exposed twice: flattened at the top level (`workflow`, `ref`, ...) and
// namespaced under `github.*` for familiarity.
func NewScope(meta RunMeta, inputs map[string]cty.Value) *Scope {
	fields := map[string]cty.Value{
		"workflow":   cty.StringVal(meta.Workflow),
		"ref":        cty.StringVal(meta.Ref),
		"ref_name":   cty.StringVal(meta.RefName),
		"sha":        cty.StringVal(meta.SHA),
		"event":      cty.StringVal(meta.Event),
		"repository": cty.StringVal(meta.Repository),
		"run_id":     cty.NumberIntVal(meta.RunID),
		"run_number": cty.NumberIntVal(meta.RunNumber),
		"actor":      cty.StringVal(meta.Actor),
	}

	variables := make(map[string]cty.Value, len(fields)+2)
	for k, v := range fields {
		variables[k] = v
	}
	variables["github"] = cty.ObjectVal(fields)

	if len(inputs) > 0 {
		variables["inputs"] = cty.ObjectVal(inputs)
	} else {
		variables["inputs"] = cty.EmptyObjectVal
	}

	return &Scope{
		variables: variables,
		functions: coreFunctions(),
	}
}

// WithNeeds returns a child scope that additionally exposes the outcomes of
// the job's dependencies. Only job-level `if` and `with` evaluation sees
// this.
func (s *Scope) WithNeeds(needs map[string]NeedResult) *Scope {
	child := s.clone()

	jobVals := make(map[string]cty.Value, len(needs))
	for name, need := range needs {
		outputs := make(map[string]cty.Value, len(need.Outputs))
		for k, v := range need.Outputs {
			outputs[k] = cty.StringVal(v)
		}
		outputsVal := cty.EmptyObjectVal
		if len(outputs) > 0 {
			outputsVal = cty.ObjectVal(outputs)
		}
		jobVals[name] = cty.ObjectVal(map[string]cty.Value{
			"result":  cty.StringVal(need.Result),
			"outputs": outputsVal,
		})
	}

	if len(jobVals) > 0 {
		child.variables["needs"] = cty.ObjectVal(jobVals)
	} else {
		child.variables["needs"] = cty.EmptyObjectVal
	}
	return child
}

// WithStatus returns a child scope carrying the status functions success(),
// failure(), cancelled(), and always(). Only `if` conditions see these.
func (s *Scope) WithStatus(st JobStatus) *Scope {
	child := s.clone()
	for name, fn := range statusFunctions(st) {
		child.functions[name] = fn
	}
	return child
}

func (s *Scope) clone() *Scope {
	variables := make(map[string]cty.Value, len(s.variables))
	for k, v := range s.variables {
		variables[k] = v
	}
	functions := make(map[string]function.Function, len(s.functions))
	for k, v := range s.functions {
		functions[k] = v
	}
	return &Scope{variables: variables, functions: functions}
}

func (s *Scope) evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: s.variables,
		Functions: s.functions,
	}
}
