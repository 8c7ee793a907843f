package expr

import (
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// JobStatus feeds the status functions an `if` condition may call.
type JobStatus struct {
	// NeedsSucceeded is true when every dependency succeeded (or was
	// skipped by its own false condition).
	NeedsSucceeded bool
	// NeedFailed is true when at least one dependency failed or was
	// skipped because of an upstream failure.
	NeedFailed bool
	// Cancelled is true when the run has been cancelled.
	Cancelled bool
}

// coreFunctions returns the function table every expression sees. Most are
// go-cty stdlib functions; the string predicates are defined here because
// the stdlib has no direct equivalents.
func coreFunctions() map[string]function.Function {
	return map[string]function.Function{
		"format":     stdlib.FormatFunc,
		"join":       stdlib.JoinFunc,
		"jsonencode": stdlib.JSONEncodeFunc,
		"lower":      stdlib.LowerFunc,
		"upper":      stdlib.UpperFunc,
		"coalesce":   stdlib.CoalesceFunc,
		"contains":   containsFunc,
		"startswith": startsWithFunc,
		"endswith":   endsWithFunc,
	}
}

// statusFunctions builds the per-job status predicates. They are plain
// closures over the computed status, so evaluation never reaches back into
// the executor.
func statusFunctions(st JobStatus) map[string]function.Function {
	return map[string]function.Function{
		"always":    constBoolFunc(true),
		"success":   constBoolFunc(st.NeedsSucceeded && !st.Cancelled),
		"failure":   constBoolFunc(st.NeedFailed),
		"cancelled": constBoolFunc(st.Cancelled),
	}
}

func constBoolFunc(v bool) function.Function {
	return function.New(&function.Spec{
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			return cty.BoolVal(v), nil
		},
	})
}

var containsFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "haystack", Type: cty.String},
		{Name: "needle", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		return cty.BoolVal(strings.Contains(args[0].AsString(), args[1].AsString())), nil
	},
})

var startsWithFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "s", Type: cty.String},
		{Name: "prefix", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		return cty.BoolVal(strings.HasPrefix(args[0].AsString(), args[1].AsString())), nil
	},
})

var endsWithFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "s", Type: cty.String},
		{Name: "suffix", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		return cty.BoolVal(strings.HasSuffix(args[0].AsString(), args[1].AsString())), nil
	},
})
