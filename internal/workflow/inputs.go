package workflow

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// ResolveInputs checks the given workflow_dispatch input values against the
// declared inputs and returns the typed cty values expressions evaluate
// against: type mismatches are errors, missing required inputs are errors,
// and declared defaults fill the gaps.
func ResolveInputs(trigger *DispatchTrigger, given map[string]any) (map[string]cty.Value, error) {
	if trigger == nil {
		if len(given) > 0 {
			return nil, fmt.Errorf("workflow does not declare workflow_dispatch inputs")
		}
		return nil, nil
	}

	for name := range given {
		if _, ok := trigger.Inputs[name]; !ok {
			return nil, fmt.Errorf("undeclared input %q", name)
		}
	}

	resolved := make(map[string]cty.Value, len(trigger.Inputs))
	for name, input := range trigger.Inputs {
		typ := input.Type
		if typ == "" {
			typ = "string"
		}

		raw, provided := given[name]
		if !provided {
			if input.Default != nil {
				raw = input.Default
			} else if input.Required {
				return nil, fmt.Errorf("required input %q not provided", name)
			} else {
				continue
			}
		}

		val, err := inputValue(typ, raw)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		resolved[name] = val
	}
	return resolved, nil
}

func inputValue(typ string, raw any) (cty.Value, error) {
	switch typ {
	case "string":
		s, ok := raw.(string)
		if !ok {
			return cty.NilVal, fmt.Errorf("expected a string, got %T", raw)
		}
		return cty.StringVal(s), nil
	case "number":
		switch v := raw.(type) {
		case int:
			return cty.NumberIntVal(int64(v)), nil
		case int64:
			return cty.NumberIntVal(v), nil
		case float64:
			return cty.NumberFloatVal(v), nil
		default:
			return cty.NilVal, fmt.Errorf("expected a number, got %T", raw)
		}
	case "boolean":
		b, ok := raw.(bool)
		if !ok {
			return cty.NilVal, fmt.Errorf("expected a boolean, got %T", raw)
		}
		return cty.BoolVal(b), nil
	default:
		return cty.NilVal, fmt.Errorf("unknown input type %q", typ)
	}
}
