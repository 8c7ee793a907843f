package expr

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// ParseTemplate checks that s is a syntactically valid template. Plain
// strings without any `${ }` interpolation are valid templates too.
func ParseTemplate(s string) error {
	_, diags := hclsyntax.ParseTemplate([]byte(s), "inline", hcl.InitialPos)
	if diags.HasErrors() {
		return fmt.Errorf("invalid expression template %q: %s", s, diags.Error())
	}
	return nil
}

// ParseCondition checks that s is a syntactically valid condition
// expression. The surrounding `${ }` is optional.
func ParseCondition(s string) error {
	_, diags := hclsyntax.ParseExpression([]byte(stripWrapper(s)), "inline", hcl.InitialPos)
	if diags.HasErrors() {
		return fmt.Errorf("invalid condition %q: %s", s, diags.Error())
	}
	return nil
}

// EvalTemplate evaluates a template string against the scope and returns the
// rendered string. Unknown variables and functions are errors.
func EvalTemplate(s string, scope *Scope) (string, error) {
	tmpl, diags := hclsyntax.ParseTemplate([]byte(s), "inline", hcl.InitialPos)
	if diags.HasErrors() {
		return "", fmt.Errorf("invalid expression template %q: %s", s, diags.Error())
	}

	val, diags := tmpl.Value(scope.evalContext())
	if diags.HasErrors() {
		return "", fmt.Errorf("evaluating %q: %s", s, diags.Error())
	}

	strVal, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("evaluating %q: result is not a string: %w", s, err)
	}
	if strVal.IsNull() {
		return "", fmt.Errorf("evaluating %q: result is null", s)
	}
	return strVal.AsString(), nil
}

// EvalCondition evaluates a condition expression against the scope and
// returns its boolean result.
func EvalCondition(s string, scope *Scope) (bool, error) {
	e, diags := hclsyntax.ParseExpression([]byte(stripWrapper(s)), "inline", hcl.InitialPos)
	if diags.HasErrors() {
		return false, fmt.Errorf("invalid condition %q: %s", s, diags.Error())
	}

	val, diags := e.Value(scope.evalContext())
	if diags.HasErrors() {
		return false, fmt.Errorf("evaluating condition %q: %s", s, diags.Error())
	}

	boolVal, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("condition %q did not produce a boolean: %w", s, err)
	}
	if boolVal.IsNull() {
		return false, fmt.Errorf("condition %q produced null", s)
	}
	return boolVal.True(), nil
}

// stripWrapper unwraps a condition written in the `${ expr }` form so both
// the bare and the wrapped spellings evaluate identically.
func stripWrapper(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "${") && strings.HasSuffix(trimmed, "}") {
		inner := trimmed[2 : len(trimmed)-1]
		// Reject things like "${a}-${b}" which are templates, not a single
		// wrapped expression.
		if !strings.Contains(inner, "${") {
			return inner
		}
	}
	return trimmed
}
