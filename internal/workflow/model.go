package workflow

import (
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Workflow is one parsed workflow document.
type Workflow struct {
	Name        string          `yaml:"name"`
	On          Triggers        `yaml:"on"`
	Concurrency *Concurrency    `yaml:"concurrency"`
	Jobs        map[string]*Job `yaml:"jobs"`
}

// Triggers declares the events that instantiate the workflow.
type Triggers struct {
	Push             *PushTrigger     `yaml:"push"`
	WorkflowDispatch *DispatchTrigger `yaml:"workflow_dispatch"`
}

// PushTrigger fires on pushes whose branch matches one of the patterns.
// A leading '!' negates a pattern, subtracting from earlier matches.
type PushTrigger struct {
	Branches []string `yaml:"branches"`
}

// DispatchTrigger fires on an explicit manual dispatch with typed inputs.
type DispatchTrigger struct {
	Inputs map[string]*Input `yaml:"inputs"`
}

// Input is a single declared workflow_dispatch input.
type Input struct {
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
	Default     any    `yaml:"default"`
}

// Concurrency groups runs so that at most one per evaluated group expression
// is in progress.
type Concurrency struct {
	Group            string `yaml:"group"`
	CancelInProgress bool   `yaml:"cancel-in-progress"`
}

// Job is a single node of the workflow's dependency graph. Exactly one of
// Uses (invoke a pinned external reusable workflow) or Run (execute a local
// script) must be set.
type Job struct {
	Uses    string        `yaml:"uses"`
	Run     string        `yaml:"run"`
	Needs   NeedsList     `yaml:"needs"`
	With    WithParams    `yaml:"with"`
	Secrets SecretsPolicy `yaml:"secrets"`
	If      string        `yaml:"if"`
	Timeout Duration      `yaml:"timeout"`
}

// NeedsList accepts both the scalar and the sequence YAML forms:
//
//	needs: checks
//	needs: [checks, conda-cpp-build]
type NeedsList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *NeedsList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*n = NeedsList{single}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*n = NeedsList(list)
		return nil
	default:
		return fmt.Errorf("line %d: needs must be a job name or a list of job names", value.Line)
	}
}

// WithParams is the `with` parameter mapping. Scalar values of any YAML type
// are accepted and carried as their literal string form, since the callee
// boundary is stringly typed.
type WithParams map[string]string

// UnmarshalYAML implements yaml.Unmarshaler.
func (w *WithParams) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: with must be a mapping", value.Line)
	}
	out := make(WithParams, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]
		if valNode.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: with value for %q must be a scalar", valNode.Line, keyNode.Value)
		}
		out[keyNode.Value] = valNode.Value
	}
	*w = out
	return nil
}

// SecretsPolicy models the `secrets: inherit` flag. Only the literal
// `inherit` is understood; anything else is a parse error.
type SecretsPolicy struct {
	Inherit bool
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *SecretsPolicy) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: secrets must be the literal 'inherit'", value.Line)
	}
	if raw != "inherit" {
		return fmt.Errorf("line %d: unsupported secrets value %q (only 'inherit')", value.Line, raw)
	}
	s.Inherit = true
	return nil
}

// Duration wraps time.Duration so YAML scalars like "30m" decode directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: timeout must be a duration string", value.Line)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid timeout %q: %w", value.Line, raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// JobNames returns the job names in sorted order. Useful for deterministic
// error reporting and display.
func (w *Workflow) JobNames() []string {
	names := make([]string, 0, len(w.Jobs))
	for name := range w.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
