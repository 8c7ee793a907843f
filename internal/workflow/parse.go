package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes one workflow document from src. Unknown fields are rejected
// so typos in job attributes fail loudly at load time instead of being
// silently ignored.
func Parse(src []byte) (*Workflow, error) {
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)

	var wf Workflow
	if err := dec.Decode(&wf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty workflow document")
		}
		return nil, fmt.Errorf("decoding workflow: %w", err)
	}

	// A second document in the same file is almost always an accident.
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("workflow file must contain exactly one document")
	}

	normalize(&wf)
	return &wf, nil
}

// ParseFile reads and parses a workflow file. A missing `name` defaults to
// the file's base name without extension.
func ParseFile(path string) (*Workflow, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	wf, err := Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if wf.Name == "" {
		base := filepath.Base(path)
		wf.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return wf, nil
}

// normalize fills in the structural defaults the rest of the system relies
// on, so downstream code never nil-checks the maps.
func normalize(wf *Workflow) {
	if wf.Jobs == nil {
		wf.Jobs = make(map[string]*Job)
	}
	for _, job := range wf.Jobs {
		if job == nil {
			continue
		}
		if job.With == nil {
			job.With = make(WithParams)
		}
	}
	if wf.On.WorkflowDispatch != nil && wf.On.WorkflowDispatch.Inputs == nil {
		wf.On.WorkflowDispatch.Inputs = make(map[string]*Input)
	}
}
