package workflow

import (
	"fmt"
	"os"

	"github.com/vk/gridci/internal/fsutil"
)

// Load discovers and parses every workflow file under path. A regular file
// is parsed directly; a directory is walked for *.yaml and *.yml files.
// Each parsed workflow must also pass Validate.
func Load(path string) ([]*Workflow, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("workflow path: %w", err)
	}

	var files []string
	if info.IsDir() {
		files, err = fsutil.FindFilesByExtension(path, ".yaml", ".yml")
		if err != nil {
			return nil, fmt.Errorf("discovering workflow files: %w", err)
		}
	} else {
		files = []string{path}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no workflow files found under %s", path)
	}

	seen := make(map[string]string, len(files))
	workflows := make([]*Workflow, 0, len(files))
	for _, file := range files {
		wf, err := ParseFile(file)
		if err != nil {
			return nil, err
		}
		if err := Validate(wf); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		if prev, dup := seen[wf.Name]; dup {
			return nil, fmt.Errorf("%s: workflow name %q already declared in %s", file, wf.Name, prev)
		}
		seen[wf.Name] = file
		workflows = append(workflows, wf)
	}

	return workflows, nil
}
