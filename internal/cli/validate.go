package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vk/gridci/internal/fsutil"
	"github.com/vk/gridci/internal/workflow"
)

func newValidateCmd(outW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Parse and validate workflow files without running anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(outW, args[0])
		},
	}
}

// runValidate checks every workflow file under path and reports all
// findings, file by file, instead of stopping at the first broken one.
func runValidate(outW io.Writer, path string) error {
	files, err := workflowFiles(path)
	if err != nil {
		return err
	}

	problems := 0
	for _, file := range files {
		wf, err := workflow.ParseFile(file)
		if err != nil {
			problems++
			fmt.Fprintf(outW, "✗ %s\n  %v\n", file, err)
			continue
		}
		if err := workflow.Validate(wf); err != nil {
			problems++
			fmt.Fprintf(outW, "✗ %s (workflow %q)\n", file, wf.Name)
			for _, line := range errorLines(err) {
				fmt.Fprintf(outW, "  %s\n", line)
			}
			continue
		}
		fmt.Fprintf(outW, "✓ %s (workflow %q, %d jobs)\n", file, wf.Name, len(wf.Jobs))
	}

	if problems > 0 {
		return &ExitError{Code: 1, Message: fmt.Sprintf("%d of %d workflow file(s) failed validation", problems, len(files))}
	}
	fmt.Fprintf(outW, "%d workflow file(s) valid\n", len(files))
	return nil
}

// workflowFiles resolves a file or directory argument to the list of
// workflow files to check.
func workflowFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("workflow path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	files, err := fsutil.FindFilesByExtension(path, ".yaml", ".yml")
	if err != nil {
		return nil, fmt.Errorf("discovering workflow files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no workflow files found under %s", path)
	}
	return files, nil
}

// errorLines splits an errors.Join aggregate into its individual messages
// for line-by-line reporting.
func errorLines(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var lines []string
		for _, e := range joined.Unwrap() {
			lines = append(lines, e.Error())
		}
		return lines
	}
	return []string{err.Error()}
}
