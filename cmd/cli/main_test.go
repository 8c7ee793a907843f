package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_PanicRecovery(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A workflow with a broken job graph makes app.NewApp panic during
	// startup; run() must recover it into an ordinary error.
	badWorkflow := `
name: broken
jobs:
  build:
    needs: [no-such-job]
    run: echo hi
`
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "broken.yaml")
	err := os.WriteFile(filePath, []byte(badWorkflow), 0600)
	require.NoError(t, err, "failed to set up test file")

	args := []string{"run", filePath}
	out := &bytes.Buffer{}

	// --- Act ---
	runErr := run(context.Background(), out, args)

	// --- Assert ---
	require.Error(t, runErr, "run() should have returned an error after recovering from a panic")
	require.Contains(t, runErr.Error(), "application startup panicked")
	require.Contains(t, runErr.Error(), "needs unknown job")
}

func TestRun_Help(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{"--help"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error for --help")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
	require.Contains(t, out.String(), "validate", "Expected the command list in the help text")
}

func TestRun_UnknownFlag(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "unknown flag")
}

func TestRun_OneShotWorkflow(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A two-job script workflow exercises the whole one-shot path: load,
	// validate, graph, execute, report.
	goodWorkflow := `
name: smoke
jobs:
  first:
    run: "true"
  second:
    needs: [first]
    run: "true"
`
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "smoke.yaml")
	require.NoError(t, os.WriteFile(filePath, []byte(goodWorkflow), 0600))

	args := []string{"run", filePath}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.NoError(t, err, "a trivially succeeding workflow should produce a clean exit")
	require.Contains(t, out.String(), "succeeded")
}
