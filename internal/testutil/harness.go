// Package testutil holds the small shared pieces of test setup: a context
// carrying a quiet logger, and workflow fixtures on disk.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/gridci/internal/ctxlog"
)

// Context returns a context carrying a logger, as every run-path entrypoint
// requires. The logger writes to the test log only when -v is set, via
// t.Log, so failures stay readable.
func Context(t *testing.T) context.Context {
	t.Helper()
	return ctxlog.WithLogger(context.Background(), Logger(t))
}

// Logger builds a quiet test logger.
func Logger(t *testing.T) *slog.Logger {
	t.Helper()
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WriteWorkflow writes a workflow fixture into its own temp directory and
// returns the file path.
func WriteWorkflow(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
