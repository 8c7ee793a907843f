package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/vk/gridci/internal/ctxlog"
)

// DefaultScriptTimeout bounds `run` jobs that declare no timeout of their own.
const DefaultScriptTimeout = 30 * time.Minute

// RunScript executes an inline `run` script through the shell and returns
// its combined output. The script is killed when the timeout elapses or the
// run context is cancelled.
func RunScript(ctx context.Context, script string, timeout time.Duration) (string, error) {
	logger := ctxlog.FromContext(ctx)
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", script)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	logger.Debug("Running local script.", "timeout", timeout)
	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return out.String(), fmt.Errorf("script timed out after %s", timeout)
	}
	if err != nil {
		return out.String(), fmt.Errorf("script failed: %w", err)
	}
	return out.String(), nil
}
