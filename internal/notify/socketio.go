package notify

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/model"
)

// SocketNotifier emits run_event payloads to a socket.io dashboard
// endpoint. Emission is fire-and-forget: a dashboard that is down must
// never fail a run, so connect errors are logged and dropped.
type SocketNotifier struct {
	endpoint  string
	namespace string

	mu      sync.Mutex
	manager *socket.Manager
	io      *socket.Socket
}

// NewSocketNotifier builds a notifier for the given socket.io URL. The URL
// path selects the engine.io mount point; the fragment-free namespace
// defaults to "/".
func NewSocketNotifier(endpoint string) (*SocketNotifier, error) {
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("socket.io endpoint: %w", err)
	}
	return &SocketNotifier{endpoint: endpoint, namespace: "/"}, nil
}

// connect lazily establishes the socket connection on first use and reuses
// it afterwards.
func (n *SocketNotifier) connect(ctx context.Context) *socket.Socket {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.io != nil {
		return n.io
	}

	logger := ctxlog.FromContext(ctx)
	parsed, err := url.Parse(n.endpoint)
	if err != nil {
		logger.Warn("Invalid socket.io endpoint, notifications disabled.", "error", err)
		return nil
	}

	baseURL := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	opts := socket.DefaultOptions()
	if parsed.Path != "" {
		opts.SetPath(parsed.Path)
	}

	n.manager = socket.NewManager(baseURL, opts)
	n.io = n.manager.Socket(n.namespace, opts)

	n.io.On(types.EventName("connect"), func(...any) {
		logger.Debug("Dashboard socket connected.", "sid", n.io.Id())
	})
	n.io.On(types.EventName("connect_error"), func(errs ...any) {
		logger.Warn("Dashboard socket connect error.", "error", errs)
	})
	n.io.Connect()

	return n.io
}

// RunTransition implements Notifier.
func (n *SocketNotifier) RunTransition(ctx context.Context, run *model.Run) {
	n.emit(ctx, map[string]any{
		"kind":     "run",
		"run_id":   run.ID,
		"workflow": run.WorkflowName,
		"status":   string(run.Status),
	})
}

// JobTransition implements Notifier.
func (n *SocketNotifier) JobTransition(ctx context.Context, jr *model.JobRun) {
	n.emit(ctx, map[string]any{
		"kind":   "job",
		"run_id": jr.RunID,
		"job":    jr.Name,
		"status": string(jr.Status),
		"error":  jr.Error,
	})
}

func (n *SocketNotifier) emit(ctx context.Context, payload map[string]any) {
	io := n.connect(ctx)
	if io == nil {
		return
	}
	// No ack expected; the dashboard is an observer, not a participant.
	io.Emit("run_event", payload)
}

// Close disconnects the dashboard socket.
func (n *SocketNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.io != nil {
		n.io.Disconnect()
		n.io = nil
	}
}
