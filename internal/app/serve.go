package app

import (
	"context"

	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/server"
)

// Serve runs the HTTP API until the context is cancelled, then shuts the
// server down gracefully and drains in-flight runs.
func (a *App) Serve(ctx context.Context, addr string) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Info("🌐 Server starting.", "addr", addr, "workflows", len(a.workflows))

	srv := server.New(a.logger, a.svc, a.store)
	return srv.ListenAndServe(ctx, addr)
}
