package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/vk/gridci/internal/ctxlog"
	"github.com/vk/gridci/internal/dispatch"
	"github.com/vk/gridci/internal/notify"
	"github.com/vk/gridci/internal/service"
	"github.com/vk/gridci/internal/store"
	"github.com/vk/gridci/internal/workflow"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	config    *Config
	store     store.Store
	notifier  notify.Notifier
	svc       *service.Service
	workflows []*workflow.Workflow

	socketNotifier *notify.SocketNotifier
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger, store, and
// workflow service. A failure to load workflows or reach the database is a
// fatal startup error and panics; entrypoints recover it into a clean exit.
func NewApp(outW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	workflows, err := workflow.Load(cfg.WorkflowPath)
	if err != nil {
		panic(fmt.Errorf("failed to load workflows: %w", err))
	}
	logger.Debug("Workflows loaded and validated.", "count", len(workflows))

	st, err := newStore(cfg)
	if err != nil {
		panic(fmt.Errorf("failed to open store: %w", err))
	}

	notifier, socketNotifier := newNotifier(ctx, cfg)

	var client *dispatch.Client
	if cfg.DispatchURL != "" {
		client = dispatch.NewClient(cfg.DispatchURL, dispatch.WithSecrets(secretsFromEnv()))
		logger.Debug("Dispatch client configured.", "url", cfg.DispatchURL)
	}
	invoker := service.NewJobInvoker(client)

	svc := service.New(st, notifier, invoker, workflows, cfg.WorkerCount)

	return &App{
		outW:           outW,
		logger:         logger,
		config:         cfg,
		store:          st,
		notifier:       notifier,
		svc:            svc,
		workflows:      workflows,
		socketNotifier: socketNotifier,
	}
}

// Service returns the application's workflow service. This is primarily for
// testing.
func (a *App) Service() *service.Service {
	return a.svc
}

// Workflows returns the loaded workflow definitions.
func (a *App) Workflows() []*workflow.Workflow {
	return a.workflows
}

// Close releases the application's long-lived resources.
func (a *App) Close() error {
	if a.socketNotifier != nil {
		a.socketNotifier.Close()
	}
	return a.store.Close()
}

func newStore(cfg *Config) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		return store.NewMemoryStore(), nil
	}
	return store.NewPostgresStore(cfg.DatabaseURL)
}

func newNotifier(ctx context.Context, cfg *Config) (notify.Notifier, *notify.SocketNotifier) {
	logger := ctxlog.FromContext(ctx)
	if cfg.DashboardURL == "" {
		return notify.LogNotifier{}, nil
	}
	sn, err := notify.NewSocketNotifier(cfg.DashboardURL)
	if err != nil {
		logger.Warn("Dashboard notifier unavailable, falling back to log notifier.", "error", err)
		return notify.LogNotifier{}, nil
	}
	return notify.Multi{notify.LogNotifier{}, sn}, sn
}

// secretsFromEnv collects GRIDCI_SECRET_* environment variables into the
// secret set forwarded to runners on `secrets: inherit` jobs. The prefix is
// stripped from the key.
func secretsFromEnv() map[string]string {
	secrets := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, secretEnvPrefix) {
			continue
		}
		secrets[strings.TrimPrefix(key, secretEnvPrefix)] = value
	}
	return secrets
}
