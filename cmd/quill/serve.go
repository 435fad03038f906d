package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quillagent/quill/internal/actions"
	"github.com/quillagent/quill/internal/auth"
	"github.com/quillagent/quill/internal/blogger"
	"github.com/quillagent/quill/internal/logging"
	"github.com/quillagent/quill/internal/mcp"
	"github.com/quillagent/quill/internal/policy"
	"github.com/quillagent/quill/internal/scheduler"
	"github.com/quillagent/quill/internal/server"
	"github.com/quillagent/quill/internal/store"
)

const shutdownTimeout = 10 * time.Second

// app holds the wired components shared by serve, mcp, and actions list.
type app struct {
	cfg        Config
	logger     *slog.Logger
	store      *store.LibSQLStore
	tokens     *auth.Manager
	registry   *actions.Registry
	dispatcher *actions.Dispatcher
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

// buildApp opens the store, loads credentials and policy, and registers the
// action catalog. A missing credentials file is not fatal: tokens that carry
// their own client fields still work.
func buildApp(ctx context.Context, cfg Config) (*app, error) {
	logger := newLogger(cfg.LogLevel)

	if err := os.MkdirAll(quillDir(), 0o700); err != nil {
		return nil, fmt.Errorf("create %s: %w", quillDir(), err)
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	creds := loadCredentials(cfg, logger)
	tokens := auth.NewManager(st, creds, logger)
	client := blogger.NewClient(tokens)

	registry := actions.NewRegistry(logger)
	if err := actions.RegisterAll(registry, client); err != nil {
		st.Close()
		return nil, fmt.Errorf("register actions: %w", err)
	}

	guard, err := loadGuard(cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		tokens:     tokens,
		registry:   registry,
		dispatcher: actions.NewDispatcher(registry, guard),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", slog.String("error", err.Error()))
	}
}

func loadCredentials(cfg Config, logger *slog.Logger) *auth.ClientCredentials {
	if cfg.CredFile != "" {
		creds, err := auth.LoadClientCredentials(cfg.CredFile)
		if err != nil {
			logger.Warn("failed to load credentials file", slog.String("error", err.Error()))
			return nil
		}
		return creds
	}
	creds, err := auth.FindClientCredentials(quillDir())
	if err != nil {
		logger.Debug("no client credentials file", slog.String("error", err.Error()))
		return nil
	}
	return creds
}

// loadGuard reads the policy rules file. A missing file means no policy; a
// malformed one is fatal since silently skipping rules would disable the
// guard.
func loadGuard(cfg Config, logger *slog.Logger) (*policy.Guard, error) {
	data, err := os.ReadFile(cfg.PolicyFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var rules []policy.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", cfg.PolicyFile, err)
	}
	logger.Info("policy guard loaded", slog.Int("rules", len(rules)))
	return policy.NewGuard(rules)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "listen address (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := loadConfig()
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := scheduler.NewScheduler(a.store, a.dispatcher, a.logger)
	if err := sched.RecoverMissed(ctx); err != nil {
		a.logger.Warn("failed to recover missed schedules", slog.String("error", err.Error()))
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	srv := server.NewServer(server.Deps{
		Registry: a.registry,
		Runner:   a.dispatcher,
		Store:    a.store,
		Tokens:   a.tokens,
		Logger:   a.logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.ListenAddr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, loadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	srv := mcp.NewQuillServer(mcp.QuillServerDeps{
		Registry: a.registry,
		Runner:   a.dispatcher,
		Logger:   a.logger,
	})
	return srv.Serve(ctx)
}
