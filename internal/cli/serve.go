package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenlabs/warden/internal/agent"
	"github.com/wardenlabs/warden/internal/config"
	"github.com/wardenlabs/warden/internal/httpapi"
	"github.com/wardenlabs/warden/internal/hub"
	"github.com/wardenlabs/warden/internal/policy"
	"github.com/wardenlabs/warden/internal/run"
	"github.com/wardenlabs/warden/internal/sim"
	"github.com/wardenlabs/warden/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Listen   string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the governance server",
		Long: `Start the warden governance server.

The server opens the SQLite audit database (creating it if it doesn't
exist), resumes any runs left in running status by a previous process,
and serves the mission/run API including the per-run WebSocket stream.

Configuration is read from the environment; --db and --listen override
WARDEN_DB and WARDEN_LISTEN.

Example:
  warden serve --db ./warden.db
  warden serve --listen :9090 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides WARDEN_DB)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides WARDEN_LISTEN)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	cfg, err := config.FromEnv()
	if err != nil {
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}
	if opts.Database != "" {
		cfg.DBPath = opts.Database
	}
	if opts.Listen != "" {
		cfg.ListenAddr = opts.Listen
	}

	slog.Info("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	catalog, err := policy.LoadCatalog()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load policy catalog", err)
	}
	engine := policy.NewEngine(policy.ParamsFromConfig(cfg), catalog)
	planner := agent.NewPlanner(agent.ParamsFromConfig(cfg))
	ag := agent.NewAgent(engine, planner, cfg.AgentMaxSteps, cfg.AgentWall)
	h := hub.New(cfg.SubscriberBuffer, cfg.SlowSubEvict)

	simOpts := []sim.Option{sim.WithTimeouts(cfg.SimTimeout, cfg.SimTimeout)}
	if cfg.SimToken != "" {
		simOpts = append(simOpts, sim.WithToken(cfg.SimToken))
	}
	simClient := sim.NewClient(cfg.SimBaseURL, simOpts...)

	registry := run.NewRegistry(st, h, simClient, engine, planner, cfg)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	resumed, err := registry.Resume(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resume runs", err)
	}
	if resumed > 0 {
		slog.Info("resumed interrupted runs", "count", resumed)
	}

	// Bind before reporting success so a taken port fails loudly.
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to bind listener", err)
	}
	srv := &http.Server{
		Handler:           httpapi.NewServer(st, h, simClient, engine, planner, ag, registry, catalog, cfg).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("server listening", "addr", ln.Addr().String(), "planner_enabled", cfg.PlannerEnabled)
	fmt.Fprintf(cmd.OutOrStdout(), "Warden listening on %s. Press Ctrl-C to stop.\n", ln.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "server failed", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("error shutting down server", "error", err)
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		slog.Error("error shutting down run loops", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
