package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchyard/internal/db"
	"github.com/zulandar/switchyard/internal/engine"
	"github.com/zulandar/switchyard/internal/mirror"
	"github.com/zulandar/switchyard/internal/notify"
	"github.com/zulandar/switchyard/internal/server"
	"github.com/zulandar/switchyard/internal/store"
	"github.com/zulandar/switchyard/internal/tracker"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and reconciliation engine",
		Long: "Starts the HTTP webhook server, the mirror watcher, and the\n" +
			"scheduled reconciliation passes. Runs until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchyard.yaml", "path to Switchyard config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gdb, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Sync.Schedule != "" {
		if err := engine.ValidateSchedule(cfg.Sync.Schedule); err != nil {
			return err
		}
	}

	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}
	if err := db.SeedInstallations(gdb, cfg.Installations); err != nil {
		return err
	}

	m, err := mirror.New(cfg.Mirror.Dir)
	if err != nil {
		return err
	}
	watcher := mirror.NewWatcher(mirror.WatcherOpts{
		Dir:          cfg.Mirror.Dir,
		PollInterval: cfg.Mirror.PollInterval(),
	})
	notifier, err := notify.FromConfig(cfg.Notify)
	if err != nil {
		return err
	}

	st := store.New(gdb)
	eng, err := engine.New(engine.Opts{
		Config:   cfg,
		Store:    st,
		Tracker:  tracker.New(gdb),
		Mirror:   m,
		Watcher:  watcher,
		Notifier: notifier,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	srv, err := server.New(server.Opts{
		Config: cfg,
		Store:  st,
		Engine: eng,
		Out:    out,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "Switchyard %s starting with %d installations\n", Version, len(cfg.Installations))
	if cfg.Sync.Schedule != "" {
		fmt.Fprintf(out, "Scheduled passes: %s\n", cfg.Sync.Schedule)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Start(ctx) }()
	go func() { errCh <- eng.Run(ctx) }()

	// The first failure wins; cancellation makes the other side return.
	err = <-errCh
	stop()
	if second := <-errCh; err == nil {
		err = second
	}
	if err != nil && ctx.Err() == nil {
		return err
	}

	fmt.Fprintln(out, "Shutdown complete")
	return nil
}
