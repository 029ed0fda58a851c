package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchyard/internal/engine"
	"github.com/zulandar/switchyard/internal/mirror"
	"github.com/zulandar/switchyard/internal/notify"
	"github.com/zulandar/switchyard/internal/store"
	"github.com/zulandar/switchyard/internal/tracker"
)

func newSyncCmd() *cobra.Command {
	var (
		configPath   string
		installation string
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one full reconciliation pass",
		Long: "Reconciles every mapped issue for each active installation.\n" +
			"With --dry-run, prints the writes a pass would perform without\n" +
			"touching the tracker, mirror, or remote.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, configPath, installation, dryRun)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchyard.yaml", "path to Switchyard config file")
	cmd.Flags().StringVar(&installation, "installation", "", "limit to one installation (owner/repo)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan writes without performing them")
	return cmd
}

func runSync(cmd *cobra.Command, configPath, installation string, dryRun bool) error {
	out := cmd.OutOrStdout()

	cfg, gdb, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	m, err := mirror.New(cfg.Mirror.Dir)
	if err != nil {
		return err
	}
	notifier, err := notify.FromConfig(cfg.Notify)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Opts{
		Config:   cfg,
		Store:    store.New(gdb),
		Tracker:  tracker.New(gdb),
		Mirror:   m,
		Notifier: notifier,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := cmd.Context()
	var reports []*engine.PassReport
	if installation != "" {
		owner, repo, ok := strings.Cut(installation, "/")
		if !ok || owner == "" || repo == "" {
			return fmt.Errorf("sync: --installation must be owner/repo, got %q", installation)
		}
		report, err := eng.SyncInstallation(ctx, owner, repo, dryRun)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			printReports(out, reports)
			return err
		}
	} else {
		reports, err = eng.SyncAll(ctx, dryRun)
		if err != nil {
			printReports(out, reports)
			return err
		}
	}

	printReports(out, reports)
	return nil
}

func printReports(out io.Writer, reports []*engine.PassReport) {
	for _, r := range reports {
		label := "reconciled"
		if r.DryRun {
			label = "planned"
		}
		fmt.Fprintf(out, "%s/%s: %d issues %s\n", r.Owner, r.Repo, r.Reconciled, label)
		for _, w := range r.Planned {
			fmt.Fprintf(out, "  %s%s\n", w.Action, plannedTarget(w))
		}
		for _, e := range r.Errors {
			fmt.Fprintf(out, "  error: %s\n", e)
		}
	}
}

func plannedTarget(w engine.PlannedWrite) string {
	switch {
	case w.LocalID != "" && w.RemoteNumber != 0:
		return fmt.Sprintf(" %s <-> #%d", w.LocalID, w.RemoteNumber)
	case w.LocalID != "":
		return " " + w.LocalID
	case w.RemoteNumber != 0:
		return fmt.Sprintf(" #%d", w.RemoteNumber)
	}
	return ""
}
