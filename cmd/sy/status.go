package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchyard/internal/models"
	"github.com/zulandar/switchyard/internal/store"
)

func newStatusCmd() *cobra.Command {
	var (
		configPath string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sync status for all installations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath, watch)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchyard.yaml", "path to Switchyard config file")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "refresh every 5 seconds")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string, watch bool) error {
	_, gdb, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	st := store.New(gdb)

	if !watch {
		return printStatus(cmd.OutOrStdout(), st)
	}

	for {
		fmt.Fprint(cmd.OutOrStdout(), "\033[2J\033[H")
		if err := printStatus(cmd.OutOrStdout(), st); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nRefreshing every 5s (Ctrl+C to exit) - %s\n", time.Now().Format("15:04:05"))

		select {
		case <-cmd.Context().Done():
			return nil
		case <-time.After(5 * time.Second):
		}
	}
}

func printStatus(out io.Writer, st *store.Store) error {
	insts, err := st.ActiveInstallations()
	if err != nil {
		return err
	}
	if len(insts) == 0 {
		fmt.Fprintln(out, "No active installations.")
		return nil
	}

	fmt.Fprintf(out, "%-30s %-10s %-8s %-20s %s\n", "INSTALLATION", "STATUS", "ERRORS", "LAST SYNC", "MESSAGE")
	for i := range insts {
		inst := &insts[i]
		status := models.SyncIdle
		errCount := 0
		lastSync := "never"
		message := ""

		state, err := st.State(inst.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err == nil {
			status = state.SyncStatus
			errCount = state.ErrorCount
			message = state.ErrorMessage
			if state.LastSyncAt != nil {
				lastSync = state.LastSyncAt.Local().Format("2006-01-02 15:04:05")
			}
		}

		fmt.Fprintf(out, "%-30s %-10s %-8d %-20s %s\n",
			inst.Owner+"/"+inst.Repo, status, errCount, lastSync, message)
	}
	return nil
}
