package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchyard/internal/engine"
	"github.com/zulandar/switchyard/internal/mirror"
	"github.com/zulandar/switchyard/internal/store"
	"github.com/zulandar/switchyard/internal/tracker"
	"golang.org/x/term"
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Manage connected repositories",
	}

	cmd.AddCommand(newInstallAddCmd())
	cmd.AddCommand(newInstallListCmd())
	cmd.AddCommand(newInstallResumeCmd())
	return cmd
}

func newInstallAddCmd() *cobra.Command {
	var (
		owner    string
		repo     string
		strategy string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Generate config for a new installation",
		Long: "Prompts for the webhook secret and API token, then prints the\n" +
			"YAML block to add to the config file. Secrets are never written\n" +
			"to the config; only environment variable names are.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstallAdd(cmd, owner, repo, strategy)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "repository owner")
	cmd.Flags().StringVar(&repo, "repo", "", "repository name")
	cmd.Flags().StringVar(&strategy, "strategy", "newest-wins", "conflict strategy: local-wins, remote-wins, or newest-wins")
	cmd.MarkFlagRequired("owner")
	cmd.MarkFlagRequired("repo")
	return cmd
}

func runInstallAdd(cmd *cobra.Command, owner, repo, strategy string) error {
	out := cmd.OutOrStdout()

	switch strategy {
	case "local-wins", "remote-wins", "newest-wins":
	default:
		return fmt.Errorf("install: strategy %q is not local-wins, remote-wins, or newest-wins", strategy)
	}

	secret, err := promptSecret(cmd, "Webhook secret: ")
	if err != nil {
		return err
	}
	token, err := promptSecret(cmd, "API token: ")
	if err != nil {
		return err
	}
	if secret == "" || token == "" {
		return fmt.Errorf("install: webhook secret and API token are required")
	}

	envPrefix := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(owner + "_" + repo))
	secretEnv := envPrefix + "_WEBHOOK_SECRET"
	tokenEnv := envPrefix + "_TOKEN"

	fmt.Fprintln(out, "\nAdd to switchyard.yaml under installations:")
	fmt.Fprintf(out, "  - owner: %s\n", owner)
	fmt.Fprintf(out, "    repo: %s\n", repo)
	fmt.Fprintf(out, "    webhook_secret_env: %s\n", secretEnv)
	fmt.Fprintf(out, "    token_env: %s\n", tokenEnv)
	fmt.Fprintf(out, "    strategy: %s\n", strategy)
	fmt.Fprintln(out, "\nExport before starting sy:")
	fmt.Fprintf(out, "  export %s=%s\n", secretEnv, secret)
	fmt.Fprintf(out, "  export %s=%s\n", tokenEnv, token)
	fmt.Fprintln(out, "\nThen run 'sy db init' to register the installation.")
	return nil
}

// promptSecret reads a secret without echo when stdin is a terminal, and
// falls back to a plain line read when it is piped.
func promptSecret(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), prompt)

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("install: read secret: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("install: read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func newInstallListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured installations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstallList(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchyard.yaml", "path to Switchyard config file")
	return cmd
}

func runInstallList(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gdb, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	st := store.New(gdb)

	fmt.Fprintf(out, "%-30s %-12s %-14s %s\n", "INSTALLATION", "STRATEGY", "CREATE", "REGISTERED")
	for _, ic := range cfg.Installations {
		registered := "no"
		if _, err := st.InstallationByRepo(ic.Owner, ic.Repo); err == nil {
			registered = "yes"
		}
		fmt.Fprintf(out, "%-30s %-12s %-14s %s\n", ic.Owner+"/"+ic.Repo, ic.Strategy, ic.CreateMissing, registered)
	}
	return nil
}

func newInstallResumeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "resume <owner/repo>",
		Short: "Clear an installation's error state",
		Long: "Resets an errored installation to idle so webhook processing\n" +
			"and scheduled passes resume.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstallResume(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchyard.yaml", "path to Switchyard config file")
	return cmd
}

func runInstallResume(cmd *cobra.Command, configPath, target string) error {
	owner, repo, ok := strings.Cut(target, "/")
	if !ok || owner == "" || repo == "" {
		return fmt.Errorf("install: expected owner/repo, got %q", target)
	}

	cfg, gdb, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	m, err := mirror.New(cfg.Mirror.Dir)
	if err != nil {
		return err
	}
	eng, err := engine.New(engine.Opts{
		Config:  cfg,
		Store:   store.New(gdb),
		Tracker: tracker.New(gdb),
		Mirror:  m,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Resume(owner, repo); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s/%s resumed\n", owner, repo)
	return nil
}
