// Package cli wires the cobra command surface over the switcher service.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"agent-switcher/internal/account"
	"agent-switcher/internal/authflow"
	"agent-switcher/internal/config"
	"agent-switcher/internal/fingerprint"
	"agent-switcher/internal/logger"
	"agent-switcher/internal/switcher"
	"agent-switcher/internal/targets"
)

// env carries the lazily initialized service shared by all commands.
type env struct {
	provider string
	svc      *switcher.Service
	paths    config.Paths
}

func NewRootCommand() *cobra.Command {
	e := &env{}
	var verbose bool

	root := &cobra.Command{
		Use:          "agent-switcher",
		Short:        "Switch AI coding assistant accounts across local installations",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.init(verbose)
		},
	}
	root.PersistentFlags().StringVar(&e.provider, "provider", "codex",
		"Provider: "+strings.Join(authflow.Names(), ","))
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Debug logging")

	root.AddCommand(newAccountsCommand(e))
	root.AddCommand(newFingerprintsCommand(e))
	root.AddCommand(newInstancesCommand(e))
	root.AddCommand(newSwitchCommand(e))
	root.AddCommand(newStatusCommand(e))
	root.AddCommand(newQuotaCommand(e))

	return root
}

func (e *env) init(verbose bool) error {
	if _, err := authflow.Lookup(e.provider); err != nil {
		return switcher.WrapExit(switcher.ExitUserError, err)
	}
	paths, err := config.ResolvePaths()
	if err != nil {
		return switcher.WrapExit(switcher.ExitIOFailure, err)
	}
	cfg, err := config.Load(paths)
	if err != nil {
		return switcher.WrapExit(switcher.ExitIOFailure, err)
	}
	logger.SetupDefault(verbose || cfg.Verbose)

	fps := fingerprint.NewStore(paths.RootDir)
	if tgt, err := targets.Resolve(e.provider, cfg.TargetOverrides(e.provider)); err == nil {
		if err := fps.EnsureBaseline(targets.StoragePath(tgt.DataRoot)); err != nil {
			return switcher.WrapExit(switcher.ExitIOFailure, err)
		}
	}
	e.paths = paths
	e.svc = switcher.NewService(account.NewStore(paths.RootDir), fps, cfg, paths)
	return nil
}

func newSwitchCommand(e *env) *cobra.Command {
	var instanceID string
	var accountID string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "switch",
		Short: "Switch an instance to an account and relaunch the target",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := e.svc.Switch(cmd.Context(), e.provider, instanceID, accountID)
			if err != nil {
				if switcher.ExitCode(err) != switcher.ExitPartial {
					return err
				}
				// Injection stood; report what happened, keep the code.
				fmt.Printf("%s: switched to %s but launch failed: %v\n", e.provider, res.Login, err)
				return err
			}
			if jsonOut {
				return printJSON(res)
			}
			fmt.Printf("%s: switched instance %s to %s (pid %d", e.provider, res.InstanceID, res.Login, res.Pid)
			if res.Rotated {
				fmt.Printf(", token refreshed")
			}
			fmt.Println(")")
			return nil
		},
	}
	cmd.Flags().StringVar(&instanceID, "instance", "", "Instance id or name (default: the default instance)")
	cmd.Flags().StringVar(&accountID, "account", "", "Account id (default: the instance's binding)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newStatusCommand(e *env) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show accounts, instances, and running state",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := e.svc.Status(e.provider)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(status)
			}
			fmt.Printf("%s (%s, %s family)\n", status.Provider, status.Target, status.Family)
			fmt.Printf("  accounts: %d\n", len(status.Accounts))
			for _, acct := range status.Accounts {
				marker := " "
				if acct.ID == status.CurrentAccountID {
					marker = "*"
				}
				line := fmt.Sprintf("  %s %s (%s)", marker, acct.Login, acct.ID)
				if acct.Disabled {
					line += " [disabled]"
				}
				fmt.Println(line)
			}
			printInstanceStatus(status.Default)
			for _, inst := range status.Instances {
				printInstanceStatus(inst)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func printInstanceStatus(inst switcher.InstanceStatus) {
	state := "stopped"
	if inst.Running {
		state = fmt.Sprintf("running (pid %d)", inst.Pid)
	}
	fmt.Printf("  instance %s: %s dir=%s", inst.Name, state, inst.UserDataDir)
	if inst.BindAccountID != "" {
		fmt.Printf(" account=%s", inst.BindAccountID)
	}
	fmt.Println()
}

func newQuotaCommand(e *env) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "quota <account-id>",
		Short: "Fetch and record usage for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quota, err := e.svc.RefreshQuota(cmd.Context(), e.provider, strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(quota)
			}
			fmt.Printf("plan=%s\n", zeroDefault(quota.Plan, "unknown"))
			for _, w := range quota.Windows {
				fmt.Printf("  - %s: %.1f%% used\n", w.Label, w.UsedPercent)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func printJSON(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func zeroDefault(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
