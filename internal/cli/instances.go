package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"agent-switcher/internal/instance"
	"agent-switcher/internal/switcher"
	"agent-switcher/internal/targets"
)

func newInstancesCommand(e *env) *cobra.Command {
	instances := &cobra.Command{
		Use:   "instances",
		Short: "Manage isolated target instances",
	}
	instances.AddCommand(newInstancesListCommand(e))
	instances.AddCommand(newInstancesCreateCommand(e))
	instances.AddCommand(newInstancesUpdateCommand(e))
	instances.AddCommand(newInstancesDeleteCommand(e))
	instances.AddCommand(newInstancesStartCommand(e))
	instances.AddCommand(newInstancesStopCommand(e))
	return instances
}

func newInstancesListCommand(e *env) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List instances with running state",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := e.svc.Status(e.provider)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(map[string]any{
					"default":   status.Default,
					"instances": status.Instances,
				})
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

func newInstancesCreateCommand(e *env) *cobra.Command {
	var dataDir string
	var extraArgs string
	var bindAccount string
	var copyFrom string
	var copyDefault bool
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an instance with an empty or cloned data directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := instance.CreateSpec{
				Name:          strings.TrimSpace(args[0]),
				UserDataDir:   dataDir,
				ExtraArgs:     extraArgs,
				BindAccountID: bindAccount,
				Mode:          instance.InitEmpty,
			}
			defaultDataDir := ""
			if copyFrom != "" || copyDefault {
				spec.Mode = instance.InitCopy
				spec.CopySourceID = copyFrom
				tgt, err := targets.Resolve(e.provider, e.svc.Cfg.TargetOverrides(e.provider))
				if err != nil {
					return switcher.WrapExit(switcher.ExitUserError, err)
				}
				defaultDataDir = tgt.DataRoot
			}
			inst, err := e.svc.Instances(e.provider).Create(spec, defaultDataDir)
			if err != nil {
				return switcher.WrapExit(switcher.ExitUserError, err)
			}
			if jsonOut {
				return printJSON(inst)
			}
			fmt.Printf("created instance %s (%s) at %s\n", inst.Name, inst.ID, inst.UserDataDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "dir", "", "Data directory for the instance (required)")
	cmd.Flags().StringVar(&extraArgs, "args", "", "Extra launch arguments")
	cmd.Flags().StringVar(&bindAccount, "account", "", "Account id to bind")
	cmd.Flags().StringVar(&copyFrom, "copy-from", "", "Clone another instance's data directory")
	cmd.Flags().BoolVar(&copyDefault, "copy-default", false, "Clone the default installation's data directory")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func newInstancesUpdateCommand(e *env) *cobra.Command {
	var name string
	var extraArgs string
	var bindAccount string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "update <instance-id>",
		Short: "Change an instance's name, args, or account binding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := instance.UpdateSpec{}
			if cmd.Flags().Changed("name") {
				spec.Name = &name
			}
			if cmd.Flags().Changed("args") {
				spec.ExtraArgs = &extraArgs
			}
			if cmd.Flags().Changed("account") {
				spec.BindAccountID = &bindAccount
			}
			inst, err := e.svc.Instances(e.provider).Update(strings.TrimSpace(args[0]), spec)
			if err != nil {
				return switcher.WrapExit(switcher.ExitUserError, err)
			}
			if jsonOut {
				return printJSON(inst)
			}
			fmt.Printf("updated instance %s\n", inst.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&extraArgs, "args", "", "New extra launch arguments")
	cmd.Flags().StringVar(&bindAccount, "account", "", "New account binding (empty clears it)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newInstancesDeleteCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <instance-id>",
		Aliases: []string{"remove", "rm"},
		Short:   "Delete an instance; its data directory moves to trash",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if err := e.svc.Instances(e.provider).Delete(id, e.paths.TrashDir); err != nil {
				return switcher.WrapExit(switcher.ExitUserError, err)
			}
			fmt.Printf("deleted instance %s (data moved to %s)\n", id, e.paths.TrashDir)
			return nil
		},
	}
	return cmd
}

func newInstancesStartCommand(e *env) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "start [instance-id]",
		Short: "Launch an instance, injecting its bound account if any",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = strings.TrimSpace(args[0])
			}
			res, err := e.svc.Start(cmd.Context(), e.provider, id)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(res)
			}
			fmt.Printf("started instance %s (pid %d)\n", res.InstanceID, res.Pid)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newInstancesStopCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop [instance-id]",
		Short: "Terminate an instance's recorded process",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = strings.TrimSpace(args[0])
			}
			stopped, err := e.svc.Stop(cmd.Context(), e.provider, id)
			if err != nil {
				return err
			}
			if stopped {
				fmt.Println("stopped")
			} else {
				fmt.Println("not running")
			}
			return nil
		},
	}
	return cmd
}
