package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"agent-switcher/internal/fingerprint"
	"agent-switcher/internal/switcher"
	"agent-switcher/internal/targets"
)

func newFingerprintsCommand(e *env) *cobra.Command {
	fingerprints := &cobra.Command{
		Use:   "fingerprints",
		Short: "Manage device identity profiles",
	}
	fingerprints.AddCommand(newFingerprintsListCommand(e))
	fingerprints.AddCommand(newFingerprintsGenerateCommand(e))
	fingerprints.AddCommand(newFingerprintsCaptureCommand(e))
	fingerprints.AddCommand(newFingerprintsRenameCommand(e))
	fingerprints.AddCommand(newFingerprintsDeleteCommand(e))
	fingerprints.AddCommand(newFingerprintsUseCommand(e))
	return fingerprints
}

func newFingerprintsListCommand(e *env) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List fingerprints",
		RunE: func(cmd *cobra.Command, args []string) error {
			fps, err := e.svc.Fingerprints.List()
			if err != nil {
				return switcher.WrapExit(switcher.ExitIOFailure, err)
			}
			current, err := e.svc.Fingerprints.Current()
			if err != nil {
				return switcher.WrapExit(switcher.ExitIOFailure, err)
			}
			if jsonOut {
				return printJSON(map[string]any{"fingerprints": fps, "current": current.ID})
			}
			for _, fp := range fps {
				marker := " "
				if fp.ID == current.ID {
					marker = "*"
				}
				fmt.Printf("%s %s (%s) device=%s\n", marker, fp.Name, fp.ID, fp.Profile.DevDeviceID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newFingerprintsGenerateCommand(e *env) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "generate <name>",
		Short: "Create a fingerprint with a random identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := e.svc.Fingerprints.Generate(strings.TrimSpace(args[0]))
			if err != nil {
				return switcher.WrapExit(switcher.ExitUserError, err)
			}
			if jsonOut {
				return printJSON(fp)
			}
			fmt.Printf("generated fingerprint %s (%s)\n", fp.Name, fp.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newFingerprintsCaptureCommand(e *env) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "capture <name>",
		Short: "Create a fingerprint from the live installation's identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tgt, err := targets.Resolve(e.provider, e.svc.Cfg.TargetOverrides(e.provider))
			if err != nil {
				return switcher.WrapExit(switcher.ExitUserError, err)
			}
			fp, err := e.svc.Fingerprints.Capture(strings.TrimSpace(args[0]), targets.StoragePath(tgt.DataRoot))
			if err != nil {
				return switcher.WrapExit(switcher.ExitIOFailure, err)
			}
			if jsonOut {
				return printJSON(fp)
			}
			fmt.Printf("captured fingerprint %s (%s)\n", fp.Name, fp.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newFingerprintsRenameCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <fingerprint-id> <new-name>",
		Short: "Rename a fingerprint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.svc.Fingerprints.Rename(strings.TrimSpace(args[0]), strings.TrimSpace(args[1])); err != nil {
				return switcher.WrapExit(switcher.ExitUserError, err)
			}
			fmt.Println("renamed")
			return nil
		},
	}
	return cmd
}

func newFingerprintsDeleteCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <fingerprint-id>",
		Aliases: []string{"remove", "rm"},
		Short:   "Delete a fingerprint; bound accounts fall back to original",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if err := e.svc.Fingerprints.Delete(id, e.svc.Accounts); err != nil {
				return switcher.WrapExit(switcher.ExitUserError, err)
			}
			fmt.Printf("deleted fingerprint %s; bound accounts now use %s\n", id, fingerprint.OriginalID)
			return nil
		},
	}
	return cmd
}

func newFingerprintsUseCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <fingerprint-id>",
		Short: "Select the fingerprint applied on the next switch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if err := e.svc.Fingerprints.SetCurrent(id); err != nil {
				return switcher.WrapExit(switcher.ExitUserError, err)
			}
			fmt.Printf("current fingerprint is now %s\n", id)
			return nil
		},
	}
	return cmd
}
