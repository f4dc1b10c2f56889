package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"agent-switcher/internal/authflow"
	"agent-switcher/internal/switcher"
)

func newAccountsCommand(e *env) *cobra.Command {
	accounts := &cobra.Command{
		Use:   "accounts",
		Short: "Manage provider accounts",
	}
	accounts.AddCommand(newAccountsListCommand(e))
	accounts.AddCommand(newAccountsAddCommand(e))
	accounts.AddCommand(newAccountsCaptureCommand(e))
	accounts.AddCommand(newAccountsDeleteCommand(e))
	accounts.AddCommand(newAccountsUseCommand(e))
	accounts.AddCommand(newAccountsDisableCommand(e))
	accounts.AddCommand(newAccountsEnableCommand(e))
	return accounts
}

func newAccountsListCommand(e *env) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts for the provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := e.svc.Accounts.List(e.provider)
			if err != nil {
				return switcher.WrapExit(switcher.ExitIOFailure, err)
			}
			current, err := e.svc.Accounts.Current(e.provider)
			if err != nil {
				return switcher.WrapExit(switcher.ExitIOFailure, err)
			}
			if jsonOut {
				return printJSON(map[string]any{"accounts": summaries, "current": current})
			}
			for _, acct := range summaries {
				marker := " "
				if acct.ID == current {
					marker = "*"
				}
				line := fmt.Sprintf("%s %s (%s)", marker, acct.Login, acct.ID)
				if acct.Email != "" {
					line += " " + acct.Email
				}
				if acct.Disabled {
					line += " [disabled]"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newAccountsAddCommand(e *env) *cobra.Command {
	var code string
	var token string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "add <login>",
		Short: "Add an account via the provider's auth flow",
		Long: "Adds an account. Authorization-code providers take --code; import\n" +
			"providers take --token; device-flow providers prompt interactively.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			login := strings.TrimSpace(args[0])
			prov, err := authflow.Lookup(e.provider)
			if err != nil {
				return switcher.WrapExit(switcher.ExitUserError, err)
			}

			var bundle authflow.TokenBundle
			switch {
			case token != "":
				bundle, err = prov.Exchange(cmd.Context(), token)
			case code != "":
				bundle, err = prov.Exchange(cmd.Context(), code)
			default:
				device, ok := prov.(authflow.DeviceFlowProvider)
				if !ok {
					return switcher.WrapExit(switcher.ExitUserError,
						fmt.Errorf("%s requires --code or --token", e.provider))
				}
				auth, beginErr := device.BeginDeviceFlow(cmd.Context())
				if beginErr != nil {
					return switcher.WrapExit(switcher.ExitAuthFailure, beginErr)
				}
				fmt.Printf("Open %s and enter code %s\n", auth.VerificationURI, auth.UserCode)
				bundle, err = device.PollDeviceFlow(cmd.Context(), auth)
			}
			if err != nil {
				return switcher.WrapExit(switcher.ExitAuthFailure, err)
			}

			acct, err := e.svc.Accounts.Upsert(e.provider, login, bundle)
			if err != nil {
				return switcher.WrapExit(switcher.ExitIOFailure, err)
			}
			if jsonOut {
				return printJSON(acct)
			}
			fmt.Printf("added %s account %s (%s)\n", e.provider, acct.Login, acct.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "Authorization code (code or code:verifier for PKCE providers)")
	cmd.Flags().StringVar(&token, "token", "", "Direct token for import-style providers")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newAccountsCaptureCommand(e *env) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "capture <login>",
		Short: "Import the credential from the live local installation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := e.svc.Capture(e.provider, strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(acct)
			}
			fmt.Printf("captured %s account %s (%s)\n", e.provider, acct.Login, acct.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newAccountsDeleteCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <account-id>",
		Aliases: []string{"remove", "rm"},
		Short:   "Delete an account",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if err := e.svc.Accounts.Delete(e.provider, id); err != nil {
				return switcher.WrapExit(switcher.ExitIOFailure, err)
			}
			fmt.Printf("deleted account %s\n", id)
			return nil
		},
	}
	return cmd
}

func newAccountsUseCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <account-id>",
		Short: "Mark an account as current without switching",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if err := e.svc.Accounts.SetCurrent(e.provider, id); err != nil {
				return switcher.WrapExit(switcher.ExitUserError, err)
			}
			fmt.Printf("current account is now %s\n", id)
			return nil
		},
	}
	return cmd
}

func newAccountsDisableCommand(e *env) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "disable <account-id>",
		Short: "Exclude an account from switching",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if err := e.svc.Accounts.SetDisabled(e.provider, id, true, reason); err != nil {
				return switcher.WrapExit(switcher.ExitIOFailure, err)
			}
			fmt.Printf("disabled account %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the account is disabled")
	return cmd
}

func newAccountsEnableCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enable <account-id>",
		Short: "Re-enable a disabled account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if err := e.svc.Accounts.SetDisabled(e.provider, id, false, ""); err != nil {
				return switcher.WrapExit(switcher.ExitIOFailure, err)
			}
			fmt.Printf("enabled account %s\n", id)
			return nil
		},
	}
	return cmd
}
