package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/autobudgeter/internal/cli"
	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/model"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List accounts and map them to spreadsheet balance cells",
	}

	cmd.AddCommand(listAccountsCmd())
	cmd.AddCommand(mapAccountCmd())

	return cmd
}

func listAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known accounts with their balances and roles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			accounts, err := a.store.ListAccounts(ctx)
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(accounts) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No accounts yet. Run 'autobudget sync' first."))
				return nil
			}

			table := cli.NewTable(out, "ID", "Name", "Mask", "Type", "Balance", "Role")
			for _, acct := range accounts {
				role := string(acct.BalanceRole)
				if role == "" {
					role = cli.SubtleStyle.Render("-")
				}
				table.Row(acct.ID, acct.Name, acct.Mask, acct.Type, cli.Money(acct.BalanceCurrent), role)
			}
			return table.Flush()
		},
	}
}

func mapAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "map <account-id> <bank|cc1|cc2|none>",
		Short: "Map an account to a running balance cell",
		Long: `Assign an account's current balance to one of the running balance cells.
Each role belongs to one account; mapping a new account moves the role. Use
"none" to clear a mapping.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRole(args[1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.store.SetAccountRole(ctx, args[0], role); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Account %s mapped to %s", args[0], args[1])))
			return nil
		},
	}
}

func parseRole(s string) (model.BalanceRole, error) {
	if s == "none" {
		return model.RoleNone, nil
	}
	role := model.BalanceRole(s)
	if role == model.RoleNone || !role.Valid() {
		return "", common.NewValidationError("role", fmt.Sprintf("unknown role %q: use bank, cc1, cc2 or none", s))
	}
	return role, nil
}
