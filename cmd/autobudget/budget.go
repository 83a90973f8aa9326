package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/autobudgeter/internal/budget"
	"github.com/Veraticus/autobudgeter/internal/cli"
)

func budgetCmd() *cobra.Command {
	var (
		month  string
		format string
	)

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show spending against budget for a month",
		Long: `Total categorized spending for a calendar month in the configured timezone
and compare it to each category's monthly budget. Transfers, ignored, removed and
unreviewed transactions are excluded.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "table" && format != "csv" {
				return fmt.Errorf("invalid format %q: must be table or csv", format)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			m, err := budget.ParseMonth(month, time.Now(), a.cfg.Settings.Location)
			if err != nil {
				return err
			}

			totals, err := a.aggregator().Aggregate(ctx, m.Month, m.Year)
			if err != nil {
				return err
			}
			rows := budget.Summary(totals, a.cfg.Budgets)

			out := cmd.OutOrStdout()
			if format == "csv" {
				return budget.WriteCSV(out, rows)
			}

			fmt.Fprintln(out, cli.FormatTitle(m.Label))
			table := cli.NewTable(out, "Category", "Budget", "Spent", "Remaining")
			var spent, budgeted decimal.Decimal
			for _, r := range rows {
				table.Row(r.Category, r.Budget.StringFixed(2), r.Spent.StringFixed(2), cli.Money(r.Remaining))
				spent = spent.Add(r.Spent)
				budgeted = budgeted.Add(r.Budget)
			}
			table.Row("Total", budgeted.StringFixed(2), spent.StringFixed(2), cli.Money(budgeted.Sub(spent)))
			return table.Flush()
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "Month as YYYY-MM (default: current month)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format (table, csv)")
	return cmd
}

func pushCmd() *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push balances and a month's totals to Google Sheets",
		Long: `Write the mapped account balances to the running balance sheet and the
category totals for a month to its monthly tab, creating the tab if needed.
Formula cells are never written.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			loc := a.cfg.Settings.Location
			m, err := budget.ParseMonth(month, time.Now(), loc)
			if err != nil {
				return err
			}

			reconciler, err := a.reconciler(ctx)
			if err != nil {
				return err
			}

			if err := a.pushMonth(ctx, reconciler, m); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(cli.SheetIcon+" Pushed "+m.Label))
			return nil
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "Month as YYYY-MM (default: current month)")
	return cmd
}
