package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/autobudgeter/internal/cli"
	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/engine"
	"github.com/Veraticus/autobudgeter/internal/model"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review transactions the engine could not categorize",
		Long: `Walk through every transaction marked needs_review and pick a category,
mark it a transfer, or ignore it. Append "+" to a category number to also create
a rule for the merchant.`,
		RunE: runInteractiveReview,
	}

	cmd.AddCommand(listReviewCmd())
	cmd.AddCommand(setReviewCmd())

	return cmd
}

func runInteractiveReview(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	handler := cli.NewInterruptHandler(cmd.ErrOrStderr(), "Review", "Answers given so far are saved.")
	ctx, stop := handler.HandleInterrupts(cmd.Context())
	defer stop()

	txns, err := a.store.GetTransactionsByStatus(ctx, model.StatusNeedsReview)
	if err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(txns) == 0 {
		fmt.Fprintln(out, cli.FormatSuccess("Nothing to review"))
		return nil
	}

	eng, err := a.engine(ctx)
	if err != nil {
		return err
	}
	prompter := cli.NewReviewPrompter(cmd.InOrStdin(), out, a.cfg.Categories())

	var changed []time.Time
	for i, txn := range txns {
		fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("%d of %d", i+1, len(txns))))

		answer, err := prompter.Prompt(ctx, txn)
		if err != nil {
			if handler.WasInterrupted() || errors.Is(err, cli.ErrInputCancelled) {
				break
			}
			return err
		}
		if answer.Action == cli.ActionQuit {
			break
		}

		override, ok := overrideFor(answer)
		if !ok {
			continue
		}
		if saved, err := eng.ApplyManual(ctx, txn.ExternalID, override); err != nil {
			var valErr *common.ValidationError
			if errors.As(err, &valErr) {
				fmt.Fprintln(out, cli.FormatWarning(err.Error()))
				continue
			}
			if saved.ExternalID != "" {
				changed = append(changed, saved.Date)
			}
			a.autoPush(context.WithoutCancel(ctx), out, changed)
			return err
		}
		changed = append(changed, txn.Date)
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Reviewed %d of %d transactions", len(changed), len(txns))))
	a.autoPush(context.WithoutCancel(ctx), out, changed)
	return nil
}

// overrideFor turns a prompt answer into a manual override. Skips yield false.
func overrideFor(answer cli.ReviewAnswer) (engine.ManualOverride, bool) {
	status := func(s model.TransactionStatus) *model.TransactionStatus { return &s }

	switch answer.Action {
	case cli.ActionCategorize:
		category := answer.Category
		return engine.ManualOverride{
			Category:   &category,
			Status:     status(model.StatusCategorized),
			CreateRule: answer.CreateRule,
		}, true
	case cli.ActionTransfer:
		return engine.ManualOverride{Status: status(model.StatusTransfer)}, true
	case cli.ActionIgnore:
		return engine.ManualOverride{Status: status(model.StatusIgnored)}, true
	default:
		return engine.ManualOverride{}, false
	}
}

func listReviewCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions by status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := model.TransactionStatus(status)
			if !s.Valid() {
				return common.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			txns, err := a.store.GetTransactionsByStatus(ctx, s)
			if err != nil {
				return fmt.Errorf("failed to load transactions: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(txns) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No "+status+" transactions"))
				return nil
			}

			table := cli.NewTable(out, "ID", "Date", "Merchant", "Amount", "Category", "Source")
			for _, t := range txns {
				merchant := t.Merchant
				if merchant == "" {
					merchant = t.Description
				}
				table.Row(t.ExternalID, t.Date.In(a.cfg.Settings.Location).Format("2006-01-02"), merchant,
					cli.Money(t.AmountSpend), t.Category, string(t.Source))
			}
			return table.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", string(model.StatusNeedsReview), "Status to list")
	return cmd
}

func setReviewCmd() *cobra.Command {
	var (
		category   string
		status     string
		createRule bool
	)

	cmd := &cobra.Command{
		Use:   "set <transaction-id>",
		Short: "Set a transaction's category or status",
		Long: `Manually set the category and/or status of a transaction. Setting only a
category marks it categorized. --create-rule also adds a rule for its merchant.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var override engine.ManualOverride
			if cmd.Flags().Changed("category") {
				override.Category = &category
			}
			if cmd.Flags().Changed("status") {
				s := model.TransactionStatus(status)
				override.Status = &s
			}
			override.CreateRule = createRule
			if override.Category == nil && override.Status == nil {
				return common.NewUserError("nothing to change: pass --category and/or --status", nil)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			eng, err := a.engine(ctx)
			if err != nil {
				return err
			}
			txn, err := eng.ApplyManual(ctx, args[0], override)
			if err != nil {
				var valErr *common.ValidationError
				if txn.ExternalID != "" && !errors.As(err, &valErr) {
					// The override itself was saved.
					a.autoPush(ctx, cmd.ErrOrStderr(), []time.Time{txn.Date})
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s is now %s %s", txn.ExternalID, txn.Status, txn.Category)))
			a.autoPush(ctx, out, []time.Time{txn.Date})
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Category to assign")
	cmd.Flags().StringVarP(&status, "status", "s", "", "Status (categorized, needs_review, transfer, ignored)")
	cmd.Flags().BoolVar(&createRule, "create-rule", false, "Also create a rule from the merchant")
	return cmd
}
