package main

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/autobudgeter/internal/cli"
	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/model"
	"github.com/Veraticus/autobudgeter/internal/pattern"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
		Long: `List, add, enable, disable, delete and test the rules that categorize
transactions before the LLM is consulted. Higher priority rules are tried first.`,
	}

	cmd.AddCommand(listRulesCmd())
	cmd.AddCommand(addRuleCmd())
	cmd.AddCommand(setRuleEnabledCmd("enable", "Enable a rule", true))
	cmd.AddCommand(setRuleEnabledCmd("disable", "Disable a rule without deleting it", false))
	cmd.AddCommand(deleteRuleCmd())
	cmd.AddCommand(testRuleCmd())

	return cmd
}

func listRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all rules in evaluation order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rules, err := a.store.ListRules(ctx)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(rules) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No rules yet. Use 'autobudget rules add' to create one."))
				return nil
			}

			table := cli.NewTable(out, "ID", "Priority", "Pattern", "Type", "Category", "Origin", "Enabled")
			for _, r := range rules {
				enabled := "yes"
				if !r.Enabled {
					enabled = cli.SubtleStyle.Render("no")
				}
				table.Row(r.ID, strconv.Itoa(r.Priority), r.Pattern, string(r.PatternType), r.Category, string(r.Origin), enabled)
			}
			return table.Flush()
		},
	}
}

func addRuleCmd() *cobra.Command {
	var (
		category string
		name     string
		priority int
		regex    bool
	)

	cmd := &cobra.Command{
		Use:   "add <pattern>",
		Short: "Add a rule",
		Long: `Add a rule mapping transactions whose merchant or description contains
<pattern> (case-insensitive) to a category. With --regex the pattern is a regular
expression.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if !slices.Contains(a.cfg.Categories(), category) {
				return common.NewValidationError("category", fmt.Sprintf("unknown category %q", category))
			}

			rule := model.Rule{
				Name:        name,
				Pattern:     args[0],
				PatternType: model.PatternSubstring,
				Category:    category,
				Priority:    priority,
				Origin:      model.OriginUser,
				Enabled:     true,
			}
			if regex {
				rule.PatternType = model.PatternRegex
			}
			if rule.Name == "" {
				rule.Name = "Rule for " + rule.Pattern
			}
			if err := pattern.ValidateRule(rule); err != nil {
				return common.NewValidationError("pattern", err.Error())
			}

			if err := a.store.CreateRule(ctx, &rule); err != nil {
				return err
			}
			_ = a.recorder.Append(ctx, model.EventRuleCreated, map[string]any{
				"rule_id":      rule.ID,
				"pattern":      rule.Pattern,
				"pattern_type": string(rule.PatternType),
				"category":     rule.Category,
				"priority":     rule.Priority,
				"origin":       string(rule.Origin),
			})

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created rule %s: %q → %s", rule.ID, rule.Pattern, rule.Category)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Category to assign (required)")
	cmd.Flags().StringVar(&name, "name", "", "Rule name")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Priority; higher runs first")
	cmd.Flags().BoolVar(&regex, "regex", false, "Treat the pattern as a regular expression")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func setRuleEnabledCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.store.SetRuleEnabled(ctx, args[0], enabled); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rule %s %sd", args[0], use)))
			return nil
		},
	}
}

func deleteRuleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule",
		Long:  `Delete a rule. Transactions it already categorized keep their category.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.store.DeleteRule(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted rule "+args[0]))
			return nil
		},
	}
}

func testRuleCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "test <merchant>",
		Short: "Show which enabled rule would match a merchant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rules, err := a.store.GetEnabledRules(ctx)
			if err != nil {
				return fmt.Errorf("failed to load rules: %w", err)
			}

			out := cmd.OutOrStdout()
			match, ok := pattern.NewMatcher(rules).Match(args[0], description)
			if !ok {
				fmt.Fprintln(out, cli.FormatWarning("No rule matches; the LLM would be asked"))
				return nil
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Rule %s → %s", match.RuleID, match.Category)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Raw description to match as well")
	return cmd
}
