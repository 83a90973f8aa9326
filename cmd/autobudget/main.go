package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/autobudgeter/internal/cli"
	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/config"
)

var (
	cfgFile string
	version = "dev"
	// v is the resolved configuration source, set by initConfig.
	v *viper.Viper
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "autobudget",
		Short: "💰 Bank sync, categorization and budget reconciliation",
		Long: `autobudget pulls transactions from Plaid, SimpleFIN or OFX files, categorizes them with
rules and an LLM, totals spending per month and reconciles the totals into your
Google Sheets budget without touching formula cells.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/autobudget/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")

	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(importOFXCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(budgetCmd())
	rootCmd.AddCommand(pushCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(accountsCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(sheetsCmd())
	rootCmd.AddCommand(plaidCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(errorMessage(err)))
		os.Exit(1)
	}
}

// errorMessage prefers the user-facing message of a UserError and keeps the cause in the debug log.
func errorMessage(err error) string {
	var userErr *common.UserError
	if errors.As(err, &userErr) {
		if userErr.Err != nil {
			slog.Debug("Command failed", "error", userErr.Err)
		}
		return userErr.UserMessage
	}
	return err.Error()
}

func initConfig(cmd *cobra.Command, _ []string) error {
	var err error
	v, err = config.NewViper(cfgFile)
	if err != nil {
		return err
	}

	root := cmd.Root()
	_ = v.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("logging.format", root.PersistentFlags().Lookup("log-format"))

	if err := setupLogging(); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	return nil
}

func setupLogging() error {
	level, err := common.ParseLevel(v.GetString("logging.level"))
	if err != nil {
		return err
	}
	return common.SetupLogger(level, v.GetString("logging.format"))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "autobudget %s\n", version)
			slog.Debug("Version requested", "version", version)
		},
	}
}
