package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/autobudgeter/internal/certs"
	"github.com/Veraticus/autobudgeter/internal/cli"
	"github.com/Veraticus/autobudgeter/internal/config"
	"github.com/Veraticus/autobudgeter/internal/plaid"
	"github.com/Veraticus/autobudgeter/internal/sheets"
)

const linkTimeout = 10 * time.Minute

func plaidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plaid",
		Short: "Connect bank accounts through Plaid",
	}

	cmd.AddCommand(plaidLinkCmd())
	cmd.AddCommand(plaidExchangeCmd())

	return cmd
}

func plaidLinkCmd() *cobra.Command {
	var (
		addr      string
		saveToken bool
	)

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Connect a bank account with Plaid Link",
		Long: `Serve Plaid Link locally and open it in your browser. After you connect an
institution the public token is exchanged for an access token, which is saved as
plaid.access_token in the config file.

In production Plaid requires HTTPS, so a self-signed localhost certificate is
created and your browser will warn about it once.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			client, err := plaid.NewLinkClient(cfg.Plaid)
			if err != nil {
				return err
			}
			linkToken, err := client.CreateLinkToken(ctx, "")
			if err != nil {
				return err
			}

			result, err := serveLink(ctx, addr, cfg.Plaid.Environment == "production", plaid.NewLinkServer(linkToken, client, slog.Default()))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess("Connected "+result.InstitutionName))
			for _, acct := range result.Accounts {
				fmt.Fprintf(out, "  %s %s (%s) ••%s\n", cli.MoneyIcon, acct.Name, acct.Type, acct.Mask)
			}
			return storeAccessToken(out, result.AccessToken, saveToken)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "Address to serve Plaid Link on")
	cmd.Flags().BoolVar(&saveToken, "save", true, "Save the access token to the config file")
	return cmd
}

// serveLink runs the Link page until the user finishes or ctx ends.
func serveLink(ctx context.Context, addr string, useTLS bool, link *plaid.LinkServer) (plaid.LinkResult, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return plaid.LinkResult{}, fmt.Errorf("failed to start Link server: %w", err)
	}

	server := &http.Server{Handler: link.Handler(), ReadHeaderTimeout: 10 * time.Second}
	scheme := "http"
	if useTLS {
		cert, err := certs.NewFileManager(filepath.Join(configDir(), "certs")).GetOrCreateCertificate()
		if err != nil {
			_ = listener.Close()
			return plaid.LinkResult{}, fmt.Errorf("failed to get/create certificate: %w", err)
		}
		server.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
		listener = tls.NewListener(listener, server.TLSConfig)
		scheme = "https"
		slog.Info("Your browser will show a security warning about the self-signed certificate")
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() { _ = server.Shutdown(context.WithoutCancel(ctx)) }()

	url := fmt.Sprintf("%s://%s", scheme, addr)
	slog.Info("Opening your browser to connect a bank account", "url", url)
	openBrowser(url)

	waitCtx, cancel := context.WithTimeoutCause(ctx, linkTimeout, plaid.ErrLinkTimeout)
	defer cancel()

	type outcome struct {
		err    error
		result plaid.LinkResult
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := link.Wait(waitCtx)
		done <- outcome{result: r, err: err}
	}()

	select {
	case err := <-serveErr:
		return plaid.LinkResult{}, fmt.Errorf("link server failed: %w", err)
	case o := <-done:
		if errors.Is(o.err, context.DeadlineExceeded) {
			return plaid.LinkResult{}, context.Cause(waitCtx)
		}
		return o.result, o.err
	}
}

func plaidExchangeCmd() *cobra.Command {
	var saveToken bool

	cmd := &cobra.Command{
		Use:   "exchange <public-token>",
		Short: "Exchange a Link public token for an access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			client, err := plaid.NewLinkClient(cfg.Plaid)
			if err != nil {
				return err
			}

			accessToken, itemID, err := client.ExchangePublicToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Exchanged token for item "+itemID))
			return storeAccessToken(cmd.OutOrStdout(), accessToken, saveToken)
		},
	}

	cmd.Flags().BoolVar(&saveToken, "save", true, "Save the access token to the config file")
	return cmd
}

func storeAccessToken(out io.Writer, accessToken string, save bool) error {
	if !save {
		fmt.Fprintln(out, cli.FormatInfo("Access token: "+accessToken))
		return nil
	}
	v.Set("plaid.access_token", accessToken)
	path, err := saveConfig()
	if err != nil {
		slog.Warn("Failed to update config file", "error", err)
		fmt.Fprintln(out, cli.FormatWarning("Add this to your config.yaml manually:"))
		fmt.Fprintf(out, "plaid:\n  access_token: %q\n", accessToken)
		return nil
	}
	fmt.Fprintln(out, cli.FormatSuccess("Saved plaid.access_token to "+path))
	return nil
}

func sheetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Set up and check the Google Sheets workbook",
	}

	cmd.AddCommand(sheetsAuthCmd())
	cmd.AddCommand(sheetsCheckCmd())

	return cmd
}

func sheetsAuthCmd() *cobra.Command {
	var clientID, clientSecret string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with Google Sheets",
		Long: `Authenticate with Google Sheets using OAuth2 and save the refresh token as
sheets.refresh_token in the config file. Run this once before pushing.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sheetsCfg := config.LoadSheetsConfig(v)
			if clientID == "" {
				clientID = sheetsCfg.ClientID
			}
			if clientSecret == "" {
				clientSecret = sheetsCfg.ClientSecret
			}
			if clientID == "" || clientSecret == "" {
				return errors.New("OAuth2 credentials not found: set sheets.client_id and sheets.client_secret or pass --client-id and --client-secret")
			}

			tokenFile := filepath.Join(configDir(), "sheets-token.json")
			slog.Info("Starting Google Sheets authentication", "token_file", tokenFile)

			token, err := sheets.AuthenticateOAuth2Interactive(cmd.Context(), sheets.OAuth2Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				TokenFile:    tokenFile,
			}, slog.Default())
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}

			out := cmd.OutOrStdout()
			v.Set("sheets.refresh_token", token.RefreshToken)
			path, err := saveConfig()
			if err != nil {
				slog.Warn("Failed to update config file with refresh token", "error", err)
				fmt.Fprintln(out, cli.FormatWarning("Add this to your config.yaml manually:"))
				fmt.Fprintf(out, "sheets:\n  refresh_token: %q\n", token.RefreshToken)
				return nil
			}
			fmt.Fprintln(out, cli.FormatSuccess(cli.SheetIcon+" Google Sheets is ready; saved refresh token to "+path))
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth2 client ID (overrides config)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth2 client secret (overrides config)")
	return cmd
}

func sheetsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the workbook is reachable and list its tabs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.LoadSheetsConfig(v)
			if err := cfg.Validate(); err != nil {
				return err
			}
			sink, err := sheets.NewGoogleSink(ctx, cfg, slog.Default())
			if err != nil {
				return err
			}
			titles, err := sink.SheetTitles(ctx, cfg.SpreadsheetID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Workbook reachable with %d tabs", len(titles))))
			for _, t := range titles {
				fmt.Fprintln(out, "  "+t)
			}
			return nil
		},
	}
}

func configDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", ".autobudget")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "autobudget")
}

// saveConfig writes the current configuration back to the file it came from.
func saveConfig() (string, error) {
	path := v.ConfigFileUsed()
	if path == "" {
		path = filepath.Join(configDir(), "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", err
	}
	return path, v.WriteConfigAs(path)
}

// openBrowser tries to open the URL in the default browser.
func openBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start() //nolint:gosec
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start() //nolint:gosec
	case "darwin":
		err = exec.Command("open", url).Start() //nolint:gosec
	}
	if err != nil {
		slog.Debug("Failed to open browser", "error", err)
	}
}
