package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/txnotify/pkg/client"
	"github.com/ArionMiles/txnotify/pkg/config"
	"github.com/ArionMiles/txnotify/pkg/logging"
)

func newSetupCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Authorize txnotify with your Google account",
		Long: `Setup runs the OAuth browser flow and stores the token in TXNOTIFY_TOKEN_FILE.
It is only needed by the gmail source and the sheets ledger.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			return a.setup(cmd.Context(), cfg, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "re-authenticate even if a token exists")
	return cmd
}

// setup handles the OAuth setup flow.
func (a *app) setup(ctx context.Context, cfg config.Config, force bool) error {
	pterm.DefaultHeader.Println("txnotify setup")

	// Check if credentials file exists
	if _, err := os.Stat(cfg.ClientSecretFile); os.IsNotExist(err) {
		return fmt.Errorf("credentials file not found: %s\n\nTo get your credentials:\n"+
			"1. Go to https://console.cloud.google.com/apis/credentials\n"+
			"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
			"3. Download the JSON file and save it as '%s'", cfg.ClientSecretFile, cfg.ClientSecretFile)
	}

	scopes, err := a.pluginRegistry().GetAllScopes(cfg.Source, cfg.Ledger)
	if err != nil {
		return err
	}
	if len(scopes) == 0 {
		// No Google plugin is configured; request both scopes.
		scopes = []string{gmail.GmailModifyScope, sheets.SpreadsheetsScope}
	}

	if !force {
		tok, err := client.LoadToken(cfg.TokenFile)
		switch {
		case err == nil && len(tok.Missing(scopes)) == 0:
			pterm.Success.Printfln("Already authenticated, token file exists: %s", cfg.TokenFile)
			pterm.Info.Println("To re-authenticate, run: txnotify setup --force")
			return nil
		case err == nil:
			pterm.Warning.Println("The stored token does not cover every configured plugin; re-authenticating.")
		case !errors.Is(err, client.ErrNoToken):
			pterm.Warning.Printfln("Ignoring unreadable token: %v", err)
		}
	} else {
		if err := client.RemoveToken(cfg.TokenFile); err != nil {
			a.logger.Warn("failed to remove existing token", "error", err)
		}
		pterm.Info.Println("Forcing re-authentication...")
	}

	pterm.Println("Requested permissions:")
	for _, s := range scopes {
		pterm.Printfln("  - %s (%s)", client.Describe(s), s)
	}
	pterm.Println()

	_, err = client.New(ctx, client.Config{
		SecretFile:  cfg.ClientSecretFile,
		TokenFile:   cfg.TokenFile,
		Scopes:      scopes,
		Interactive: true,
		Logger:      logging.Component(a.logger, "oauth", "google"),
	})
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	pterm.Success.Printfln("Token saved to: %s", cfg.TokenFile)
	pterm.Info.Println("Run 'txnotify status' to check the configuration, then 'txnotify run'.")
	return nil
}
