package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ArionMiles/txnotify/pkg/category"
	"github.com/ArionMiles/txnotify/pkg/client"
	"github.com/ArionMiles/txnotify/pkg/config"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check configuration, credentials and the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.status(cmd.Context())
		},
	}
}

// checks collects the result lines of the status command.
type checks struct {
	rows    pterm.TableData
	allGood bool
}

func (c *checks) ok(name, detail string) {
	c.rows = append(c.rows, []string{name, pterm.Green("✓"), detail})
}

func (c *checks) warn(name, detail string) {
	c.rows = append(c.rows, []string{name, pterm.Yellow("⚠"), detail})
}

func (c *checks) fail(name string, err error) {
	c.rows = append(c.rows, []string{name, pterm.Red("✗"), err.Error()})
	c.allGood = false
}

// status checks the configuration and authentication status.
func (a *app) status(ctx context.Context) error {
	pterm.DefaultHeader.Println("txnotify status")

	c := &checks{rows: pterm.TableData{{"Check", "", "Detail"}}, allGood: true}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		c.fail("Config", err)
		return a.printStatus(c)
	}
	if err := cfg.Validate(); err != nil {
		c.fail("Config", err)
	} else {
		c.ok("Config", fmt.Sprintf("source=%s store=%s ledger=%s", cfg.Source, cfg.Store, cfg.Ledger))
	}

	a.checkCategories(c, cfg)

	scopes, err := a.pluginRegistry().GetAllScopes(cfg.Source, cfg.Ledger)
	if err != nil {
		c.fail("Plugins", err)
	} else if len(scopes) > 0 {
		a.checkGoogle(ctx, c, cfg, scopes)
	}

	a.checkStore(ctx, c, cfg)

	return a.printStatus(c)
}

func (a *app) checkCategories(c *checks, cfg config.Config) {
	if cfg.CategoryTable == "" {
		c.ok("Categories", fmt.Sprintf("%d built-in categories", len(category.DefaultTable())))
		return
	}
	table, err := category.LoadTableFile(cfg.CategoryTable)
	if err != nil {
		c.fail("Categories", err)
		return
	}
	c.ok("Categories", fmt.Sprintf("%d categories from %s", len(table), cfg.CategoryTable))
}

func (a *app) checkGoogle(ctx context.Context, c *checks, cfg config.Config, scopes []string) {
	if _, err := os.Stat(cfg.ClientSecretFile); err != nil {
		c.fail("Credentials", fmt.Errorf("%s not found", cfg.ClientSecretFile))
		return
	}
	c.ok("Credentials", cfg.ClientSecretFile)

	token, err := client.LoadToken(cfg.TokenFile)
	if errors.Is(err, client.ErrNoToken) {
		c.fail("OAuth token", fmt.Errorf("not found (run 'txnotify setup')"))
		return
	}
	if err != nil {
		c.fail("OAuth token", err)
		return
	}
	if missing := token.Missing(scopes); len(missing) > 0 {
		descs := make([]string, 0, len(missing))
		for _, s := range missing {
			descs = append(descs, client.Describe(s))
		}
		c.fail("OAuth scopes", fmt.Errorf("missing %s (run 'txnotify setup --force')", strings.Join(descs, "; ")))
		return
	}
	if token.Expiry.IsZero() {
		c.ok("OAuth token", "no expiry recorded")
	} else if token.Expiry.Before(time.Now()) {
		c.warn("OAuth token", "expired (will refresh on next run)")
	} else {
		c.ok("OAuth token", "valid until "+token.Expiry.Format(time.RFC3339))
	}

	httpClient, err := a.httpClient(ctx, cfg)
	if err != nil {
		c.fail("OAuth client", err)
		return
	}
	if cfg.Source == "gmail" {
		if err := testGmailAPI(ctx, httpClient); err != nil {
			c.fail("Gmail API", err)
		} else {
			c.ok("Gmail API", "connected")
		}
	}
}

func (a *app) checkStore(ctx context.Context, c *checks, cfg config.Config) {
	st, err := a.openStore(ctx, cfg)
	if err != nil {
		c.fail("Store", err)
		return
	}
	defer a.closeStore(st)

	all, err := st.List(ctx, 0)
	if err != nil {
		c.fail("Store", err)
		return
	}
	pending, err := st.Pending(ctx, 0)
	if err != nil {
		c.fail("Store", err)
		return
	}
	c.ok("Store", fmt.Sprintf("%d transactions, %d unsynced", len(all), len(pending)))
}

func (a *app) printStatus(c *checks) error {
	if err := pterm.DefaultTable.WithHasHeader().WithData(c.rows).Render(); err != nil {
		return err
	}
	if c.allGood {
		pterm.Success.Println("Ready to run")
		return nil
	}
	return fmt.Errorf("configuration issues detected; fix the issues above, then run 'txnotify status' again")
}

func testGmailAPI(ctx context.Context, httpClient *http.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	// List labels as a simple connectivity test
	if _, err := svc.Users.Labels.List("me").Context(ctx).Do(); err != nil {
		return fmt.Errorf("API call failed: %w", err)
	}
	return nil
}
