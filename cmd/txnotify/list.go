package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/report"
	csvwriter "github.com/ArionMiles/txnotify/pkg/writer/csv"
	jsonwriter "github.com/ArionMiles/txnotify/pkg/writer/json"
)

var formatter = report.NewFormatter(language.Make("en-IN"), "₹")

func newListCmd(a *app) *cobra.Command {
	var (
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored transactions and the monthly budget",
		Long: `List shows stored transactions newest first with their sync state, followed
by this month's spend against TXNOTIFY_BUDGET_LIMIT.`,
		Example: `  txnotify list
  txnotify list --limit 50
  txnotify list --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			budget, err := cfg.Budget()
			if err != nil {
				return err
			}

			st, err := a.openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.closeStore(st)

			txns, err := st.List(ctx, 0)
			if err != nil {
				return fmt.Errorf("listing transactions: %w", err)
			}

			shown := txns
			if !all {
				shown = report.Month(txns, time.Now())
			}
			if limit > 0 && len(shown) > limit {
				shown = shown[:limit]
			}

			if len(shown) == 0 {
				pterm.Warning.Println("No transactions found")
			} else if err := renderTransactions(shown); err != nil {
				return err
			}

			renderSummary(report.Summarize(report.Month(txns, time.Now()), budget))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum number of transactions to display")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include transactions before this month")
	return cmd
}

func renderTransactions(txns []*api.StoredTransaction) error {
	tableData := pterm.TableData{
		{"ID", "Date", "Amount", "Receiver", "Category", "Status"},
	}
	for _, txn := range txns {
		amount := "-"
		if txn.Amount != nil {
			amount = formatter.Amount(*txn.Amount)
		}
		status := pterm.Yellow("Local")
		if txn.Synced {
			status = pterm.Green("Synced")
		}
		tableData = append(tableData, []string{
			shortID(txn.ID),
			txn.Timestamp.Local().Format("2006-01-02 15:04"),
			amount,
			orDash(txn.Receiver),
			txn.Category,
			status,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(tableData).Render(); err != nil {
		return err
	}
	pterm.Info.Printfln("Total: %d transactions", len(txns))
	return nil
}

func renderSummary(s report.Summary) {
	pterm.DefaultSection.Println("Budget this month")

	remaining := formatter.Amount(s.Remaining)
	if s.OverBudget {
		remaining = pterm.Red(remaining)
	} else {
		remaining = pterm.Green(remaining)
	}

	tableData := pterm.TableData{
		{"Budget", formatter.Amount(s.Budget)},
		{"Spent", formatter.Amount(s.Spent) + " (" + formatter.Percent(s.Spent, s.Budget) + ")"},
		{"Remaining", remaining},
		{"Unsynced", fmt.Sprint(s.Unsynced)},
	}
	_ = pterm.DefaultTable.WithData(tableData).Render()

	if s.OverBudget {
		pterm.Warning.Println("Over budget")
	}

	if len(s.Categories) == 0 {
		return
	}
	bars := make(pterm.Bars, 0, len(s.Categories))
	for _, ct := range s.Categories {
		bars = append(bars, pterm.Bar{Label: ct.Category, Value: int(ct.Total.IntPart())})
	}
	_ = pterm.DefaultBarChart.WithHorizontal().WithBars(bars).WithShowValue().Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored transactions as CSV or JSON",
		Example: `  txnotify export --format csv --output transactions.csv
  txnotify export --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var export func(io.Writer, []*api.StoredTransaction) error
			switch format {
			case "csv":
				export = csvwriter.Export
			case "json":
				export = jsonwriter.Export
			default:
				return fmt.Errorf("unknown format %q (want csv or json)", format)
			}

			ctx := cmd.Context()
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			st, err := a.openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.closeStore(st)

			txns, err := st.List(ctx, 0)
			if err != nil {
				return fmt.Errorf("listing transactions: %w", err)
			}

			if output == "" || output == "-" {
				return export(cmd.OutOrStdout(), txns)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			if err := export(f, txns); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing %s: %w", output, err)
			}
			pterm.Success.Printfln("Exported %d transactions to %s", len(txns), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format: csv or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
