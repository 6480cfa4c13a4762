package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ArionMiles/txnotify/internal/pipeline"
	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/config"
)

// SimulatedAlert is stored by ingest --simulate.
const SimulatedAlert = "Paid ₹ 850 to Zomato via UPI on 25 Feb."

func newParseCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "parse [text...]",
		Short: "Print the transaction extracted from each text",
		Long: `Parse runs the extraction engine over each argument, or over each non-blank
line of stdin when no argument is given. Nothing is stored.`,
		Example: `  txnotify parse "Paid ₹ 1,250 to Zomato via HDFC Bank on 25 Feb."
  txnotify parse --json < tests/data/alerts/upi.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			engine, err := a.engine(cfg)
			if err != nil {
				return err
			}

			texts, err := inputTexts(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			records := make([]api.TransactionRecord, 0, len(texts))
			for _, text := range texts {
				records = append(records, engine.Extract(text))
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return renderRecords(records)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func newIngestCmd(a *app) *cobra.Command {
	var simulate bool

	cmd := &cobra.Command{
		Use:   "ingest [text...]",
		Short: "Store the transactions found in the given texts",
		Long: `Ingest extracts and stores each argument, or each non-blank line of stdin
when no argument is given. Texts without an amount and duplicates are skipped.
Stored records are synced by the next run or by txnotify sync.`,
		Example: `  txnotify ingest "Rs. 50.00 spent at Starbucks on your credit card ends in 1234"
  txnotify ingest --simulate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var texts []string
			if simulate {
				texts = []string{SimulatedAlert}
			} else {
				var err error
				if texts, err = inputTexts(args, cmd.InOrStdin()); err != nil {
					return err
				}
			}
			return a.ingest(cmd, texts)
		},
	}

	cmd.Flags().BoolVar(&simulate, "simulate", false, "store a sample UPI alert")
	return cmd
}

func (a *app) ingest(cmd *cobra.Command, texts []string) error {
	ctx := cmd.Context()

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	engine, err := a.engine(cfg)
	if err != nil {
		return err
	}

	st, err := a.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.closeStore(st)

	runner := pipeline.NewRunner(engine, st, a.logger.With("component", "runner"))

	var stored int
	for i, text := range texts {
		txn, err := runner.Ingest(ctx, &api.Notification{
			ID:     fmt.Sprintf("cli:%d", i+1),
			Text:   text,
			Source: "cli",
		})
		switch {
		case errors.Is(err, pipeline.ErrNotTransaction):
			pterm.Warning.Printfln("No amount found, skipped: %s", text)
		case errors.Is(err, api.ErrDuplicate):
			pterm.Warning.Printfln("Already stored, skipped: %s", text)
		case err != nil:
			return err
		default:
			stored++
			pterm.Success.Printfln("Stored %s: %s to %s (%s)",
				txn.ID, txn.Amount.StringFixed(2), orDash(txn.Receiver), txn.Category)
		}
	}

	pterm.Info.Printfln("%d of %d texts stored", stored, len(texts))
	return nil
}

// inputTexts returns args, or the non-blank lines of r when args is empty.
func inputTexts(args []string, r io.Reader) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}

	var texts []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			texts = append(texts, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	if len(texts) == 0 {
		return nil, errors.New("no text given")
	}
	return texts, nil
}

func renderRecords(records []api.TransactionRecord) error {
	tableData := pterm.TableData{
		{"Amount", "Sender", "Receiver", "Category", "Text"},
	}
	for _, rec := range records {
		amount := "-"
		if rec.Amount != nil {
			amount = rec.Amount.String()
		}
		tableData = append(tableData, []string{
			amount,
			orDash(rec.Sender),
			orDash(rec.Receiver),
			rec.Category,
			truncate(rec.OriginalText, 60),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(tableData).Render()
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

