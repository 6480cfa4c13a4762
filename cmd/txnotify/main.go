// Command txnotify turns bank and UPI notification texts into categorized
// transactions, keeps them locally and syncs them to a remote ledger.
package main

import (
	"os"
	"unicode"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ArionMiles/txnotify/pkg/logging"
)

func main() {
	pterm.Error.Prefix = pterm.Prefix{
		Text:  " ERROR ",
		Style: pterm.NewStyle(pterm.BgLightRed, pterm.FgBlack),
	}

	logCfg, err := logging.FromEnv()
	logger := logging.Setup(logCfg)
	if err != nil {
		logger.Warn("using default logging", "error", err)
	}

	if err := newRootCmd(&app{logger: logger, logConfig: logCfg}).Execute(); err != nil {
		pterm.Error.Println(capitalize(err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "txnotify",
		Short: "Capture transactions from bank notifications",
		Long: `txnotify reads bank and UPI notification texts from stdin, a file, an HTTP
webhook, Gmail or an mbox export, extracts the amount, counterparties and category,
stores each transaction locally and syncs it to a remote ledger.

Configuration comes from an optional JSON or YAML file and TXNOTIFY_* environment
variables, which take precedence.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (JSON or YAML)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error (default TXNOTIFY_LOG_LEVEL)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		flag := cmd.Flags().Lookup("log-level")
		if flag == nil || !flag.Changed {
			return nil
		}
		level, err := logging.ParseLevel(flag.Value.String())
		if err != nil {
			return err
		}
		a.logConfig.Level = level
		a.logger = logging.Setup(a.logConfig)
		return nil
	}

	rootCmd.AddCommand(
		newRunCmd(a),
		newParseCmd(a),
		newIngestCmd(a),
		newSyncCmd(a),
		newListCmd(a),
		newExportCmd(a),
		newCategoriesCmd(a),
		newSetupCmd(a),
		newStatusCmd(a),
	)
	return rootCmd
}

func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
