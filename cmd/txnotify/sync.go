package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send every unsynced transaction to the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			httpClient, err := a.httpClient(ctx, cfg)
			if err != nil {
				return fmt.Errorf("creating http client: %w", err)
			}

			st, err := a.openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.closeStore(st)

			syncer, closeLedger, err := a.openSyncer(ctx, cfg, st, httpClient)
			if err != nil {
				return err
			}
			defer closeLedger()

			if syncer == nil || !syncer.Configured() {
				pterm.Warning.Println("Remote ledger not configured, transactions stay local")
				return nil
			}

			result, err := syncer.SyncPending(ctx)
			if result.Attempted == 0 && err == nil {
				pterm.Info.Println("Nothing to sync")
				return nil
			}
			if err != nil {
				pterm.Warning.Printfln("Synced %d of %d transactions", result.Synced, result.Attempted)
				return fmt.Errorf("syncing: %w", err)
			}
			pterm.Success.Printfln("Synced %d transactions", result.Synced)
			return nil
		},
	}
}
