package main

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ArionMiles/txnotify/pkg/category"
	"github.com/ArionMiles/txnotify/pkg/config"
)

func newCategoriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "Show the category table in match order",
		Long: `Categories prints the category table used by the extraction engine. The first
category with a keyword found in the receiver or the text wins; anything else is
` + category.Miscellaneous + `.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}

			table := category.DefaultTable()
			if cfg.CategoryTable != "" {
				if table, err = category.LoadTableFile(cfg.CategoryTable); err != nil {
					return err
				}
				pterm.Info.Printfln("Using %s", cfg.CategoryTable)
			}

			tableData := pterm.TableData{{"#", "Category", "Keywords"}}
			for i, c := range table {
				tableData = append(tableData, []string{
					pterm.Sprint(i + 1),
					c.Label,
					strings.Join(c.Keywords, ", "),
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(tableData).Render()
		},
	}
}
