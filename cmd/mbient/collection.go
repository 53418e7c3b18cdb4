package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/voyagen/mbient/internal/collection"
	"github.com/voyagen/mbient/internal/models"
)

func newCollectionCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "collection",
		Short: "Print the playlist collection with resolved URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cc.cfg
			menu, err := collection.New(cfg.DataDir, cfg.StreamServerHost).MenuItems()
			if err != nil {
				return err
			}
			if len(menu) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "collection in %s is empty\n", cfg.DataDir)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderMenu(menu))
			return nil
		},
	}
}

func renderMenu(menu []models.MenuItem) string {
	rows := make([][]string, 0, len(menu))
	for _, m := range menu {
		rows = append(rows, []string{strconv.Itoa(m.Order), m.Name, m.URL})
	}
	return renderTable(
		[]string{"Order", "Name", "URL"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft},
	)
}
