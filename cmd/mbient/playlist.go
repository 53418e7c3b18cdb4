package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/voyagen/mbient/internal/fetcher"
	"github.com/voyagen/mbient/internal/models"
)

func newPlaylistCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "playlist <url>",
		Short: "Fetch a playlist and print its channels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cc.cfg
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()

			f := fetcher.NewHTTPFetcher(cfg.UserAgent, cfg.Timeout)
			channels, err := fetcher.FetchM3U(ctx, f, args[0], fetcher.Parser{FallbackHost: cfg.FallbackHost})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderChannels(channels))
			fmt.Fprintf(cmd.OutOrStdout(), "%d channels\n", len(channels))
			return nil
		},
	}
}

func renderChannels(channels []models.Channel) string {
	rows := make([][]string, 0, len(channels))
	for i, ch := range channels {
		rows = append(rows, []string{strconv.Itoa(i + 1), ch.Title, ch.StreamURL, ch.LogoURL})
	}
	return renderTable(
		[]string{"#", "Title", "Stream", "Logo"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
	)
}
