package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voyagen/mbient/internal/config"
	"github.com/voyagen/mbient/internal/logger"
)

// commandContext carries the lazily loaded configuration shared by subcommands.
type commandContext struct {
	configFlag *string
	cfg        *config.Config
	log        logger.Logger
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	var (
		cfg *config.Config
		err error
	)
	if *c.configFlag != "" {
		cfg, err = config.LoadFromFile(*c.configFlag)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c.cfg = cfg
	c.log = logger.New(os.Stderr, cfg.LogLevel, cfg.SafeLogs)
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "mbient",
		Short:         "Mbient playlist ingestion service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (YAML); else environment")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newPlaylistCommand(ctx))
	rootCmd.AddCommand(newCollectionCommand(ctx))

	return rootCmd
}
