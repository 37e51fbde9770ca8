package main

import (
	"github.com/spf13/cobra"

	"github.com/knoting/knot/internal/config"
)

func newConfigCommand(root *rootOptions) *cobra.Command {
	var defaults bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Defaults()
			if !defaults {
				var err error
				if cfg, err = root.loadConfig(); err != nil {
					return err
				}
			}
			return cfg.Encode(cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&defaults, "defaults", false, "ignore config files and print built-in defaults")
	return cmd
}
