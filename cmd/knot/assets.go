package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/knoting/knot/internal/asset"
)

func newAssetsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "assets",
		Short: "Load the asset manifest and list every asset with its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			if cfg.Assets.Manifest != "" {
				if _, err := asset.LoadManifest(filepath.Join(cfg.Assets.Root, cfg.Assets.Manifest)); err != nil {
					return err
				}
			}
			m := asset.NewManager(cfg.Assets, log.Named("assets"))
			m.OnAwake()
			defer m.OnDestroy()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tSTATE\tVERTICES\tPATH")
			for _, a := range m.Loaded() {
				verts := 0
				if a.Mesh != nil {
					verts = len(a.Mesh.Vertices)
				}
				path := a.Path
				if path == "" {
					path = "(built-in)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", a.Name, a.Type, a.State, verts, path)
			}
			return tw.Flush()
		},
	}
}
