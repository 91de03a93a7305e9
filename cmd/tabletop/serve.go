package main

import (
	"github.com/spf13/cobra"

	"github.com/argus-labs/tabletop/world"
)

func NewServeCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run a world configured from the TABLETOP_* environment",
		Example: "TABLETOP_SNAPSHOT_STORAGE=file tabletop serve --mode host",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			opts := world.Options{}
			if mode != "" {
				m, err := world.ParseMode(mode)
				if err != nil {
					return err
				}
				opts.Mode = m
			}
			w, err := world.New(opts)
			if err != nil {
				return err
			}
			return w.Start()
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "replication role, overrides TABLETOP_MODE")
	return cmd
}
