package main

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tabletop",
		Short:         "Transactional game object store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		NewServeCmd(),
		NewDiffCmd(),
		NewSetupCmd(),
		NewValidateCmd(),
	)
	return root
}
